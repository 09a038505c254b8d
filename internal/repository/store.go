package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"retail-order-service/internal/entity"
)

// ErrDuplicateDisplayID means the allocated display id is already taken; the caller retries with a new one.
var ErrDuplicateDisplayID = errors.New("display id already in use")

// Store is the storage boundary of the order core. Reads outside RunInTx see committed state only.
type Store interface {
	// RunInTx applies fn atomically: either every Tx call inside fn is committed or none is.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*entity.Order, error)
	GetOrderByDisplayID(ctx context.Context, displayID string) (*entity.Order, error)
	ListOrders(ctx context.Context, filter entity.OrderFilter) ([]*entity.Order, error)
	// MaxDisplaySequence returns the highest N among display ids of the form prefix-N, or 0.
	MaxDisplaySequence(ctx context.Context, prefix string) (int64, error)

	StockAvailable(ctx context.Context, productID string) (int, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*entity.Customer, error)

	Close() error
}

// Tx is the set of mutations one order operation can perform.
type Tx interface {
	GetProducts(ctx context.Context, ids []string) (map[string]entity.Product, error)
	InsertProduct(ctx context.Context, p entity.Product, openingStock int) error

	// ReserveStock decrements every line or none. A short line fails with *entity.InsufficientStockError.
	ReserveStock(ctx context.Context, lines []entity.StockLine) error
	ReleaseStock(ctx context.Context, lines []entity.StockLine) error

	// LockOrder loads an order and holds it against concurrent writers until the transaction ends.
	LockOrder(ctx context.Context, id string) (*entity.Order, error)
	InsertOrder(ctx context.Context, o *entity.Order) error
	// UpdateOrder persists status and payment fields and appends payments not yet stored.
	UpdateOrder(ctx context.Context, o *entity.Order) error

	// ResolveCustomer upserts the customer keyed by phone, overwriting name and address.
	// An empty name or nil address keeps the stored value.
	ResolveCustomer(ctx context.Context, phone, name string, address *string) (*entity.Customer, error)
	RecordPurchase(ctx context.Context, customerID string, amount decimal.Decimal) error
}

// MergeLines sums duplicate products and orders lines by product id, so every store locks rows in the same order.
func MergeLines(lines []entity.StockLine) ([]entity.StockLine, error) {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("stock line for %s: quantity must be positive", l.ProductID)
		}
		totals[l.ProductID] += l.Quantity
	}
	merged := make([]entity.StockLine, 0, len(totals))
	for id, q := range totals {
		merged = append(merged, entity.StockLine{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
