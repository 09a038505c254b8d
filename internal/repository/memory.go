package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/idgen"
)

// MemoryStore keeps everything in process. One mutex serialises transactions; an undo journal rolls them back.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]entity.Product
	stock     map[string]int
	orders    map[string]*entity.Order
	byDisplay map[string]string
	created   []string
	customers map[string]*entity.Customer
	byPhone   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  map[string]entity.Product{},
		stock:     map[string]int{},
		orders:    map[string]*entity.Order{},
		byDisplay: map[string]string{},
		customers: map[string]*entity.Customer{},
		byPhone:   map[string]string{},
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*entity.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) GetOrderByDisplayID(ctx context.Context, displayID string) (*entity.Order, error) {
	s.mu.RLock()
	id, ok := s.byDisplay[displayID]
	s.mu.RUnlock()
	if !ok {
		return nil, entity.ErrNotFound
	}
	return s.GetOrder(ctx, id)
}

// ListOrders returns newest first.
func (s *MemoryStore) ListOrders(_ context.Context, filter entity.OrderFilter) ([]*entity.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Order
	skipped := 0
	for i := len(s.created) - 1; i >= 0; i-- {
		o := s.orders[s.created[i]]
		if !filter.Matches(o) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, o.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MaxDisplaySequence(_ context.Context, prefix string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for displayID := range s.byDisplay {
		if n, ok := idgen.ParseSequence(prefix, displayID); ok && n > max {
			max = n
		}
	}
	return max, nil
}

func (s *MemoryStore) StockAvailable(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.stock[productID]
	if !ok {
		return 0, entity.ErrNotFound
	}
	return q, nil
}

func (s *MemoryStore) GetCustomerByPhone(_ context.Context, phone string) (*entity.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, entity.ErrNotFound
	}
	c := *s.customers[id]
	return &c, nil
}

func (s *MemoryStore) Close() error { return nil }

// memTx runs with s.mu held for writing.
type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetProducts(_ context.Context, ids []string) (map[string]entity.Product, error) {
	out := make(map[string]entity.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) InsertProduct(_ context.Context, p entity.Product, openingStock int) error {
	if _, exists := t.s.products[p.ID]; exists {
		return &entity.ValidationError{Fields: map[string]string{"id": "product already exists"}}
	}
	t.s.products[p.ID] = p
	t.s.stock[p.ID] = openingStock
	t.undo = append(t.undo, func() {
		delete(t.s.products, p.ID)
		delete(t.s.stock, p.ID)
	})
	return nil
}

func (t *memTx) ReserveStock(_ context.Context, lines []entity.StockLine) error {
	merged, err := MergeLines(lines)
	if err != nil {
		return err
	}
	for _, l := range merged {
		if avail := t.s.stock[l.ProductID]; avail < l.Quantity {
			return &entity.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: avail}
		}
	}
	for _, l := range merged {
		l := l
		t.s.stock[l.ProductID] -= l.Quantity
		t.undo = append(t.undo, func() { t.s.stock[l.ProductID] += l.Quantity })
	}
	return nil
}

func (t *memTx) ReleaseStock(_ context.Context, lines []entity.StockLine) error {
	merged, err := MergeLines(lines)
	if err != nil {
		return err
	}
	for _, l := range merged {
		l := l
		t.s.stock[l.ProductID] += l.Quantity
		t.undo = append(t.undo, func() { t.s.stock[l.ProductID] -= l.Quantity })
	}
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (*entity.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return o.Clone(), nil
}

func (t *memTx) InsertOrder(_ context.Context, o *entity.Order) error {
	if _, taken := t.s.byDisplay[o.DisplayID]; taken {
		return ErrDuplicateDisplayID
	}
	t.s.orders[o.ID] = o.Clone()
	t.s.byDisplay[o.DisplayID] = o.ID
	t.s.created = append(t.s.created, o.ID)
	t.undo = append(t.undo, func() {
		delete(t.s.orders, o.ID)
		delete(t.s.byDisplay, o.DisplayID)
		t.s.created = t.s.created[:len(t.s.created)-1]
	})
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *entity.Order) error {
	prev, ok := t.s.orders[o.ID]
	if !ok {
		return entity.ErrNotFound
	}
	t.s.orders[o.ID] = o.Clone()
	t.undo = append(t.undo, func() { t.s.orders[o.ID] = prev })
	return nil
}

func (t *memTx) ResolveCustomer(_ context.Context, phone, name string, address *string) (*entity.Customer, error) {
	if id, ok := t.s.byPhone[phone]; ok {
		c := t.s.customers[id]
		prev := *c
		if name != "" {
			c.Name = name
		}
		if address != nil {
			a := *address
			c.Address = &a
		}
		t.undo = append(t.undo, func() { *c = prev })
		out := *c
		return &out, nil
	}
	c := &entity.Customer{
		ID:         uuid.NewString(),
		Name:       name,
		Phone:      phone,
		TotalSpent: decimal.Zero,
	}
	if address != nil {
		a := *address
		c.Address = &a
	}
	t.s.customers[c.ID] = c
	t.s.byPhone[phone] = c.ID
	t.undo = append(t.undo, func() {
		delete(t.s.customers, c.ID)
		delete(t.s.byPhone, phone)
	})
	out := *c
	return &out, nil
}

func (t *memTx) RecordPurchase(_ context.Context, customerID string, amount decimal.Decimal) error {
	c, ok := t.s.customers[customerID]
	if !ok {
		return entity.ErrNotFound
	}
	prev := *c
	c.TotalSpent = c.TotalSpent.Add(amount)
	c.OrderCount++
	t.undo = append(t.undo, func() { *c = prev })
	return nil
}
