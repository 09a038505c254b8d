package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"id"`
	DisplayID       string          `json:"display_id"`
	CreatedAt       time.Time       `json:"created_at"`
	CustomerID      *string         `json:"customer_id"`
	CustomerName    *string         `json:"customer_name"`
	CustomerPhone   *string         `json:"customer_phone"`
	CustomerAddress *string         `json:"customer_address"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Balance         decimal.Decimal `json:"balance"`
	Payments        []Payment       `json:"payments"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentRef      *string         `json:"payment_reference"`
	Status          Status          `json:"status"`
	Source          Source          `json:"source"`
	DeliveryMethod  *DeliveryMethod `json:"delivery_method"`
	PaymentDueDate  *time.Time      `json:"payment_due_date"`
}

// OrderItem is a frozen copy of the catalog row at order time.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"image_ref"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Payment struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Date      time.Time       `json:"date"`
	Reference *string         `json:"reference,omitempty"`
}

// StockLines returns the reservation lines covering every item of the order.
func (o *Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// Clone returns a deep copy so callers never share slices or pointers with a store.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.Payments = make([]Payment, len(o.Payments))
	for i, p := range o.Payments {
		c.Payments[i] = p
		c.Payments[i].Reference = cloneString(p.Reference)
	}
	c.CustomerID = cloneString(o.CustomerID)
	c.CustomerName = cloneString(o.CustomerName)
	c.CustomerPhone = cloneString(o.CustomerPhone)
	c.CustomerAddress = cloneString(o.CustomerAddress)
	c.PaymentRef = cloneString(o.PaymentRef)
	if o.DeliveryMethod != nil {
		d := *o.DeliveryMethod
		c.DeliveryMethod = &d
	}
	if o.PaymentDueDate != nil {
		t := *o.PaymentDueDate
		c.PaymentDueDate = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	From           *time.Time
	To             *time.Time
	Status         *Status
	Source         *Source
	PaymentMethod  *PaymentMethod
	DeliveryMethod *DeliveryMethod
	Limit          int
	Offset         int
}

// Matches applies the filter to one order; stores that cannot push a predicate down use it directly.
func (f OrderFilter) Matches(o *Order) bool {
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !o.CreatedAt.Before(*f.To) {
		return false
	}
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.Source != nil && o.Source != *f.Source {
		return false
	}
	if f.PaymentMethod != nil && o.PaymentMethod != *f.PaymentMethod {
		return false
	}
	if f.DeliveryMethod != nil && (o.DeliveryMethod == nil || *o.DeliveryMethod != *f.DeliveryMethod) {
		return false
	}
	return true
}

// Receivable is a credit order still owing money.
type Receivable struct {
	Order   *Order `json:"order"`
	Overdue bool   `json:"overdue"`
	// DaysOverdue is zero when the due date has not passed.
	DaysOverdue int `json:"days_overdue"`
}
