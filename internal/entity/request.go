package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type NewOrderRequest struct {
	CustomerName     string          `json:"customer_name" validate:"max=255"`
	CustomerPhone    string          `json:"customer_phone" validate:"max=32"`
	CustomerAddress  string          `json:"customer_address" validate:"max=512"`
	Items            []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	PaymentMethod    PaymentMethod   `json:"payment_method" validate:"required"`
	PaymentReference *string         `json:"payment_reference"`
	PaymentDueDate   *time.Time      `json:"payment_due_date"`
	DeliveryMethod   *DeliveryMethod `json:"delivery_method"`
	Source           Source          `json:"source" validate:"required"`
	IdempotencyKey   string          `json:"-"`
}

type ItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// Validate checks the request shape and the cross-field rules that depend on channel and method.
func (r *NewOrderRequest) Validate() error {
	verr := structErrors(r)
	if r.ShippingCost.IsNegative() {
		verr.Add("shipping_cost", "must not be negative")
	} else if !isCents(r.ShippingCost) {
		verr.Add("shipping_cost", "at most two decimal places")
	}
	if r.PaymentMethod != "" && !r.PaymentMethod.Valid() {
		verr.Add("payment_method", "invalid")
	}
	if r.Source != "" && !r.Source.Valid() {
		verr.Add("source", "invalid")
	}
	if r.DeliveryMethod != nil {
		if !r.DeliveryMethod.Valid() {
			verr.Add("delivery_method", "invalid")
		} else if *r.DeliveryMethod == DeliveryDelivery && isBlank(r.CustomerAddress) {
			verr.Add("customer_address", "required for delivery orders")
		}
	}
	// Online orders only declare a method; the reference is collected on approval.
	if r.Source == SourcePOS && r.PaymentMethod.RequiresReference() && isBlankPtr(r.PaymentReference) {
		verr.Add("payment_reference", "required for card and transfer payments")
	}
	// Online credit terms are agreed on approval.
	if r.PaymentDueDate != nil && (r.PaymentMethod != PaymentCredit || r.Source != SourcePOS) {
		verr.Add("payment_due_date", "only allowed for POS credit sales")
	}
	return verr.OrNil()
}

type ApproveRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required"`
	DueDate       *time.Time    `json:"payment_due_date"`
	Reference     *string       `json:"payment_reference"`
}

func (r *ApproveRequest) Validate() error {
	verr := structErrors(r)
	if r.PaymentMethod != "" && !r.PaymentMethod.Valid() {
		verr.Add("payment_method", "invalid")
	}
	if r.PaymentMethod.RequiresReference() && isBlankPtr(r.Reference) {
		verr.Add("payment_reference", "required for card and transfer payments")
	}
	if r.DueDate != nil && r.PaymentMethod != PaymentCredit {
		verr.Add("payment_due_date", "only allowed for credit orders")
	}
	return verr.OrNil()
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method" validate:"required"`
	Reference *string         `json:"reference"`
}

func (r *PaymentRequest) Validate() error {
	verr := structErrors(r)
	if !r.Amount.IsPositive() {
		verr.Add("amount", "must be greater than zero")
	} else if !isCents(r.Amount) {
		verr.Add("amount", "at most two decimal places")
	}
	switch {
	case r.Method == "":
	case !r.Method.Valid():
		verr.Add("method", "invalid")
	case r.Method == PaymentCredit:
		verr.Add("method", "credit is not a payment")
	case r.Method.RequiresReference() && isBlankPtr(r.Reference):
		verr.Add("reference", "required for card and transfer payments")
	}
	return verr.OrNil()
}

func (p *NewProduct) Validate() error {
	verr := structErrors(p)
	if p.UnitPrice.IsNegative() {
		verr.Add("unit_price", "must not be negative")
	} else if !isCents(p.UnitPrice) {
		verr.Add("unit_price", "at most two decimal places")
	}
	return verr.OrNil()
}
