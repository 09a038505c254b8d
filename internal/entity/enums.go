package entity

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPendingApproval Status = "pending-approval"
	StatusPendingPayment  Status = "pending-payment"
	StatusPaid            Status = "paid"
	StatusCancelled       Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusPendingPayment, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// UnmarshalText normalises without rejecting; Validate reports unknown values under their field name.
func (s *Status) UnmarshalText(b []byte) error {
	*s = Status(normalize(string(b)))
	return nil
}

func ParseStatus(v string) (Status, error) {
	s := Status(normalize(v))
	if !s.Valid() {
		return "", fmt.Errorf("invalid order status %q", v)
	}
	return s, nil
}

// PaymentMethod is the declared way an order is (or will be) paid.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCredit   PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCredit:
		return true
	}
	return false
}

// RequiresReference reports whether a payment with this method must carry a reference string.
func (m PaymentMethod) RequiresReference() bool {
	return m == PaymentCard || m == PaymentTransfer
}

func (m *PaymentMethod) UnmarshalText(b []byte) error {
	*m = normalizePaymentMethod(string(b))
	return nil
}

// normalizePaymentMethod folds case and the "credito" alias used by the storefront.
func normalizePaymentMethod(v string) PaymentMethod {
	s := normalize(v)
	if s == "credito" {
		return PaymentCredit
	}
	return PaymentMethod(s)
}

func ParsePaymentMethod(v string) (PaymentMethod, error) {
	m := normalizePaymentMethod(v)
	if !m.Valid() {
		return "", fmt.Errorf("invalid payment method %q", v)
	}
	return m, nil
}

// Source is the sales channel an order came from.
type Source string

const (
	SourcePOS         Source = "pos"
	SourceOnlineStore Source = "online-store"
)

func (s Source) Valid() bool {
	return s == SourcePOS || s == SourceOnlineStore
}

func (s *Source) UnmarshalText(b []byte) error {
	*s = Source(normalize(string(b)))
	return nil
}

func ParseSource(v string) (Source, error) {
	s := Source(normalize(v))
	if !s.Valid() {
		return "", fmt.Errorf("invalid order source %q", v)
	}
	return s, nil
}

// DeliveryMethod is how the goods leave the store.
type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

func (d DeliveryMethod) Valid() bool {
	return d == DeliveryPickup || d == DeliveryDelivery
}

func (d *DeliveryMethod) UnmarshalText(b []byte) error {
	*d = DeliveryMethod(normalize(string(b)))
	return nil
}

func ParseDeliveryMethod(v string) (DeliveryMethod, error) {
	d := DeliveryMethod(normalize(v))
	if !d.Valid() {
		return "", fmt.Errorf("invalid delivery method %q", v)
	}
	return d, nil
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
