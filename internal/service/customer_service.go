package service

import (
	"context"
	"strings"

	"github.com/ttacon/libphonenumber"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/repository"
)

// CustomerService owns the phone-keyed customer aggregate rules.
type CustomerService struct {
	store  repository.Store
	region string
}

// NewCustomerService parses local numbers (no leading +) as belonging to region, e.g. "US".
func NewCustomerService(store repository.Store, region string) *CustomerService {
	return &CustomerService{store: store, region: strings.ToUpper(region)}
}

// NormalizePhone returns the E.164 form of raw, the key customers are matched on.
func (s *CustomerService) NormalizePhone(raw string) (string, error) {
	num, err := libphonenumber.Parse(strings.TrimSpace(raw), s.region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", &entity.ValidationError{Fields: map[string]string{"customer_phone": "invalid phone number"}}
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// customerIdentity is who an order is attributed to. Tracked is false for walk-in sales.
type customerIdentity struct {
	Tracked bool
	Phone   string
	// Name is empty when the caller gave no usable name, so an existing customer keeps theirs.
	Name string
}

// identify applies the walk-in rule: no phone means the sale is never merged into a customer.
func (s *CustomerService) identify(name, phone string) (customerIdentity, error) {
	if strings.TrimSpace(phone) == "" {
		return customerIdentity{}, nil
	}
	normalized, err := s.NormalizePhone(phone)
	if err != nil {
		return customerIdentity{}, err
	}
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, entity.WalkInName) {
		name = ""
	}
	return customerIdentity{Tracked: true, Phone: normalized, Name: name}, nil
}

func (s *CustomerService) GetByPhone(ctx context.Context, phone string) (*entity.Customer, error) {
	normalized, err := s.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	customer, err := s.store.GetCustomerByPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return customer, nil
}
