package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/events"
	"retail-order-service/internal/idgen"
	"retail-order-service/internal/repository"
	"retail-order-service/internal/sharding"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// displayIDAttempts bounds how often a create is retried after a display id collision.
const displayIDAttempts = 3

// IdempotencyGuard remembers which order an idempotency key already produced.
type IdempotencyGuard interface {
	Begin(ctx context.Context, key string) (orderID string, fresh bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Abort(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event string, order *entity.Order) error
}

// OrderService is the order lifecycle manager: it runs every create/approve/reject/pay/cancel
// as one storage transaction over the order, its stock entries and its customer.
type OrderService struct {
	store       repository.Store
	allocator   idgen.Allocator
	customers   *CustomerService
	stock       *StockService
	publisher   EventPublisher
	idempotency IdempotencyGuard
	locks       *sharding.KeyedLocker
	creditTerm  time.Duration
	now         func() time.Time
}

type Option func(*OrderService)

func WithPublisher(p EventPublisher) Option {
	return func(s *OrderService) { s.publisher = p }
}

func WithIdempotency(g IdempotencyGuard) Option {
	return func(s *OrderService) { s.idempotency = g }
}

// WithCreditTerm sets the due date offset used when a credit sale gives none.
func WithCreditTerm(d time.Duration) Option {
	return func(s *OrderService) { s.creditTerm = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store repository.Store, allocator idgen.Allocator, customers *CustomerService, stock *StockService, opts ...Option) *OrderService {
	s := &OrderService{
		store:      store,
		allocator:  allocator,
		customers:  customers,
		stock:      stock,
		publisher:  events.NopPublisher{},
		locks:      sharding.NewKeyedLocker(64),
		creditTerm: 15 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at the precision the stores keep.
func (s *OrderService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// CreateOrder prices the cart from the catalog, reserves stock for every line and persists the order.
// Nothing is written when any line is short.
func (s *OrderService) CreateOrder(ctx context.Context, req entity.NewOrderRequest) (*entity.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		existingID, fresh, err := s.idempotency.Begin(ctx, req.IdempotencyKey)
		if err != nil {
			logger.Error().Err(err).Msg("Error validating idempotent key")
			return nil, err
		}
		if !fresh {
			if existingID == "" {
				return nil, entity.ErrDuplicateRequest
			}
			return s.store.GetOrder(ctx, existingID)
		}
	}

	order, err := s.createOrder(ctx, req)
	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err != nil {
			if aerr := s.idempotency.Abort(ctx, req.IdempotencyKey); aerr != nil {
				logger.Error().Err(aerr).Msg("Error releasing idempotent key")
			}
		} else if cerr := s.idempotency.Complete(ctx, req.IdempotencyKey, order.ID); cerr != nil {
			logger.Error().Err(cerr).Msg("Error storing idempotent key")
		}
	}
	if err != nil {
		return nil, err
	}

	s.stock.invalidate(ctx, order.StockLines())
	s.publish(ctx, events.OrderCreated, order)
	logger.Info().Str("order", order.DisplayID).Str("status", string(order.Status)).Msg("Order created")
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, req entity.NewOrderRequest) (*entity.Order, error) {
	who, err := s.customers.identify(req.CustomerName, req.CustomerPhone)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		displayID, err := s.allocator.Next(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Error allocating display id")
			return nil, err
		}

		var order *entity.Order
		err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
			o, err := s.buildOrder(ctx, tx, req, displayID)
			if err != nil {
				return err
			}
			if err := tx.ReserveStock(ctx, o.StockLines()); err != nil {
				return err
			}
			if who.Tracked {
				customer, err := tx.ResolveCustomer(ctx, who.Phone, who.Name, o.CustomerAddress)
				if err != nil {
					return fmt.Errorf("resolve customer: %w", err)
				}
				o.CustomerID = &customer.ID
				o.CustomerPhone = &who.Phone
			}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			if o.CustomerID != nil {
				if err := tx.RecordPurchase(ctx, *o.CustomerID, o.Total); err != nil {
					return fmt.Errorf("record purchase: %w", err)
				}
			}
			order = o
			return nil
		})
		if errors.Is(err, repository.ErrDuplicateDisplayID) && attempt < displayIDAttempts {
			logger.Warn().Msgf("Display id %s already taken, retrying", displayID)
			continue
		}
		if err != nil {
			s.logRejection(err, "Error creating order")
			return nil, err
		}
		return order, nil
	}
}

// buildOrder snapshots catalog data into a new order and sets its initial state for the channel.
func (s *OrderService) buildOrder(ctx context.Context, tx repository.Tx, req entity.NewOrderRequest, displayID string) (*entity.Order, error) {
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := tx.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	o := &entity.Order{
		ID:              uuid.NewString(),
		DisplayID:       displayID,
		CreatedAt:       now,
		CustomerName:    optional(req.CustomerName),
		CustomerPhone:   optional(req.CustomerPhone),
		CustomerAddress: optional(req.CustomerAddress),
		Items:           make([]entity.OrderItem, 0, len(req.Items)),
		ShippingCost:    req.ShippingCost,
		Payments:        []entity.Payment{},
		PaymentMethod:   req.PaymentMethod,
		Source:          req.Source,
		DeliveryMethod:  req.DeliveryMethod,
	}

	verr := entity.NewValidationError()
	total := req.ShippingCost
	for i, item := range req.Items {
		p, ok := products[item.ProductID]
		if !ok {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "unknown product")
			continue
		}
		line := entity.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  item.Quantity,
			ImageRef:  p.ImageRef,
		}
		o.Items = append(o.Items, line)
		total = total.Add(line.LineTotal())
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	o.Total = total

	switch {
	case req.Source == entity.SourceOnlineStore:
		// An administrator confirms the sale; until then it is not financial.
		o.Status = entity.StatusPendingApproval
		o.Balance = o.Total
		o.PaymentRef = optionalPtr(req.PaymentReference)
	case req.PaymentMethod == entity.PaymentCredit:
		due := now.Add(s.creditTerm)
		if req.PaymentDueDate != nil {
			due = req.PaymentDueDate.UTC().Truncate(time.Millisecond)
		}
		o.OpenCredit(due, optionalPtr(req.PaymentReference))
	default:
		o.Settle(req.PaymentMethod, optionalPtr(req.PaymentReference), now)
	}
	return o, nil
}

// ApproveOrder confirms a pending-approval order: credit approvals open a receivable, anything else is paid in full.
// Stock was reserved at creation, so approval does not re-check it.
func (s *OrderService) ApproveOrder(ctx context.Context, id string, req entity.ApproveRequest) (*entity.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, events.OrderApproved, func(tx repository.Tx, o *entity.Order) error {
		now := s.clock()
		due := now.Add(s.creditTerm)
		if req.DueDate != nil {
			due = req.DueDate.UTC().Truncate(time.Millisecond)
		}
		req.Reference = optionalPtr(req.Reference)
		return o.Approve(req, due, now)
	})
}

// RejectOrder voids a pending-approval order without restocking.
func (s *OrderService) RejectOrder(ctx context.Context, id string) (*entity.Order, error) {
	return s.mutate(ctx, id, events.OrderRejected, func(tx repository.Tx, o *entity.Order) error {
		return o.Reject()
	})
}

// AddPayment records a payment against a pending-payment order; the order is paid once the balance reaches zero.
func (s *OrderService) AddPayment(ctx context.Context, id string, req entity.PaymentRequest) (*entity.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, events.OrderPaid, func(tx repository.Tx, o *entity.Order) error {
		req.Reference = optionalPtr(req.Reference)
		return o.AddPayment(req, s.clock())
	})
}

// CancelOrder unwinds a pending-payment or paid order and returns its stock.
// The customer's lifetime spend is left as recorded.
func (s *OrderService) CancelOrder(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.mutate(ctx, id, events.OrderCancelled, func(tx repository.Tx, o *entity.Order) error {
		if err := o.Cancel(); err != nil {
			return err
		}
		return tx.ReleaseStock(ctx, o.StockLines())
	})
	if err != nil {
		return nil, err
	}
	s.stock.invalidate(ctx, order.StockLines())
	return order, nil
}

// mutate locks one order, applies fn and persists the result in a single transaction.
func (s *OrderService) mutate(ctx context.Context, id, event string, fn func(tx repository.Tx, o *entity.Order) error) (*entity.Order, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var order *entity.Order
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, o); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		s.logRejection(err, fmt.Sprintf("Error applying %s to order %s", event, id))
		return nil, err
	}

	s.publish(ctx, event, order)
	logger.Info().Str("order", order.DisplayID).Str("status", string(order.Status)).Msgf("Order %s", event)
	return order, nil
}

// GetOrder looks an order up by internal id, falling back to its display id.
func (s *OrderService) GetOrder(ctx context.Context, ref string) (*entity.Order, error) {
	ref = strings.TrimSpace(ref)
	order, err := s.store.GetOrder(ctx, ref)
	if errors.Is(err, entity.ErrNotFound) {
		order, err = s.store.GetOrderByDisplayID(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders newest first; the caller pages with Limit/Offset.
func (s *OrderService) ListOrders(ctx context.Context, filter entity.OrderFilter) ([]*entity.Order, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, &entity.ValidationError{Fields: map[string]string{"limit": "limit and offset must not be negative"}}
	}
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		logger.Error().Err(err).Msg("Error listing orders")
		return nil, err
	}
	return orders, nil
}

// ListReceivables returns credit orders still owing money, earliest due date first.
func (s *OrderService) ListReceivables(ctx context.Context, asOf time.Time) ([]entity.Receivable, error) {
	status := entity.StatusPendingPayment
	method := entity.PaymentCredit
	orders, err := s.ListOrders(ctx, entity.OrderFilter{Status: &status, PaymentMethod: &method})
	if err != nil {
		return nil, err
	}
	out := make([]entity.Receivable, 0, len(orders))
	for _, o := range orders {
		r := entity.Receivable{Order: o}
		if o.PaymentDueDate != nil && asOf.After(*o.PaymentDueDate) {
			r.Overdue = true
			r.DaysOverdue = int(asOf.Sub(*o.PaymentDueDate).Hours() / 24)
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order.PaymentDueDate, out[j].Order.PaymentDueDate
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

// OutstandingBalance sums what is still owed across receivables.
func OutstandingBalance(receivables []entity.Receivable) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range receivables {
		sum = sum.Add(r.Order.Balance)
	}
	return sum
}

func (s *OrderService) publish(ctx context.Context, event string, order *entity.Order) {
	// The order is already committed; a lost event must not fail the caller.
	if err := s.publisher.Publish(ctx, event, order); err != nil {
		logger.Error().Err(err).Msgf("Error publishing %s event for order %s", event, order.DisplayID)
	}
}

// logRejection logs business rejections at warn and everything else at error.
func (s *OrderService) logRejection(err error, msg string) {
	var (
		illegal *entity.IllegalTransitionError
		stock   *entity.InsufficientStockError
		over    *entity.OverPaymentError
		verr    *entity.ValidationError
	)
	switch {
	case errors.As(err, &illegal):
		// The UI should never offer a transition the status does not allow.
		logger.Warn().Err(err).Msg(msg)
	case errors.As(err, &stock), errors.As(err, &over), errors.As(err, &verr), errors.Is(err, entity.ErrNotFound):
		logger.Info().Err(err).Msg(msg)
	default:
		logger.Error().Err(err).Msg(msg)
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}
