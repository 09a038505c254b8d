package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaidAmount is the sum of every recorded payment.
func (o *Order) PaidAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range o.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// RecomputeBalance derives the balance from total and payments, clamped at zero.
func (o *Order) RecomputeBalance() {
	b := o.Total.Sub(o.PaidAmount())
	if b.IsNegative() {
		b = decimal.Zero
	}
	o.Balance = b
}

// CheckLedger verifies that payments plus balance add up to the total and that status agrees with balance.
func (o *Order) CheckLedger() error {
	if o.Status == StatusCancelled {
		return nil
	}
	if !o.PaidAmount().Add(o.Balance).Equal(o.Total) {
		return fmt.Errorf("order %s: payments %s + balance %s != total %s",
			o.DisplayID, o.PaidAmount(), o.Balance, o.Total)
	}
	if o.Status == StatusPaid && !o.Balance.IsZero() {
		return fmt.Errorf("order %s: paid with outstanding balance %s", o.DisplayID, o.Balance)
	}
	return nil
}

// Settle records a single payment covering the whole total and marks the order paid.
func (o *Order) Settle(method PaymentMethod, ref *string, at time.Time) {
	o.PaymentMethod = method
	o.PaymentRef = ref
	o.PaymentDueDate = nil
	o.Payments = append(o.Payments, Payment{Amount: o.Total, Method: method, Date: at, Reference: ref})
	o.Balance = decimal.Zero
	o.Status = StatusPaid
}

// OpenCredit leaves the full total outstanding until due. ref is an optional note such as an agreement number.
func (o *Order) OpenCredit(due time.Time, ref *string) {
	o.PaymentMethod = PaymentCredit
	o.PaymentRef = ref
	o.PaymentDueDate = &due
	o.Balance = o.Total
	o.Status = StatusPendingPayment
}

// Approve confirms an online order. due is only used for credit approvals.
func (o *Order) Approve(req ApproveRequest, due time.Time, at time.Time) error {
	if err := o.CheckTransition(EventApprove); err != nil {
		return err
	}
	if req.PaymentMethod == PaymentCredit {
		o.OpenCredit(due, req.Reference)
		return nil
	}
	o.Settle(req.PaymentMethod, req.Reference, at)
	return nil
}

// Reject voids a pending-approval order. Reserved stock stays decremented.
func (o *Order) Reject() error {
	if err := o.CheckTransition(EventReject); err != nil {
		return err
	}
	o.Status = StatusCancelled
	return nil
}

// AddPayment appends a partial or final payment against the balance.
func (o *Order) AddPayment(req PaymentRequest, at time.Time) error {
	if err := o.CheckTransition(EventAddPayment); err != nil {
		return err
	}
	if req.Amount.GreaterThan(o.Balance) {
		return &OverPaymentError{Amount: req.Amount, Balance: o.Balance}
	}
	o.Payments = append(o.Payments, Payment{Amount: req.Amount, Method: req.Method, Date: at, Reference: req.Reference})
	o.RecomputeBalance()
	if o.Balance.IsZero() {
		o.Status = StatusPaid
	}
	return nil
}

// Cancel unwinds an approved sale. The caller releases the order's stock.
func (o *Order) Cancel() error {
	if err := o.CheckTransition(EventCancel); err != nil {
		return err
	}
	o.Status = StatusCancelled
	return nil
}
