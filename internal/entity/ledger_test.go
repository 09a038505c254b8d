package entity_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-order-service/internal/entity"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

func TestSettlePaysInFull(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &entity.Order{Total: dec("45.50"), Payments: []entity.Payment{}}
	o.Settle(entity.PaymentCard, strPtr("AUTH-1"), at)

	assert.Equal(t, entity.StatusPaid, o.Status)
	assert.True(t, o.Balance.IsZero())
	require.Len(t, o.Payments, 1)
	assert.True(t, o.Payments[0].Amount.Equal(dec("45.50")))
	assert.Equal(t, "AUTH-1", *o.Payments[0].Reference)
	assert.Nil(t, o.PaymentDueDate)
	assert.NoError(t, o.CheckLedger())
}

func TestCreditPartialPayments(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &entity.Order{DisplayID: "ORD-00001", Total: dec("100"), Payments: []entity.Payment{}}
	o.OpenCredit(at.AddDate(0, 0, 15), nil)

	assert.Equal(t, entity.StatusPendingPayment, o.Status)
	assert.Equal(t, entity.PaymentCredit, o.PaymentMethod)
	assert.True(t, o.Balance.Equal(dec("100")))
	require.NoError(t, o.CheckLedger())

	require.NoError(t, o.AddPayment(entity.PaymentRequest{Amount: dec("30"), Method: entity.PaymentCash}, at))
	assert.True(t, o.Balance.Equal(dec("70")))
	assert.Equal(t, entity.StatusPendingPayment, o.Status)
	require.NoError(t, o.CheckLedger())

	err := o.AddPayment(entity.PaymentRequest{Amount: dec("80"), Method: entity.PaymentCash}, at)
	var over *entity.OverPaymentError
	require.True(t, errors.As(err, &over))
	assert.True(t, over.Balance.Equal(dec("70")))
	assert.Len(t, o.Payments, 1, "rejected payment must not be recorded")

	require.NoError(t, o.AddPayment(entity.PaymentRequest{Amount: dec("70"), Method: entity.PaymentTransfer, Reference: strPtr("TRX")}, at))
	assert.Equal(t, entity.StatusPaid, o.Status)
	assert.True(t, o.Balance.IsZero())
	assert.True(t, o.PaidAmount().Equal(dec("100")))
	assert.NoError(t, o.CheckLedger())

	err = o.AddPayment(entity.PaymentRequest{Amount: dec("1"), Method: entity.PaymentCash}, at)
	var illegal *entity.IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))
}

func TestApprove(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := at.AddDate(0, 0, 30)

	credit := &entity.Order{Status: entity.StatusPendingApproval, Total: dec("20"), Balance: dec("20"), Payments: []entity.Payment{}}
	require.NoError(t, credit.Approve(entity.ApproveRequest{PaymentMethod: entity.PaymentCredit, Reference: strPtr("AGR-7")}, due, at))
	assert.Equal(t, entity.StatusPendingPayment, credit.Status)
	require.NotNil(t, credit.PaymentRef)
	assert.Equal(t, "AGR-7", *credit.PaymentRef)
	require.NotNil(t, credit.PaymentDueDate)
	assert.Equal(t, due, *credit.PaymentDueDate)
	assert.Empty(t, credit.Payments)

	cash := &entity.Order{Status: entity.StatusPendingApproval, Total: dec("20"), Balance: dec("20"), Payments: []entity.Payment{}}
	require.NoError(t, cash.Approve(entity.ApproveRequest{PaymentMethod: entity.PaymentCash}, due, at))
	assert.Equal(t, entity.StatusPaid, cash.Status)
	assert.Len(t, cash.Payments, 1)
	assert.Nil(t, cash.PaymentDueDate)

	err := cash.Approve(entity.ApproveRequest{PaymentMethod: entity.PaymentCash}, due, at)
	var illegal *entity.IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))
}

func TestRejectAndCancel(t *testing.T) {
	t.Parallel()

	pending := &entity.Order{Status: entity.StatusPendingApproval}
	require.NoError(t, pending.Reject())
	assert.Equal(t, entity.StatusCancelled, pending.Status)
	assert.Error(t, pending.Reject())
	assert.Error(t, pending.Cancel())

	paid := &entity.Order{Status: entity.StatusPaid}
	require.NoError(t, paid.Cancel())
	assert.Equal(t, entity.StatusCancelled, paid.Status)

	approval := &entity.Order{Status: entity.StatusPendingApproval}
	assert.Error(t, approval.Cancel(), "pending-approval orders are rejected, not cancelled")
}

func TestCheckLedgerDetectsDrift(t *testing.T) {
	t.Parallel()

	o := &entity.Order{
		Status:   entity.StatusPendingPayment,
		Total:    dec("10"),
		Balance:  dec("9"),
		Payments: []entity.Payment{{Amount: dec("2")}},
	}
	assert.Error(t, o.CheckLedger())

	o.RecomputeBalance()
	assert.True(t, o.Balance.Equal(dec("8")))
	assert.NoError(t, o.CheckLedger())
}
