package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-order-service/internal/config"
	"retail-order-service/internal/entity"
	"retail-order-service/internal/repository"
	"retail-order-service/migrations"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, s repository.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, repository.NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := config.OpenSQLite(":memory:")
		require.NoError(t, err)
		require.NoError(t, migrations.AutoMigrate(0, "sqlite", db))
		s := repository.NewSQLStore(db, repository.SQLite)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func seedProduct(t *testing.T, s repository.Store, id, price string, qty int) {
	t.Helper()
	err := s.RunInTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertProduct(context.Background(), entity.Product{ID: id, Name: "Product " + id, UnitPrice: dec(price)}, qty)
	})
	require.NoError(t, err)
}

func newOrder(displayID string, created time.Time, items ...entity.OrderItem) *entity.Order {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return &entity.Order{
		ID:            uuid.NewString(),
		DisplayID:     displayID,
		CreatedAt:     created,
		Items:         items,
		Total:         total,
		ShippingCost:  decimal.Zero,
		Balance:       total,
		Payments:      []entity.Payment{},
		PaymentMethod: entity.PaymentCredit,
		Status:        entity.StatusPendingPayment,
		Source:        entity.SourcePOS,
	}
}

func insert(t *testing.T, s repository.Store, o *entity.Order) {
	t.Helper()
	require.NoError(t, s.RunInTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertOrder(context.Background(), o)
	}))
}

func TestProductsAndStock(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		seedProduct(t, s, "sku-1", "9.99", 5)

		qty, err := s.StockAvailable(ctx, "sku-1")
		require.NoError(t, err)
		assert.Equal(t, 5, qty)

		_, err = s.StockAvailable(ctx, "nope")
		assert.ErrorIs(t, err, entity.ErrNotFound)

		err = s.RunInTx(ctx, func(tx repository.Tx) error {
			return tx.InsertProduct(ctx, entity.Product{ID: "sku-1", Name: "dup", UnitPrice: dec("1")}, 1)
		})
		var verr *entity.ValidationError
		assert.True(t, errors.As(err, &verr))

		err = s.RunInTx(ctx, func(tx repository.Tx) error {
			products, err := tx.GetProducts(ctx, []string{"sku-1", "missing"})
			require.NoError(t, err)
			require.Len(t, products, 1)
			assert.True(t, products["sku-1"].UnitPrice.Equal(dec("9.99")))
			return nil
		})
		require.NoError(t, err)
	})
}

func TestReserveIsAllOrNothing(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		seedProduct(t, s, "a", "1", 10)
		seedProduct(t, s, "b", "1", 1)

		err := s.RunInTx(ctx, func(tx repository.Tx) error {
			return tx.ReserveStock(ctx, []entity.StockLine{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 2}})
		})
		var short *entity.InsufficientStockError
		require.True(t, errors.As(err, &short))
		assert.Equal(t, "b", short.ProductID)
		assert.Equal(t, 2, short.Requested)
		assert.Equal(t, 1, short.Available)

		qty, err := s.StockAvailable(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 10, qty, "line a must be rolled back")

		// Duplicate lines are merged before checking.
		err = s.RunInTx(ctx, func(tx repository.Tx) error {
			return tx.ReserveStock(ctx, []entity.StockLine{{ProductID: "a", Quantity: 6}, {ProductID: "a", Quantity: 5}})
		})
		require.True(t, errors.As(err, &short))
		assert.Equal(t, 11, short.Requested)

		require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
			if err := tx.ReserveStock(ctx, []entity.StockLine{{ProductID: "a", Quantity: 4}}); err != nil {
				return err
			}
			return tx.ReleaseStock(ctx, []entity.StockLine{{ProductID: "a", Quantity: 1}})
		}))
		qty, err = s.StockAvailable(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 7, qty)
	})
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		seedProduct(t, s, "hot", "5", 7)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RunInTx(ctx, func(tx repository.Tx) error {
					return tx.ReserveStock(ctx, []entity.StockLine{{ProductID: "hot", Quantity: 1}})
				})
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 7, success)
		qty, err := s.StockAvailable(ctx, "hot")
		require.NoError(t, err)
		assert.Equal(t, 0, qty)
	})
}

func TestOrderRoundTrip(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		created := time.Date(2026, 3, 1, 8, 0, 0, 123_000_000, time.UTC)
		due := created.AddDate(0, 0, 15)
		pickup := entity.DeliveryPickup
		name := "Ana"

		o := newOrder("ORD-00001", created,
			entity.OrderItem{ProductID: "a", Name: "Apple", UnitPrice: dec("2.50"), Quantity: 4, ImageRef: "img/a.png"},
			entity.OrderItem{ProductID: "b", Name: "Bread", UnitPrice: dec("3.10"), Quantity: 1},
		)
		o.CustomerName = &name
		o.DeliveryMethod = &pickup
		o.PaymentDueDate = &due
		insert(t, s, o)

		got, err := s.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "ORD-00001", got.DisplayID)
		assert.True(t, created.Equal(got.CreatedAt))
		require.Len(t, got.Items, 2)
		assert.Equal(t, "Apple", got.Items[0].Name)
		assert.Equal(t, 4, got.Items[0].Quantity)
		assert.True(t, got.Items[1].UnitPrice.Equal(dec("3.10")))
		assert.True(t, got.Total.Equal(dec("13.10")))
		assert.Equal(t, "Ana", *got.CustomerName)
		assert.Nil(t, got.CustomerPhone)
		assert.Equal(t, entity.DeliveryPickup, *got.DeliveryMethod)
		require.NotNil(t, got.PaymentDueDate)
		assert.True(t, due.Equal(*got.PaymentDueDate))
		assert.Empty(t, got.Payments)

		byDisplay, err := s.GetOrderByDisplayID(ctx, "ORD-00001")
		require.NoError(t, err)
		assert.Equal(t, o.ID, byDisplay.ID)

		_, err = s.GetOrder(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)

		dup := newOrder("ORD-00001", created, entity.OrderItem{ProductID: "a", Name: "Apple", UnitPrice: dec("1"), Quantity: 1})
		err = s.RunInTx(ctx, func(tx repository.Tx) error { return tx.InsertOrder(ctx, dup) })
		assert.ErrorIs(t, err, repository.ErrDuplicateDisplayID)
	})
}

func TestUpdateOrderAppendsPayments(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		o := newOrder("ORD-00002", at, entity.OrderItem{ProductID: "a", Name: "A", UnitPrice: dec("50"), Quantity: 2})
		insert(t, s, o)

		for _, amount := range []string{"30", "70"} {
			err := s.RunInTx(ctx, func(tx repository.Tx) error {
				locked, err := tx.LockOrder(ctx, o.ID)
				if err != nil {
					return err
				}
				if err := locked.AddPayment(entity.PaymentRequest{Amount: dec(amount), Method: entity.PaymentCash}, at); err != nil {
					return err
				}
				return tx.UpdateOrder(ctx, locked)
			})
			require.NoError(t, err)
		}

		got, err := s.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPaid, got.Status)
		assert.True(t, got.Balance.IsZero())
		require.Len(t, got.Payments, 2)
		assert.True(t, got.Payments[0].Amount.Equal(dec("30")))
		assert.True(t, got.Payments[1].Amount.Equal(dec("70")))
		assert.NoError(t, got.CheckLedger())
	})
}

func TestFailedTxLeavesNoTrace(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		seedProduct(t, s, "a", "1", 3)
		o := newOrder("ORD-00003", time.Now().UTC(), entity.OrderItem{ProductID: "a", Name: "A", UnitPrice: dec("1"), Quantity: 2})

		boom := errors.New("boom")
		err := s.RunInTx(ctx, func(tx repository.Tx) error {
			if err := tx.ReserveStock(ctx, o.StockLines()); err != nil {
				return err
			}
			if _, err := tx.ResolveCustomer(ctx, "+15551234567", "Ana", nil); err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		qty, err := s.StockAvailable(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 3, qty)
		_, err = s.GetOrder(ctx, o.ID)
		assert.ErrorIs(t, err, entity.ErrNotFound)
		_, err = s.GetCustomerByPhone(ctx, "+15551234567")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}

func TestResolveCustomer(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		phone := "+15551234567"
		addr := "1 Main St"

		var first *entity.Customer
		require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
			c, err := tx.ResolveCustomer(ctx, phone, "Ana", &addr)
			if err != nil {
				return err
			}
			first = c
			return tx.RecordPurchase(ctx, c.ID, dec("10.50"))
		}))

		// Blank name and nil address keep what is stored.
		require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
			c, err := tx.ResolveCustomer(ctx, phone, "", nil)
			if err != nil {
				return err
			}
			assert.Equal(t, first.ID, c.ID)
			return tx.RecordPurchase(ctx, c.ID, dec("4.50"))
		}))

		got, err := s.GetCustomerByPhone(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "Ana", got.Name)
		require.NotNil(t, got.Address)
		assert.Equal(t, addr, *got.Address)
		assert.True(t, got.TotalSpent.Equal(dec("15")))
		assert.Equal(t, 2, got.OrderCount)

		require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
			_, err := tx.ResolveCustomer(ctx, phone, "Ana Maria", nil)
			return err
		}))
		got, err = s.GetCustomerByPhone(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, "Ana Maria", got.Name)
	})
}

func TestListOrders(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			o := newOrder(fmt.Sprintf("ORD-%05d", i+1), base.Add(time.Duration(i)*time.Hour),
				entity.OrderItem{ProductID: "a", Name: "A", UnitPrice: dec("1"), Quantity: 1})
			if i%2 == 0 {
				o.Settle(entity.PaymentCash, nil, o.CreatedAt)
			}
			insert(t, s, o)
		}

		all, err := s.ListOrders(ctx, entity.OrderFilter{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, "ORD-00005", all[0].DisplayID, "newest first")
		assert.Len(t, all[0].Items, 1)

		paid := entity.StatusPaid
		got, err := s.ListOrders(ctx, entity.OrderFilter{Status: &paid})
		require.NoError(t, err)
		assert.Len(t, got, 3)

		from := base.Add(time.Hour)
		to := base.Add(3 * time.Hour)
		got, err = s.ListOrders(ctx, entity.OrderFilter{From: &from, To: &to})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "ORD-00003", got[0].DisplayID)
		assert.Equal(t, "ORD-00002", got[1].DisplayID)

		got, err = s.ListOrders(ctx, entity.OrderFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "ORD-00004", got[0].DisplayID)

		max, err := s.MaxDisplaySequence(ctx, "ORD")
		require.NoError(t, err)
		assert.Equal(t, int64(5), max)
		max, err = s.MaxDisplaySequence(ctx, "POS")
		require.NoError(t, err)
		assert.Equal(t, int64(0), max)
	})
}

func TestMergeLines(t *testing.T) {
	merged, err := repository.MergeLines([]entity.StockLine{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []entity.StockLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 4}}, merged)

	_, err = repository.MergeLines([]entity.StockLine{{ProductID: "a", Quantity: 0}})
	assert.Error(t, err)
}

func TestLifetimeSpendIsExact(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		phone := "+15550001111"
		for _, amount := range []string{"10.10", "20.20"} {
			require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
				c, err := tx.ResolveCustomer(ctx, phone, "Lu", nil)
				if err != nil {
					return err
				}
				return tx.RecordPurchase(ctx, c.ID, dec(amount))
			}))
		}

		got, err := s.GetCustomerByPhone(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, "30.3", got.TotalSpent.String())
		assert.Equal(t, 2, got.OrderCount)
	})
}

func TestMoneyColumnsKeepCents(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		o := newOrder("ORD-00077", time.Now().UTC(),
			entity.OrderItem{ProductID: "a", Name: "A", UnitPrice: dec("0.10"), Quantity: 3},
			entity.OrderItem{ProductID: "b", Name: "B", UnitPrice: dec("0.20"), Quantity: 1},
		)
		insert(t, s, o)
		require.NoError(t, s.RunInTx(ctx, func(tx repository.Tx) error {
			locked, err := tx.LockOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			if err := locked.AddPayment(entity.PaymentRequest{Amount: dec("0.30"), Method: entity.PaymentCash}, o.CreatedAt); err != nil {
				return err
			}
			return tx.UpdateOrder(ctx, locked)
		}))

		got, err := s.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "0.5", got.Total.String())
		assert.Equal(t, "0.2", got.Balance.String())
		assert.NoError(t, got.CheckLedger())
	})
}

func TestMaxDisplaySequenceTreatsPrefixLiterally(t *testing.T) {
	stores(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		at := time.Now().UTC()
		item := entity.OrderItem{ProductID: "a", Name: "A", UnitPrice: dec("1"), Quantity: 1}
		insert(t, s, newOrder("AXB-00042", at, item))
		insert(t, s, newOrder("A_B-00009", at, item))
		insert(t, s, newOrder("A_B-notanumber", at, item))

		max, err := s.MaxDisplaySequence(ctx, "A_B")
		require.NoError(t, err)
		assert.Equal(t, int64(9), max)

		max, err = s.MaxDisplaySequence(ctx, "A%")
		require.NoError(t, err)
		assert.Equal(t, int64(0), max)
	})
}
