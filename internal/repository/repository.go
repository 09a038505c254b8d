package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/idgen"
)

// Dialect captures the few places MySQL and SQLite disagree.
type Dialect struct {
	Name string
	// ForUpdate is appended to row-locking selects. SQLite serialises writers, so it needs none.
	ForUpdate string
}

var (
	MySQL  = Dialect{Name: "mysql", ForUpdate: " FOR UPDATE"}
	SQLite = Dialect{Name: "sqlite"}
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists the order core in MySQL (production) or SQLite (development and tests).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (r *SQLStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, dialect: r.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *SQLStore) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	return loadOrder(ctx, r.db, orderSelect+` WHERE id = ?`, id)
}

func (r *SQLStore) GetOrderByDisplayID(ctx context.Context, displayID string) (*entity.Order, error) {
	return loadOrder(ctx, r.db, orderSelect+` WHERE display_id = ?`, displayID)
}

func (r *SQLStore) ListOrders(ctx context.Context, filter entity.OrderFilter) ([]*entity.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, toMillis(*filter.To))
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Source != nil {
		where = append(where, "source = ?")
		args = append(args, string(*filter.Source))
	}
	if filter.PaymentMethod != nil {
		where = append(where, "payment_method = ?")
		args = append(args, string(*filter.PaymentMethod))
	}
	if filter.DeliveryMethod != nil {
		where = append(where, "delivery_method = ?")
		args = append(args, string(*filter.DeliveryMethod))
	}

	query := orderSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = 1<<31 - 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []*entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, o := range orders {
		if err := loadLines(ctx, r.db, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *SQLStore) MaxDisplaySequence(ctx context.Context, prefix string) (int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT display_id FROM orders WHERE display_id LIKE ? ESCAPE '!' ORDER BY LENGTH(display_id) DESC, display_id DESC`,
		likeEscaper.Replace(prefix)+"-%")
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	// Longest ids sort first; the first one that parses under this scheme holds the highest number.
	for rows.Next() {
		var displayID string
		if err := rows.Scan(&displayID); err != nil {
			return 0, err
		}
		if n, ok := idgen.ParseSequence(prefix, displayID); ok {
			return n, nil
		}
	}
	return 0, rows.Err()
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (r *SQLStore) StockAvailable(ctx context.Context, productID string) (int, error) {
	return stockAvailable(ctx, r.db, productID)
}

func (r *SQLStore) GetCustomerByPhone(ctx context.Context, phone string) (*entity.Customer, error) {
	return loadCustomer(ctx, r.db, customerSelect+` WHERE phone = ?`, phone)
}

func (r *SQLStore) Close() error {
	return r.db.Close()
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) GetProducts(ctx context.Context, ids []string) (map[string]entity.Product, error) {
	out := make(map[string]entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, name, unit_price, image_ref FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p entity.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.ImageRef); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertProduct(ctx context.Context, p entity.Product, openingStock int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO products (id, name, unit_price, image_ref) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.UnitPrice, p.ImageRef)
	if isUniqueViolation(err) {
		return &entity.ValidationError{Fields: map[string]string{"id": "product already exists"}}
	}
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO stock_entries (product_id, quantity_available) VALUES (?, ?)`, p.ID, openingStock)
	return err
}

// ReserveStock relies on a conditional decrement per row; a failed line aborts the whole transaction.
func (t *sqlTx) ReserveStock(ctx context.Context, lines []entity.StockLine) error {
	merged, err := MergeLines(lines)
	if err != nil {
		return err
	}
	for _, l := range merged {
		res, err := t.tx.ExecContext(ctx,
			`UPDATE stock_entries SET quantity_available = quantity_available - ? WHERE product_id = ? AND quantity_available >= ?`,
			l.Quantity, l.ProductID, l.Quantity)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			avail, err := stockAvailable(ctx, t.tx, l.ProductID)
			if err != nil && !errors.Is(err, entity.ErrNotFound) {
				return err
			}
			return &entity.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: avail}
		}
	}
	return nil
}

func (t *sqlTx) ReleaseStock(ctx context.Context, lines []entity.StockLine) error {
	merged, err := MergeLines(lines)
	if err != nil {
		return err
	}
	for _, l := range merged {
		_, err := t.tx.ExecContext(ctx,
			`UPDATE stock_entries SET quantity_available = quantity_available + ? WHERE product_id = ?`,
			l.Quantity, l.ProductID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) LockOrder(ctx context.Context, id string) (*entity.Order, error) {
	return loadOrder(ctx, t.tx, orderSelect+` WHERE id = ?`+t.dialect.ForUpdate, id)
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *entity.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, display_id, created_at, customer_id, customer_name, customer_phone, customer_address,
			total, shipping_cost, balance, payment_method, payment_reference, status, source, delivery_method, payment_due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.DisplayID, toMillis(o.CreatedAt), o.CustomerID, o.CustomerName, o.CustomerPhone, o.CustomerAddress,
		o.Total, o.ShippingCost, o.Balance, string(o.PaymentMethod), o.PaymentRef, string(o.Status), string(o.Source),
		deliveryValue(o.DeliveryMethod), millisPtr(o.PaymentDueDate))
	if isUniqueViolation(err) {
		return ErrDuplicateDisplayID
	}
	if err != nil {
		return err
	}

	// Insert items with batch
	itemQuery := `INSERT INTO order_items (order_id, line_no, product_id, name, unit_price, quantity, image_ref) VALUES `
	var values []any
	for i, item := range o.Items {
		itemQuery += "(?, ?, ?, ?, ?, ?, ?),"
		values = append(values, o.ID, i, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.ImageRef)
	}
	itemQuery = itemQuery[:len(itemQuery)-1]
	if _, err := t.tx.ExecContext(ctx, itemQuery, values...); err != nil {
		return err
	}

	return insertPayments(ctx, t.tx, o.ID, 0, o.Payments)
}

func (t *sqlTx) UpdateOrder(ctx context.Context, o *entity.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET balance = ?, payment_method = ?, payment_reference = ?, status = ?, payment_due_date = ?
		WHERE id = ?`,
		o.Balance, string(o.PaymentMethod), o.PaymentRef, string(o.Status), millisPtr(o.PaymentDueDate), o.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}

	var stored int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_payments WHERE order_id = ?`, o.ID).Scan(&stored); err != nil {
		return err
	}
	if stored > len(o.Payments) {
		return fmt.Errorf("order %s: payments are append-only (%d stored, %d given)", o.ID, stored, len(o.Payments))
	}
	return insertPayments(ctx, t.tx, o.ID, stored, o.Payments[stored:])
}

func (t *sqlTx) ResolveCustomer(ctx context.Context, phone, name string, address *string) (*entity.Customer, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c, err := loadCustomer(ctx, t.tx, customerSelect+` WHERE phone = ?`+t.dialect.ForUpdate, phone)
		if err == nil {
			_, err = t.tx.ExecContext(ctx,
				`UPDATE customers SET name = COALESCE(NULLIF(?, ''), name), address = COALESCE(?, address) WHERE id = ?`, name, address, c.ID)
			if err != nil {
				return nil, err
			}
			if name != "" {
				c.Name = name
			}
			if address != nil {
				c.Address = address
			}
			return c, nil
		}
		if !errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}

		c = &entity.Customer{ID: uuid.NewString(), Name: name, Phone: phone, Address: address, TotalSpent: decimal.Zero}
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO customers (id, name, phone, address, total_spent, order_count) VALUES (?, ?, ?, ?, ?, 0)`,
			c.ID, c.Name, c.Phone, c.Address, c.TotalSpent)
		if isUniqueViolation(err) {
			// A concurrent order created this phone first; lock and update its row instead.
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("resolve customer %s: concurrent insert did not settle", phone)
}

// RecordPurchase sums in Go under the row lock; SQLite arithmetic on money columns goes through REAL.
func (t *sqlTx) RecordPurchase(ctx context.Context, customerID string, amount decimal.Decimal) error {
	var spent decimal.Decimal
	err := t.tx.QueryRowContext(ctx,
		`SELECT total_spent FROM customers WHERE id = ?`+t.dialect.ForUpdate, customerID).Scan(&spent)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE customers SET total_spent = ?, order_count = order_count + 1 WHERE id = ?`,
		spent.Add(amount), customerID)
	return err
}

const orderSelect = `
	SELECT id, display_id, created_at, customer_id, customer_name, customer_phone, customer_address,
		total, shipping_cost, balance, payment_method, payment_reference, status, source, delivery_method, payment_due_date
	FROM orders`

const customerSelect = `SELECT id, name, phone, address, total_spent, order_count FROM customers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	var (
		o                                               entity.Order
		createdAt                                       int64
		customerID, name, phone, address, ref, delivery sql.NullString
		dueDate                                         sql.NullInt64
		method, status, source                          string
	)
	err := row.Scan(&o.ID, &o.DisplayID, &createdAt, &customerID, &name, &phone, &address,
		&o.Total, &o.ShippingCost, &o.Balance, &method, &ref, &status, &source, &delivery, &dueDate)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = fromMillis(createdAt)
	o.CustomerID = nullString(customerID)
	o.CustomerName = nullString(name)
	o.CustomerPhone = nullString(phone)
	o.CustomerAddress = nullString(address)
	o.PaymentRef = nullString(ref)
	o.PaymentMethod = entity.PaymentMethod(method)
	o.Status = entity.Status(status)
	o.Source = entity.Source(source)
	if delivery.Valid {
		d := entity.DeliveryMethod(delivery.String)
		o.DeliveryMethod = &d
	}
	if dueDate.Valid {
		t := fromMillis(dueDate.Int64)
		o.PaymentDueDate = &t
	}
	o.Items = []entity.OrderItem{}
	o.Payments = []entity.Payment{}
	return &o, nil
}

func loadOrder(ctx context.Context, q querier, query string, arg any) (*entity.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// loadLines fills the item and payment slices of an order already scanned.
func loadLines(ctx context.Context, q querier, o *entity.Order) error {
	rows, err := q.QueryContext(ctx,
		`SELECT product_id, name, unit_price, quantity, image_ref FROM order_items WHERE order_id = ? ORDER BY line_no`, o.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &item.ImageRef); err != nil {
			rows.Close()
			return err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT amount, method, paid_at, reference FROM order_payments WHERE order_id = ? ORDER BY seq`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p      entity.Payment
			method string
			paidAt int64
			ref    sql.NullString
		)
		if err := rows.Scan(&p.Amount, &method, &paidAt, &ref); err != nil {
			return err
		}
		p.Method = entity.PaymentMethod(method)
		p.Date = fromMillis(paidAt)
		p.Reference = nullString(ref)
		o.Payments = append(o.Payments, p)
	}
	return rows.Err()
}

func insertPayments(ctx context.Context, tx *sql.Tx, orderID string, firstSeq int, payments []entity.Payment) error {
	for i, p := range payments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_payments (order_id, seq, amount, method, paid_at, reference) VALUES (?, ?, ?, ?, ?, ?)`,
			orderID, firstSeq+i, p.Amount, string(p.Method), toMillis(p.Date), p.Reference)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadCustomer(ctx context.Context, q querier, query string, arg any) (*entity.Customer, error) {
	var (
		c       entity.Customer
		address sql.NullString
	)
	err := q.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.Name, &c.Phone, &address, &c.TotalSpent, &c.OrderCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Address = nullString(address)
	return &c, nil
}

func stockAvailable(ctx context.Context, q querier, productID string) (int, error) {
	var qty int
	err := q.QueryRowContext(ctx,
		`SELECT quantity_available FROM stock_entries WHERE product_id = ?`, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, entity.ErrNotFound
	}
	return qty, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3lib.SQLITE_CONSTRAINT:
			// Primary result code only; fall back to the message.
			return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func millisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func deliveryValue(d *entity.DeliveryMethod) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
