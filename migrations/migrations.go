package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

// Statements returns the DDL for the given driver ("mysql" or "sqlite"), in dependency order.
func Statements(driver string) []string {
	ordersIndex := ""
	// SQLite would coerce DECIMAL columns to REAL; money stays exact as text there.
	price, amount := "TEXT", "TEXT"
	var extra []string
	switch driver {
	case "mysql":
		price, amount = "DECIMAL(12,2)", "DECIMAL(14,2)"
		ordersIndex = `,
			INDEX idx_orders_created_at (created_at),
			INDEX idx_orders_status (status)`
	default:
		extra = []string{
			`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status)`,
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			unit_price ` + price + ` NOT NULL,
			image_ref VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS stock_entries (
			product_id VARCHAR(64) PRIMARY KEY,
			quantity_available INT NOT NULL,
			CHECK (quantity_available >= 0),
			FOREIGN KEY (product_id) REFERENCES products(id)
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(32) NOT NULL UNIQUE,
			address VARCHAR(512) NULL,
			total_spent ` + amount + ` NOT NULL,
			order_count INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			display_id VARCHAR(32) NOT NULL UNIQUE,
			created_at BIGINT NOT NULL,
			customer_id VARCHAR(36) NULL,
			customer_name VARCHAR(255) NULL,
			customer_phone VARCHAR(32) NULL,
			customer_address VARCHAR(512) NULL,
			total ` + amount + ` NOT NULL,
			shipping_cost ` + price + ` NOT NULL,
			balance ` + amount + ` NOT NULL,
			payment_method VARCHAR(16) NOT NULL,
			payment_reference VARCHAR(128) NULL,
			status VARCHAR(20) NOT NULL,
			source VARCHAR(20) NOT NULL,
			delivery_method VARCHAR(16) NULL,
			payment_due_date BIGINT NULL` + ordersIndex + `
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id VARCHAR(36) NOT NULL,
			line_no INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			unit_price ` + price + ` NOT NULL,
			quantity INT NOT NULL,
			image_ref VARCHAR(255) NOT NULL,
			PRIMARY KEY (order_id, line_no),
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`,
		`CREATE TABLE IF NOT EXISTS order_payments (
			order_id VARCHAR(36) NOT NULL,
			seq INT NOT NULL,
			amount ` + amount + ` NOT NULL,
			method VARCHAR(16) NOT NULL,
			paid_at BIGINT NOT NULL,
			reference VARCHAR(128) NULL,
			PRIMARY KEY (order_id, seq),
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`,
	}
	return append(stmts, extra...)
}

// AutoMigrate creates every table that does not exist yet, retrying each statement while the database warms up.
func AutoMigrate(retries int, driver string, db *sql.DB) error {
	for _, query := range Statements(driver) {
		_, err := db.Exec(query)
		if err != nil {
			// Retry creating the table
			for i := 0; i < retries; i++ {
				time.Sleep(1 * time.Second)
				_, err = db.Exec(query)
				if err == nil {
					break
				}
			}
		}
		if err != nil {
			return fmt.Errorf("migrate %s: %w", driver, err)
		}
	}
	return nil
}
