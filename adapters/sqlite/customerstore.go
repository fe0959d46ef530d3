package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/docpilot/metergate/ports"
)

// CustomerStore implements ports.CustomerStore using SQLite.
type CustomerStore struct {
	db *DB
}

// NewCustomerStore creates a new SQLite customer store.
func NewCustomerStore(db *DB) *CustomerStore {
	return &CustomerStore{db: db}
}

const customerColumns = "id, email, name, plan_id, anchor_day, billing_ref, status, created_at, updated_at"

// Get retrieves a customer by id.
func (s *CustomerStore) Get(ctx context.Context, id string) (ports.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE id = ?
	`, id)
	return scanCustomer(row)
}

// GetByBillingRef retrieves a customer by billing processor reference.
func (s *CustomerStore) GetByBillingRef(ctx context.Context, ref string) (ports.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE billing_ref = ? AND billing_ref != ''
	`, ref)
	return scanCustomer(row)
}

// Create stores a new customer.
func (s *CustomerStore) Create(ctx context.Context, c ports.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, email, name, plan_id, anchor_day, billing_ref, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Email, c.Name, c.PlanID, c.AnchorDay, c.BillingRef, c.Status, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// Update modifies an existing customer.
func (s *CustomerStore) Update(ctx context.Context, c ports.Customer) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET email = ?, name = ?, plan_id = ?, anchor_day = ?, billing_ref = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, c.Email, c.Name, c.PlanID, c.AnchorDay, c.BillingRef, c.Status, c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// List returns customers with pagination, oldest first.
func (s *CustomerStore) List(ctx context.Context, limit, offset int) ([]ports.Customer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+` FROM customers
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var customers []ports.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func scanCustomer(row rowScanner) (ports.Customer, error) {
	var c ports.Customer
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.PlanID, &c.AnchorDay, &c.BillingRef, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Customer{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Customer{}, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}

var _ ports.CustomerStore = (*CustomerStore)(nil)
