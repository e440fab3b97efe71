package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid marks input rejected before it reaches the database.
var ErrInvalid = errors.New("invalid input")

type CustomerFilter struct {
	Status string
	Search string
	Limit  int
}

func validCustomerStatus(s string) bool {
	switch s {
	case "prospect", "active", "inactive":
		return true
	}
	return false
}

func (db *DB) CreateCustomer(ctx context.Context, c *Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalid)
	}
	if c.Status == "" {
		c.Status = "active"
	}
	if !validCustomerStatus(c.Status) {
		return fmt.Errorf("%w: customer status %q", ErrInvalid, c.Status)
	}
	now := utc(time.Now())
	c.ID = uuid.New().String()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := db.exec(ctx, `
		INSERT INTO customers (id, name, industry, website, address, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Industry, c.Website, toJSON(c.Address), c.Status, c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

const customerColumns = `id, name, industry, website, address, status, notes, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*Customer, error) {
	c := &Customer{}
	var address string
	if err := row.Scan(&c.ID, &c.Name, &c.Industry, &c.Website, &address, &c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	fromJSON(address, &c.Address)
	return c, nil
}

func (db *DB) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	row := db.queryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ? AND deleted_at IS NULL`, id)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (db *DB) ListCustomers(ctx context.Context, f CustomerFilter) ([]*Customer, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(industry) LIKE ?)")
		args = append(args, likePattern(f.Search), likePattern(f.Search))
	}
	args = append(args, clampLimit(f.Limit, 100, 500))

	rows, err := db.query(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+strings.Join(where, " AND ")+` ORDER BY name LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (db *DB) UpdateCustomer(ctx context.Context, c *Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalid)
	}
	if !validCustomerStatus(c.Status) {
		return fmt.Errorf("%w: customer status %q", ErrInvalid, c.Status)
	}
	c.UpdatedAt = utc(time.Now())
	return expectOne(db.exec(ctx, `
		UPDATE customers SET name = ?, industry = ?, website = ?, address = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		c.Name, c.Industry, c.Website, toJSON(c.Address), c.Status, c.Notes, c.UpdatedAt, c.ID,
	))
}

// DeleteCustomer soft-deletes the customer and its requirements, and removes its contacts and
// the matches of its requirements, all in one transaction.
func (db *DB) DeleteCustomer(ctx context.Context, id string) error {
	now := utc(time.Now())
	return db.WithTx(ctx, func(tx *Tx) error {
		if err := expectOne(tx.exec(ctx, `UPDATE customers SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)); err != nil {
			return err
		}
		if _, err := tx.exec(ctx, `
			DELETE FROM customer_requirement_matches
			WHERE requirement_id IN (SELECT id FROM requirements WHERE customer_id = ? AND deleted_at IS NULL)`, id); err != nil {
			return fmt.Errorf("delete matches: %w", err)
		}
		if _, err := tx.exec(ctx, `UPDATE requirements SET deleted_at = ?, updated_at = ? WHERE customer_id = ? AND deleted_at IS NULL`, now, now, id); err != nil {
			return fmt.Errorf("delete requirements: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM contacts WHERE customer_id = ?`, id); err != nil {
			return fmt.Errorf("delete contacts: %w", err)
		}
		return nil
	})
}

// Contacts

func (db *DB) CreateContact(ctx context.Context, c *Contact) error {
	if strings.TrimSpace(c.FirstName) == "" && strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("%w: contact name is required", ErrInvalid)
	}
	if _, err := db.GetCustomer(ctx, c.CustomerID); err != nil {
		return err
	}
	now := utc(time.Now())
	c.ID = uuid.New().String()
	c.CreatedAt, c.UpdatedAt = now, now

	return db.WithTx(ctx, func(tx *Tx) error {
		if c.IsPrimary {
			if _, err := tx.exec(ctx, `UPDATE contacts SET is_primary = ?, updated_at = ? WHERE customer_id = ?`, false, now, c.CustomerID); err != nil {
				return err
			}
		}
		_, err := tx.exec(ctx, `
			INSERT INTO contacts (id, customer_id, first_name, last_name, email, phone, position, is_primary, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.CustomerID, c.FirstName, c.LastName, c.Email, c.Phone, c.Position, c.IsPrimary, c.CreatedAt, c.UpdatedAt,
		)
		return err
	})
}

const contactColumns = `id, customer_id, first_name, last_name, email, phone, position, is_primary, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	c := &Contact{}
	err := row.Scan(&c.ID, &c.CustomerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Position, &c.IsPrimary, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (db *DB) GetContact(ctx context.Context, id string) (*Contact, error) {
	c, err := scanContact(db.queryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (db *DB) ListContacts(ctx context.Context, customerID string) ([]*Contact, error) {
	rows, err := db.query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE customer_id = ? ORDER BY is_primary DESC, last_name, first_name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (db *DB) UpdateContact(ctx context.Context, c *Contact) error {
	c.UpdatedAt = utc(time.Now())
	return db.WithTx(ctx, func(tx *Tx) error {
		if c.IsPrimary {
			if _, err := tx.exec(ctx, `UPDATE contacts SET is_primary = ?, updated_at = ? WHERE customer_id = ? AND id <> ?`, false, c.UpdatedAt, c.CustomerID, c.ID); err != nil {
				return err
			}
		}
		return expectOne(tx.exec(ctx, `
			UPDATE contacts SET first_name = ?, last_name = ?, email = ?, phone = ?, position = ?, is_primary = ?, updated_at = ?
			WHERE id = ?`,
			c.FirstName, c.LastName, c.Email, c.Phone, c.Position, c.IsPrimary, c.UpdatedAt, c.ID,
		))
	})
}

func (db *DB) DeleteContact(ctx context.Context, id string) error {
	return expectOne(db.exec(ctx, `DELETE FROM contacts WHERE id = ?`, id))
}
