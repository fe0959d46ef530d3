package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docpilot/metergate/domain/key"
	"github.com/docpilot/metergate/ports"
)

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = "id, customer_id, hash, prefix, name, revoked_at, created_at, last_used"

// Get retrieves keys matching a prefix.
func (s *KeyStore) Get(ctx context.Context, prefix string) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys WHERE prefix = ?
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

// GetByID retrieves a key by id.
func (s *KeyStore) GetByID(ctx context.Context, id string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys WHERE id = ?
	`, id)

	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return key.Key{}, ports.ErrNotFound
	}
	if err != nil {
		return key.Key{}, fmt.Errorf("scan key: %w", err)
	}
	return k, nil
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, customer_id, hash, prefix, name, revoked_at, created_at, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.CustomerID, k.Hash, k.Prefix, k.Name, nullTime(k.RevokedAt), k.CreatedAt.UTC(), nullTime(k.LastUsed))
	if err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Missing or already revoked; distinguish for the caller.
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM api_keys WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check key: %w", err)
		}
	}
	return nil
}

// ListByCustomer returns all keys for a customer, newest first.
func (s *KeyStore) ListByCustomer(ctx context.Context, customerID string) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys
		WHERE customer_id = ?
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

// CountActiveByCustomer returns the number of unrevoked keys.
func (s *KeyStore) CountActiveByCustomer(ctx context.Context, customerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM api_keys WHERE customer_id = ? AND revoked_at IS NULL
	`, customerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return count, nil
}

// UpdateLastUsed updates the last used timestamp.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = ? WHERE id = ?
	`, at.UTC(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (key.Key, error) {
	var k key.Key
	var revokedAt, lastUsed sql.NullTime
	err := row.Scan(&k.ID, &k.CustomerID, &k.Hash, &k.Prefix, &k.Name, &revokedAt, &k.CreatedAt, &lastUsed)
	if err != nil {
		return key.Key{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsed = &t
	}
	return k, nil
}

func scanKeys(rows *sql.Rows) ([]key.Key, error) {
	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ ports.KeyStore = (*KeyStore)(nil)
