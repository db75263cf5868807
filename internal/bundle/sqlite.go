package bundle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

// SQLStore keeps bundles in the bundles table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore on a migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const bundleColumns = "id, tenant_id, members, locked, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(row rowScanner) (*Bundle, error) {
	var b Bundle
	var members string
	if err := row.Scan(&b.ID, &b.TenantID, &members, &b.Locked, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &b.Members); err != nil {
		return nil, fmt.Errorf("failed to decode members of bundle %s: %w", b.ID, err)
	}
	if b.Members == nil {
		b.Members = []string{}
	}
	return &b, nil
}

// Create inserts a new bundle.
func (s *SQLStore) Create(ctx context.Context, b *Bundle) error {
	members, err := json.Marshal(b.Clone().Members)
	if err != nil {
		return fmt.Errorf("failed to encode members: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO bundles ("+bundleColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		b.ID, b.TenantID, string(members), b.Locked, b.CreatedAt, b.UpdatedAt,
	)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert bundle: %w", err)
	}
	return nil
}

// Get gets a bundle by tenant and id.
func (s *SQLStore) Get(ctx context.Context, tenantID, id string) (*Bundle, error) {
	return s.get(ctx, s.db, tenantID, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) get(ctx context.Context, q queryer, tenantID, id string) (*Bundle, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+bundleColumns+" FROM bundles WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	)
	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle: %w", err)
	}
	return b, nil
}

// Update reads, mutates and writes the bundle inside one transaction.
func (s *SQLStore) Update(ctx context.Context, tenantID, id string, fn MutateFunc) (*Bundle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	b, err := s.get(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now().UTC()

	members, err := json.Marshal(b.Members)
	if err != nil {
		return nil, fmt.Errorf("failed to encode members: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE bundles SET members = ?, locked = ?, updated_at = ? WHERE tenant_id = ? AND id = ?",
		string(members), b.Locked, b.UpdatedAt, tenantID, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update bundle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bundle update: %w", err)
	}
	return b, nil
}

// Delete removes a bundle.
func (s *SQLStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bundles WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.ErrNotFound
	}
	return nil
}
