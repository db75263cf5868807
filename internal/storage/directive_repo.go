package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_directive_store.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/storage DirectiveStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
)

// DirectiveStore defines the interface for override directive storage.
type DirectiveStore interface {
	ranking.DirectiveSource
	// Upsert inserts a directive or replaces action and weight of the one with the same
	// (tenant, scope kind, scope value, target). The stored directive is written back into d.
	Upsert(ctx context.Context, d *ranking.Directive) error
	// Delete removes a directive by id. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, tenantID, id string) error
	// List returns a tenant's directives, optionally filtered by scope.
	List(ctx context.Context, tenantID string, scope ranking.Scope, scopeValue string) ([]ranking.Directive, error)
}

// DirectiveRepo provides methods for directive operations.
// It implements the DirectiveStore interface.
type DirectiveRepo struct {
	db *sql.DB
}

// NewDirectiveRepo creates a new DirectiveRepo.
func NewDirectiveRepo(db *sql.DB) *DirectiveRepo {
	return &DirectiveRepo{db: db}
}

const directiveColumns = "id, tenant_id, scope_kind, scope_value, target, action, weight, created_at, updated_at"

func scanDirective(row rowScanner) (ranking.Directive, error) {
	var d ranking.Directive
	var scope, action string
	if err := row.Scan(&d.ID, &d.TenantID, &scope, &d.ScopeValue, &d.Target, &action, &d.Weight, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err
	}
	var err error
	if d.Scope, err = ranking.ParseScope(scope); err != nil {
		return d, err
	}
	if d.Action, err = ranking.ParseAction(action); err != nil {
		return d, err
	}
	return d, nil
}

// Upsert inserts a directive or replaces the one with the same scope and target.
// Scope values are normalized before writing so query directives match lowercased queries.
func (r *DirectiveRepo) Upsert(ctx context.Context, d *ranking.Directive) error {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO directives (`+directiveColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, scope_kind, scope_value, target) DO UPDATE SET
		 action = excluded.action, weight = excluded.weight, updated_at = excluded.updated_at`,
		d.ID, d.TenantID, d.Scope.String(), d.ScopeValue, d.Target, d.Action.String(), d.Weight, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert directive: %w", err)
	}

	// Read back so callers see the surviving id and created_at after a conflict.
	row := r.db.QueryRowContext(ctx,
		"SELECT "+directiveColumns+" FROM directives WHERE tenant_id = ? AND scope_kind = ? AND scope_value = ? AND target = ?",
		d.TenantID, d.Scope.String(), d.ScopeValue, d.Target,
	)
	stored, err := scanDirective(row)
	if err != nil {
		return fmt.Errorf("failed to read directive: %w", err)
	}
	*d = stored
	return nil
}

// Delete removes a directive by id.
func (r *DirectiveRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM directives WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete directive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a tenant's directives. A zero scope lists all of them.
func (r *DirectiveRepo) List(ctx context.Context, tenantID string, scope ranking.Scope, scopeValue string) ([]ranking.Directive, error) {
	query := "SELECT " + directiveColumns + " FROM directives WHERE tenant_id = ?"
	args := []any{tenantID}
	if scope != 0 {
		query += " AND scope_kind = ?"
		args = append(args, scope.String())
		if scopeValue != "" {
			if scope == ranking.ScopeQuery {
				scopeValue = ranking.NormalizeQuery(scopeValue)
			}
			query += " AND scope_value = ?"
			args = append(args, scopeValue)
		}
	}
	query += " ORDER BY created_at, id"
	return r.query(ctx, query, args...)
}

// ListApplicable returns the global directives, the query directives for normalizedQuery
// and, when category is set, that category's directives.
func (r *DirectiveRepo) ListApplicable(ctx context.Context, tenantID, normalizedQuery, category string) ([]ranking.Directive, error) {
	return r.query(ctx,
		`SELECT `+directiveColumns+` FROM directives
		 WHERE tenant_id = ? AND (
			scope_kind = 'global'
			OR (scope_kind = 'query' AND scope_value = ?)
			OR (scope_kind = 'category' AND ? != '' AND scope_value = ?)
		 )`,
		tenantID, normalizedQuery, category, category,
	)
}

func (r *DirectiveRepo) query(ctx context.Context, query string, args ...any) ([]ranking.Directive, error) {
	out, err := queryAll(ctx, r.db, scanDirective, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query directives: %w", err)
	}
	return out, nil
}
