package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/objectset"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// ObjectSetRepository handles database operations for object sets.
type ObjectSetRepository struct {
	db *DB
}

// NewObjectSetRepository creates a new ObjectSetRepository.
func NewObjectSetRepository(db *DB) *ObjectSetRepository {
	return &ObjectSetRepository{db: db}
}

const objectSetColumns = `id, name, object_type, query, static_keys, created_at, updated_at`

// Create creates a new object set.
func (r *ObjectSetRepository) Create(ctx context.Context, set *objectset.ObjectSet) error {
	query := `
		INSERT INTO object_sets (id, name, object_type, query, static_keys, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		set.ID, set.Name, set.ObjectType, nullString(set.Query),
		pq.Array(set.StaticKeys), set.CreatedAt, set.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return shared.NewDomainError("CONFLICT", "object set name already exists", shared.ErrConflict)
		}
		return fmt.Errorf("failed to create object set: %w", err)
	}
	return nil
}

// GetByID retrieves an object set by ID.
func (r *ObjectSetRepository) GetByID(ctx context.Context, id shared.ID) (*objectset.ObjectSet, error) {
	query := fmt.Sprintf(`SELECT %s FROM object_sets WHERE id = $1`, objectSetColumns)
	return r.getOne(ctx, query, id)
}

// GetByName retrieves an object set by name.
func (r *ObjectSetRepository) GetByName(ctx context.Context, name string) (*objectset.ObjectSet, error) {
	query := fmt.Sprintf(`SELECT %s FROM object_sets WHERE name = $1`, objectSetColumns)
	return r.getOne(ctx, query, name)
}

func (r *ObjectSetRepository) getOne(ctx context.Context, query string, arg any) (*objectset.ObjectSet, error) {
	set, err := r.scanObjectSet(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, objectset.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object set: %w", err)
	}
	return set, nil
}

// List lists object sets with pagination.
func (r *ObjectSetRepository) List(ctx context.Context, pg pagination.Pagination) (pagination.Result[*objectset.ObjectSet], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM object_sets`).Scan(&total); err != nil {
		return pagination.Result[*objectset.ObjectSet]{}, fmt.Errorf("failed to count object sets: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM object_sets ORDER BY name ASC LIMIT $1 OFFSET $2`, objectSetColumns)
	rows, err := r.db.QueryContext(ctx, query, pg.Limit(), pg.Offset())
	if err != nil {
		return pagination.Result[*objectset.ObjectSet]{}, fmt.Errorf("failed to list object sets: %w", err)
	}
	defer rows.Close()

	sets := make([]*objectset.ObjectSet, 0)
	for rows.Next() {
		set, err := r.scanObjectSet(rows)
		if err != nil {
			return pagination.Result[*objectset.ObjectSet]{}, fmt.Errorf("failed to scan object set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*objectset.ObjectSet]{}, err
	}
	return pagination.NewResult(sets, total, pg), nil
}

// Update updates an object set.
func (r *ObjectSetRepository) Update(ctx context.Context, set *objectset.ObjectSet) error {
	query := `
		UPDATE object_sets
		SET name = $2, object_type = $3, query = $4, static_keys = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		set.ID, set.Name, set.ObjectType, nullString(set.Query),
		pq.Array(set.StaticKeys), set.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update object set: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return objectset.ErrNotFound
	}
	return nil
}

// Delete deletes an object set.
func (r *ObjectSetRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM object_sets WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return shared.NewDomainError("CONFLICT", "object set is referenced by a schedule", shared.ErrConflict)
		}
		return fmt.Errorf("failed to delete object set: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return objectset.ErrNotFound
	}
	return nil
}

func (r *ObjectSetRepository) scanObjectSet(row rowScanner) (*objectset.ObjectSet, error) {
	var (
		set        objectset.ObjectSet
		query      sql.NullString
		staticKeys pq.StringArray
	)
	if err := row.Scan(&set.ID, &set.Name, &set.ObjectType, &query, &staticKeys, &set.CreatedAt, &set.UpdatedAt); err != nil {
		return nil, err
	}
	set.Query = nullStringValue(query)
	set.StaticKeys = []string(staticKeys)
	return &set, nil
}
