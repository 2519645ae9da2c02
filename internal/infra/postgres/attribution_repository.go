package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/attribution"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// AttributionRepository handles database operations for attribution records.
type AttributionRepository struct {
	db *DB
}

// NewAttributionRepository creates a new AttributionRepository.
func NewAttributionRepository(db *DB) *AttributionRepository {
	return &AttributionRepository{db: db}
}

const attributionColumns = `id, task_id, plugin_id, object_key, object_type, organization, created_at`

// RecordBatch inserts the given records, skipping duplicates on
// (task_id, object_key). Re-delivered shim reports are absorbed here rather
// than surfaced as errors.
func (r *AttributionRepository) RecordBatch(ctx context.Context, records []*attribution.Attribution) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO attributions (id, task_id, plugin_id, object_key, object_type, organization, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (task_id, object_key) DO NOTHING
		`
		for _, rec := range records {
			result, err := tx.ExecContext(ctx, query,
				rec.ID, rec.TaskID, rec.PluginID, rec.ObjectKey, rec.ObjectType,
				nullString(rec.Organization), rec.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to record attribution: %w", err)
			}
			if n, _ := result.RowsAffected(); n == 1 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByObject returns the provenance trail of one object key, newest first.
func (r *AttributionRepository) ListByObject(ctx context.Context, objectKey string, pg pagination.Pagination) (pagination.Result[*attribution.Attribution], error) {
	return r.List(ctx, attribution.Filter{ObjectKey: objectKey}, pg)
}

// ListByTask returns everything a task is known to have produced.
func (r *AttributionRepository) ListByTask(ctx context.Context, taskID shared.ID) ([]*attribution.Attribution, error) {
	query := fmt.Sprintf(`SELECT %s FROM attributions WHERE task_id = $1 ORDER BY created_at ASC`, attributionColumns)

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributions: %w", err)
	}
	defer rows.Close()

	records := make([]*attribution.Attribution, 0)
	for rows.Next() {
		rec, err := r.scanAttribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attribution: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// List lists attribution records with filters and pagination.
func (r *AttributionRepository) List(ctx context.Context, filter attribution.Filter, pg pagination.Pagination) (pagination.Result[*attribution.Attribution], error) {
	where := "1=1"
	args := []any{}
	argn := 0

	if filter.TaskID != nil {
		argn++
		where += fmt.Sprintf(" AND task_id = $%d", argn)
		args = append(args, *filter.TaskID)
	}
	if filter.PluginID != "" {
		argn++
		where += fmt.Sprintf(" AND plugin_id = $%d", argn)
		args = append(args, filter.PluginID)
	}
	if filter.ObjectKey != "" {
		argn++
		where += fmt.Sprintf(" AND object_key = $%d", argn)
		args = append(args, filter.ObjectKey)
	}
	if filter.ObjectType != "" {
		argn++
		where += fmt.Sprintf(" AND object_type = $%d", argn)
		args = append(args, filter.ObjectType)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM attributions WHERE %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*attribution.Attribution]{}, fmt.Errorf("failed to count attributions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM attributions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		attributionColumns, where, argn+1, argn+2)
	args = append(args, pg.Limit(), pg.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*attribution.Attribution]{}, fmt.Errorf("failed to list attributions: %w", err)
	}
	defer rows.Close()

	records := make([]*attribution.Attribution, 0)
	for rows.Next() {
		rec, err := r.scanAttribution(rows)
		if err != nil {
			return pagination.Result[*attribution.Attribution]{}, fmt.Errorf("failed to scan attribution: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*attribution.Attribution]{}, err
	}
	return pagination.NewResult(records, total, pg), nil
}

func (r *AttributionRepository) scanAttribution(row rowScanner) (*attribution.Attribution, error) {
	var (
		rec          attribution.Attribution
		organization sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.TaskID, &rec.PluginID, &rec.ObjectKey, &rec.ObjectType, &organization, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Organization = nullStringValue(organization)
	return &rec, nil
}
