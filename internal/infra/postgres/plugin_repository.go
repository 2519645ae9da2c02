package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// PluginRepository handles database operations for plugin descriptors.
type PluginRepository struct {
	db *DB
}

// NewPluginRepository creates a new PluginRepository.
func NewPluginRepository(db *DB) *PluginRepository {
	return &PluginRepository{db: db}
}

const pluginColumns = `id, plugin_id, name, description, scan_level, consumes,
	oci_image, oci_arguments, grants, batch_size, interval_minutes, cron,
	created_at, updated_at`

// Upsert writes a plugin descriptor, replacing an existing version with the
// same plugin_id.
func (r *PluginRepository) Upsert(ctx context.Context, p *plugin.Plugin) error {
	grants, err := marshalJSON(p.Grants)
	if err != nil {
		return fmt.Errorf("failed to marshal grants: %w", err)
	}

	query := `
		INSERT INTO plugins (id, plugin_id, name, description, scan_level, consumes,
			oci_image, oci_arguments, grants, batch_size, interval_minutes, cron,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (plugin_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			scan_level = EXCLUDED.scan_level,
			consumes = EXCLUDED.consumes,
			oci_image = EXCLUDED.oci_image,
			oci_arguments = EXCLUDED.oci_arguments,
			grants = EXCLUDED.grants,
			batch_size = EXCLUDED.batch_size,
			interval_minutes = EXCLUDED.interval_minutes,
			cron = EXCLUDED.cron,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.PluginID, p.Name, nullString(p.Description), int(p.ScanLevel),
		pq.Array(p.Consumes), p.OCIImage, pq.Array(p.OCIArguments), grants,
		p.BatchSize, p.Interval, nullString(p.Cron), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plugin: %w", err)
	}
	return nil
}

// GetByPluginID retrieves a plugin by its natural identifier.
func (r *PluginRepository) GetByPluginID(ctx context.Context, pluginID string) (*plugin.Plugin, error) {
	query := fmt.Sprintf(`SELECT %s FROM plugins WHERE plugin_id = $1`, pluginColumns)

	p, err := r.scanPlugin(r.db.QueryRowContext(ctx, query, pluginID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, plugin.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plugin: %w", err)
	}
	return p, nil
}

// List returns plugins matching the filter.
func (r *PluginRepository) List(ctx context.Context, filter plugin.Filter, pg pagination.Pagination) (pagination.Result[*plugin.Plugin], error) {
	where := "1=1"
	args := []any{}
	argn := 0

	if filter.ScanLevel != nil {
		argn++
		where += fmt.Sprintf(" AND scan_level <= $%d", argn)
		args = append(args, int(*filter.ScanLevel))
	}
	if filter.Consumes != "" {
		argn++
		where += fmt.Sprintf(" AND $%d = ANY(consumes)", argn)
		args = append(args, filter.Consumes)
	}
	if filter.Search != "" {
		argn++
		where += fmt.Sprintf(" AND (plugin_id ILIKE $%d OR name ILIKE $%d)", argn, argn)
		args = append(args, "%"+filter.Search+"%")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM plugins WHERE %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*plugin.Plugin]{}, fmt.Errorf("failed to count plugins: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM plugins WHERE %s ORDER BY plugin_id ASC LIMIT $%d OFFSET $%d`,
		pluginColumns, where, argn+1, argn+2)
	args = append(args, pg.Limit(), pg.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*plugin.Plugin]{}, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	plugins := make([]*plugin.Plugin, 0)
	for rows.Next() {
		p, err := r.scanPlugin(rows)
		if err != nil {
			return pagination.Result[*plugin.Plugin]{}, fmt.Errorf("failed to scan plugin: %w", err)
		}
		plugins = append(plugins, p)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*plugin.Plugin]{}, err
	}
	return pagination.NewResult(plugins, total, pg), nil
}

// Delete removes a plugin descriptor.
func (r *PluginRepository) Delete(ctx context.Context, pluginID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM plugins WHERE plugin_id = $1`, pluginID)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return plugin.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PluginRepository) scanPlugin(row rowScanner) (*plugin.Plugin, error) {
	var (
		p            plugin.Plugin
		description  sql.NullString
		cron         sql.NullString
		scanLevel    int
		consumes     pq.StringArray
		ociArguments pq.StringArray
		grants       []byte
	)

	if err := row.Scan(
		&p.ID, &p.PluginID, &p.Name, &description, &scanLevel, &consumes,
		&p.OCIImage, &ociArguments, &grants, &p.BatchSize, &p.Interval, &cron,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Description = nullStringValue(description)
	p.Cron = nullStringValue(cron)
	p.ScanLevel = plugin.ScanLevel(scanLevel)
	p.Consumes = []string(consumes)
	p.OCIArguments = []string(ociArguments)
	if err := unmarshalJSON(grants, &p.Grants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grants: %w", err)
	}
	return &p, nil
}
