package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/schedule"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// ScheduleRepository handles database operations for schedules.
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, plugin_id, object_set_id, recurrence, enabled,
	organization, last_evaluated_at, created_at, updated_at`

// Create creates a new schedule.
func (r *ScheduleRepository) Create(ctx context.Context, s *schedule.Schedule) error {
	query := `
		INSERT INTO schedules (id, plugin_id, object_set_id, recurrence, enabled,
			organization, last_evaluated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.PluginID, s.ObjectSetID, s.Recurrence, s.Enabled,
		nullString(s.Organization), nullTime(s.LastEvaluatedAt), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// GetByID retrieves a schedule by ID.
func (r *ScheduleRepository) GetByID(ctx context.Context, id shared.ID) (*schedule.Schedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE id = $1`, scheduleColumns)

	s, err := r.scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedule.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

// ListEnabled lists all enabled schedules, for one evaluator pass.
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]*schedule.Schedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE enabled = TRUE ORDER BY created_at ASC`, scheduleColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]*schedule.Schedule, 0)
	for rows.Next() {
		s, err := r.scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// List lists schedules with filters and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter schedule.Filter, pg pagination.Pagination) (pagination.Result[*schedule.Schedule], error) {
	where := "1=1"
	args := []any{}
	argn := 0

	if filter.PluginID != "" {
		argn++
		where += fmt.Sprintf(" AND plugin_id = $%d", argn)
		args = append(args, filter.PluginID)
	}
	if filter.Enabled != nil {
		argn++
		where += fmt.Sprintf(" AND enabled = $%d", argn)
		args = append(args, *filter.Enabled)
	}
	if filter.Organization != "" {
		argn++
		where += fmt.Sprintf(" AND organization = $%d", argn)
		args = append(args, filter.Organization)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM schedules WHERE %s`, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*schedule.Schedule]{}, fmt.Errorf("failed to count schedules: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		scheduleColumns, where, argn+1, argn+2)
	args = append(args, pg.Limit(), pg.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*schedule.Schedule]{}, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]*schedule.Schedule, 0)
	for rows.Next() {
		s, err := r.scanSchedule(rows)
		if err != nil {
			return pagination.Result[*schedule.Schedule]{}, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*schedule.Schedule]{}, err
	}
	return pagination.NewResult(schedules, total, pg), nil
}

// Update updates a schedule.
func (r *ScheduleRepository) Update(ctx context.Context, s *schedule.Schedule) error {
	query := `
		UPDATE schedules
		SET plugin_id = $2, object_set_id = $3, recurrence = $4, enabled = $5,
			organization = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.PluginID, s.ObjectSetID, s.Recurrence, s.Enabled,
		nullString(s.Organization), s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

// UpdateCursor advances the evaluation cursor without touching other fields.
func (r *ScheduleRepository) UpdateCursor(ctx context.Context, id shared.ID, evaluatedAt time.Time) error {
	query := `UPDATE schedules SET last_evaluated_at = $2, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, evaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to update schedule cursor: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (r *ScheduleRepository) SetEnabled(ctx context.Context, id shared.ID, enabled bool) error {
	query := `UPDATE schedules SET enabled = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set schedule enabled: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

// Delete deletes a schedule.
func (r *ScheduleRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) scanSchedule(row rowScanner) (*schedule.Schedule, error) {
	var (
		s               schedule.Schedule
		organization    sql.NullString
		lastEvaluatedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.PluginID, &s.ObjectSetID, &s.Recurrence, &s.Enabled,
		&organization, &lastEvaluatedAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Organization = nullStringValue(organization)
	s.LastEvaluatedAt = nullTimeValue(lastEvaluatedAt)
	return &s, nil
}
