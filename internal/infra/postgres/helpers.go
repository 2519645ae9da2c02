package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// Helper functions for null handling in PostgreSQL queries

// nullString converts a string to sql.NullString.
// Empty strings are treated as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue extracts a string from sql.NullString.
// Returns empty string if NULL.
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime converts a *time.Time to sql.NullTime.
// nil is treated as NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue extracts a *time.Time from sql.NullTime.
// Returns nil if NULL.
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// nullID converts an optional shared.ID pointer to sql.NullString.
func nullID(id *shared.ID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// parseNullID parses a sql.NullString into *shared.ID.
// Returns nil if NULL or if parsing fails.
func parseNullID(ns sql.NullString) *shared.ID {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	id, err := shared.IDFromString(ns.String)
	if err != nil {
		return nil
	}
	return &id
}

// marshalJSON marshals a value for a jsonb column, NULL for nil.
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// unmarshalJSON unmarshals a jsonb column into dst, skipping NULL.
func unmarshalJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
