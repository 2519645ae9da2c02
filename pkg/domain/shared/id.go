// Package shared holds the types every domain package builds on: entity
// identifiers and the error taxonomy.
package shared

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID identifies a domain entity. It wraps a uuid so callers cannot confuse
// ids with other strings, and so the zero value is detectably unset.
type ID struct {
	value uuid.UUID
}

// NewID returns a fresh random ID.
func NewID() ID {
	return ID{value: uuid.New()}
}

// IDFromString parses an ID from its string form.
func IDFromString(s string) (ID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid id format: %w", err)
	}
	return ID{value: parsed}, nil
}

func (id ID) String() string {
	return id.value.String()
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equals reports whether two IDs identify the same entity.
func (id ID) Equals(other ID) bool {
	return id.value == other.value
}

// Value implements driver.Valuer so IDs store as uuid columns.
func (id ID) Value() (driver.Value, error) {
	return id.value.String(), nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		id.value = parsed
	case []byte:
		parsed, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		id.value = parsed
	default:
		return fmt.Errorf("cannot scan type %T into ID", src)
	}
	return nil
}

// MarshalJSON renders the ID as a bare string.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON parses the ID from a JSON string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("invalid id format")
	}
	parsed, err := uuid.Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	id.value = parsed
	return nil
}
