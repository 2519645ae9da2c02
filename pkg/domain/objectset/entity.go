// Package objectset defines named, reusable selections of catalog objects.
package objectset

import (
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// ObjectSet selects objects of one type: a stored filter query, an explicit
// static key list, or the union of both. Membership is evaluated lazily at
// schedule-evaluation time and must be side-effect-free.
type ObjectSet struct {
	ID         shared.ID
	Name       string
	ObjectType string
	Query      string   // stored filter predicate, passed opaquely to the catalog
	StaticKeys []string // explicit member keys

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a new ObjectSet.
func New(name, objectType string) (*ObjectSet, error) {
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if objectType == "" {
		return nil, shared.NewDomainError("VALIDATION", "object_type is required", shared.ErrValidation)
	}

	now := time.Now()
	return &ObjectSet{
		ID:         shared.NewID(),
		Name:       name,
		ObjectType: objectType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsEmptyDefinition reports whether the set has neither a query nor static
// members. The empty query selects all objects of the type only when static
// keys are also absent; a set with static keys and no query selects exactly
// the static keys.
func (s *ObjectSet) IsEmptyDefinition() bool {
	return s.Query == "" && len(s.StaticKeys) == 0
}
