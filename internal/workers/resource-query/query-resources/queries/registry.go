package queries

import (
	"errors"
	"fmt"

	"catalog-assistant/internal/models"
)

var (
	ErrInvalidDescriptor = errors.New("INVALID_DESCRIPTOR")
	ErrUnknownQueryKind  = errors.New("unknown query kind")
)

// MaxRows caps every catalog statement.
const MaxRows = 100

// Statement is a parameterized query. Text is assembled from constant
// fragments only; every user-derived value travels in Args.
type Statement struct {
	Text string
	Args []interface{}
}

type BuildFunc func(d models.QueryDescriptor) Statement

var Registry = map[models.QueryKind]BuildFunc{
	models.QueryKindAll:         AllResources,
	models.QueryKindByName:      ResourceByName,
	models.QueryKindByTier:      ResourcesByTier,
	models.QueryKindByRarityMin: ResourcesByRarityMin,
}

// Build validates the descriptor and renders its statement.
func Build(d models.QueryDescriptor) (Statement, error) {
	if err := d.Validate(); err != nil {
		return Statement{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	fn, exists := Registry[d.Kind]
	if !exists {
		return Statement{}, fmt.Errorf("%w: %s", ErrUnknownQueryKind, d.Kind)
	}
	return fn(d), nil
}
