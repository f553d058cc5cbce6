package extractparameters

import (
	"context"

	"catalog-assistant/internal/models"
)

// Strategy turns raw text into a query descriptor.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, text string) (models.QueryDescriptor, error)
}

// modelOutput is the exact object the model is instructed to emit.
// Every key must be present; only type may not be null.
type modelOutput struct {
	Type   *string  `json:"type"`
	Name   *string  `json:"name"`
	Tier   *string  `json:"tier"`
	Rarity *float64 `json:"rarity"`
}

var modelOutputKeys = []string{"type", "name", "tier", "rarity"}
