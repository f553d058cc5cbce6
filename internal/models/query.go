package models

import (
	"fmt"
	"math"
	"strings"
)

// QueryKind selects which predicate the catalog query applies.
type QueryKind string

const (
	QueryKindAll         QueryKind = "ALL"
	QueryKindByName      QueryKind = "BY_NAME"
	QueryKindByTier      QueryKind = "BY_TIER"
	QueryKindByRarityMin QueryKind = "BY_RARITY_MIN"
)

// ParseQueryKind accepts the canonical kind names and the short wire forms
// (all, by_name, by_tier, by_rarity), case-insensitively.
func ParseQueryKind(s string) (QueryKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return QueryKindAll, true
	case "by_name":
		return QueryKindByName, true
	case "by_tier":
		return QueryKindByTier, true
	case "by_rarity", "by_rarity_min":
		return QueryKindByRarityMin, true
	}
	return "", false
}

// QueryDescriptor is the typed description of what the user asked for.
// Build one with the New* constructors; they normalize fields so every
// extraction path yields the same value for the same request.
type QueryDescriptor struct {
	Kind            QueryKind `json:"kind"`
	Name            string    `json:"name,omitempty"`
	Tier            string    `json:"tier,omitempty"`
	RarityThreshold *float64  `json:"rarityThreshold,omitempty"`
	RawText         string    `json:"rawText"`
}

func NewAllQuery(rawText string) QueryDescriptor {
	return QueryDescriptor{Kind: QueryKindAll, RawText: rawText}
}

func NewByNameQuery(name, rawText string) QueryDescriptor {
	return QueryDescriptor{Kind: QueryKindByName, Name: NormalizeName(name), RawText: rawText}
}

func NewByTierQuery(tier, rawText string) QueryDescriptor {
	return QueryDescriptor{Kind: QueryKindByTier, Tier: strings.TrimSpace(tier), RawText: rawText}
}

func NewByRarityMinQuery(threshold float64, rawText string) QueryDescriptor {
	return QueryDescriptor{Kind: QueryKindByRarityMin, RarityThreshold: &threshold, RawText: rawText}
}

// NormalizeName trims whitespace and trailing sentence punctuation and lowercases.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, "?!.,;:")
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate enforces the per-kind field requirements.
func (d QueryDescriptor) Validate() error {
	switch d.Kind {
	case QueryKindAll:
		return nil
	case QueryKindByName:
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("kind %s requires a non-empty name", d.Kind)
		}
	case QueryKindByTier:
		if strings.TrimSpace(d.Tier) == "" {
			return fmt.Errorf("kind %s requires a non-empty tier", d.Kind)
		}
	case QueryKindByRarityMin:
		if d.RarityThreshold == nil {
			return fmt.Errorf("kind %s requires a rarity threshold", d.Kind)
		}
		if math.IsNaN(*d.RarityThreshold) || math.IsInf(*d.RarityThreshold, 0) {
			return fmt.Errorf("kind %s requires a finite rarity threshold", d.Kind)
		}
	default:
		return fmt.Errorf("unknown query kind %q", d.Kind)
	}
	return nil
}

// Criteria describes the descriptor for user-facing text.
func (d QueryDescriptor) Criteria() string {
	switch d.Kind {
	case QueryKindByName:
		return fmt.Sprintf("name %q", d.Name)
	case QueryKindByTier:
		return fmt.Sprintf("%s tier", d.Tier)
	case QueryKindByRarityMin:
		if d.RarityThreshold != nil {
			return fmt.Sprintf("rarity of at least %s", FormatNumber(*d.RarityThreshold))
		}
	}
	return "all resources"
}
