package extractparameters

import (
	"context"
	"math"
	"strconv"
	"strings"

	"catalog-assistant/internal/models"
)

const (
	markerAbout  = "about "
	markerTier   = "tier "
	markerRarity = "rarity "
)

var triggerWords = []string{"about", "all", "tier", "rarity"}

// IsCatalogQuery reports whether text warrants extraction at all.
func IsCatalogQuery(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range triggerWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// KeywordStrategy is the deterministic extractor. It never fails.
type KeywordStrategy struct{}

func (KeywordStrategy) Name() string { return "keyword" }

func (KeywordStrategy) Extract(_ context.Context, text string) (models.QueryDescriptor, error) {
	lower := strings.ToLower(text)

	if rest, ok := after(lower, markerAbout); ok {
		if d := models.NewByNameQuery(rest, text); d.Name != "" {
			return d, nil
		}
	}

	if rest, ok := after(lower, markerTier); ok {
		tier := strings.TrimRight(strings.TrimSpace(rest), "?!.,;:")
		if d := models.NewByTierQuery(tier, text); d.Tier != "" {
			return d, nil
		}
	}

	if rest, ok := after(lower, markerRarity); ok {
		if threshold, found := firstFloat(rest); found {
			return models.NewByRarityMinQuery(threshold, text), nil
		}
	}

	return models.NewAllQuery(text), nil
}

func after(s, marker string) (string, bool) {
	idx := strings.Index(s, marker)
	if idx < 0 {
		return "", false
	}
	return s[idx+len(marker):], true
}

// firstFloat returns the first whitespace-separated token that parses as a finite number.
func firstFloat(s string) (float64, bool) {
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, "?!,;:()\"'")
		tok = strings.TrimSuffix(tok, ".")
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		return v, true
	}
	return 0, false
}
