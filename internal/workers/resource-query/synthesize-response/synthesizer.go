package synthesizeresponse

import (
	"context"
	"fmt"
	"strings"

	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/models"
	validateresult "catalog-assistant/internal/workers/resource-query/validate-result"
)

// ApologyText is the only failure text users ever see.
const ApologyText = "I apologize, but I'm having trouble accessing the resource records at the moment."

// maxListed is how many rows a list reply spells out.
const maxListed = 3

// Suggester proposes a near-miss name for an empty by-name lookup.
type Suggester interface {
	Suggest(ctx context.Context, name string) (string, error)
}

type Synthesizer struct {
	suggester Suggester
	logger    logger.Logger
}

// NewSynthesizer accepts a nil suggester.
func NewSynthesizer(suggester Suggester, log logger.Logger) *Synthesizer {
	return &Synthesizer{
		suggester: suggester,
		logger:    log.With(map[string]interface{}{"stage": "synthesize"}),
	}
}

func (s *Synthesizer) Synthesize(ctx context.Context, d models.QueryDescriptor, c validateresult.Classification) models.ResponseEnvelope {
	switch c.Outcome {
	case validateresult.OutcomeEmptyValid:
		return models.ResponseEnvelope{
			Text:    s.emptyText(ctx, d),
			Success: true,
			Data:    []models.CatalogRow{},
			Message: emptyMessage(d),
		}
	case validateresult.OutcomeNonEmptyValid:
		text := listText(d, c.Rows)
		if d.Kind == models.QueryKindByName {
			text = detailText(c.Rows[0])
		}
		return models.ResponseEnvelope{
			Text:    text,
			Success: true,
			Data:    c.Rows,
			Message: fmt.Sprintf("Found %d resources.", len(c.Rows)),
		}
	default:
		return Failure(c.Reason)
	}
}

// Failure builds the envelope for any failed request.
func Failure(reason string) models.ResponseEnvelope {
	if reason == "" {
		reason = "query failed"
	}
	return models.ResponseEnvelope{
		Text:    ApologyText,
		Success: false,
		Data:    []models.CatalogRow{},
		Message: reason,
	}
}

func (s *Synthesizer) emptyText(ctx context.Context, d models.QueryDescriptor) string {
	switch d.Kind {
	case models.QueryKindByName:
		text := fmt.Sprintf("I found no resources named %q.", d.Name)
		if suggestion := s.suggest(ctx, d.Name); suggestion != "" {
			text += fmt.Sprintf(" Did you mean %s?", suggestion)
		}
		return text
	case models.QueryKindByTier:
		return fmt.Sprintf("I found no %s tier resources.", d.Tier)
	case models.QueryKindByRarityMin:
		return fmt.Sprintf("I found no resources with %s.", d.Criteria())
	default:
		return "I found no resources in the catalog."
	}
}

func (s *Synthesizer) suggest(ctx context.Context, name string) string {
	if s.suggester == nil {
		return ""
	}
	suggestion, err := s.suggester.Suggest(ctx, name)
	if err != nil {
		stdErr := errors.NewSearchFailedError(err)
		s.logger.Warn("name suggestion failed", map[string]interface{}{
			"code":  stdErr.Code,
			"error": stdErr.Details,
		})
		return ""
	}
	return suggestion
}

func emptyMessage(d models.QueryDescriptor) string {
	if d.Kind == models.QueryKindByTier {
		return fmt.Sprintf("No resources found in %s tier", d.Tier)
	}
	return "No resources found"
}

func detailText(row models.CatalogRow) string {
	var b strings.Builder
	b.WriteString(row.Name)
	if row.Ticker != "" {
		fmt.Fprintf(&b, " (%s)", row.Ticker)
	}
	fmt.Fprintf(&b, " is a %s tier resource.", row.Tier)

	if desc := strings.TrimSpace(row.Description); desc != "" {
		b.WriteString(" ")
		b.WriteString(desc)
		if !strings.HasSuffix(desc, ".") && !strings.HasSuffix(desc, "!") && !strings.HasSuffix(desc, "?") {
			b.WriteString(".")
		}
	}

	fmt.Fprintf(&b, " It has a rarity of %s and a value of %s.",
		models.FormatNumber(row.Rarity), models.FormatNumber(row.Value))
	if row.Colour != "" {
		fmt.Fprintf(&b, " Its colour is %s.", row.Colour)
	}
	return b.String()
}

func listText(d models.QueryDescriptor, rows []models.CatalogRow) string {
	var b strings.Builder
	switch d.Kind {
	case models.QueryKindByTier:
		fmt.Fprintf(&b, "I found %d %s tier resources:", len(rows), d.Tier)
	case models.QueryKindByRarityMin:
		fmt.Fprintf(&b, "I found %d resources with %s:", len(rows), d.Criteria())
	default:
		fmt.Fprintf(&b, "I found %d resources in the catalog:", len(rows))
	}

	for i, row := range rows {
		if i == maxListed {
			break
		}
		b.WriteString("\n- ")
		b.WriteString(row.Name)
		if row.Ticker != "" {
			fmt.Fprintf(&b, " (%s)", row.Ticker)
		}
		fmt.Fprintf(&b, ": %s tier, rarity %s, value %s",
			row.Tier, models.FormatNumber(row.Rarity), models.FormatNumber(row.Value))
	}

	if remaining := len(rows) - maxListed; remaining > 0 {
		fmt.Fprintf(&b, "\n...and %d more.", remaining)
	}
	return b.String()
}
