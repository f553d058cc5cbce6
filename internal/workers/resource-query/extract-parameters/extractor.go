package extractparameters

import (
	"context"
	"fmt"

	"catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/llm"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/common/metrics"
	"catalog-assistant/internal/models"

	"github.com/redis/go-redis/v9"
)

// Fallback prefers one strategy and falls back to another. It never fails:
// when both strategies misbehave the result is an ALL query.
type Fallback struct {
	Preferred  Strategy
	Guaranteed Strategy
	logger     logger.Logger
}

func NewFallback(preferred, guaranteed Strategy, log logger.Logger) *Fallback {
	return &Fallback{Preferred: preferred, Guaranteed: guaranteed, logger: log}
}

// Extract returns the descriptor and the name of the strategy that produced it.
func (f *Fallback) Extract(ctx context.Context, text string) (models.QueryDescriptor, string) {
	if f.Preferred != nil {
		d, err := safeExtract(ctx, f.Preferred, text)
		if err == nil {
			return d, f.Preferred.Name()
		}
		f.logger.Warn("preferred extraction failed, using fallback", map[string]interface{}{
			"strategy":  f.Preferred.Name(),
			"errorCode": string(errors.ErrCodeExtractionMalformed),
			"error":     err,
		})
	}

	if f.Guaranteed != nil {
		d, err := safeExtract(ctx, f.Guaranteed, text)
		if err == nil {
			return d, f.Guaranteed.Name()
		}
		f.logger.Error("guaranteed extraction failed, defaulting to ALL", map[string]interface{}{
			"strategy": f.Guaranteed.Name(),
			"error":    err,
		})
	}

	return models.NewAllQuery(text), "default"
}

func safeExtract(ctx context.Context, s Strategy, text string) (d models.QueryDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewExtractionMalformedError(fmt.Sprintf("strategy %s panicked: %v", s.Name(), r))
		}
	}()

	d, err = s.Extract(ctx, text)
	if err != nil {
		return models.QueryDescriptor{}, err
	}
	if verr := d.Validate(); verr != nil {
		return models.QueryDescriptor{}, errors.NewInvalidDescriptorError(verr.Error())
	}
	return d, nil
}

// Extractor gates the text and runs the strategy chain.
type Extractor struct {
	fallback *Fallback
	logger   logger.Logger
}

// NewExtractor wires the model strategy in front of the keyword rules.
// A nil completer leaves only the keyword rules.
func NewExtractor(cfg *Config, completer llm.Completer, cache redis.Cmdable, log logger.Logger) *Extractor {
	log = log.With(map[string]interface{}{"stage": "extract"})

	var preferred Strategy
	if completer != nil {
		preferred = NewModelStrategy(completer, cache, cfg, log)
	}
	return &Extractor{
		fallback: NewFallback(preferred, KeywordStrategy{}, log),
		logger:   log,
	}
}

// Extract reports ok=false when the text is not a catalog query.
func (e *Extractor) Extract(ctx context.Context, text string) (models.QueryDescriptor, bool) {
	if !IsCatalogQuery(text) {
		return models.QueryDescriptor{}, false
	}

	d, strategy := e.fallback.Extract(ctx, text)
	metrics.ExtractionStrategy.WithLabelValues(strategy).Inc()

	e.logger.Debug("descriptor extracted", map[string]interface{}{
		"kind":     string(d.Kind),
		"strategy": strategy,
	})
	return d, true
}
