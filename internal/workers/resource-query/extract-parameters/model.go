package extractparameters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/llm"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "catalog:extract:"

const extractionPrompt = `Extract catalog query parameters from the user's message.
Respond with a single JSON object and nothing else, using exactly these keys:
{"type": "all" | "by_name" | "by_tier" | "by_rarity", "name": string or null, "tier": string or null, "rarity": number or null}

Use "by_name" when the user asks about one specific resource, "by_tier" for a tier such as common or mythic,
"by_rarity" for a minimum rarity value and "all" otherwise.

Message: %s`

// ModelStrategy asks the small model for a JSON descriptor. Any deviation
// from the expected object shape is reported as EXTRACTION_MALFORMED.
type ModelStrategy struct {
	completer llm.Completer
	cache     redis.Cmdable
	cacheTTL  time.Duration
	timeout   time.Duration
	logger    logger.Logger
}

func NewModelStrategy(completer llm.Completer, cache redis.Cmdable, cfg *Config, log logger.Logger) *ModelStrategy {
	return &ModelStrategy{
		completer: completer,
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		timeout:   cfg.Timeout,
		logger:    log,
	}
}

func (s *ModelStrategy) Name() string { return "model" }

func (s *ModelStrategy) Extract(ctx context.Context, text string) (models.QueryDescriptor, error) {
	key := CacheKey(text)
	if d, ok := s.cached(ctx, key, text); ok {
		return d, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.completer.Complete(callCtx, fmt.Sprintf(extractionPrompt, text), llm.TierSmall)
	if err != nil {
		return models.QueryDescriptor{}, err
	}

	d, err := ParseModelOutput(raw, text)
	if err != nil {
		return models.QueryDescriptor{}, err
	}

	s.store(ctx, key, d)
	return d, nil
}

// ParseModelOutput decodes the model's reply into a validated descriptor.
func ParseModelOutput(raw, text string) (models.QueryDescriptor, error) {
	body := stripFences(raw)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError(fmt.Sprintf("not a JSON object: %v", err))
	}
	if len(keys) != len(modelOutputKeys) {
		return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError(fmt.Sprintf("expected %d keys, got %d", len(modelOutputKeys), len(keys)))
	}
	for _, k := range modelOutputKeys {
		if _, ok := keys[k]; !ok {
			return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError("missing key " + k)
		}
	}

	var out modelOutput
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError(err.Error())
	}
	if out.Type == nil {
		return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError("type is null")
	}

	kind, ok := models.ParseQueryKind(*out.Type)
	if !ok {
		return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError(fmt.Sprintf("unknown type %q", *out.Type))
	}

	var d models.QueryDescriptor
	switch kind {
	case models.QueryKindAll:
		d = models.NewAllQuery(text)
	case models.QueryKindByName:
		d = models.NewByNameQuery(deref(out.Name), text)
	case models.QueryKindByTier:
		d = models.NewByTierQuery(deref(out.Tier), text)
	case models.QueryKindByRarityMin:
		if out.Rarity == nil {
			return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError("rarity is null")
		}
		d = models.NewByRarityMinQuery(*out.Rarity, text)
	}

	if err := d.Validate(); err != nil {
		return models.QueryDescriptor{}, apperrors.NewExtractionMalformedError(err.Error())
	}
	return d, nil
}

// CacheKey derives the extraction cache key from the normalized text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *ModelStrategy) cached(ctx context.Context, key, text string) (models.QueryDescriptor, bool) {
	if s.cache == nil {
		return models.QueryDescriptor{}, false
	}

	val, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("extraction cache read failed", map[string]interface{}{"error": err})
		}
		return models.QueryDescriptor{}, false
	}

	var d models.QueryDescriptor
	if err := json.Unmarshal([]byte(val), &d); err != nil || d.Validate() != nil {
		return models.QueryDescriptor{}, false
	}
	d.RawText = text
	return d, true
}

func (s *ModelStrategy) store(ctx context.Context, key string, d models.QueryDescriptor) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("extraction cache write failed", map[string]interface{}{"error": err})
	}
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
