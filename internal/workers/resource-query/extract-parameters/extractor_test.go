package extractparameters

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/llm"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test doubles
// ==========================

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, tier llm.Tier) (string, error) {
	s.calls++
	return s.reply, s.err
}

type panickingStrategy struct{}

func (panickingStrategy) Name() string { return "panicking" }

func (panickingStrategy) Extract(context.Context, string) (models.QueryDescriptor, error) {
	panic("boom")
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }

func (failingStrategy) Extract(context.Context, string) (models.QueryDescriptor, error) {
	return models.QueryDescriptor{}, errors.New("nope")
}

func createTestConfig() *Config {
	return &Config{Timeout: time.Second, CacheTTL: time.Minute}
}

func ptr(f float64) *float64 { return &f }

// ==========================
// Keyword strategy
// ==========================

func TestKeywordStrategy(t *testing.T) {
	tests := []struct {
		text string
		want models.QueryDescriptor
	}{
		{"Tell me about Dragonhide", models.QueryDescriptor{Kind: models.QueryKindByName, Name: "dragonhide"}},
		{"what do you know about Ethereal Silk?", models.QueryDescriptor{Kind: models.QueryKindByName, Name: "ethereal silk"}},
		{"Show me tier mythic", models.QueryDescriptor{Kind: models.QueryKindByTier, Tier: "mythic"}},
		{"resources with rarity above 50.5 please", models.QueryDescriptor{Kind: models.QueryKindByRarityMin, RarityThreshold: ptr(50.5)}},
		{"rarity 12.", models.QueryDescriptor{Kind: models.QueryKindByRarityMin, RarityThreshold: ptr(12)}},
		{"rarity high", models.QueryDescriptor{Kind: models.QueryKindAll}},
		{"Show me all resources", models.QueryDescriptor{Kind: models.QueryKindAll}},
		{"about ?", models.QueryDescriptor{Kind: models.QueryKindAll}},
		{"about  tier rare", models.QueryDescriptor{Kind: models.QueryKindByName, Name: "tier rare"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := KeywordStrategy{}.Extract(context.Background(), tt.text)
			require.NoError(t, err)
			tt.want.RawText = tt.text
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsCatalogQuery(t *testing.T) {
	assert.True(t, IsCatalogQuery("Tell me ABOUT wood"))
	assert.True(t, IsCatalogQuery("show all"))
	assert.True(t, IsCatalogQuery("Tier list"))
	assert.True(t, IsCatalogQuery("rarity?"))
	assert.False(t, IsCatalogQuery("hello there"))
	assert.False(t, IsCatalogQuery(""))
}

// ==========================
// Model output parsing
// ==========================

func TestParseModelOutput(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind models.QueryKind
		wantErr  bool
	}{
		{"by name", `{"type":"by_name","name":"Dragonhide","tier":null,"rarity":null}`, models.QueryKindByName, false},
		{"fenced", "```json\n{\"type\":\"by_tier\",\"name\":null,\"tier\":\"mythic\",\"rarity\":null}\n```", models.QueryKindByTier, false},
		{"rarity", `{"type":"by_rarity","name":null,"tier":null,"rarity":100}`, models.QueryKindByRarityMin, false},
		{"canonical kind", `{"type":"ALL","name":null,"tier":null,"rarity":null}`, models.QueryKindAll, false},
		{"missing key", `{"type":"all","name":null,"tier":null}`, "", true},
		{"renamed key", `{"type":"by_name","resource":"Wood","tier":null,"rarity":null}`, "", true},
		{"extra key", `{"type":"all","name":null,"tier":null,"rarity":null,"limit":5}`, "", true},
		{"null type", `{"type":null,"name":null,"tier":null,"rarity":null}`, "", true},
		{"unknown type", `{"type":"by_colour","name":null,"tier":null,"rarity":null}`, "", true},
		{"by name without name", `{"type":"by_name","name":null,"tier":null,"rarity":null}`, "", true},
		{"rarity as string", `{"type":"by_rarity","name":null,"tier":null,"rarity":"100"}`, "", true},
		{"prose", `Sure! Here is the JSON you asked for.`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseModelOutput(tt.raw, "text")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeExtractionMalformed, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, d.Kind)
		})
	}
}

// ==========================
// Strategy independence
// ==========================

func TestExtractor_SameDescriptorAcrossStrategyPaths(t *testing.T) {
	const text = "Tell me about Dragonhide"
	want := models.NewByNameQuery("Dragonhide", text)

	paths := map[string]llm.Completer{
		"model success":   &stubCompleter{reply: `{"type":"by_name","name":"Dragonhide","tier":null,"rarity":null}`},
		"model malformed": &stubCompleter{reply: `{"kind":"by_name","name":"Dragonhide"}`},
		"model error":     &stubCompleter{err: llm.ErrTimeout},
		"model absent":    nil,
	}

	for name, completer := range paths {
		t.Run(name, func(t *testing.T) {
			e := NewExtractor(createTestConfig(), completer, nil, logger.NewTestLogger(t))
			got, ok := e.Extract(context.Background(), text)
			require.True(t, ok)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractor_GateMiss(t *testing.T) {
	stub := &stubCompleter{}
	e := NewExtractor(createTestConfig(), stub, nil, logger.NewTestLogger(t))

	_, ok := e.Extract(context.Background(), "good morning")
	assert.False(t, ok)
	assert.Equal(t, 0, stub.calls)
}

// ==========================
// Fallback combinator
// ==========================

func TestFallback_RecoversFromPanic(t *testing.T) {
	f := NewFallback(panickingStrategy{}, KeywordStrategy{}, logger.NewTestLogger(t))

	d, strategy := f.Extract(context.Background(), "show me tier rare")
	assert.Equal(t, "keyword", strategy)
	assert.Equal(t, models.QueryKindByTier, d.Kind)
	assert.Equal(t, "rare", d.Tier)
}

func TestFallback_DegradesToAll(t *testing.T) {
	f := NewFallback(failingStrategy{}, panickingStrategy{}, logger.NewTestLogger(t))

	d, strategy := f.Extract(context.Background(), "about wood")
	assert.Equal(t, "default", strategy)
	assert.Equal(t, models.QueryKindAll, d.Kind)
	assert.Equal(t, "about wood", d.RawText)
}

// ==========================
// Extraction cache
// ==========================

func TestModelStrategy_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stub := &stubCompleter{reply: `{"type":"by_tier","name":null,"tier":"Mythic","rarity":null}`}
	s := NewModelStrategy(stub, client, createTestConfig(), logger.NewTestLogger(t))

	first, err := s.Extract(context.Background(), "Show me the Mythic tier")
	require.NoError(t, err)
	second, err := s.Extract(context.Background(), "  show me the mythic tier ")
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Tier, second.Tier)
	assert.Equal(t, "  show me the mythic tier ", second.RawText)
	assert.True(t, mr.Exists(CacheKey("Show me the Mythic tier")))
	assert.Equal(t, time.Minute, mr.TTL(CacheKey("Show me the Mythic tier")))
}

func TestModelStrategy_MalformedNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stub := &stubCompleter{reply: "not json"}
	s := NewModelStrategy(stub, client, createTestConfig(), logger.NewTestLogger(t))

	_, err := s.Extract(context.Background(), "about wood")
	require.Error(t, err)
	assert.False(t, mr.Exists(CacheKey("about wood")))
}
