package main

import (
	"context"
	"fmt"
	"time"

	"catalog-assistant/internal/common/config"
	"catalog-assistant/internal/common/database"
	"catalog-assistant/internal/common/llm"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/common/memory"
	"catalog-assistant/internal/common/observability"
	extractparameters "catalog-assistant/internal/workers/resource-query/extract-parameters"
	queryresources "catalog-assistant/internal/workers/resource-query/query-resources"
	resolvequery "catalog-assistant/internal/workers/resource-query/resolve-query"
	"catalog-assistant/internal/workers/resource-query/suggest"
	synthesizeresponse "catalog-assistant/internal/workers/resource-query/synthesize-response"
	validateresult "catalog-assistant/internal/workers/resource-query/validate-result"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds everything the commands share. Optional pieces stay nil when
// disabled in config.
type app struct {
	cfg *config.Config
	log logger.Logger

	obs       *observability.Observability
	manager   *database.ConnectionManager
	redis     *database.RedisClient
	es        *database.ElasticsearchClient
	completer llm.Completer
	suggester *suggest.Suggester
	memory    *memory.RedisStore
	executor  *queryresources.Executor
	pipeline  *resolvequery.Pipeline
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func newApp(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	a.obs = observability.New(cfg.App.Name)

	a.manager = database.NewConnectionManager(
		database.ManagerConfigFrom(cfg.Connection),
		database.NewPostgresOpener(cfg.Database.Postgres),
		log,
	)
	if err := a.manager.Init(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	zapLog.Info("Store connected successfully")

	var cache redis.Cmdable
	if cfg.Database.Redis.Enabled {
		rc := database.NewRedis(cfg.Database.Redis)
		err := retryWithBackoff(func() error { return rc.Ping(ctx) }, 5, time.Second, zapLog, "Redis connection")
		if err != nil {
			rc.Close()
			a.close(ctx)
			return nil, err
		}
		a.redis = rc
		cache = rc.Client
		a.memory = memory.NewRedisStore(rc.Client,
			config.GetDuration(cfg.Pipeline.MemoryTTLMs), cfg.Pipeline.MemoryMaxRecords)
		zapLog.Info("Redis connected successfully")
	}

	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err == nil {
			err = retryWithBackoff(func() error { return es.Ping(ctx) }, 5, time.Second, zapLog, "Elasticsearch connection")
		}
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.es = es
		a.suggester = suggest.NewSuggester(es.Client, es.Index,
			config.GetDuration(cfg.Pipeline.SuggestTimeoutMs), log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	completer, err := llm.New(ctx, cfg.APIs.GenAI, log)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.completer = completer
	if completer == nil {
		zapLog.Info("No model provider configured, using keyword extraction only")
	}

	a.executor = queryresources.NewExecutor(queryresources.LoadConfig(cfg.Connection), a.manager, log)

	var suggester synthesizeresponse.Suggester
	if a.suggester != nil {
		suggester = a.suggester
	}
	var store memory.Store = memory.NopStore{}
	if a.memory != nil {
		store = a.memory
	}

	a.pipeline = resolvequery.NewPipeline(resolvequery.LoadConfig(cfg), resolvequery.Deps{
		Extractor:     extractparameters.NewExtractor(extractparameters.LoadConfig(cfg.Pipeline), completer, cache, log),
		Executor:      a.executor,
		Validator:     validateresult.NewValidator(log),
		Synthesizer:   synthesizeresponse.NewSynthesizer(suggester, log),
		Completer:     completer,
		Memory:        store,
		Observability: a.obs,
	}, log)

	return a, nil
}

// close disposes the store and then the side services. Every step tolerates
// being called on a partly built app.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		a.manager.StopProbe()
		if err := a.manager.Dispose(ctx); err != nil {
			a.log.Warn("store dispose failed", map[string]interface{}{"error": err})
		}
	}
	if err := a.redis.Close(); err != nil {
		a.log.Warn("redis close failed", map[string]interface{}{"error": err})
	}
	if err := a.obs.Shutdown(ctx); err != nil {
		a.log.Warn("observability shutdown failed", map[string]interface{}{"error": err})
	}
}
