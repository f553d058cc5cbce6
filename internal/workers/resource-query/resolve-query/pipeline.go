package resolvequery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"catalog-assistant/internal/common/llm"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/common/memory"
	"catalog-assistant/internal/common/metrics"
	"catalog-assistant/internal/common/observability"
	"catalog-assistant/internal/models"
	extractparameters "catalog-assistant/internal/workers/resource-query/extract-parameters"
	queryresources "catalog-assistant/internal/workers/resource-query/query-resources"
	"catalog-assistant/internal/workers/resource-query/query-resources/queries"
	synthesizeresponse "catalog-assistant/internal/workers/resource-query/synthesize-response"
	validateresult "catalog-assistant/internal/workers/resource-query/validate-result"

	"go.opentelemetry.io/otel/attribute"
)

const restyleTemplate = "# Resource data:\n%s\n\nWrite a helpful explanation about this resource for the user."

// Outcome labels for catalog_pipeline_requests_total.
const (
	outcomeSuccess = "success"
	outcomeEmpty   = "empty"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

// Deps are the stages and side services a Pipeline runs on. Completer,
// Memory and Observability may be nil.
type Deps struct {
	Extractor     *extractparameters.Extractor
	Executor      *queryresources.Executor
	Validator     *validateresult.Validator
	Synthesizer   *synthesizeresponse.Synthesizer
	Completer     llm.Completer
	Memory        memory.Store
	Observability *observability.Observability
}

// Pipeline answers catalog questions end to end. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	config      *Config
	extractor   *extractparameters.Extractor
	executor    *queryresources.Executor
	validator   *validateresult.Validator
	synthesizer *synthesizeresponse.Synthesizer
	completer   llm.Completer
	memory      memory.Store
	obs         *observability.Observability
	logger      logger.Logger
	now         func() time.Time
}

func NewPipeline(cfg *Config, deps Deps, log logger.Logger) *Pipeline {
	store := deps.Memory
	if store == nil {
		store = memory.NopStore{}
	}
	return &Pipeline{
		config:      cfg,
		extractor:   deps.Extractor,
		executor:    deps.Executor,
		validator:   deps.Validator,
		synthesizer: deps.Synthesizer,
		completer:   deps.Completer,
		memory:      store,
		obs:         deps.Observability,
		logger:      log.With(map[string]interface{}{"component": "pipeline"}),
		now:         time.Now,
	}
}

// Resolve never returns an error. Failures anywhere below it come back as
// the apology envelope with success=false.
func (p *Pipeline) Resolve(ctx context.Context, req Request) Result {
	req = req.WithDefaults()
	if req.AgentID == "" {
		req.AgentID = p.config.AgentID
	}

	ctx, span := p.obs.StartSpan(ctx, "pipeline.resolve",
		attribute.String("agentId", req.AgentID),
		attribute.String("roomId", req.RoomID),
	)
	defer span.End()

	env, handled, outcome := p.run(ctx, req.Text)
	if !handled {
		p.record(ctx, ActionNone, outcomeSkipped)
		return Result{Action: ActionNone}
	}

	if env.Success {
		env = p.restyle(ctx, env)
	}
	p.persist(ctx, req, env)
	p.record(ctx, ActionQueryResources, outcome)

	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("success", env.Success),
	)
	return Result{Action: ActionQueryResources, Handled: true, Envelope: env}
}

func (p *Pipeline) run(ctx context.Context, text string) (env models.ResponseEnvelope, handled bool, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			env, handled, outcome = synthesizeresponse.Failure(queryresources.MsgQueryFailed), true, outcomeFailure
		}
	}()

	var desc models.QueryDescriptor
	var ok bool
	p.stage(ctx, "extract", func(ctx context.Context) {
		desc, ok = p.extractor.Extract(ctx, text)
	})
	if !ok {
		return models.ResponseEnvelope{}, false, outcomeSkipped
	}

	var stmt queries.Statement
	var buildErr error
	p.stage(ctx, "build", func(context.Context) {
		stmt, buildErr = queries.Build(desc)
	})
	if buildErr != nil {
		p.logger.Error("statement build failed", map[string]interface{}{
			"kind":  string(desc.Kind),
			"error": buildErr,
		})
		return synthesizeresponse.Failure(queryresources.MsgQueryFailed), true, outcomeFailure
	}

	var result models.ExecutionResult
	p.stage(ctx, "execute", func(ctx context.Context) {
		result = p.executor.Execute(ctx, stmt)
	})

	var class validateresult.Classification
	p.stage(ctx, "validate", func(context.Context) {
		class = p.validator.Validate(result)
	})

	p.stage(ctx, "synthesize", func(ctx context.Context) {
		env = p.synthesizer.Synthesize(ctx, desc, class)
	})

	switch class.Outcome {
	case validateresult.OutcomeNonEmptyValid:
		outcome = outcomeSuccess
	case validateresult.OutcomeEmptyValid:
		outcome = outcomeEmpty
	default:
		outcome = outcomeFailure
	}
	return env, true, outcome
}

// stage runs fn inside a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, span := p.obs.StartSpan(ctx, "stage."+name)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		p.obs.RecordStageDuration(ctx, name, elapsed)
		span.End()
	}()
	fn(ctx)
}

// restyle asks the large model to reword a successful reply. Any problem
// keeps the synthesized text.
func (p *Pipeline) restyle(ctx context.Context, env models.ResponseEnvelope) models.ResponseEnvelope {
	if !p.config.RestyleEnabled || p.completer == nil || len(env.Data) == 0 {
		return env
	}

	p.stage(ctx, "restyle", func(ctx context.Context) {
		data, err := json.MarshalIndent(env.Data, "", "  ")
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, p.config.RestyleTimeout)
		defer cancel()

		text, err := p.completer.Complete(ctx, fmt.Sprintf(restyleTemplate, data), llm.TierLarge)
		if err != nil {
			stdErr := llm.Classify(err)
			p.logger.Warn("restyle skipped", map[string]interface{}{"code": stdErr.Code, "error": err})
			return
		}
		if text = strings.TrimSpace(text); text != "" {
			env.Text = text
		}
	})
	return env
}

// persist writes the reply once. It outlives a cancelled request so a
// client hanging up does not lose the record.
func (p *Pipeline) persist(ctx context.Context, req Request, env models.ResponseEnvelope) {
	p.stage(context.WithoutCancel(ctx), "persist", func(ctx context.Context) {
		err := p.memory.Persist(ctx, models.MemoryRecord{
			AgentID:   req.AgentID,
			UserID:    req.UserID,
			RoomID:    req.RoomID,
			Content:   env,
			CreatedAt: p.now().UTC(),
		})
		if err != nil {
			p.logger.Warn("memory persist failed", map[string]interface{}{
				"roomId": req.RoomID,
				"error":  err,
			})
		}
	})
}

func (p *Pipeline) record(ctx context.Context, action, outcome string) {
	metrics.PipelineRequests.WithLabelValues(action, outcome).Inc()
	p.obs.RecordRequest(ctx, action, outcome)
}
