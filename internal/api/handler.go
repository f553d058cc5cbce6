// Package api serves the agent-scoped message route and the operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"catalog-assistant/internal/common/llm"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/common/validation"
	"catalog-assistant/internal/models"
	resolvequery "catalog-assistant/internal/workers/resource-query/resolve-query"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxBodyBytes       = 1 << 20
	defaultMemoryLimit = 20
	defaultReplyBudget = 10 * time.Second

	helpText = "I can look up resources in the catalog. Ask me about a resource by name, " +
		"a tier, a minimum rarity, or all resources."
)

// MessageSchema guards the message route body.
var MessageSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"text":   {Type: "string", MinLength: validation.Int(1)},
		"userId": {Type: "string"},
		"roomId": {Type: "string"},
	},
	Required: []string{"text"},
}

type ReadinessCheck func(ctx context.Context) error

// Agent is a configured assistant reachable at /{agentId}/...
type Agent struct {
	ID   string
	Name string
}

type Resolver interface {
	Resolve(ctx context.Context, req resolvequery.Request) resolvequery.Result
}

type MemoryReader interface {
	Recent(ctx context.Context, roomID string, limit int) ([]models.MemoryRecord, error)
}

// Dependencies wires the handler. Completer, Memory and Readiness may be nil.
type Dependencies struct {
	Logger       logger.Logger
	Agents       []Agent
	Resolver     Resolver
	Completer    llm.Completer
	Memory       MemoryReader
	Readiness    ReadinessCheck
	ReplyTimeout time.Duration
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

type server struct {
	deps Dependencies
	log  logger.Logger
}

func NewHandler(deps Dependencies) http.Handler {
	if deps.ReplyTimeout <= 0 {
		deps.ReplyTimeout = defaultReplyBudget
	}
	s := &server{deps: deps, log: deps.Logger.With(map[string]interface{}{"component": "api"})}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /{agentId}/message", s.handleMessage)
	if deps.Memory != nil {
		mux.HandleFunc("GET /{agentId}/memories", s.handleMemories)
	}

	return chain(mux,
		requestIDMiddleware,
		metricsMiddleware,
		loggingMiddleware(s.log),
		recoverMiddleware(s.log),
	)
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Readiness(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Not ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.lookupAgent(r.PathValue("agentId"))
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found", "")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	res, err := validation.ValidateBytes(MessageSchema, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if !res.Valid {
		writeError(w, http.StatusBadRequest, "Invalid request", strings.Join(res.GetErrorMessages(), "; "))
		return
	}

	var body models.MessageRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "text must not be empty")
		return
	}

	req := resolvequery.Request{
		Text:    body.Text,
		UserID:  body.UserID,
		RoomID:  body.RoomID,
		AgentID: agent.ID,
	}.WithDefaults()

	result := s.deps.Resolver.Resolve(r.Context(), req)
	if !result.Handled {
		writeJSON(w, http.StatusOK, models.MessageResponse{
			Action:        resolvequery.ActionNone,
			FinalResponse: s.defaultReply(r.Context(), agent, body.Text),
		})
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{
		Action:        result.Action,
		FinalResponse: result.Envelope,
	})
}

// defaultReply answers text the catalog pipeline declined. Without a
// completer, or when it fails, the fixed help text is used.
func (s *server) defaultReply(ctx context.Context, agent Agent, text string) models.ResponseEnvelope {
	reply := helpText
	if s.deps.Completer != nil {
		ctx, cancel := context.WithTimeout(ctx, s.deps.ReplyTimeout)
		defer cancel()

		prompt := fmt.Sprintf("You are %s, an assistant for a game resource catalog. "+
			"Reply briefly and helpfully to the user.\n\nUser: %s", agent.Name, text)
		out, err := s.deps.Completer.Complete(ctx, prompt, llm.TierSmall)
		if err != nil {
			s.log.Warn("default reply fell back to help text", map[string]interface{}{
				"code":  llm.Classify(err).Code,
				"error": err,
			})
		} else if out = strings.TrimSpace(out); out != "" {
			reply = out
		}
	}
	return models.ResponseEnvelope{Text: reply, Success: true, Data: []models.CatalogRow{}}
}

func (s *server) handleMemories(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.lookupAgent(r.PathValue("agentId"))
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found", "")
		return
	}

	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		roomID = resolvequery.DefaultRoomID(agent.ID)
	}
	limit := defaultMemoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.deps.Memory.Recent(r.Context(), roomID, limit)
	if err != nil {
		s.log.Error("reading memories failed", map[string]interface{}{"roomId": roomID, "error": err})
		writeError(w, http.StatusInternalServerError, "Error reading memories", "memory store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memories": records})
}

// lookupAgent matches the configured ID exactly or the name case-insensitively.
func (s *server) lookupAgent(key string) (Agent, bool) {
	for _, a := range s.deps.Agents {
		if a.ID == key {
			return a, true
		}
	}
	for _, a := range s.deps.Agents {
		if a.Name != "" && strings.EqualFold(a.Name, key) {
			return a, true
		}
	}
	return Agent{}, false
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}
