package rpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payflow/native/registry"
	"payflow/observability/metrics"
)

const (
	maxRequestBody = 1 << 20

	// defaultJournalLimit caps the in-memory outcome journal; once full the
	// oldest outcomes are evicted and polling them returns not-found.
	defaultJournalLimit = 4096
)

// Outcome is the terminal result of a submitted operation. Operations apply
// synchronously, so the outcome is recorded before the submission response is
// written; the polling endpoint exists for callers that treat submission and
// confirmation as separate steps.
type Outcome struct {
	ID       string           `json:"id"`
	Selector string           `json:"selector"`
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Events   []registry.Event `json:"events,omitempty"`
}

// SubmitRequest is the payload accepted by POST /v1/ops: the positional
// argument list, each argument base64 encoded.
type SubmitRequest struct {
	Args []string `json:"args"`
}

// ProcessorView is the decoded record returned by the query surface.
type ProcessorView struct {
	Index                  uint64 `json:"index"`
	Name                   string `json:"name"`
	Enabled                bool   `json:"enabled"`
	TotalTransactions      uint64 `json:"totalTransactions"`
	SuccessfulTransactions uint64 `json:"successfulTransactions"`
	TotalAmount            uint64 `json:"totalAmount"`
	AvgProcessingTimeMS    uint64 `json:"avgProcessingTimeMs"`
	FirstActivated         uint64 `json:"firstActivated"`
	MonthlyTransactions    uint64 `json:"monthlyTransactions"`
	MonthlyAmount          uint64 `json:"monthlyAmount"`
	LastUpdated            uint64 `json:"lastUpdated"`
	CalculatedPriority     uint64 `json:"calculatedPriority"`
}

// Server exposes the registry over HTTP: operation submission with a
// pollable outcome journal, and the decoded query surface.
type Server struct {
	engine  *registry.Engine
	logger  *slog.Logger
	metrics *metrics.RegistryMetrics
	limiter *RateLimiter

	mu           sync.RWMutex
	outcomes     map[string]Outcome
	journalOrder []string
	journalLimit int
}

// NewServer constructs a server around the engine. logger must not be nil;
// limiter and instruments are optional.
func NewServer(engine *registry.Engine, logger *slog.Logger, instruments *metrics.RegistryMetrics, limiter *RateLimiter) *Server {
	if engine == nil {
		panic("rpc: engine required")
	}
	if logger == nil {
		panic("rpc: logger required")
	}
	return &Server{
		engine:       engine,
		logger:       logger,
		metrics:      instruments,
		limiter:      limiter,
		outcomes:     make(map[string]Outcome),
		journalLimit: defaultJournalLimit,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/ops", s.handleSubmit)
	r.Get("/v1/ops/{id}", s.handleOutcome)
	r.Get("/v1/processors", s.handleProcessors)
	r.Get("/v1/state", s.handleState)
	return r
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	args := make([][]byte, 0, len(req.Args))
	for i, encoded := range req.Args {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			http.Error(w, "argument "+strconv.Itoa(i)+" is not valid base64", http.StatusBadRequest)
			return
		}
		args = append(args, raw)
	}

	outcome := s.apply(args)
	if outcome.ID == "" {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// apply parses and runs one operation, journaling the terminal outcome. A
// validation rejection is a normal outcome; only infrastructure failures
// yield an empty one.
func (s *Server) apply(args [][]byte) Outcome {
	id := uuid.NewString()
	op, err := registry.ParseOperation(args)
	if err != nil {
		if !registry.IsRejection(err) {
			s.logger.Error("parse operation", "error", err)
			return Outcome{}
		}
		return s.journal(Outcome{ID: id, Selector: selectorOf(args), Accepted: false, Reason: err.Error()})
	}

	events, err := s.engine.Apply(op)
	if err != nil {
		if !registry.IsRejection(err) {
			s.logger.Error("apply operation", "selector", op.Selector(), "error", err)
			return Outcome{}
		}
		s.metrics.OpRejected(op.Selector(), reasonLabel(err))
		s.logger.Info("operation rejected", "selector", op.Selector(), "reason", err.Error())
		return s.journal(Outcome{ID: id, Selector: op.Selector(), Accepted: false, Reason: err.Error()})
	}

	s.metrics.OpAccepted(op.Selector())
	s.instrumentEvents(events)
	s.logger.Info("operation accepted", "selector", op.Selector(), "id", id)
	return s.journal(Outcome{ID: id, Selector: op.Selector(), Accepted: true, Events: events})
}

func (s *Server) journal(outcome Outcome) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome.ID] = outcome
	s.journalOrder = append(s.journalOrder, outcome.ID)
	for len(s.journalOrder) > s.journalLimit {
		delete(s.outcomes, s.journalOrder[0])
		s.journalOrder = s.journalOrder[1:]
	}
	return outcome
}

// instrumentEvents exports ranking data carried by recalculation events.
func (s *Server) instrumentEvents(events []registry.Event) {
	for _, event := range events {
		if event.Type != registry.EventTypeRecalculated {
			continue
		}
		s.metrics.RecalculationCommitted()
		for key, value := range event.Attributes {
			parsed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(key, "score_"):
				if index, err := strconv.ParseUint(strings.TrimPrefix(key, "score_"), 10, 64); err == nil {
					s.metrics.SetProcessorScore(index, parsed)
				}
			case strings.HasPrefix(key, "priority_"):
				if index, err := strconv.ParseUint(strings.TrimPrefix(key, "priority_"), 10, 64); err == nil {
					s.metrics.SetProcessorPriority(index, parsed)
				}
			}
		}
	}
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.RLock()
	outcome, ok := s.outcomes[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown operation id", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleProcessors(w http.ResponseWriter, _ *http.Request) {
	procs, err := s.engine.Snapshot()
	if err != nil {
		if errors.Is(err, registry.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.Error("snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	views := make([]ProcessorView, 0, len(procs))
	for _, p := range procs {
		views = append(views, ProcessorView{
			Index:                  p.Index,
			Name:                   p.Name,
			Enabled:                p.Enabled,
			TotalTransactions:      p.TotalTransactions,
			SuccessfulTransactions: p.SuccessfulTransactions,
			TotalAmount:            p.TotalAmount,
			AvgProcessingTimeMS:    p.AvgProcessingTime,
			FirstActivated:         p.FirstActivated,
			MonthlyTransactions:    p.MonthlyTransactions,
			MonthlyAmount:          p.MonthlyAmount,
			LastUpdated:            p.LastUpdated,
			CalculatedPriority:     p.CalculatedPriority,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"processors": views})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.engine.StateView()
	if err != nil {
		if errors.Is(err, registry.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.Error("state view", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func selectorOf(args [][]byte) string {
	if len(args) == 0 {
		return ""
	}
	return string(args[0])
}

// reasonLabel collapses rejection errors to a low-cardinality metric label.
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, registry.ErrExpiredWindow):
		return "expired_window"
	case errors.Is(err, registry.ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, registry.ErrInvalidFlag):
		return "invalid_flag"
	case errors.Is(err, registry.ErrUnknownOperation):
		return "unknown_operation"
	case errors.Is(err, registry.ErrMalformedOperation):
		return "malformed"
	case errors.Is(err, registry.ErrNotInitialized):
		return "not_initialised"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
