// Package httpapi serves the responder's HTTP surface: alert intake, decision
// resolution, feedback, knowledge inspection, evidence ingest and the live
// decision stream.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-responder/internal/evidence"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// Responder is the part of engine.Pipeline exposed over HTTP.
type Responder interface {
	Analyze(ctx context.Context, alert models.Alert) (models.Analysis, error)
	Analysis(alertID string) (models.Analysis, bool)
	Resolve(ctx context.Context, alertID, kind, resolvedBy string) (models.Analysis, error)
	SubmitFeedback(ctx context.Context, outcome models.Outcome) error
	Services() []models.Service
	CausalChain(serviceID string) []string
}

// KnowledgeReader exposes stored outcome counters.
type KnowledgeReader interface {
	Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error)
	List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error)
}

// Options wires the router. Responder is required; a nil Evidence disables
// ingest, a nil Changes disables the change history and a nil Hub disables
// the stream.
type Options struct {
	Responder      Responder
	Knowledge      KnowledgeReader
	Evidence       evidence.Appender
	Changes        evidence.Store
	Hub            *Hub
	Gatherer       prometheus.Gatherer
	Prior          float64
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type handlers struct {
	responder Responder
	knowledge KnowledgeReader
	evidence  evidence.Appender
	changes   evidence.Store
	prior     float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{
		responder: opts.Responder,
		knowledge: opts.Knowledge,
		evidence:  opts.Evidence,
		changes:   opts.Changes,
		prior:     opts.Prior,
		logger:    utils.OrDefault(opts.Logger),
		now:       time.Now,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "mirador-responder"})
	})
	router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	if opts.Hub != nil {
		router.Get("/v1/decisions/stream", opts.Hub.ServeHTTP)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Post("/v1/alerts", h.analyze)
		r.Get("/v1/decisions/{alertID}", h.getDecision)
		r.Post("/v1/decisions/{alertID}/resolve", h.resolve)
		r.Post("/v1/feedback", h.feedback)
		r.Get("/v1/knowledge", h.getKnowledge)
		r.Get("/v1/services", h.listServices)
		r.Get("/v1/services/{serviceID}/chain", h.causalChain)
		r.Get("/v1/changes", h.changeHistory)
		r.Post("/v1/evidence", h.appendEvidence)
	})
	return router
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	var alert models.Alert
	if err := decodeJSON(w, r, &alert); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert: "+err.Error())
		return
	}
	analysis, err := h.responder.Analyze(r.Context(), alert)
	if err != nil {
		h.logger.Warn("alert analysis failed", "alert_id", alert.ID, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *handlers) getDecision(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	analysis, ok := h.responder.Analysis(alertID)
	if !ok {
		writeError(w, http.StatusNotFound, "no decision for alert "+alertID)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type resolveRequest struct {
	ActionKind string `json:"action_kind"`
	ResolvedBy string `json:"resolved_by"`
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid resolve request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ActionKind) == "" {
		writeError(w, http.StatusBadRequest, "action_kind is required")
		return
	}
	analysis, err := h.responder.Resolve(r.Context(), alertID, strings.TrimSpace(req.ActionKind), req.ResolvedBy)
	if err != nil {
		if errors.Is(err, utils.ErrExecutionFailure) && analysis.Alert.ID != "" {
			h.logger.Warn("resolved action failed to execute", "alert_id", alertID, "action", req.ActionKind, "error", err)
			writeJSON(w, http.StatusOK, analysis)
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *handlers) feedback(w http.ResponseWriter, r *http.Request) {
	var outcome models.Outcome
	if err := decodeJSON(w, r, &outcome); err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome: "+err.Error())
		return
	}
	if outcome.ReportedAt.IsZero() {
		outcome.ReportedAt = h.now().UTC()
	}
	if err := h.responder.SubmitFeedback(r.Context(), outcome); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type knowledgeRecord struct {
	models.KnowledgeRecord
	Rate float64 `json:"success_rate"`
}

func (h *handlers) getKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.knowledge == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge store not configured")
		return
	}
	sig := strings.TrimSpace(r.URL.Query().Get("signature"))
	if sig == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}

	var records []models.KnowledgeRecord
	if kind := strings.TrimSpace(r.URL.Query().Get("action")); kind != "" {
		rec, err := h.knowledge.Lookup(r.Context(), sig, kind)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		rec.RootCauseSignature, rec.ActionKind = sig, kind
		records = append(records, rec)
	} else {
		list, err := h.knowledge.List(r.Context(), sig)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		records = list
	}

	items := make([]knowledgeRecord, 0, len(records))
	for _, rec := range records {
		items = append(items, knowledgeRecord{KnowledgeRecord: rec, Rate: rec.SuccessRate(h.prior)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prior": h.prior, "items": items})
}

func (h *handlers) listServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.responder.Services()})
}

func (h *handlers) causalChain(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	writeJSON(w, http.StatusOK, map[string]any{"service": serviceID, "chain": h.responder.CausalChain(serviceID)})
}

const (
	defaultChangeHours = 24
	maxChangeHours     = 24 * 30
)

// changeHistory lists change events for one service over the last hours,
// oldest first.
func (h *handlers) changeHistory(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		writeError(w, http.StatusServiceUnavailable, "change history not enabled")
		return
	}
	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "service is required")
		return
	}
	hours := defaultChangeHours
	if raw := strings.TrimSpace(q.Get("hours")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxChangeHours {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("hours must be between 1 and %d", maxChangeHours))
			return
		}
		hours = n
	}

	end := h.now().UTC()
	window := models.TimeRange{Start: end.Add(-time.Duration(hours) * time.Hour), End: end}
	found, err := h.changes.Query(r.Context(), serviceID, window, models.Kinds(models.EvidenceChange))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	items := make([]models.ChangeEvent, 0, len(found))
	for _, ev := range found {
		if ev.Change != nil {
			items = append(items, *ev.Change)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": serviceID, "window": window, "items": items})
}

type evidenceRequest struct {
	Items []models.Evidence `json:"items"`
}

func (h *handlers) appendEvidence(w http.ResponseWriter, r *http.Request) {
	if h.evidence == nil {
		writeError(w, http.StatusServiceUnavailable, "evidence ingest not enabled")
		return
	}
	var req evidenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid evidence: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}
	for i, item := range req.Items {
		if err := item.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("items[%d]: %v", i, err))
			return
		}
	}
	if err := h.evidence.Append(r.Context(), req.Items...); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Items)})
}
