// Package actionapi exposes the HTTP surface for human interaction:
// the Slack interactivity webhook and a read endpoint for incident
// state plus its audit trail.
package actionapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/raghavvag/Reliability-agent-system/internal/incident"
)

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	store  incident.Store
}

// New creates a new API handler.
func New(logger log.Logger, store incident.Store) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if store == nil {
		panic(xerrors.New("incident store is required"))
	}
	return &API{
		logger: logger,
		store:  store,
	}
}

// RegisterRoutes attaches API endpoints to the router. The verify
// middleware, when non-nil, guards the Slack webhook; everything else is
// mounted outside it.
func (a *API) RegisterRoutes(r chi.Router, verify func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/incidents/{id}", a.handleGetIncident)
	})
	r.Group(func(r chi.Router) {
		if verify != nil {
			r.Use(verify)
		}
		r.Post("/slack/actions", a.handleSlackAction)
	})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid incident id"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("agent.incident.id", id))

	in, err := a.store.GetIncident(r.Context(), id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	audit, err := a.store.ListAudit(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list audit entries", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("agent.incident.status", string(in.Status)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"incident": in,
		"audit":    audit,
	})
}
