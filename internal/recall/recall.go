// Package recall turns an incident's feature text into a query vector and
// finds the most similar historical memory items. Recall is a best-effort
// enrichment: failures degrade to an empty context set instead of blocking
// the notification pipeline.
package recall

import (
	"context"

	"github.com/linnemanlabs/go-core/log"
	"github.com/raghavvag/Reliability-agent-system/internal/incident"
)

// Embedder computes an embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the slice of incident.Store recall depends on.
type Searcher interface {
	RecallSimilar(ctx context.Context, vector []float32, f incident.RecallFilters, k int) ([]incident.ScoredMemory, error)
}

// Service performs semantic recall for incidents.
type Service struct {
	embedder Embedder
	store    Searcher
	k        int
	logger   log.Logger
}

// NewService creates a recall service returning up to k items per query.
func NewService(embedder Embedder, store Searcher, k int, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		k:        k,
		logger:   logger,
	}
}

// Recall returns the top-k memory items most similar to the incident's
// feature text, nearest first. An embedder or store failure is logged and
// yields an empty set; analysis proceeds with reduced context.
func (s *Service) Recall(ctx context.Context, in *incident.Incident) []incident.ScoredMemory {
	L := s.logger.With("incident_id", in.ID)

	vec, err := s.embedder.Embed(ctx, in.FeatureText())
	if err != nil {
		L.Warn(ctx, "embedding unavailable, proceeding without recall context", "error", err)
		return nil
	}

	recalled, err := s.store.RecallSimilar(ctx, vec, incident.RecallFilters{}, s.k)
	if err != nil {
		L.Error(ctx, err, "memory recall failed, proceeding without context")
		return nil
	}

	L.Info(ctx, "recall complete", "items", len(recalled))
	return recalled
}
