// Package memstore provides an in-memory implementation of incident.Store.
// Suitable for dev mode (no database-url) and unit tests.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/raghavvag/Reliability-agent-system/internal/incident"
)

// Store holds incidents, memory items, and audit entries in memory.
type Store struct {
	mu        sync.RWMutex
	incidents map[int64]*incident.Incident
	memories  []incident.MemoryItem
	audits    map[int64][]incident.AuditEntry
	nextAudit int64
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[int64]*incident.Incident),
		audits:    make(map[int64][]incident.AuditEntry),
		nextAudit: 1,
	}
}

// SeedIncident inserts or replaces an incident. Test/dev helper standing in
// for the external producer.
func (s *Store) SeedIncident(in *incident.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *in
	s.incidents[in.ID] = &cp
}

// SeedMemory appends a memory item. Test/dev helper standing in for the
// external ingestion pipeline.
func (s *Store) SeedMemory(m incident.MemoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = append(s.memories, m)
}

// GetIncident returns a copy of the incident by id.
func (s *Store) GetIncident(_ context.Context, id int64) (*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.incidents[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

// ListAudit returns the audit trail for an incident, oldest first.
func (s *Store) ListAudit(_ context.Context, id int64) ([]incident.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audits[id]
	out := make([]incident.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// RecallSimilar ranks seeded memory items by cosine distance to vector.
func (s *Store) RecallSimilar(_ context.Context, vector []float32, f incident.RecallFilters, k int) ([]incident.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []incident.ScoredMemory
	for _, m := range s.memories {
		if !matches(m, f) {
			continue
		}
		if len(m.Embedding) != len(vector) {
			continue
		}
		scored = append(scored, incident.ScoredMemory{Item: m, Distance: cosineDistance(vector, m.Embedding)})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.After(b.Item.CreatedAt)
		}
		return a.Item.ID < b.Item.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// TransitionStatus updates the status and appends an audit entry under one
// lock, mirroring the transactional contract of the Postgres store.
func (s *Store) TransitionStatus(_ context.Context, id int64, expected, next incident.Status, actor, action string, details map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}

	if expected != "" {
		if !incident.CanTransition(expected, next) || in.Status != expected {
			return incident.ErrConflict
		}
	} else if !incident.CanTransition(in.Status, next) {
		return incident.ErrConflict
	}

	in.Status = next
	s.audits[id] = append(s.audits[id], incident.AuditEntry{
		ID:         s.nextAudit,
		IncidentID: id,
		Actor:      actor,
		Action:     action,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	})
	s.nextAudit++
	return nil
}

func matches(m incident.MemoryItem, f incident.RecallFilters) bool {
	if f.Service != "" && m.Service != f.Service {
		return false
	}
	if len(f.Labels) == 0 {
		return true
	}
	for _, want := range f.Labels {
		for _, have := range m.Labels {
			if want == have {
				return true
			}
		}
	}
	return false
}

// cosineDistance returns 1 - cosine similarity, matching pgvector's <=>.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
