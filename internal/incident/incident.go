// Package incident defines the domain model for the reliability agent:
// incidents, their status lifecycle, recalled memory items, and the
// append-only audit trail, plus the Store interface everything persists
// through.
package incident

import (
	"errors"
	"fmt"
	"time"
)

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	// StatusOpen means detected by the producer, awaiting notification.
	StatusOpen Status = "open"

	// StatusNotified means the analysis was delivered to the chat channel.
	StatusNotified Status = "notified"

	// StatusAcknowledged means an operator took ownership.
	StatusAcknowledged Status = "acknowledged"

	// StatusNeedsInfo means an operator requested more information.
	StatusNeedsInfo Status = "needs_info"

	// StatusResolved is terminal.
	StatusResolved Status = "resolved"
)

// transitions is the closed status graph. Anything not listed is rejected.
var transitions = map[Status][]Status{
	StatusOpen:         {StatusNotified},
	StatusNotified:     {StatusAcknowledged, StatusNeedsInfo, StatusResolved},
	StatusNeedsInfo:    {StatusAcknowledged, StatusResolved},
	StatusAcknowledged: {StatusResolved},
	StatusResolved:     {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the edge from -> to is in the status graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status from which to is reachable in one step.
// Used by unconditional transitions to enforce the graph atomically.
func Predecessors(to Status) []Status {
	var from []Status
	for s, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				from = append(from, s)
			}
		}
	}
	return from
}

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound means the referenced incident does not exist.
	ErrNotFound = errors.New("incident not found")

	// ErrConflict means the stored status did not match the expected
	// status, or the requested edge is not in the transition graph.
	// Callers treat it as a benign duplicate.
	ErrConflict = errors.New("status conflict")
)

// Incident is one detected anomaly requiring attention.
type Incident struct {
	ID           int64          `json:"id"`
	EventID      int64          `json:"event_id"`
	Labels       []string       `json:"labels"`
	Summary      string         `json:"summary_text"`
	AnomalyScore float64        `json:"anomaly_score"`
	Confidence   float64        `json:"confidence"`
	Evidence     map[string]any `json:"evidence,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// maxEvidenceFeature bounds how much raw evidence payload feeds the
// recall query when the summary is empty.
const maxEvidenceFeature = 400

// FeatureText returns the text used to embed this incident for recall:
// the summary, falling back to the evidence payload excerpt, falling back
// to a synthetic identifier so recall always has a non-empty query.
func (in *Incident) FeatureText() string {
	if in.Summary != "" {
		return in.Summary
	}
	if payload, ok := in.Evidence["payload"].(string); ok && payload != "" {
		if len(payload) > maxEvidenceFeature {
			return payload[:maxEvidenceFeature]
		}
		return payload
	}
	return fmt.Sprintf("incident %d", in.ID)
}

// Service extracts the owning service from evidence, if recorded.
func (in *Incident) Service() string {
	if svc, ok := in.Evidence["service"].(string); ok {
		return svc
	}
	return ""
}

// MemoryItem is a previously recorded incident signature usable for
// semantic recall. Read-only to this service; the ingestion pipeline owns
// writes.
type MemoryItem struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Labels       []string  `json:"labels"`
	Service      string    `json:"service"`
	IncidentType string    `json:"incident_type"`
	Model        string    `json:"model"`
	Dim          int       `json:"dim"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScoredMemory pairs a recalled item with its cosine distance from the
// query vector (smaller is closer).
type ScoredMemory struct {
	Item     MemoryItem `json:"item"`
	Distance float64    `json:"distance"`
}

// AuditEntry is an immutable record of an action taken on an incident.
type AuditEntry struct {
	ID         int64          `json:"id"`
	IncidentID int64          `json:"incident_id"`
	Actor      string         `json:"who"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
