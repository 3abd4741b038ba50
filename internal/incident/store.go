package incident

import "context"

// RecallFilters narrows a similarity search. Zero value matches everything.
type RecallFilters struct {
	Service string
	Labels  []string
}

// Store is the persistence boundary for incidents, memory recall, and the
// audit trail. The store is the single source of truth and the only point
// of mutual exclusion: concurrent writers are serialized by the optimistic
// check in TransitionStatus.
type Store interface {
	// GetIncident returns the incident by id, or ErrNotFound.
	GetIncident(ctx context.Context, id int64) (*Incident, error)

	// ListAudit returns the audit trail for an incident, oldest first.
	ListAudit(ctx context.Context, id int64) ([]AuditEntry, error)

	// RecallSimilar returns up to k memory items ordered by cosine
	// distance to vector, nearest first. Ties break by most recent
	// created_at, then id ascending.
	RecallSimilar(ctx context.Context, vector []float32, f RecallFilters, k int) ([]ScoredMemory, error)

	// TransitionStatus atomically updates the incident status and appends
	// an audit entry; both commit together or neither does.
	//
	// If expected is non-empty the stored status must equal it, otherwise
	// the stored status must be a valid predecessor of next. A mismatch
	// returns ErrConflict with no write. A missing incident returns
	// ErrNotFound.
	TransitionStatus(ctx context.Context, id int64, expected, next Status, actor, action string, details map[string]any) error
}
