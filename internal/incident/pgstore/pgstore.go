// Package pgstore provides a PostgreSQL implementation of incident.Store
// backed by pgx and pgvector.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raghavvag/Reliability-agent-system/internal/incident"
)

var tracer = otel.Tracer("github.com/raghavvag/Reliability-agent-system/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents and audit entries in PostgreSQL and serves
// vector recall from the memory_item table.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool stays owned
// by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `id, event_id, labels, summary_text, anomaly_score, confidence, evidence, status, created_at`

// GetIncident retrieves an incident by id.
func (s *Store) GetIncident(ctx context.Context, id int64) (*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	in, err := scanIncident(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if !errors.Is(err, incident.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return in, nil
}

// ListAudit returns the audit trail for an incident, oldest first.
func (s *Store) ListAudit(ctx context.Context, id int64) ([]incident.AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListAudit", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, incident_id, who, action, details, created_at FROM audit_logs WHERE incident_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query audit_logs: %w", err)
	}
	defer rows.Close()

	var entries []incident.AuditEntry
	for rows.Next() {
		var (
			e           incident.AuditEntry
			detailsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Actor, &e.Action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit_logs: %w", err)
	}
	return entries, nil
}

// RecallSimilar returns up to k memory items ordered by cosine distance to
// vector, nearest first, with created_at DESC then id ASC tie-breaks.
func (s *Store) RecallSimilar(ctx context.Context, vector []float32, f incident.RecallFilters, k int) ([]incident.ScoredMemory, error) {
	ctx, span := tracer.Start(ctx, "pgstore.RecallSimilar", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.Int("recall.k", k),
	))
	defer span.End()

	args := []any{vectorLiteral(vector)}
	var conds []string
	if f.Service != "" {
		args = append(args, f.Service)
		conds = append(conds, fmt.Sprintf("service = $%d", len(args)))
	}
	if len(f.Labels) > 0 {
		args = append(args, f.Labels)
		conds = append(conds, fmt.Sprintf("labels && $%d", len(args)))
	}
	where := "embedding IS NOT NULL"
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
	}
	args = append(args, k)

	query := fmt.Sprintf(
		`SELECT id, summary, labels, service, incident_type, model, dim, created_at, embedding <=> $1::vector AS distance
		 FROM memory_item
		 WHERE %s
		 ORDER BY embedding <=> $1::vector, created_at DESC, id
		 LIMIT $%d`,
		where, len(args),
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query memory_item: %w", err)
	}
	defer rows.Close()

	var recalled []incident.ScoredMemory
	for rows.Next() {
		var sm incident.ScoredMemory
		if err := rows.Scan(
			&sm.Item.ID, &sm.Item.Summary, &sm.Item.Labels, &sm.Item.Service,
			&sm.Item.IncidentType, &sm.Item.Model, &sm.Item.Dim, &sm.Item.CreatedAt,
			&sm.Distance,
		); err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		recalled = append(recalled, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory_item: %w", err)
	}
	return recalled, nil
}

// TransitionStatus updates the incident status and appends an audit entry
// in one transaction. The UPDATE is conditional on the current status so a
// concurrent writer observes ErrConflict instead of clobbering the row.
func (s *Store) TransitionStatus(ctx context.Context, id int64, expected, next incident.Status, actor, action string, details map[string]any) error {
	ctx, span := tracer.Start(ctx, "pgstore.TransitionStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
		attribute.String("incident.status.next", string(next)),
	))
	defer span.End()

	allowed, err := allowedFrom(expected, next)
	if err != nil {
		return err
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal audit details: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	tag, err := tx.Exec(ctx,
		`UPDATE incidents SET status = $1 WHERE id = $2 AND status = ANY($3)`,
		string(next), id, allowed,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a status mismatch.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check incident: %w", err)
		}
		if !exists {
			return incident.ErrNotFound
		}
		return incident.ErrConflict
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_logs (incident_id, who, action, details) VALUES ($1, $2, $3, $4)`,
		id, actor, action, detailsJSON,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// allowedFrom computes the set of statuses the row may currently hold for
// the transition to proceed.
func allowedFrom(expected, next incident.Status) ([]string, error) {
	if expected != "" {
		if !incident.CanTransition(expected, next) {
			return nil, incident.ErrConflict
		}
		return []string{string(expected)}, nil
	}
	preds := incident.Predecessors(next)
	if len(preds) == 0 {
		return nil, incident.ErrConflict
	}
	allowed := make([]string, len(preds))
	for i, p := range preds {
		allowed[i] = string(p)
	}
	return allowed, nil
}

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		in           incident.Incident
		eventID      *int64
		evidenceJSON []byte
		status       string
		createdAt    time.Time
	)
	err := row.Scan(&in.ID, &eventID, &in.Labels, &in.Summary, &in.AnomalyScore,
		&in.Confidence, &evidenceJSON, &status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incident.ErrNotFound
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	if eventID != nil {
		in.EventID = *eventID
	}
	if len(evidenceJSON) > 0 {
		if err := json.Unmarshal(evidenceJSON, &in.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	in.Status = incident.Status(status)
	in.CreatedAt = createdAt
	return &in, nil
}

// vectorLiteral renders a pgvector input literal like [0.1,0.2,0.3].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
