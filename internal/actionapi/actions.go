package actionapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/raghavvag/Reliability-agent-system/internal/incident"
	"github.com/raghavvag/Reliability-agent-system/internal/notify/slack"
)

// interactivePayload is the subset of Slack's block_actions payload we
// act on.
type interactivePayload struct {
	Type string `json:"type"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// actionTransition maps a button's action id to the status it drives the
// incident into and the audit action recorded for it.
func actionTransition(actionID string) (incident.Status, string, bool) {
	switch actionID {
	case slack.ActionAcknowledge:
		return incident.StatusAcknowledged, "acknowledged", true
	case slack.ActionInfo:
		return incident.StatusNeedsInfo, "needs_info", true
	case slack.ActionResolve:
		return incident.StatusResolved, "resolved", true
	}
	return "", "", false
}

func (a *API) handleSlackAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, `{"error":"invalid form body"}`, http.StatusBadRequest)
		return
	}
	raw := r.PostFormValue("payload")
	if raw == "" {
		http.Error(w, `{"error":"missing payload"}`, http.StatusBadRequest)
		return
	}

	var p interactivePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		http.Error(w, `{"error":"malformed payload"}`, http.StatusBadRequest)
		return
	}
	if len(p.Actions) == 0 {
		http.Error(w, `{"error":"no actions in payload"}`, http.StatusBadRequest)
		return
	}

	act := p.Actions[0]
	next, auditAction, ok := actionTransition(act.ActionID)
	if !ok {
		http.Error(w, `{"error":"unknown action"}`, http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(act.Value, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid incident id"}`, http.StatusBadRequest)
		return
	}

	actor := p.User.Username
	if actor == "" {
		actor = p.User.ID
	}
	if actor == "" {
		http.Error(w, `{"error":"missing user"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int64("agent.incident.id", id),
		attribute.String("agent.action", act.ActionID),
	)

	details := map[string]any{
		"action_id": act.ActionID,
		"user_id":   p.User.ID,
	}
	err = a.store.TransitionStatus(r.Context(), id, "", next, actor, auditAction, details)
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			http.Error(w, `{"error":"incident not found"}`, http.StatusNotFound)
		case errors.Is(err, incident.ErrConflict):
			// no audit entry is written for a rejected transition
			http.Error(w, fmt.Sprintf(`{"error":"incident %d cannot move to %s from its current status"}`, id, next),
				http.StatusConflict)
		default:
			a.logger.Error(r.Context(), err, "failed to apply action", "incident_id", id, "action", act.ActionID)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	a.logger.Info(r.Context(), "incident action applied",
		"incident_id", id, "action", auditAction, "actor", actor)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"text": confirmation(id, auditAction, actor),
	})
}

func confirmation(id int64, auditAction, actor string) string {
	switch auditAction {
	case "acknowledged":
		return fmt.Sprintf("Incident %d acknowledged by %s.", id, actor)
	case "needs_info":
		return fmt.Sprintf("More information requested for incident %d by %s.", id, actor)
	default:
		return fmt.Sprintf("Incident %d resolved by %s.", id, actor)
	}
}
