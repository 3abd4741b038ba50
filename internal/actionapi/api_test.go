package actionapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raghavvag/Reliability-agent-system/internal/incident"
	"github.com/raghavvag/Reliability-agent-system/internal/incident/memstore"
	"github.com/raghavvag/Reliability-agent-system/internal/slacksig"
)

func newTestRouter(t *testing.T, verify func(http.Handler) http.Handler) (chi.Router, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	api := New(nil, store)
	r := chi.NewRouter()
	api.RegisterRoutes(r, verify)
	return r, store
}

func actionBody(actionID, value, username string) string {
	payload := map[string]any{
		"type": "block_actions",
		"user": map[string]any{"id": "U123", "username": username},
		"actions": []map[string]any{
			{"action_id": actionID, "value": value},
		},
	}
	raw, _ := json.Marshal(payload)
	return url.Values{"payload": {string(raw)}}.Encode()
}

func postAction(t *testing.T, r chi.Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/actions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestNew_NilStore_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil store")
		}
	}()
	New(nil, nil)
}

func TestHandleSlackAction_Acknowledge(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, nil)
	store.SeedIncident(&incident.Incident{ID: 101, Status: incident.StatusNotified})

	rec := postAction(t, r, actionBody("ack", "101", "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if !strings.Contains(resp["text"], "101") || !strings.Contains(resp["text"], "alice") {
		t.Errorf("confirmation = %q, want incident and actor named", resp["text"])
	}

	in, _ := store.GetIncident(context.Background(), 101)
	if in.Status != incident.StatusAcknowledged {
		t.Errorf("status = %q, want acknowledged", in.Status)
	}
	audit, _ := store.ListAudit(context.Background(), 101)
	if len(audit) != 1 || audit[0].Actor != "alice" || audit[0].Action != "acknowledged" {
		t.Errorf("audit = %+v, want one acknowledged entry by alice", audit)
	}
}

func TestHandleSlackAction_InfoAndResolve(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, nil)
	store.SeedIncident(&incident.Incident{ID: 7, Status: incident.StatusNotified})

	if rec := postAction(t, r, actionBody("info", "7", "bob")); rec.Code != http.StatusOK {
		t.Fatalf("info status = %d: %s", rec.Code, rec.Body.String())
	}
	in, _ := store.GetIncident(context.Background(), 7)
	if in.Status != incident.StatusNeedsInfo {
		t.Fatalf("status = %q, want needs_info", in.Status)
	}

	if rec := postAction(t, r, actionBody("resolve", "7", "bob")); rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	in, _ = store.GetIncident(context.Background(), 7)
	if in.Status != incident.StatusResolved {
		t.Fatalf("status = %q, want resolved", in.Status)
	}

	audit, _ := store.ListAudit(context.Background(), 7)
	if len(audit) != 2 || audit[0].Action != "needs_info" || audit[1].Action != "resolved" {
		t.Errorf("audit = %+v, want needs_info then resolved", audit)
	}
}

func TestHandleSlackAction_UnreachableTransition(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, nil)
	store.SeedIncident(&incident.Incident{ID: 5, Status: incident.StatusResolved})

	rec := postAction(t, r, actionBody("ack", "5", "alice"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}

	in, _ := store.GetIncident(context.Background(), 5)
	if in.Status != incident.StatusResolved {
		t.Errorf("status = %q, resolved must be terminal", in.Status)
	}
	audit, _ := store.ListAudit(context.Background(), 5)
	if len(audit) != 0 {
		t.Errorf("len(audit) = %d, want 0 for rejected action", len(audit))
	}
}

func TestHandleSlackAction_OpenIncidentRejectsActions(t *testing.T) {
	t.Parallel()

	// buttons only exist once notified; a crafted request against an open
	// incident must not skip the notified stage
	r, store := newTestRouter(t, nil)
	store.SeedIncident(&incident.Incident{ID: 5, Status: incident.StatusOpen})

	rec := postAction(t, r, actionBody("resolve", "5", "mallory"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	in, _ := store.GetIncident(context.Background(), 5)
	if in.Status != incident.StatusOpen {
		t.Errorf("status = %q, want open", in.Status)
	}
}

func TestHandleSlackAction_UnknownIncident(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, nil)
	rec := postAction(t, r, actionBody("ack", "404", "alice"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleSlackAction_BadPayloads(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, nil)
	store.SeedIncident(&incident.Incident{ID: 1, Status: incident.StatusNotified})

	tests := []struct {
		name string
		body string
	}{
		{"missing payload field", url.Values{"other": {"x"}}.Encode()},
		{"payload not json", url.Values{"payload": {"not json"}}.Encode()},
		{"no actions", url.Values{"payload": {`{"type":"block_actions","user":{"id":"U1"},"actions":[]}`}}.Encode()},
		{"unknown action id", actionBody("escalate", "1", "alice")},
		{"non-numeric value", actionBody("ack", "abc", "alice")},
		{"zero value", actionBody("ack", "0", "alice")},
		{"missing user", url.Values{"payload": {`{"type":"block_actions","actions":[{"action_id":"ack","value":"1"}]}`}}.Encode()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := postAction(t, r, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}

	in, _ := store.GetIncident(context.Background(), 1)
	if in.Status != incident.StatusNotified {
		t.Errorf("status = %q, bad payloads must not change state", in.Status)
	}
}

func TestHandleSlackAction_SignatureVerification(t *testing.T) {
	t.Parallel()

	const secret = "test-signing-secret"
	r, store := newTestRouter(t, slacksig.Verify(secret))
	store.SeedIncident(&incident.Incident{ID: 3, Status: incident.StatusNotified})

	body := actionBody("ack", "3", "alice")

	// unsigned request is rejected before the handler runs
	rec := postAction(t, r, body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// properly signed request goes through
	reqq := httptest.NewRequest(http.MethodPost, "/slack/actions", strings.NewReader(body))
	reqq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	reqq.Header.Set("X-Slack-Request-Timestamp", stamp)
	reqq.Header.Set("X-Slack-Signature", slacksig.Signature([]byte(secret), stamp, []byte(body)))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, reqq)

	if rec.Code != http.StatusOK {
		t.Fatalf("signed status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	in, _ := store.GetIncident(context.Background(), 3)
	if in.Status != incident.StatusAcknowledged {
		t.Errorf("status = %q, want acknowledged", in.Status)
	}
}

func TestHandleGetIncident(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter(t, nil)
	store.SeedIncident(&incident.Incident{ID: 9, Summary: "queue backlog", Status: incident.StatusNotified})
	_ = store.TransitionStatus(context.Background(), 9, "", incident.StatusAcknowledged, "alice", "acknowledged", nil)

	httpReq := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/9", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httpReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Incident incident.Incident    `json:"incident"`
		Audit    []incident.AuditEntry `json:"audit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Incident.ID != 9 || resp.Incident.Status != incident.StatusAcknowledged {
		t.Errorf("incident = %+v", resp.Incident)
	}
	if len(resp.Audit) != 1 || resp.Audit[0].Actor != "alice" {
		t.Errorf("audit = %+v, want alice's acknowledgement", resp.Audit)
	}
}

func TestHandleGetIncident_Errors(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown incident", "/api/v1/incidents/404", http.StatusNotFound},
		{"non-numeric id", "/api/v1/incidents/abc", http.StatusBadRequest},
		{"negative id", "/api/v1/incidents/-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			httpReq := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httpReq)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
