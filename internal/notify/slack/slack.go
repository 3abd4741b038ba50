// Package slack delivers incident notifications to Slack as interactive
// Block Kit messages via chat.postMessage.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/linnemanlabs/go-core/log"

	"github.com/raghavvag/Reliability-agent-system/internal/analysis"
	"github.com/raghavvag/Reliability-agent-system/internal/incident"
)

// Action identifiers carried by the interactive buttons. The webhook
// handler maps them back to status transitions.
const (
	ActionAcknowledge = "ack"
	ActionInfo        = "info"
	ActionResolve     = "resolve"
)

const (
	defaultAPIURL  = "https://slack.com/api/chat.postMessage"
	httpTimeout    = 10 * time.Second
	maxSummaryLen  = 3000
	defaultRetries = 3
)

// Receipt identifies a delivered message; it lands in the audit details.
type Receipt struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
}

// DeliveryError wraps a failed delivery. Permanent failures (bad
// credentials, unknown channel) are not retried.
type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return "permanent delivery error: " + e.Err.Error()
	}
	return "transient delivery error: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}

// Notifier posts incident notifications to a Slack channel.
type Notifier struct {
	token      string
	channel    string
	apiURL     string
	client     *http.Client
	logger     log.Logger
	maxRetries uint64
}

// New creates a Slack notifier posting to the given channel with a bot
// token. A bot token (not an incoming webhook) is required for the
// interactive action buttons.
func New(token, channel string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		token:      token,
		channel:    channel,
		apiURL:     defaultAPIURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		maxRetries: defaultRetries,
	}
}

// Notify renders the analysis into an interactive message and delivers it,
// retrying transient transport failures with exponential backoff. It does
// not mutate incident state; committing the transition is the caller's
// responsibility.
func (n *Notifier) Notify(ctx context.Context, in *incident.Incident, a *analysis.Analysis, recalled []incident.ScoredMemory) (*Receipt, error) {
	payload := map[string]any{
		"channel": n.channel,
		"text":    fmt.Sprintf("Incident %d notification", in.ID),
		"blocks":  buildBlocks(in, a, recalled),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &DeliveryError{Permanent: true, Err: fmt.Errorf("marshal message: %w", err)}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), n.maxRetries), ctx)

	var receipt *Receipt
	op := func() error {
		r, err := n.post(ctx, body)
		if err != nil {
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			n.logger.Warn(ctx, "slack delivery failed, will retry", "incident_id", in.ID, "error", err)
			return err
		}
		receipt = r
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}

	n.logger.Info(ctx, "notification delivered",
		"incident_id", in.ID, "channel", receipt.Channel, "ts", receipt.Timestamp)
	return receipt, nil
}

type postResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func (n *Notifier) post(ctx context.Context, body []byte) (*Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, &DeliveryError{Permanent: true, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &DeliveryError{Err: fmt.Errorf("post message: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, &DeliveryError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &DeliveryError{Err: fmt.Errorf("slack api %d: %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &DeliveryError{Permanent: true, Err: fmt.Errorf("slack api %d: %s", resp.StatusCode, string(respBody))}
	}

	var out postResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &DeliveryError{Permanent: true, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if !out.OK {
		return nil, &DeliveryError{Permanent: permanentAPIError(out.Error), Err: fmt.Errorf("slack api: %s", out.Error)}
	}
	return &Receipt{Channel: out.Channel, Timestamp: out.TS}, nil
}

// permanentAPIError classifies Slack API error strings. Credential and
// destination problems won't heal on retry; anything else gets the benefit
// of the doubt.
func permanentAPIError(code string) bool {
	switch code {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked",
		"channel_not_found", "is_archived", "not_in_channel", "invalid_blocks":
		return true
	}
	return false
}

func buildBlocks(in *incident.Incident, a *analysis.Analysis, recalled []incident.ScoredMemory) []map[string]any {
	blocks := []map[string]any{
		mrkdwnSection(fmt.Sprintf("*Incident #%d* — %s", in.ID, in.Summary)),
		mrkdwnSection(fmt.Sprintf("*AI Summary:* %s", truncate(a.Summary, maxSummaryLen))),
		mrkdwnSection("*Root causes & fixes:*\n" + causesText(a)),
	}
	if len(recalled) > 0 {
		blocks = append(blocks, mrkdwnSection(recalledText(recalled)))
	}
	blocks = append(blocks, actionsBlock(in.ID))
	return blocks
}

func causesText(a *analysis.Analysis) string {
	if len(a.RootCauses) == 0 {
		return "No causes suggested."
	}
	var b bytes.Buffer
	for i, rc := range a.RootCauses {
		fmt.Fprintf(&b, "*%d.* %s", i+1, rc.Cause)
		if len(rc.Fixes) > 0 {
			b.WriteString(" - fixes: ")
			for j, fix := range rc.Fixes {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fix)
			}
		}
		if rc.Rollback != "" {
			fmt.Fprintf(&b, " (rollback: %s)", rc.Rollback)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func recalledText(recalled []incident.ScoredMemory) string {
	var b bytes.Buffer
	b.WriteString("*Similar past incidents:*\n")
	for _, sm := range recalled {
		fmt.Fprintf(&b, "• *%s* (distance %.3f) %s\n",
			sm.Item.ID, sm.Distance, truncate(sm.Item.Summary, 120))
	}
	return b.String()
}

// actionsBlock is the control group: exactly three mutually exclusive
// actions, each carrying the incident id as its value.
func actionsBlock(id int64) map[string]any {
	value := strconv.FormatInt(id, 10)
	return map[string]any{
		"type": "actions",
		"elements": []map[string]any{
			button("Acknowledge", ActionAcknowledge, value),
			button("Request More Info", ActionInfo, value),
			button("Mark as Resolved", ActionResolve, value),
		},
	}
}

func button(label, actionID, value string) map[string]any {
	return map[string]any{
		"type":      "button",
		"text":      map[string]any{"type": "plain_text", "text": label},
		"action_id": actionID,
		"value":     value,
	}
}

func mrkdwnSection(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
