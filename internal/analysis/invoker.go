package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/linnemanlabs/go-core/log"

	"github.com/raghavvag/Reliability-agent-system/internal/incident"
)

// Provider is the interface for any LLM backend.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 500 * time.Millisecond

	// maxRelatedSummary bounds each recalled summary in the prompt.
	maxRelatedSummary = 200
)

// Analyzer turns an incident plus recalled context into a validated
// Analysis, retrying transient provider failures with exponential backoff.
type Analyzer struct {
	provider        Provider
	logger          log.Logger
	maxRetries      uint64
	initialInterval time.Duration
}

// NewAnalyzer creates an Analyzer with the default retry policy.
func NewAnalyzer(provider Provider, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Analyzer{
		provider:        provider,
		logger:          logger,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
	}
}

// Analyze requests a remediation analysis for the incident grounded on the
// recalled context. It has no side effects beyond the outbound call.
func (a *Analyzer) Analyze(ctx context.Context, in *incident.Incident, recalled []incident.ScoredMemory) (*Analysis, error) {
	prompt := buildPrompt(in, recalled)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = a.initialInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, a.maxRetries), ctx)

	attempt := 0
	var out *Analysis
	op := func() error {
		attempt++
		text, err := a.provider.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			if IsTransient(err) {
				a.logger.Warn(ctx, "llm call failed, will retry",
					"incident_id", in.ID, "attempt", attempt, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}

		parsed, perr := Parse(text)
		if perr != nil {
			// schema failures are permanent for this attempt
			return backoff.Permanent(&ProviderError{Err: perr})
		}
		out = parsed
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("analyze incident %d: %w", in.ID, err)
	}
	return out, nil
}

const systemPrompt = `You are ReliabilityAgent, an assistant for SREs & SecOps.
You analyze incidents and suggest safe, non-destructive remediation.
Always answer with a single valid JSON object and nothing else.`

// buildPrompt assembles the user prompt from the incident and the recalled
// context items.
func buildPrompt(in *incident.Incident, recalled []incident.ScoredMemory) string {
	evidence, _ := json.Marshal(in.Evidence)

	var related strings.Builder
	for _, sm := range recalled {
		summary := sm.Item.Summary
		if len(summary) > maxRelatedSummary {
			summary = summary[:maxRelatedSummary]
		}
		fmt.Fprintf(&related, "- id:%s | service:%s | summary:%s | labels:%s\n",
			sm.Item.ID, sm.Item.Service, summary, strings.Join(sm.Item.Labels, ","))
	}
	relatedList := related.String()
	if relatedList == "" {
		relatedList = "None"
	}

	return fmt.Sprintf(`A new incident happened.

Service: %s
Created at: %s
Labels: %s
Summary: %s
Evidence (short): %s

Related past incidents:
%s

Task:
1) Provide a 1-2 line human readable summary.
2) List up to 3 possible root causes (ranked).
3) For each root cause, suggest 1-2 safe, non-destructive fixes and a rollback step.
4) Provide a confidence level: low, medium, or high.

Return valid JSON exactly like:
{"summary":"...","root_causes":[{"cause":"...","fixes":["..."],"rollback":"..."}],"confidence":"..."}`,
		in.Service(),
		in.CreatedAt.Format(time.RFC3339),
		strings.Join(in.Labels, ","),
		in.Summary,
		string(evidence),
		relatedList,
	)
}
