// Package consumer subscribes to the incident-ready channel and drives
// each incident through fetch, recall, analysis, delivery, and the final
// audited status transition. Processing is fanned out over a bounded
// worker pool so one slow analysis never blocks receipt of the next
// message.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/raghavvag/Reliability-agent-system/internal/analysis"
	"github.com/raghavvag/Reliability-agent-system/internal/incident"
	"github.com/raghavvag/Reliability-agent-system/internal/notify/slack"
)

// Actor is the audit identity for transitions committed by the pipeline.
const Actor = "agent"

// Recaller supplies the semantic context for an incident.
type Recaller interface {
	Recall(ctx context.Context, in *incident.Incident) []incident.ScoredMemory
}

// Analyzer produces a validated analysis for an incident.
type Analyzer interface {
	Analyze(ctx context.Context, in *incident.Incident, recalled []incident.ScoredMemory) (*analysis.Analysis, error)
}

// Notifier delivers the interactive notification.
type Notifier interface {
	Notify(ctx context.Context, in *incident.Incident, a *analysis.Analysis, recalled []incident.ScoredMemory) (*slack.Receipt, error)
}

// Config holds the consumer's runtime knobs.
type Config struct {
	// Subject is the channel carrying incident-ready messages.
	Subject string

	// Workers bounds concurrent message processing (and with it,
	// concurrent use of the external APIs).
	Workers int

	// ProcessTimeout bounds one message's end-to-end processing.
	ProcessTimeout time.Duration
}

// Consumer runs the notification pipeline off a NATS subscription.
type Consumer struct {
	cfg      Config
	store    incident.Store
	recaller Recaller
	analyzer Analyzer
	notifier Notifier
	logger   log.Logger
	metrics  *Metrics

	msgs   chan *nats.Msg
	sub    *nats.Subscription
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Consumer. All dependencies are required except metrics.
func New(cfg Config, store incident.Store, recaller Recaller, analyzer Analyzer, notifier Notifier, logger log.Logger, metrics *Metrics) *Consumer {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 2 * time.Minute
	}
	return &Consumer{
		cfg:      cfg,
		store:    store,
		recaller: recaller,
		analyzer: analyzer,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		// buffered so a burst doesn't drop messages while workers are busy
		msgs: make(chan *nats.Msg, 64),
	}
}

// Start subscribes to the configured subject and launches the worker pool.
// Workers outlive ctx; use Stop to drain them.
func (c *Consumer) Start(ctx context.Context, nc *nats.Conn) error {
	sub, err := nc.ChanSubscribe(c.cfg.Subject, c.msgs)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", c.cfg.Subject, err)
	}
	c.sub = sub

	// workers keep draining after the parent ctx is cancelled; Stop owns
	// their shutdown
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(workerCtx)
	}

	c.logger.Info(ctx, "consumer started", "subject", c.cfg.Subject, "workers", c.cfg.Workers)
	return nil
}

// Stop unsubscribes and waits for in-flight messages to drain, up to the
// deadline of ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Warn(ctx, "unsubscribe failed", "error", err)
		}
	}
	close(c.msgs)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// give up on stragglers; their contexts are cancelled below
	}
	if c.cancel != nil {
		c.cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("consumer drain: %w", ctx.Err())
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()
	for msg := range c.msgs {
		c.handle(ctx, msg.Data)
	}
}

func (c *Consumer) handle(ctx context.Context, data []byte) {
	runID := ulid.Make().String()
	L := c.logger.With("run_id", runID)
	ctx = log.WithContext(ctx, L)

	if c.metrics != nil {
		c.metrics.InFlight.Inc()
		defer c.metrics.InFlight.Dec()
	}

	id, err := ParseMessage(data)
	if err != nil {
		// no side effects for invalid messages: log and drop
		L.Warn(ctx, "dropping invalid message", "error", err)
		c.count("invalid")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProcessTimeout)
	defer cancel()

	if err := c.process(ctx, id); err != nil {
		L.Error(ctx, err, "processing failed, incident left for retry", "incident_id", id)
	}
}

// process drives one incident through the pipeline. Any failure before the
// final commit leaves the incident in open so a future redelivery can
// retry safely.
func (c *Consumer) process(ctx context.Context, id int64) error {
	start := time.Now()
	L := log.FromContext(ctx).With("incident_id", id)

	in, err := c.store.GetIncident(ctx, id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			L.Warn(ctx, "no incident row for message")
			c.count("not_found")
			return nil
		}
		c.failStage("fetch")
		return fmt.Errorf("fetch incident: %w", err)
	}

	// duplicate guard: anything past open has already been handled
	if in.Status != incident.StatusOpen {
		L.Info(ctx, "duplicate message, incident already processed", "status", in.Status)
		c.count("duplicate")
		return nil
	}

	recalled := c.recaller.Recall(ctx, in)
	if c.metrics != nil {
		c.metrics.RecallItems.Observe(float64(len(recalled)))
	}

	a, err := c.analyzer.Analyze(ctx, in, recalled)
	if err != nil {
		c.failStage("analyze")
		return fmt.Errorf("analyze: %w", err)
	}

	receipt, err := c.notifier.Notify(ctx, in, a, recalled)
	if err != nil {
		c.failStage("notify")
		return fmt.Errorf("notify: %w", err)
	}

	details := map[string]any{
		"ai_summary": a.Summary,
		"confidence": string(a.Confidence),
		"channel":    receipt.Channel,
		"message_ts": receipt.Timestamp,
	}
	err = c.store.TransitionStatus(ctx, id, incident.StatusOpen, incident.StatusNotified,
		Actor, "notified", details)
	if err != nil {
		if errors.Is(err, incident.ErrConflict) {
			// a concurrent worker committed first; ours was the duplicate
			L.Info(ctx, "transition conflict, treating as duplicate")
			c.count("duplicate")
			return nil
		}
		c.failStage("commit")
		return fmt.Errorf("commit transition: %w", err)
	}

	if c.metrics != nil {
		c.metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}
	c.count("notified")
	L.Info(ctx, "incident notified",
		"duration", time.Since(start).Seconds(),
		"recalled", len(recalled),
		"confidence", a.Confidence,
	)
	return nil
}

func (c *Consumer) count(result string) {
	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(result).Inc()
	}
}

func (c *Consumer) failStage(stage string) {
	if c.metrics != nil {
		c.metrics.StageFailures.WithLabelValues(stage).Inc()
		c.metrics.MessagesTotal.WithLabelValues("failed").Inc()
	}
}
