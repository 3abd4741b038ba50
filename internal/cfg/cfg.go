package cfg

import (
	"errors"
	"flag"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	NATSURL               string
	Subject               string
	Workers               int
	AnthropicAPIKey       string
	AnthropicModel        string
	OpenAIAPIKey          string
	EmbedModel            string
	EmbedDim              int
	RecallK               int
	SlackBotToken         string
	SlackChannel          string
	SlackSigningSecret    string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.NATSURL, "nats-url", nats.DefaultURL, "NATS server URL for the incident-ready channel")
	fs.StringVar(&c.Subject, "subject", "incident.ready", "subject carrying incident-ready messages")
	fs.IntVar(&c.Workers, "workers", 4, "concurrent pipeline workers (1..64)")
	fs.StringVar(&c.AnthropicAPIKey, "anthropic-api-key", "", "API key for the Anthropic LLM provider")
	fs.StringVar(&c.AnthropicModel, "anthropic-model", "claude-sonnet-4-20250514", "Anthropic model for incident analysis")
	fs.StringVar(&c.OpenAIAPIKey, "openai-api-key", "", "API key for the OpenAI embeddings provider")
	fs.StringVar(&c.EmbedModel, "embed-model", "text-embedding-3-small", "embedding model for semantic recall")
	fs.IntVar(&c.EmbedDim, "embed-dim", 384, "embedding vector dimension (must match the memory store)")
	fs.IntVar(&c.RecallK, "recall-k", 3, "similar past incidents to recall per analysis (0..20)")
	fs.StringVar(&c.SlackBotToken, "slack-bot-token", "", "Slack bot token for posting interactive notifications")
	fs.StringVar(&c.SlackChannel, "slack-channel", "#incident-alerts", "Slack channel receiving notifications")
	fs.StringVar(&c.SlackSigningSecret, "slack-signing-secret", "", "shared secret for verifying Slack webhook signatures")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.NATSURL == "" {
		errs = append(errs, errors.New("NATS_URL is required"))
	}
	if c.Subject == "" {
		errs = append(errs, errors.New("SUBJECT is required"))
	}
	if c.Workers <= 0 || c.Workers > 64 {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 1..64)", c.Workers))
	}

	// Anthropic credentials are required for the analysis stage
	if c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is required"))
	}
	if c.AnthropicModel == "" {
		errs = append(errs, errors.New("ANTHROPIC_MODEL is required"))
	}

	// OpenAI credentials are required for the recall stage
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.EmbedModel == "" {
		errs = append(errs, errors.New("EMBED_MODEL is required"))
	}
	if c.EmbedDim <= 0 || c.EmbedDim > 4096 {
		errs = append(errs, fmt.Errorf("invalid EMBED_DIM %d (must be 1..4096)", c.EmbedDim))
	}
	if c.RecallK < 0 || c.RecallK > 20 {
		errs = append(errs, fmt.Errorf("invalid RECALL_K %d (must be 0..20)", c.RecallK))
	}

	// Slack credentials are required for delivery and for verifying
	// interactive callbacks
	if c.SlackBotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.SlackChannel == "" {
		errs = append(errs, errors.New("SLACK_CHANNEL is required"))
	}
	if c.SlackSigningSecret == "" {
		errs = append(errs, errors.New("SLACK_SIGNING_SECRET is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
