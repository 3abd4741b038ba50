package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validConfig returns a Config with defaults applied and required secrets
// filled in.
func validConfig(t *testing.T) *Config {
	t.Helper()
	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse defaults: %v", err)
	}
	c.AnthropicAPIKey = "sk-ant-test"
	c.OpenAIAPIKey = "sk-test"
	c.SlackBotToken = "xoxb-test"
	c.SlackSigningSecret = "sig-secret"
	return &c
}

func TestValidate_DefaultsWithSecrets(t *testing.T) {
	t.Parallel()

	c := validConfig(t)
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	c := validConfig(t)
	if c.Subject != "incident.ready" {
		t.Errorf("Subject = %q, want incident.ready", c.Subject)
	}
	if c.Workers != 4 {
		t.Errorf("Workers = %d, want 4", c.Workers)
	}
	if c.EmbedDim != 384 {
		t.Errorf("EmbedDim = %d, want 384", c.EmbedDim)
	}
	if c.RecallK != 3 {
		t.Errorf("RecallK = %d, want 3", c.RecallK)
	}
	if c.SlackChannel != "#incident-alerts" {
		t.Errorf("SlackChannel = %q, want #incident-alerts", c.SlackChannel)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing anthropic key", func(c *Config) { c.AnthropicAPIKey = "" }, "ANTHROPIC_API_KEY"},
		{"missing anthropic model", func(c *Config) { c.AnthropicModel = "" }, "ANTHROPIC_MODEL"},
		{"missing openai key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"missing embed model", func(c *Config) { c.EmbedModel = "" }, "EMBED_MODEL"},
		{"missing slack token", func(c *Config) { c.SlackBotToken = "" }, "SLACK_BOT_TOKEN"},
		{"missing slack channel", func(c *Config) { c.SlackChannel = "" }, "SLACK_CHANNEL"},
		{"missing signing secret", func(c *Config) { c.SlackSigningSecret = "" }, "SLACK_SIGNING_SECRET"},
		{"missing nats url", func(c *Config) { c.NATSURL = "" }, "NATS_URL"},
		{"missing subject", func(c *Config) { c.Subject = "" }, "SUBJECT"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "WORKERS"},
		{"too many workers", func(c *Config) { c.Workers = 100 }, "WORKERS"},
		{"bad embed dim", func(c *Config) { c.EmbedDim = 0 }, "EMBED_DIM"},
		{"negative recall k", func(c *Config) { c.RecallK = -1 }, "RECALL_K"},
		{"bad port", func(c *Config) { c.APIPort = 0 }, "HTTP_PORT"},
		{"drain too long", func(c *Config) { c.DrainSeconds = 500 }, "DRAIN_SECONDS"},
		{"budget below drain", func(c *Config) { c.DrainSeconds = 90; c.ShutdownBudgetSeconds = 90 }, "SHUTDOWN_BUDGET_SECONDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig(t)
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want failure")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want mention of %s", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()

	c := validConfig(t)
	c.AnthropicAPIKey = ""
	c.SlackBotToken = ""

	err := c.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want failure")
	}
	for _, want := range []string{"ANTHROPIC_API_KEY", "SLACK_BOT_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, missing %s", err, want)
		}
	}
}
