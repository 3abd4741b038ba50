// Package claude implements the analysis.Provider interface on the
// Anthropic SDK.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/raghavvag/Reliability-agent-system/internal/analysis"
)

// ResponseTokens caps the model's answer; the analysis JSON is small.
const ResponseTokens = 1024

// Client calls the Claude messages API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude client. SDK-level retries are disabled; the
// analyzer owns the retry policy.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Complete sends a single-turn request and returns the concatenated text
// content. Errors are classified as transient or permanent for the
// analyzer's retry policy.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: ResponseTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &analysis.ProviderError{Err: errors.New("claude: response contained no text")}
	}
	return text.String(), nil
}

// classify maps SDK and transport errors onto the provider error taxonomy.
// Timeouts, rate limits, and 5xx are transient; other API errors (bad
// credentials, malformed requests) are permanent.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		transient := apierr.StatusCode == http.StatusRequestTimeout ||
			apierr.StatusCode == http.StatusTooManyRequests ||
			apierr.StatusCode >= 500
		return &analysis.ProviderError{
			Transient: transient,
			Err:       fmt.Errorf("claude api: %w", err),
		}
	}
	if errors.Is(err, context.Canceled) {
		return &analysis.ProviderError{Err: err}
	}
	// network-level failures (including deadline overruns) are worth a retry
	return &analysis.ProviderError{
		Transient: true,
		Err:       fmt.Errorf("claude transport: %w", err),
	}
}
