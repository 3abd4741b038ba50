// Package analysis obtains a structured remediation analysis for an
// incident from an LLM provider: prompt assembly, strict response
// validation, and bounded retry on transient provider failures.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Confidence is the provider's self-reported confidence level.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// RootCause is one ranked hypothesis with suggested fixes and a rollback.
type RootCause struct {
	Cause    string   `json:"cause"`
	Fixes    []string `json:"fixes"`
	Rollback string   `json:"rollback"`
}

// Analysis is the validated remediation analysis for one incident.
type Analysis struct {
	Summary    string      `json:"summary"`
	RootCauses []RootCause `json:"root_causes"`
	Confidence Confidence  `json:"confidence"`
}

// ErrMalformedResponse marks a provider response that failed schema
// validation. It is permanent for the processing attempt.
var ErrMalformedResponse = errors.New("malformed analysis response")

// Parse extracts the JSON object from a raw model response and validates
// it. Models occasionally wrap the object in prose; everything outside the
// outermost braces is discarded, matching how the response contract is
// prompted.
func Parse(raw string) (*Analysis, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}

	var a Analysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the analysis against the response schema.
func (a *Analysis) Validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	if !a.Confidence.Valid() {
		return fmt.Errorf("%w: unknown confidence %q", ErrMalformedResponse, a.Confidence)
	}
	for i, rc := range a.RootCauses {
		if strings.TrimSpace(rc.Cause) == "" {
			return fmt.Errorf("%w: root cause %d has empty cause", ErrMalformedResponse, i)
		}
	}
	return nil
}
