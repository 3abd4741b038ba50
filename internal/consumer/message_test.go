package consumer

import (
	"errors"
	"testing"
)

func TestParseMessage_Valid(t *testing.T) {
	t.Parallel()

	id, err := ParseMessage([]byte(`{"incident_id": 101}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if id != 101 {
		t.Errorf("id = %d, want 101", id)
	}
}

func TestParseMessage_IgnoresExtraFields(t *testing.T) {
	t.Parallel()

	id, err := ParseMessage([]byte(`{"incident_id": 7, "source": "detector", "ts": 1724}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "not json at all"},
		{"json array", `[101]`},
		{"json scalar", `101`},
		{"missing field", `{"id": 101}`},
		{"string id", `{"incident_id": "abc"}`},
		{"numeric string id", `{"incident_id": "101"}`},
		{"float id", `{"incident_id": 101.5}`},
		{"zero id", `{"incident_id": 0}`},
		{"negative id", `{"incident_id": -3}`},
		{"null id", `{"incident_id": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseMessage([]byte(tt.data))
			if err == nil {
				t.Fatalf("ParseMessage(%s) error = nil, want validation error", tt.data)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("ParseMessage(%s) error = %T, want *ValidationError", tt.data, err)
			}
		})
	}
}
