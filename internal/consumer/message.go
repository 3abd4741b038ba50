package consumer

import "encoding/json"

// ValidationError marks an inbound message that failed validation. No side
// effects occur for such messages; they are logged and dropped.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// ParseMessage validates an incident-ready payload and extracts the
// incident id. The contract is a JSON object with a single required
// positive-integer field: {"incident_id": 101}.
func ParseMessage(data []byte) (int64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, &ValidationError{Reason: "payload is not a JSON object"}
	}

	field, ok := raw["incident_id"]
	if !ok {
		return 0, &ValidationError{Reason: "missing incident_id"}
	}

	var num json.Number
	if err := json.Unmarshal(field, &num); err != nil {
		return 0, &ValidationError{Reason: "incident_id is not a number"}
	}
	id, err := num.Int64()
	if err != nil {
		return 0, &ValidationError{Reason: "incident_id is not an integer"}
	}
	if id <= 0 {
		return 0, &ValidationError{Reason: "incident_id must be positive"}
	}
	return id, nil
}
