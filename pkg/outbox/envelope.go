package outbox

import (
	"encoding/json"
	"errors"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Operation  string          `json:"operation,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, err
	}
	return env, nil
}

// DecodeData unmarshals the event body into v.
func (e PayloadEnvelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.New("envelope has no data")
	}
	return json.Unmarshal(e.Data, v)
}
