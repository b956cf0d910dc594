package bridge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current wire format version written by NewEnvelope.
// Consumers should accept any version <= SchemaVersion and reject newer
// ones rather than attempt to evolve the schema automatically.
const SchemaVersion = 1

// Envelope is the canonical wire format exchanged between bridge instances.
// It is deliberately flat and JSON-encoded so that either side of the
// bridge can be implemented independently of this module.
type Envelope struct {
	EventID      string          `json:"event_id"`
	SchemaVer    int             `json:"schema_version"`
	EventType    string          `json:"event_type"`
	Producer     string          `json:"producer"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
	TraceID      string          `json:"trace_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// NewEnvelope builds an Envelope with a generated event ID, the current
// schema version, and occurred_at set to the current UTC time.
func NewEnvelope(eventType, producer, resourceType, resourceID string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapDeserializationError(err)
	}
	return &Envelope{
		EventID:      uuid.NewString(),
		SchemaVer:    SchemaVersion,
		EventType:    eventType,
		Producer:     producer,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OccurredAt:   time.Now().UTC(),
		Payload:      raw,
	}, nil
}

// Encode serializes the envelope to its canonical JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, WrapDeserializationError(err)
	}
	return data, nil
}

// DecodeEnvelope parses the canonical JSON wire form back into an Envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, WrapDeserializationError(err)
	}
	return &e, nil
}

// UnmarshalPayload decodes the envelope's payload into dst.
func (e *Envelope) UnmarshalPayload(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return WrapDeserializationError(err)
	}
	return nil
}
