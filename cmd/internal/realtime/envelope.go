package realtime

import (
	"encoding/json"
	"time"
)

// Version is the envelope schema version.
const Version = 1

// Envelope types.
const (
	TypeWelcome      = "welcome"
	TypePlaceCreated = "place.created"
	TypeError        = "error"
)

// Envelope is the frame sent to feed subscribers.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WelcomePayload is sent once after a subscriber attaches.
type WelcomePayload struct {
	ConnectionID string `json:"connection_id"`
}

// PlacePayload mirrors the REST place representation.
type PlacePayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Info      string    `json:"info"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorPayload reports a problem with a client frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newEnvelope marshals payload into an Envelope stamped at ts.
func newEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	id, err := NewEnvelopeID(ts)
	if err != nil {
		return Envelope{}, err
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = b
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: raw}, nil
}
