package realtime

import (
	"time"

	"waypoint/cmd/identity/ids"
)

// NewConnectionID returns a ULID identifying one subscriber connection.
func NewConnectionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id. ULIDs sort by time in logs.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
