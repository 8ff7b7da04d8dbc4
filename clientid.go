package mq

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// generateClientID returns the default client identifier for callers that
// never set WithClientID: "mqttjs_" followed by 8 hex characters taken from
// the low 4 bytes of a random v4 UUID. Eight hex characters make collisions
// between clients unlikely, not impossible.
func generateClientID() string {
	id := uuid.New()
	return "mqttjs_" + hex.EncodeToString(id[12:])
}
