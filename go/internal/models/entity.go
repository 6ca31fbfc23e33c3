package models

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks IDs generated on the client. The server never emits IDs with this prefix.
const TempIDPrefix = "tmp_"

// EntityID identifies a chat message or evidence submission.
type EntityID string

// NewTempID returns a fresh client-side ID in the reserved namespace.
func NewTempID() EntityID {
	return EntityID(TempIDPrefix + uuid.NewString())
}

// IsTemp reports whether the ID belongs to the client-generated namespace.
func (id EntityID) IsTemp() bool {
	return strings.HasPrefix(string(id), TempIDPrefix)
}

func (id EntityID) String() string {
	return string(id)
}

// ConnectionState describes the lifecycle of a stream connection.
type ConnectionState string

const (
	ConnectionIdle       ConnectionState = "idle"
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionError      ConnectionState = "error"
	ConnectionClosed     ConnectionState = "closed"
)
