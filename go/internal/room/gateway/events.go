package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UIEvent is the envelope pushed to local UI websocket clients
type UIEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      UIEventType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// UIEventType represents the type of UI event
type UIEventType string

const (
	EventTypeSnapshotUpdated   UIEventType = "SnapshotUpdated"
	EventTypeConnectionChanged UIEventType = "ConnectionChanged"
	EventTypeLifecycleChanged  UIEventType = "LifecycleChanged"
	EventTypeNotice            UIEventType = "Notice"
)

// ConnectionPayload reports the upstream stream state
type ConnectionPayload struct {
	State string `json:"state"`
	Live  bool   `json:"live"`
}

// NewUIEvent marshals payload into a fresh event envelope
func NewUIEvent(roomID string, eventType UIEventType, payload interface{}) (*UIEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &UIEvent{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
