package models

import "time"

// Author is the public profile attached to chat messages and evidence.
type Author struct {
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

// ChatMessage represents a chat log entry.
type ChatMessage struct {
	ID        EntityID  `json:"id"`
	Author    Author    `json:"author"`
	FactionID string    `json:"faction_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
