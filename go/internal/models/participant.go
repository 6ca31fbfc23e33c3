package models

// ParticipantRole defines what a participant does in a room.
type ParticipantRole string

const (
	RoleDebater   ParticipantRole = "DEBATER"
	RoleSpectator ParticipantRole = "SPECTATOR"
	RoleHost      ParticipantRole = "HOST"
)

// Participant is one member of the room roster.
type Participant struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Nickname  string          `json:"nickname"`
	FactionID string          `json:"faction_id,omitempty"`
	Role      ParticipantRole `json:"role"`
	Stake     int64           `json:"stake"`
}
