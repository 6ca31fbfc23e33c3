package models

import "time"

// FactionPool is the staked total for one faction at the time of the summary.
type FactionPool struct {
	FactionID string  `json:"faction_id"`
	Points    int64   `json:"points"`
	Ratio     float64 `json:"ratio"`
}

// Betting is the room-wide betting summary. It is always published whole.
type Betting struct {
	TotalPool int64         `json:"total_pool"`
	Factions  []FactionPool `json:"factions"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Bet is a placed bet as returned by the server.
type Bet struct {
	ParticipantID string    `json:"participant_id"`
	FactionID     string    `json:"faction_id"`
	Points        int64     `json:"points"`
	PlacedAt      time.Time `json:"placed_at"`
}
