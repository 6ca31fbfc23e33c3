package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrDanglingFaction is returned when a snapshot references a faction that is not in its faction list.
var ErrDanglingFaction = errors.New("dangling faction reference")

// Restriction holds the per-room submission limits.
type Restriction struct {
	MaxTextLength int `json:"max_text_length"`
	MinPoints     int `json:"min_points"`
	MaxPoints     int `json:"max_points"`
	MaxImages     int `json:"max_images"`
}

// RoomMeta holds identity, topic and countdown information for a room.
type RoomMeta struct {
	ID          string      `json:"id"`
	Topic       string      `json:"topic"`
	Description string      `json:"description,omitempty"`
	EndsAt      time.Time   `json:"ends_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"` // set once the room is over
	Restriction Restriction `json:"restriction"`
}

// Ended reports whether the room's end marker is set.
func (m RoomMeta) Ended() bool {
	return m.EndedAt != nil
}

// Faction is a side participants align with inside a room.
type Faction struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	MemberCount   int    `json:"member_count"`
	TotalPoints   int64  `json:"total_points"`
	EvidenceCount int    `json:"evidence_count"`
}

// RoomSnapshot is a complete point-in-time view of a room.
// Values are never mutated once published; every change produces a new snapshot.
type RoomSnapshot struct {
	Meta         RoomMeta        `json:"meta"`
	Factions     []Faction       `json:"factions"`
	Betting      Betting         `json:"betting"`
	Participants []Participant   `json:"participants"`
	Evidence     []EvidenceGroup `json:"evidence"`
	Chat         []ChatMessage   `json:"chat"` // newest first
}

// HasFaction reports whether id resolves within the snapshot's faction list.
func (s *RoomSnapshot) HasFaction(id string) bool {
	for _, f := range s.Factions {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Validate checks that every faction reference resolves.
func (s *RoomSnapshot) Validate() error {
	for _, p := range s.Participants {
		if p.FactionID != "" && !s.HasFaction(p.FactionID) {
			return fmt.Errorf("participant %s: %w %q", p.ID, ErrDanglingFaction, p.FactionID)
		}
	}
	for _, pool := range s.Betting.Factions {
		if !s.HasFaction(pool.FactionID) {
			return fmt.Errorf("betting pool: %w %q", ErrDanglingFaction, pool.FactionID)
		}
	}
	for _, g := range s.Evidence {
		if !s.HasFaction(g.FactionID) {
			return fmt.Errorf("evidence group: %w %q", ErrDanglingFaction, g.FactionID)
		}
	}
	return nil
}

// Clone returns a shallow copy whose top-level slices are freshly allocated.
// Elements are values, so the copy can be changed without touching s.
func (s *RoomSnapshot) Clone() *RoomSnapshot {
	c := *s
	c.Factions = append([]Faction(nil), s.Factions...)
	c.Betting.Factions = append([]FactionPool(nil), s.Betting.Factions...)
	c.Participants = append([]Participant(nil), s.Participants...)
	c.Chat = append([]ChatMessage(nil), s.Chat...)
	c.Evidence = make([]EvidenceGroup, len(s.Evidence))
	for i, g := range s.Evidence {
		c.Evidence[i] = EvidenceGroup{
			FactionID:   g.FactionID,
			Submissions: append([]Evidence(nil), g.Submissions...),
		}
	}
	return &c
}

// RoomDetail is the meta facet of a room: identity, limits and its factions.
type RoomDetail struct {
	Meta     RoomMeta  `json:"meta"`
	Factions []Faction `json:"factions"`
}
