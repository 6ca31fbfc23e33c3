package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/debateroom/go/internal/models"
)

var (
	// ErrUnknownEvent is returned for tags outside the known set.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedEvent is returned when a payload fails to parse or validate.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Type is the stream event tag.
type Type string

const (
	TypeChatUpdated        Type = "chat-updated"
	TypeEvidenceUpdated    Type = "evidence-updated"
	TypeParticipantUpdated Type = "participant-updated"
	TypeBettingUpdated     Type = "betting-updated"
	TypeRoomEnding         Type = "room-ending"
	TypeRoomEnded          Type = "room-ended"
)

// Names lists every tag the client understands.
func Names() []Type {
	return []Type{
		TypeChatUpdated,
		TypeEvidenceUpdated,
		TypeParticipantUpdated,
		TypeBettingUpdated,
		TypeRoomEnding,
		TypeRoomEnded,
	}
}

// Event is the closed set of decoded stream events.
type Event interface {
	Type() Type
	sealed()
}

// ChatUpdated carries a new chat message.
type ChatUpdated struct {
	Message models.ChatMessage `json:"message"`
}

// EvidenceUpdated carries a new evidence submission for a faction.
type EvidenceUpdated struct {
	FactionID string          `json:"faction_id"`
	Evidence  models.Evidence `json:"evidence"`
}

// ParticipantUpdated carries the current state of one participant.
type ParticipantUpdated struct {
	Participant models.Participant `json:"participant"`
}

// BettingUpdated carries a complete betting summary.
type BettingUpdated struct {
	Betting models.Betting `json:"betting"`
}

// RoomEnding announces the end time of the room.
type RoomEnding struct {
	EndsAt           time.Time `json:"ends_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// RoomEnded marks the room as over.
type RoomEnded struct {
	EndedAt    time.Time `json:"ended_at"`
	ResultPath string    `json:"result_path,omitempty"`
}

func (ChatUpdated) Type() Type        { return TypeChatUpdated }
func (EvidenceUpdated) Type() Type    { return TypeEvidenceUpdated }
func (ParticipantUpdated) Type() Type { return TypeParticipantUpdated }
func (BettingUpdated) Type() Type     { return TypeBettingUpdated }
func (RoomEnding) Type() Type         { return TypeRoomEnding }
func (RoomEnded) Type() Type          { return TypeRoomEnded }

// The wrapper events marshal to the bare entity, as the stream sends them.
func (e ChatUpdated) MarshalJSON() ([]byte, error)        { return json.Marshal(e.Message) }
func (e ParticipantUpdated) MarshalJSON() ([]byte, error) { return json.Marshal(e.Participant) }
func (e BettingUpdated) MarshalJSON() ([]byte, error)     { return json.Marshal(e.Betting) }

func (ChatUpdated) sealed()        {}
func (EvidenceUpdated) sealed()    {}
func (ParticipantUpdated) sealed() {}
func (BettingUpdated) sealed()     {}
func (RoomEnding) sealed()         {}
func (RoomEnded) sealed()          {}

// Decode parses a named payload into its event variant.
func Decode(name string, data []byte) (Event, error) {
	switch Type(name) {
	case TypeChatUpdated:
		var msg models.ChatMessage
		if err := unmarshal(name, data, &msg); err != nil {
			return nil, err
		}
		if err := checkServerID(name, msg.ID); err != nil {
			return nil, err
		}
		return ChatUpdated{Message: msg}, nil

	case TypeEvidenceUpdated:
		var payload struct {
			FactionID string          `json:"faction_id"`
			Evidence  models.Evidence `json:"evidence"`
		}
		if err := unmarshal(name, data, &payload); err != nil {
			return nil, err
		}
		if err := checkServerID(name, payload.Evidence.ID); err != nil {
			return nil, err
		}
		if payload.FactionID == "" {
			payload.FactionID = payload.Evidence.FactionID
		}
		if payload.FactionID == "" {
			return nil, fmt.Errorf("%s: %w: missing faction_id", name, ErrMalformedEvent)
		}
		payload.Evidence.FactionID = payload.FactionID
		return EvidenceUpdated{FactionID: payload.FactionID, Evidence: payload.Evidence}, nil

	case TypeParticipantUpdated:
		var p models.Participant
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%s: %w: missing id", name, ErrMalformedEvent)
		}
		return ParticipantUpdated{Participant: p}, nil

	case TypeBettingUpdated:
		var b models.Betting
		if err := unmarshal(name, data, &b); err != nil {
			return nil, err
		}
		return BettingUpdated{Betting: b}, nil

	case TypeRoomEnding:
		var e RoomEnding
		if err := unmarshal(name, data, &e); err != nil {
			return nil, err
		}
		return e, nil

	case TypeRoomEnded:
		var e RoomEnded
		if len(data) > 0 {
			if err := unmarshal(name, data, &e); err != nil {
				return nil, err
			}
		}
		return e, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func unmarshal(name string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", name, ErrMalformedEvent, err)
	}
	return nil
}

// checkServerID rejects entities without an ID or carrying a client-side ID.
func checkServerID(name string, id models.EntityID) error {
	if id == "" {
		return fmt.Errorf("%s: %w: missing id", name, ErrMalformedEvent)
	}
	if id.IsTemp() {
		return fmt.Errorf("%s: %w: client id %q from server", name, ErrMalformedEvent, id)
	}
	return nil
}
