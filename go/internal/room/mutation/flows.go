package mutation

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/debateroom/go/clients"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/notify"
	"github.com/mcdev12/debateroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// ErrRejected wraps local validation failures raised before any request is made.
var ErrRejected = errors.New("mutation rejected")

// API issues the mutation requests. Each returns the authoritative entity.
type API interface {
	SendChat(ctx context.Context, roomID, body string) (*models.ChatMessage, error)
	SubmitEvidence(ctx context.Context, roomID string, author models.Author, draft models.EvidenceDraft) (*models.Evidence, error)
	PlaceBet(ctx context.Context, roomID, factionID string, points int64) (*models.Betting, error)
}

// Flows runs the optimistic chat, evidence and bet flows for one room.
// Each call applies a temporary entity, issues the request, then confirms
// or rolls back. Calls are independent and may run concurrently.
type Flows struct {
	roomID   string
	store    *store.Store
	api      API
	author   models.Author
	notifier notify.Notifier
	clock    clockwork.Clock
}

func NewFlows(roomID string, st *store.Store, api API, author models.Author, notifier notify.Notifier, clock clockwork.Clock) *Flows {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Flows{
		roomID:   roomID,
		store:    st,
		api:      api,
		author:   author,
		notifier: notifier,
		clock:    clock,
	}
}

// SendChat posts body to the room chat.
func (f *Flows) SendChat(ctx context.Context, body string) (*models.ChatMessage, error) {
	snap := f.store.Snapshot()
	if err := checkChat(snap, body); err != nil {
		return nil, f.reject(err)
	}

	temp := models.ChatMessage{
		ID:        models.NewTempID(),
		Author:    f.author,
		FactionID: f.currentFaction(snap),
		Body:      body,
		CreatedAt: f.clock.Now(),
	}
	if err := f.store.AddPendingChat(temp); err != nil {
		return nil, f.reject(err)
	}

	msg, err := f.api.SendChat(ctx, f.roomID, body)
	if err == nil && msg == nil {
		err = errors.New("empty chat response")
	}
	if err != nil {
		f.rollback(temp.ID, "chat", err)
		return nil, err
	}

	f.store.ConfirmChat(temp.ID, *msg)
	return msg, nil
}

// SubmitEvidence uploads an evidence submission for draft.FactionID
// (the user's current faction when empty).
func (f *Flows) SubmitEvidence(ctx context.Context, draft models.EvidenceDraft) (*models.Evidence, error) {
	snap := f.store.Snapshot()
	if draft.FactionID == "" {
		draft.FactionID = f.currentFaction(snap)
	}
	if err := checkEvidence(snap, draft); err != nil {
		return nil, f.reject(err)
	}

	temp := models.Evidence{
		ID:        models.NewTempID(),
		FactionID: draft.FactionID,
		Author:    f.author,
		Summary:   draft.Summary,
		Body:      draft.Body,
		CreatedAt: f.clock.Now(),
	}
	if err := f.store.AddPendingEvidence(temp); err != nil {
		return nil, f.reject(err)
	}

	ev, err := f.api.SubmitEvidence(ctx, f.roomID, f.author, draft)
	if err == nil && ev == nil {
		err = errors.New("empty evidence response")
	}
	if err != nil {
		f.rollback(temp.ID, "evidence", err)
		return nil, err
	}

	if ev.FactionID == "" {
		ev.FactionID = draft.FactionID
	}
	f.store.ConfirmEvidence(temp.ID, *ev)
	return ev, nil
}

// PlaceBet stakes points on factionID.
func (f *Flows) PlaceBet(ctx context.Context, factionID string, points int64) (*models.Betting, error) {
	snap := f.store.Snapshot()
	if err := checkBet(snap, factionID, points); err != nil {
		return nil, f.reject(err)
	}

	tempID := models.NewTempID()
	bet := models.Bet{
		ParticipantID: f.author.ParticipantID,
		FactionID:     factionID,
		Points:        points,
		PlacedAt:      f.clock.Now(),
	}
	if err := f.store.AddPendingBet(tempID, bet); err != nil {
		return nil, f.reject(err)
	}

	betting, err := f.api.PlaceBet(ctx, f.roomID, factionID, points)
	if err == nil && betting == nil {
		err = errors.New("empty betting response")
	}
	if err != nil {
		f.rollback(tempID, "bet", err)
		return nil, err
	}

	f.store.ConfirmBet(tempID, *betting)
	return betting, nil
}

func (f *Flows) currentFaction(snap *models.RoomSnapshot) string {
	if snap == nil {
		return ""
	}
	for _, p := range snap.Participants {
		if p.ID == f.author.ParticipantID {
			return p.FactionID
		}
	}
	return ""
}

func (f *Flows) rollback(tempID models.EntityID, kind string, err error) {
	f.store.Rollback(tempID)

	log.Warn().
		Err(err).
		Str("room_id", f.roomID).
		Str("kind", kind).
		Str("temp_id", tempID.String()).
		Msg("optimistic mutation rolled back")

	f.notify(notify.LevelError, failureMessage(err))
}

func (f *Flows) reject(err error) error {
	f.notify(notify.LevelError, failureMessage(err))
	return err
}

func (f *Flows) notify(level notify.Level, message string) {
	if f.notifier == nil {
		return
	}
	f.notifier.Notify(notify.Notice{Level: level, Message: message, At: f.clock.Now()})
}

// failureMessage prefers the server's rejection text.
func failureMessage(err error) string {
	var apiErr *clients.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var rej *rejection
	if errors.As(err, &rej) {
		return rej.msg
	}
	return fmt.Sprintf("Request failed: %v", err)
}

// rejection is a local validation failure; it matches ErrRejected.
type rejection struct {
	msg string
}

func (r *rejection) Error() string {
	return ErrRejected.Error() + ": " + r.msg
}

func (r *rejection) Is(target error) bool {
	return target == ErrRejected
}

func rejected(format string, args ...interface{}) error {
	return &rejection{msg: fmt.Sprintf(format, args...)}
}

func checkChat(snap *models.RoomSnapshot, body string) error {
	if body == "" {
		return rejected("message is empty")
	}
	if snap != nil {
		max := snap.Meta.Restriction.MaxTextLength
		if max > 0 && utf8.RuneCountInString(body) > max {
			return rejected("message is longer than %d characters", max)
		}
	}
	return nil
}

func checkEvidence(snap *models.RoomSnapshot, draft models.EvidenceDraft) error {
	if draft.FactionID == "" {
		return rejected("join a faction before submitting evidence")
	}
	if draft.Summary == "" {
		return rejected("evidence needs a summary")
	}
	if snap != nil {
		r := snap.Meta.Restriction
		if r.MaxTextLength > 0 && utf8.RuneCountInString(draft.Body) > r.MaxTextLength {
			return rejected("evidence is longer than %d characters", r.MaxTextLength)
		}
		if r.MaxImages > 0 && len(draft.Images) > r.MaxImages {
			return rejected("at most %d images are allowed", r.MaxImages)
		}
	}
	return nil
}

func checkBet(snap *models.RoomSnapshot, factionID string, points int64) error {
	if factionID == "" {
		return rejected("choose a faction to bet on")
	}
	if points <= 0 {
		return rejected("bet must be positive")
	}
	if snap != nil {
		r := snap.Meta.Restriction
		if r.MinPoints > 0 && points < int64(r.MinPoints) {
			return rejected("minimum bet is %d points", r.MinPoints)
		}
		if r.MaxPoints > 0 && points > int64(r.MaxPoints) {
			return rejected("maximum bet is %d points", r.MaxPoints)
		}
	}
	return nil
}
