package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSnapshot      = errors.New("no snapshot loaded")
	ErrNotTempID       = errors.New("optimistic entity must use a temporary id")
	ErrDuplicateTempID = errors.New("temporary id already pending")
)

// Subscriber receives every published snapshot (nil after Reset).
// It must not write to the store synchronously.
type Subscriber func(*models.RoomSnapshot)

type pendingKind int

const (
	pendingChat pendingKind = iota
	pendingEvidence
	pendingBet
)

type pendingEntity struct {
	kind     pendingKind
	chat     models.ChatMessage
	evidence models.Evidence
	bet      models.Bet
}

func (p pendingEntity) factionID() string {
	switch p.kind {
	case pendingEvidence:
		return p.evidence.FactionID
	case pendingBet:
		return p.bet.FactionID
	}
	return ""
}

// Store reconciles one room's state. The authoritative base is built from
// snapshots and server events; pending optimistic entities are overlaid on
// top of it to produce the published snapshot.
type Store struct {
	// publishMu serializes write+publish so subscribers see snapshots in order
	publishMu sync.Mutex

	mu      sync.RWMutex
	base    *models.RoomSnapshot
	current *models.RoomSnapshot
	pending map[models.EntityID]pendingEntity
	order   []models.EntityID
	subs    map[uint64]Subscriber
	nextSub uint64
}

func New() *Store {
	return &Store{
		pending: make(map[models.EntityID]pendingEntity),
		subs:    make(map[uint64]Subscriber),
	}
}

// Snapshot returns the current published snapshot, or nil before the first Replace.
func (s *Store) Snapshot() *models.RoomSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Pending returns the number of unresolved optimistic entities.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Subscribe registers fn for future snapshots and returns a function that removes it.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Replace installs a fresh authoritative snapshot. Pending optimistic
// entities are discarded: the new snapshot is newer than all of them.
func (s *Store) Replace(snap *models.RoomSnapshot) error {
	if snap == nil {
		return ErrNoSnapshot
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.update(func() bool {
		if n := len(s.pending); n > 0 {
			log.Debug().Str("room_id", snap.Meta.ID).Int("discarded", n).Msg("fresh snapshot discards pending entities")
		}
		s.base = snap.Clone()
		s.pending = make(map[models.EntityID]pendingEntity)
		s.order = nil
		return true
	})
	return nil
}

// Reset forgets the room entirely. Used when the view switches rooms.
func (s *Store) Reset() {
	s.update(func() bool {
		changed := s.base != nil
		s.base = nil
		s.pending = make(map[models.EntityID]pendingEntity)
		s.order = nil
		return changed
	})
}

// Apply merges a server event. It reports whether the snapshot changed;
// redelivered events are no-ops. Lifecycle events are not store concerns.
func (s *Store) Apply(ev events.Event) bool {
	return s.update(func() bool {
		if s.base == nil {
			log.Debug().Str("event", string(ev.Type())).Msg("event before snapshot dropped")
			return false
		}

		var changed bool
		switch e := ev.(type) {
		case events.ChatUpdated:
			s.base, changed = mergeChat(s.base, e.Message)
			if changed {
				s.absorbEcho(e.Message)
			}
		case events.EvidenceUpdated:
			s.base, changed = mergeEvidence(s.base, e.FactionID, e.Evidence)
		case events.ParticipantUpdated:
			s.base, changed = mergeParticipant(s.base, e.Participant)
		case events.BettingUpdated:
			s.base, changed = replaceBetting(s.base, e.Betting)
		}
		return changed
	})
}

// AddPendingChat shows msg immediately, ahead of server confirmation.
func (s *Store) AddPendingChat(msg models.ChatMessage) error {
	return s.addPending(msg.ID, pendingEntity{kind: pendingChat, chat: msg})
}

// AddPendingEvidence shows ev in its faction group ahead of server confirmation.
func (s *Store) AddPendingEvidence(ev models.Evidence) error {
	return s.addPending(ev.ID, pendingEntity{kind: pendingEvidence, evidence: ev})
}

// AddPendingBet overlays bet on the betting summary under tempID.
func (s *Store) AddPendingBet(tempID models.EntityID, bet models.Bet) error {
	return s.addPending(tempID, pendingEntity{kind: pendingBet, bet: bet})
}

// ConfirmChat swaps the pending message for the server's in a single publish.
func (s *Store) ConfirmChat(tempID models.EntityID, msg models.ChatMessage) {
	s.confirm(tempID, func() bool {
		var changed bool
		s.base, changed = mergeChat(s.base, msg)
		return changed
	})
}

// ConfirmEvidence swaps the pending submission for the server's in a single publish.
func (s *Store) ConfirmEvidence(tempID models.EntityID, ev models.Evidence) {
	s.confirm(tempID, func() bool {
		var changed bool
		s.base, changed = mergeEvidence(s.base, ev.FactionID, ev)
		return changed
	})
}

// ConfirmBet drops the pending stake and installs the server's betting summary.
func (s *Store) ConfirmBet(tempID models.EntityID, betting models.Betting) {
	s.confirm(tempID, func() bool {
		var changed bool
		s.base, changed = replaceBetting(s.base, betting)
		return changed
	})
}

// Rollback removes a pending entity. It reports whether anything was removed.
func (s *Store) Rollback(tempID models.EntityID) bool {
	return s.update(func() bool {
		return s.removePending(tempID)
	})
}

func (s *Store) addPending(id models.EntityID, p pendingEntity) error {
	if !id.IsTemp() {
		return fmt.Errorf("%w: %q", ErrNotTempID, id)
	}

	var err error
	s.update(func() bool {
		if s.base == nil {
			err = ErrNoSnapshot
			return false
		}
		if _, exists := s.pending[id]; exists {
			err = fmt.Errorf("%w: %q", ErrDuplicateTempID, id)
			return false
		}
		if faction := p.factionID(); faction != "" && !s.base.HasFaction(faction) {
			err = fmt.Errorf("pending %s: %w %q", id, models.ErrDanglingFaction, faction)
			return false
		}
		s.pending[id] = p
		s.order = append(s.order, id)
		return true
	})
	return err
}

// confirm merges the server entity only while tempID is still pending.
// A missing entry means a Replace or Reset superseded the request (or a
// server echo already delivered the entity), so the result is dropped.
func (s *Store) confirm(tempID models.EntityID, merge func() bool) {
	s.update(func() bool {
		if !s.removePending(tempID) {
			log.Debug().Str("temp_id", tempID.String()).Msg("confirmation for resolved pending entity dropped")
			return false
		}
		if s.base != nil {
			merge()
		}
		return true
	})
}

// absorbEcho drops the oldest pending chat that msg, the server's copy of
// one of our own messages, stands in for.
func (s *Store) absorbEcho(msg models.ChatMessage) {
	author := msg.Author.ParticipantID
	if author == "" {
		return
	}
	for _, id := range s.order {
		p := s.pending[id]
		if p.kind == pendingChat && p.chat.Author.ParticipantID == author && p.chat.Body == msg.Body {
			s.removePending(id)
			return
		}
	}
}

func (s *Store) removePending(id models.EntityID) bool {
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	order := make([]models.EntityID, 0, len(s.order))
	for _, o := range s.order {
		if o != id {
			order = append(order, o)
		}
	}
	s.order = order
	return true
}

// update runs fn under the write lock and, if it reports a change,
// recomputes and publishes the snapshot.
func (s *Store) update(fn func() bool) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	s.current = s.view()
	snap := s.current
	subs := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return true
}

// view overlays pending entities on the base, oldest first, so the newest
// pending chat ends up on top.
func (s *Store) view() *models.RoomSnapshot {
	if s.base == nil || len(s.order) == 0 {
		return s.base
	}

	v := s.base
	for _, id := range s.order {
		p := s.pending[id]
		switch p.kind {
		case pendingChat:
			v, _ = mergeChat(v, p.chat)
		case pendingEvidence:
			v, _ = mergeEvidence(v, p.evidence.FactionID, p.evidence)
		case pendingBet:
			v = overlayBet(v, p.bet)
		}
	}
	return v
}
