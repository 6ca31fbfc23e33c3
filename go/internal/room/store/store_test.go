package store

import (
	"testing"
	"time"

	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *models.RoomSnapshot {
	return &models.RoomSnapshot{
		Meta: models.RoomMeta{ID: "room-1", Topic: "Cats vs dogs"},
		Factions: []models.Faction{
			{ID: "f1", Name: "Cats"},
			{ID: "f2", Name: "Dogs"},
		},
		Betting: models.Betting{
			TotalPool: 1000,
			Factions: []models.FactionPool{
				{FactionID: "f1", Points: 600},
				{FactionID: "f2", Points: 400},
			},
		},
		Participants: []models.Participant{{ID: "p1", FactionID: "f1", Role: models.RoleDebater}},
		Evidence: []models.EvidenceGroup{
			{FactionID: "f1", Submissions: []models.Evidence{{ID: "ev-1", FactionID: "f1"}}},
		},
	}
}

func loaded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Replace(testSnapshot()))
	return s
}

func TestStore_ChatEventIsIdempotent(t *testing.T) {
	s := loaded(t)
	ev := events.ChatUpdated{Message: models.ChatMessage{ID: "chat-1", Body: "hi"}}

	assert.True(t, s.Apply(ev))
	once := s.Snapshot().Chat

	assert.False(t, s.Apply(ev))
	assert.Equal(t, once, s.Snapshot().Chat)
	assert.Len(t, s.Snapshot().Chat, 1)
}

func TestStore_ChatPrependsNewest(t *testing.T) {
	s := loaded(t)
	s.Apply(events.ChatUpdated{Message: models.ChatMessage{ID: "chat-1"}})
	s.Apply(events.ChatUpdated{Message: models.ChatMessage{ID: "chat-2"}})

	chat := s.Snapshot().Chat
	require.Len(t, chat, 2)
	assert.Equal(t, models.EntityID("chat-2"), chat[0].ID)
}

func TestStore_OptimisticChatRoundTrip(t *testing.T) {
	s := loaded(t)
	require.Empty(t, s.Snapshot().Chat)

	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: tempID, Body: "hello"}))

	chat := s.Snapshot().Chat
	require.Len(t, chat, 1)
	assert.True(t, chat[0].ID.IsTemp())

	var published [][]models.ChatMessage
	s.Subscribe(func(snap *models.RoomSnapshot) { published = append(published, snap.Chat) })

	s.ConfirmChat(tempID, models.ChatMessage{ID: "chat-42", Body: "hello"})

	chat = s.Snapshot().Chat
	require.Len(t, chat, 1)
	assert.Equal(t, models.EntityID("chat-42"), chat[0].ID)
	assert.Equal(t, 0, s.Pending())

	// a single publish, never temp and real side by side
	require.Len(t, published, 1)
	assert.Len(t, published[0], 1)
}

func TestStore_ConfirmAfterServerEventDoesNotDuplicate(t *testing.T) {
	s := loaded(t)
	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: tempID, Body: "hello"}))

	server := models.ChatMessage{ID: "chat-42", Body: "hello"}
	s.Apply(events.ChatUpdated{Message: server})
	s.ConfirmChat(tempID, server)

	chat := s.Snapshot().Chat
	require.Len(t, chat, 1)
	assert.Equal(t, models.EntityID("chat-42"), chat[0].ID)
}

func TestStore_ServerEchoReplacesOwnPendingChat(t *testing.T) {
	s := loaded(t)
	author := models.Author{ParticipantID: "p1", Nickname: "cat"}
	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: tempID, Author: author, Body: "hello"}))

	var published [][]models.ChatMessage
	s.Subscribe(func(snap *models.RoomSnapshot) { published = append(published, snap.Chat) })

	server := models.ChatMessage{ID: "chat-42", Author: author, Body: "hello"}
	s.Apply(events.ChatUpdated{Message: server})
	s.ConfirmChat(tempID, server)

	chat := s.Snapshot().Chat
	require.Len(t, chat, 1)
	assert.Equal(t, models.EntityID("chat-42"), chat[0].ID)
	assert.Equal(t, 0, s.Pending())

	// never temp and real side by side
	require.Len(t, published, 1)
	assert.Len(t, published[0], 1)
}

func TestStore_EchoFromAnotherParticipantKeepsPending(t *testing.T) {
	s := loaded(t)
	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: tempID, Author: models.Author{ParticipantID: "p1"}, Body: "hi"}))

	s.Apply(events.ChatUpdated{Message: models.ChatMessage{ID: "chat-7", Author: models.Author{ParticipantID: "p2"}, Body: "hi"}})
	assert.Equal(t, 1, s.Pending())
	assert.Len(t, s.Snapshot().Chat, 2)
}

func TestStore_ConfirmAfterRoomSwitchIsDropped(t *testing.T) {
	s := loaded(t)
	chatID, evID, betID := models.NewTempID(), models.NewTempID(), models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: chatID, Body: "hello"}))
	require.NoError(t, s.AddPendingEvidence(models.Evidence{ID: evID, FactionID: "f1"}))
	require.NoError(t, s.AddPendingBet(betID, models.Bet{FactionID: "f2", Points: 100}))

	s.Reset()
	next := testSnapshot()
	next.Meta.ID = "room-2"
	next.Evidence = nil
	require.NoError(t, s.Replace(next))

	s.ConfirmChat(chatID, models.ChatMessage{ID: "chat-old", Body: "hello"})
	s.ConfirmEvidence(evID, models.Evidence{ID: "ev-old", FactionID: "f1"})
	s.ConfirmBet(betID, models.Betting{TotalPool: 1})

	snap := s.Snapshot()
	assert.Equal(t, "room-2", snap.Meta.ID)
	assert.Empty(t, snap.Chat)
	assert.Empty(t, snap.Evidence)
	assert.Equal(t, int64(1000), snap.Betting.TotalPool)
}

func TestStore_SiblingPendingResolveIndependently(t *testing.T) {
	s := loaded(t)
	a, b := models.NewTempID(), models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: a, Body: "one"}))
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: b, Body: "two"}))

	chat := s.Snapshot().Chat
	require.Len(t, chat, 2)
	assert.Equal(t, b, chat[0].ID)

	s.ConfirmChat(a, models.ChatMessage{ID: "chat-1", Body: "one"})
	chat = s.Snapshot().Chat
	require.Len(t, chat, 2)
	assert.Equal(t, b, chat[0].ID)
	assert.Equal(t, models.EntityID("chat-1"), chat[1].ID)

	assert.True(t, s.Rollback(b))
	chat = s.Snapshot().Chat
	require.Len(t, chat, 1)
	assert.Equal(t, models.EntityID("chat-1"), chat[0].ID)
}

func TestStore_PendingRequiresTempID(t *testing.T) {
	s := loaded(t)
	err := s.AddPendingChat(models.ChatMessage{ID: "chat-1"})
	assert.ErrorIs(t, err, ErrNotTempID)

	id := models.NewTempID()
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: id}))
	assert.ErrorIs(t, s.AddPendingChat(models.ChatMessage{ID: id}), ErrDuplicateTempID)
	assert.Len(t, s.Snapshot().Chat, 1)
}

func TestStore_PendingBeforeSnapshot(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.AddPendingChat(models.ChatMessage{ID: models.NewTempID()}), ErrNoSnapshot)
	assert.False(t, s.Apply(events.ChatUpdated{Message: models.ChatMessage{ID: "chat-1"}}))
	assert.Nil(t, s.Snapshot())
}

func TestStore_EvidenceRollbackRestoresGroup(t *testing.T) {
	s := loaded(t)
	before := s.Snapshot().Evidence[0].Submissions

	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingEvidence(models.Evidence{ID: tempID, FactionID: "f1", Summary: "new"}))
	assert.Len(t, s.Snapshot().Evidence[0].Submissions, 2)

	assert.True(t, s.Rollback(tempID))
	assert.Equal(t, before, s.Snapshot().Evidence[0].Submissions)
	assert.False(t, s.Rollback(tempID))
}

func TestStore_EvidenceCreatesGroupOnMiss(t *testing.T) {
	s := loaded(t)
	ev := events.EvidenceUpdated{FactionID: "f2", Evidence: models.Evidence{ID: "ev-2", FactionID: "f2"}}

	assert.True(t, s.Apply(ev))
	assert.False(t, s.Apply(ev))

	groups := s.Snapshot().Evidence
	require.Len(t, groups, 2)
	assert.Equal(t, "f2", groups[1].FactionID)
	assert.Len(t, groups[1].Submissions, 1)
	assert.Equal(t, 1, s.Snapshot().Factions[1].EvidenceCount)
}

func TestStore_EvidenceForUnknownFactionDropped(t *testing.T) {
	s := loaded(t)
	assert.False(t, s.Apply(events.EvidenceUpdated{FactionID: "ghost", Evidence: models.Evidence{ID: "ev-9"}}))
	assert.Len(t, s.Snapshot().Evidence, 1)

	err := s.AddPendingEvidence(models.Evidence{ID: models.NewTempID(), FactionID: "ghost"})
	assert.ErrorIs(t, err, models.ErrDanglingFaction)
}

func TestStore_ParticipantUpsertWithRedelivery(t *testing.T) {
	s := loaded(t)
	p2 := models.Participant{ID: "p2", FactionID: "f2", Stake: 50}
	ev := events.ParticipantUpdated{Participant: p2}

	assert.True(t, s.Apply(ev))

	// an older snapshot that already contains p2
	older := testSnapshot()
	older.Participants = append(older.Participants, models.Participant{ID: "p2", FactionID: "f1"})
	require.NoError(t, s.Replace(older))

	assert.True(t, s.Apply(ev))
	assert.False(t, s.Apply(ev))

	count := 0
	for _, p := range s.Snapshot().Participants {
		if p.ID == "p2" {
			count++
			assert.Equal(t, "f2", p.FactionID)
		}
	}
	assert.Equal(t, 1, count)
}

func TestStore_ParticipantPrependsNew(t *testing.T) {
	s := loaded(t)
	s.Apply(events.ParticipantUpdated{Participant: models.Participant{ID: "p9"}})
	assert.Equal(t, "p9", s.Snapshot().Participants[0].ID)
}

func TestStore_BettingUpdateReplacesWholesale(t *testing.T) {
	s := loaded(t)
	require.Equal(t, int64(1000), s.Snapshot().Betting.TotalPool)

	next := models.Betting{
		TotalPool: 1200,
		Factions:  []models.FactionPool{{FactionID: "f2", Points: 1200, Ratio: 1}},
		UpdatedAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
	assert.True(t, s.Apply(events.BettingUpdated{Betting: next}))
	assert.Equal(t, next, s.Snapshot().Betting)
}

func TestStore_PendingBetOverlayAndConfirm(t *testing.T) {
	s := loaded(t)
	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingBet(tempID, models.Bet{FactionID: "f2", Points: 100}))

	b := s.Snapshot().Betting
	assert.Equal(t, int64(1100), b.TotalPool)
	assert.Equal(t, int64(500), b.Factions[1].Points)

	// a concurrent server summary lands under the overlay
	s.Apply(events.BettingUpdated{Betting: models.Betting{TotalPool: 2000, Factions: []models.FactionPool{{FactionID: "f1", Points: 2000}}}})
	assert.Equal(t, int64(2100), s.Snapshot().Betting.TotalPool)

	s.ConfirmBet(tempID, models.Betting{TotalPool: 2100, Factions: []models.FactionPool{
		{FactionID: "f1", Points: 2000},
		{FactionID: "f2", Points: 100},
	}})
	assert.Equal(t, int64(2100), s.Snapshot().Betting.TotalPool)
	assert.Equal(t, 0, s.Pending())
}

func TestStore_PendingBetRollback(t *testing.T) {
	s := loaded(t)
	before := s.Snapshot().Betting
	tempID := models.NewTempID()
	require.NoError(t, s.AddPendingBet(tempID, models.Bet{FactionID: "f1", Points: 100}))
	s.Rollback(tempID)
	assert.Equal(t, before, s.Snapshot().Betting)
}

func TestStore_ReplaceDiscardsPending(t *testing.T) {
	s := loaded(t)
	require.NoError(t, s.AddPendingChat(models.ChatMessage{ID: models.NewTempID()}))
	require.Equal(t, 1, s.Pending())

	require.NoError(t, s.Replace(testSnapshot()))
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, s.Snapshot().Chat)
}

func TestStore_ReplaceRejectsDanglingFaction(t *testing.T) {
	s := loaded(t)
	bad := testSnapshot()
	bad.Participants = append(bad.Participants, models.Participant{ID: "px", FactionID: "ghost"})

	err := s.Replace(bad)
	assert.ErrorIs(t, err, models.ErrDanglingFaction)
	assert.Len(t, s.Snapshot().Participants, 1)
}

func TestStore_PublishedSnapshotsAreNotMutated(t *testing.T) {
	s := loaded(t)
	first := s.Snapshot()

	s.Apply(events.ChatUpdated{Message: models.ChatMessage{ID: "chat-1"}})
	s.Apply(events.EvidenceUpdated{FactionID: "f1", Evidence: models.Evidence{ID: "ev-2", FactionID: "f1"}})
	s.Apply(events.ParticipantUpdated{Participant: models.Participant{ID: "p1", FactionID: "f2"}})

	assert.Empty(t, first.Chat)
	assert.Len(t, first.Evidence[0].Submissions, 1)
	assert.Equal(t, "f1", first.Participants[0].FactionID)
	assert.NotSame(t, first, s.Snapshot())
}

func TestStore_ResetPublishesNil(t *testing.T) {
	s := loaded(t)
	var got []*models.RoomSnapshot
	unsubscribe := s.Subscribe(func(snap *models.RoomSnapshot) { got = append(got, snap) })

	s.Reset()
	require.Len(t, got, 1)
	assert.Nil(t, got[0])

	unsubscribe()
	require.NoError(t, s.Replace(testSnapshot()))
	assert.Len(t, got, 1)
}
