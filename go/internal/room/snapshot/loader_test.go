package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[Facet]int
	failures map[Facet]error
	chat     []models.ChatMessage
	factions []models.Faction
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:    make(map[Facet]int),
		failures: make(map[Facet]error),
		factions: []models.Faction{{ID: "f1"}, {ID: "f2"}},
	}
}

func (f *fakeFetcher) hit(facet Facet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[facet]++
	return f.failures[facet]
}

func (f *fakeFetcher) count(facet Facet) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[facet]
}

func (f *fakeFetcher) setFailure(facet Facet, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, facet)
		return
	}
	f.failures[facet] = err
}

func (f *fakeFetcher) FetchMeta(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	if err := f.hit(FacetMeta); err != nil {
		return nil, err
	}
	return &models.RoomDetail{Meta: models.RoomMeta{ID: roomID}, Factions: f.factions}, nil
}

func (f *fakeFetcher) FetchParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	if err := f.hit(FacetParticipants); err != nil {
		return nil, err
	}
	return []models.Participant{{ID: "p1", FactionID: "f1"}}, nil
}

func (f *fakeFetcher) FetchBetting(ctx context.Context, roomID string) (*models.Betting, error) {
	if err := f.hit(FacetBetting); err != nil {
		return nil, err
	}
	return &models.Betting{TotalPool: 1000, Factions: []models.FactionPool{{FactionID: "f1", Points: 1000}}}, nil
}

func (f *fakeFetcher) FetchEvidence(ctx context.Context, roomID string) ([]models.EvidenceGroup, error) {
	if err := f.hit(FacetEvidence); err != nil {
		return nil, err
	}
	return []models.EvidenceGroup{{FactionID: "f2"}}, nil
}

func (f *fakeFetcher) FetchChat(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	if err := f.hit(FacetChat); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatMessage(nil), f.chat...), nil
}

func TestLoader_LoadComposesAllFacets(t *testing.T) {
	f := newFakeFetcher()
	l := NewLoader(f, nil)

	snap, err := l.Load(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", snap.Meta.ID)
	assert.Len(t, snap.Factions, 2)
	assert.Equal(t, int64(1000), snap.Betting.TotalPool)
	assert.Len(t, snap.Participants, 1)
	assert.Len(t, snap.Evidence, 1)
	for _, facet := range Facets() {
		assert.Equal(t, 1, f.count(facet), facet)
	}
}

func TestLoader_PartialFailureYieldsNoSnapshot(t *testing.T) {
	f := newFakeFetcher()
	boom := errors.New("betting down")
	f.setFailure(FacetBetting, boom)
	l := NewLoader(f, nil)

	snap, err := l.Load(context.Background(), "room-1")
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, boom)

	f.setFailure(FacetBetting, nil)
	snap, err = l.Reload(context.Background(), "room-1")
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, 2, f.count(FacetBetting))
	assert.Equal(t, 2, f.count(FacetChat))
}

func TestLoader_RefreshOnlyRefetchesOneFacet(t *testing.T) {
	f := newFakeFetcher()
	l := NewLoader(f, nil)

	_, err := l.Load(context.Background(), "room-1")
	require.NoError(t, err)

	f.mu.Lock()
	f.chat = []models.ChatMessage{{ID: "chat-1"}}
	f.mu.Unlock()

	snap, err := l.Refresh(context.Background(), "room-1", FacetChat)
	require.NoError(t, err)
	assert.Len(t, snap.Chat, 1)
	assert.Equal(t, 2, f.count(FacetChat))
	assert.Equal(t, 1, f.count(FacetBetting))
	assert.Equal(t, 1, f.count(FacetMeta))
}

func TestLoader_CacheExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := newFakeFetcher()
	l := NewLoader(f, NewCache(10*time.Second, clock))

	_, err := l.Load(context.Background(), "room-1")
	require.NoError(t, err)
	_, err = l.Load(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(FacetMeta))

	clock.Advance(11 * time.Second)
	_, err = l.Load(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(FacetMeta))
}

func TestLoader_RejectsDanglingFaction(t *testing.T) {
	f := newFakeFetcher()
	f.factions = []models.Faction{{ID: "f1"}}
	l := NewLoader(f, nil)

	snap, err := l.Load(context.Background(), "room-1")
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, models.ErrDanglingFaction)
}
