package snapshot

import (
	"context"
	"fmt"

	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Facet names one constituent fetch of a room snapshot.
type Facet string

const (
	FacetMeta         Facet = "meta"
	FacetParticipants Facet = "participants"
	FacetBetting      Facet = "betting"
	FacetEvidence     Facet = "evidence"
	FacetChat         Facet = "chat"
)

// Facets lists every facet a snapshot is assembled from.
func Facets() []Facet {
	return []Facet{FacetMeta, FacetParticipants, FacetBetting, FacetEvidence, FacetChat}
}

// Fetcher issues the read requests for each facet.
type Fetcher interface {
	FetchMeta(ctx context.Context, roomID string) (*models.RoomDetail, error)
	FetchParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	FetchBetting(ctx context.Context, roomID string) (*models.Betting, error)
	FetchEvidence(ctx context.Context, roomID string) ([]models.EvidenceGroup, error)
	FetchChat(ctx context.Context, roomID string) ([]models.ChatMessage, error)
}

// Loader assembles RoomSnapshots from parallel facet fetches.
type Loader struct {
	fetcher Fetcher
	cache   *Cache
}

func NewLoader(fetcher Fetcher, cache *Cache) *Loader {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL, nil)
	}
	return &Loader{fetcher: fetcher, cache: cache}
}

// Load returns a complete snapshot or, if any facet fails, nil and the first error.
// Facets still in the cache are not refetched.
func (l *Loader) Load(ctx context.Context, roomID string) (*models.RoomSnapshot, error) {
	g, gctx := errgroup.WithContext(ctx)

	values := make(map[Facet]interface{}, len(Facets()))
	results := make([]interface{}, len(Facets()))

	for i, facet := range Facets() {
		if v, ok := l.cache.get(roomID, facet); ok {
			values[facet] = v
			continue
		}

		i, facet := i, facet
		g.Go(func() error {
			v, err := l.fetch(gctx, roomID, facet)
			if err != nil {
				return fmt.Errorf("load %s: %w", facet, err)
			}
			l.cache.put(roomID, facet, v)
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("room snapshot load failed")
		return nil, err
	}

	for i, facet := range Facets() {
		if results[i] != nil {
			values[facet] = results[i]
		}
	}

	snap, err := compose(values)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("room_id", roomID).
		Int("participants", len(snap.Participants)).
		Int("chat", len(snap.Chat)).
		Msg("room snapshot loaded")
	return snap, nil
}

// Reload drops every cached facet of the room and loads again.
func (l *Loader) Reload(ctx context.Context, roomID string) (*models.RoomSnapshot, error) {
	l.cache.Invalidate(roomID, "")
	return l.Load(ctx, roomID)
}

// Refresh refetches a single facet and recomposes the snapshot from the cache.
func (l *Loader) Refresh(ctx context.Context, roomID string, facet Facet) (*models.RoomSnapshot, error) {
	l.cache.Invalidate(roomID, facet)
	return l.Load(ctx, roomID)
}

func (l *Loader) fetch(ctx context.Context, roomID string, facet Facet) (interface{}, error) {
	switch facet {
	case FacetMeta:
		return l.fetcher.FetchMeta(ctx, roomID)
	case FacetParticipants:
		return l.fetcher.FetchParticipants(ctx, roomID)
	case FacetBetting:
		return l.fetcher.FetchBetting(ctx, roomID)
	case FacetEvidence:
		return l.fetcher.FetchEvidence(ctx, roomID)
	case FacetChat:
		return l.fetcher.FetchChat(ctx, roomID)
	}
	return nil, fmt.Errorf("unknown facet %q", facet)
}

func compose(values map[Facet]interface{}) (*models.RoomSnapshot, error) {
	detail, _ := values[FacetMeta].(*models.RoomDetail)
	betting, _ := values[FacetBetting].(*models.Betting)
	if detail == nil || betting == nil {
		return nil, fmt.Errorf("compose snapshot: missing meta or betting facet")
	}

	participants, _ := values[FacetParticipants].([]models.Participant)
	evidence, _ := values[FacetEvidence].([]models.EvidenceGroup)
	chat, _ := values[FacetChat].([]models.ChatMessage)

	snap := (&models.RoomSnapshot{
		Meta:         detail.Meta,
		Factions:     detail.Factions,
		Betting:      *betting,
		Participants: participants,
		Evidence:     evidence,
		Chat:         chat,
	}).Clone()

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("compose snapshot: %w", err)
	}
	return snap, nil
}
