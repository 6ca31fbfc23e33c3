package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mcdev12/debateroom/go/clients/room_api_client"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/events"
	"github.com/mcdev12/debateroom/go/internal/room/lifecycle"
	"github.com/mcdev12/debateroom/go/internal/room/mutation"
	"github.com/mcdev12/debateroom/go/internal/room/notify"
	"github.com/mcdev12/debateroom/go/internal/room/snapshot"
	"github.com/mcdev12/debateroom/go/internal/room/store"
	"github.com/mcdev12/debateroom/go/internal/stream"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoRoom     = errors.New("no room selected")
	ErrSuperseded = errors.New("room selection superseded")
)

// Mirror receives every decoded stream event for the selected room.
type Mirror interface {
	Publish(roomID string, ev events.Event)
}

// Config wires a View to its collaborators.
type Config struct {
	Loader   *snapshot.Loader
	API      mutation.API
	Author   models.Author
	Stream   stream.Options // OnStateChange is owned by the view
	Notifier notify.Notifier
	Mirror   Mirror // optional
}

// View owns the live state of the selected room: snapshot store, stream
// connection, lifecycle controller and mutation flows.
type View struct {
	ctx       context.Context
	cfg       Config
	store     *store.Store
	lifecycle *lifecycle.Controller

	// applyMu fences stream event handling against generation changes
	applyMu sync.RWMutex
	applied atomic.Uint64

	mu        sync.Mutex
	gen       uint64
	roomID    string
	conn      *stream.Connection
	unbind    func()
	flows     *mutation.Flows
	connState models.ConnectionState
	connSubs  map[uint64]func(models.ConnectionState)
	nextSub   uint64
}

// New returns a view whose stream connections live until ctx is done or Close is called.
func New(ctx context.Context, cfg Config) *View {
	return &View{
		ctx:       ctx,
		cfg:       cfg,
		store:     store.New(),
		lifecycle: lifecycle.NewController(cfg.Stream.Clock, cfg.Notifier),
		connState: models.ConnectionIdle,
		connSubs:  make(map[uint64]func(models.ConnectionState)),
	}
}

func (v *View) Store() *store.Store { return v.store }
func (v *View) Lifecycle() *lifecycle.Controller { return v.lifecycle }
func (v *View) Snapshot() *models.RoomSnapshot { return v.store.Snapshot() }
func (v *View) Subscribe(fn store.Subscriber) func() { return v.store.Subscribe(fn) }

// RoomID returns the selected room, empty before the first Select.
func (v *View) RoomID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomID
}

// ConnectionState returns the stream state of the selected room. A room
// without a stream stays idle.
func (v *View) ConnectionState() models.ConnectionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connState
}

// Live reports whether the selected room has a stream connection.
func (v *View) Live() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn != nil
}

// OnConnectionState registers fn for stream state changes and returns a function that removes it.
func (v *View) OnConnectionState(fn func(models.ConnectionState)) func() {
	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	v.connSubs[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.connSubs, id)
		v.mu.Unlock()
	}
}

// Select switches to roomID: the previous room is torn down, the snapshot
// is loaded and the stream is opened. The store holds no snapshot until the
// load succeeds.
func (v *View) Select(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrNoRoom
	}

	v.mu.Lock()
	v.teardownLocked()
	v.gen++
	gen := v.gen
	v.roomID = roomID
	v.flows = mutation.NewFlows(roomID, v.store, v.cfg.API, v.cfg.Author, v.cfg.Notifier, v.cfg.Stream.Clock)
	v.mu.Unlock()
	v.advance(gen)

	v.lifecycle.Reset(roomID)
	v.store.Reset()
	v.setConnState(gen, models.ConnectionIdle)

	log.Info().Str("room_id", roomID).Msg("selecting room")

	snap, err := v.cfg.Loader.Load(ctx, roomID)
	if err != nil {
		return v.loadFailed(roomID, err)
	}
	if err := v.install(gen, snap); err != nil {
		return err
	}

	if snap.Meta.Ended() {
		log.Info().Str("room_id", roomID).Msg("room already ended, not streaming")
		return nil
	}
	return v.connect(gen, roomID)
}

// Retry reloads every facet of the selected room and replaces the store.
// Pending optimistic entities are discarded.
func (v *View) Retry(ctx context.Context) error {
	v.mu.Lock()
	roomID, gen := v.roomID, v.gen
	v.mu.Unlock()
	if roomID == "" {
		return ErrNoRoom
	}

	snap, err := v.cfg.Loader.Reload(ctx, roomID)
	if err != nil {
		return v.loadFailed(roomID, err)
	}
	return v.install(gen, snap)
}

// SendChat, SubmitEvidence and PlaceBet run the optimistic flows for the selected room.
func (v *View) SendChat(ctx context.Context, body string) (*models.ChatMessage, error) {
	flows, err := v.currentFlows()
	if err != nil {
		return nil, err
	}
	return flows.SendChat(ctx, body)
}

func (v *View) SubmitEvidence(ctx context.Context, draft models.EvidenceDraft) (*models.Evidence, error) {
	flows, err := v.currentFlows()
	if err != nil {
		return nil, err
	}
	return flows.SubmitEvidence(ctx, draft)
}

func (v *View) PlaceBet(ctx context.Context, factionID string, points int64) (*models.Betting, error) {
	flows, err := v.currentFlows()
	if err != nil {
		return nil, err
	}
	return flows.PlaceBet(ctx, factionID, points)
}

// Close tears down the selected room's stream. The last snapshot stays readable.
func (v *View) Close() {
	v.mu.Lock()
	v.teardownLocked()
	v.gen++
	gen := v.gen
	v.mu.Unlock()
	v.advance(gen)
}

func (v *View) currentFlows() (*mutation.Flows, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.flows == nil {
		return nil, ErrNoRoom
	}
	return v.flows, nil
}

func (v *View) install(gen uint64, snap *models.RoomSnapshot) error {
	if !v.current(gen) {
		return ErrSuperseded
	}
	if err := v.store.Replace(snap); err != nil {
		return err
	}
	v.lifecycle.ObserveSnapshot(snap)
	return nil
}

func (v *View) connect(gen uint64, roomID string) error {
	opts := v.cfg.Stream
	opts.OnStateChange = func(s models.ConnectionState) {
		v.setConnState(gen, s)
	}

	conn := stream.Open(v.ctx, room_api_client.StreamPath(roomID), opts)
	if conn == nil {
		return nil
	}
	unbind := events.Bind(conn, func(ev events.Event) {
		v.handle(gen, roomID, ev)
	})

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		unbind()
		conn.Close()
		return ErrSuperseded
	}
	v.conn = conn
	v.unbind = unbind
	v.mu.Unlock()

	conn.Start()
	return nil
}

// handle applies a stream event unless its room has been superseded.
func (v *View) handle(gen uint64, roomID string, ev events.Event) {
	v.applyMu.RLock()
	defer v.applyMu.RUnlock()
	if v.applied.Load() != gen {
		log.Debug().Str("room_id", roomID).Str("event", string(ev.Type())).Msg("stale room event dropped")
		return
	}

	v.store.Apply(ev)
	v.lifecycle.Observe(ev)
	if v.cfg.Mirror != nil {
		v.cfg.Mirror.Publish(roomID, ev)
	}
}

func (v *View) loadFailed(roomID string, err error) error {
	log.Error().Err(err).Str("room_id", roomID).Msg("failed to load room snapshot")
	if v.cfg.Notifier != nil {
		v.cfg.Notifier.Notify(notify.Notice{
			Level:   notify.LevelError,
			Message: "Could not load the room. Please retry.",
		})
	}
	return fmt.Errorf("load room %s: %w", roomID, err)
}

// advance moves the event fence to gen. Once it returns no handler for an
// older generation is running or will apply anything.
func (v *View) advance(gen uint64) {
	v.applyMu.Lock()
	if gen > v.applied.Load() {
		v.applied.Store(gen)
	}
	v.applyMu.Unlock()
}

func (v *View) current(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return gen == v.gen
}

// teardownLocked closes the stream. Its closed transition is still reported
// because the generation has not moved yet.
func (v *View) teardownLocked() {
	unbind, conn := v.unbind, v.conn
	v.unbind, v.conn = nil, nil
	if unbind == nil && conn == nil {
		return
	}

	v.mu.Unlock()
	if unbind != nil {
		unbind()
	}
	if conn != nil {
		conn.Close()
	}
	v.mu.Lock()
}

func (v *View) setConnState(gen uint64, s models.ConnectionState) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.connState = s
	subs := make([]func(models.ConnectionState), 0, len(v.connSubs))
	for _, fn := range v.connSubs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
