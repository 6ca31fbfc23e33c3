package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/events"
	"github.com/mcdev12/debateroom/go/internal/room/notify"
	"github.com/rs/zerolog/log"
)

// State is the room's end-of-life phase. Transitions only move forward.
type State string

const (
	StateActive State = "active"
	StateEnding State = "ending"
	StateEnded  State = "ended"
)

func (s State) rank() int {
	switch s {
	case StateEnding:
		return 1
	case StateEnded:
		return 2
	}
	return 0
}

// Status is the UI-facing view of the controller.
type Status struct {
	RoomID           string    `json:"room_id"`
	State            State     `json:"state"`
	EndsAt           time.Time `json:"ends_at,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds"`
	ResultPath       string    `json:"result_path,omitempty"`
}

// ResultPath is the default result page for a room.
func ResultPath(roomID string) string {
	return fmt.Sprintf("/rooms/%s/result", roomID)
}

// Controller derives ending/ended state from stream events and snapshots.
// It raises notices but never navigates.
type Controller struct {
	clock    clockwork.Clock
	notifier notify.Notifier

	mu         sync.Mutex
	roomID     string
	state      State
	endsAt     time.Time
	resultPath string
	subs       map[uint64]func(Status)
	nextSub    uint64
}

func NewController(clock clockwork.Clock, notifier notify.Notifier) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		clock:    clock,
		notifier: notifier,
		state:    StateActive,
		subs:     make(map[uint64]func(Status)),
	}
}

// Reset starts tracking roomID from scratch.
func (c *Controller) Reset(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.state = StateActive
	c.endsAt = time.Time{}
	c.resultPath = ""
	c.mu.Unlock()

	c.publish()
}

// Observe handles room-ending and room-ended; other events are ignored.
func (c *Controller) Observe(ev events.Event) {
	switch e := ev.(type) {
	case events.RoomEnding:
		c.markEnding(e.EndsAt, e.RemainingSeconds)
	case events.RoomEnded:
		c.markEnded(e.ResultPath)
	}
}

// ObserveSnapshot picks up the countdown and detects rooms that already ended.
func (c *Controller) ObserveSnapshot(snap *models.RoomSnapshot) {
	if snap == nil {
		return
	}
	if snap.Meta.Ended() {
		c.markEnded("")
		return
	}

	c.mu.Lock()
	if c.endsAt.IsZero() && !snap.Meta.EndsAt.IsZero() {
		c.endsAt = snap.Meta.EndsAt
	}
	c.mu.Unlock()
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EndsAt returns the announced end time, zero if unknown.
func (c *Controller) EndsAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endsAt
}

// Remaining returns the time left before EndsAt, never negative.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

// ResultPath returns the navigation target once ended, empty before.
func (c *Controller) ResultPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultPath
}

// Status returns a copy of the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn for every state change and returns a function that removes it.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) markEnding(endsAt time.Time, remainingSeconds int) {
	c.mu.Lock()
	if c.state.rank() > StateEnding.rank() {
		c.mu.Unlock()
		return
	}
	first := c.state == StateActive
	c.state = StateEnding
	switch {
	case !endsAt.IsZero():
		c.endsAt = endsAt
	case remainingSeconds > 0:
		c.endsAt = c.clock.Now().Add(time.Duration(remainingSeconds) * time.Second)
	}
	roomID := c.roomID
	remaining := c.remainingLocked()
	c.mu.Unlock()

	if first {
		log.Info().Str("room_id", roomID).Dur("remaining", remaining).Msg("room ending")
		c.notify(notify.Notice{
			Level:   notify.LevelInfo,
			Message: fmt.Sprintf("The debate ends in %s.", remaining.Round(time.Second)),
		})
	}
	c.publish()
}

func (c *Controller) markEnded(resultPath string) {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	if resultPath == "" {
		resultPath = ResultPath(c.roomID)
	}
	c.resultPath = resultPath
	roomID := c.roomID
	c.mu.Unlock()

	log.Info().Str("room_id", roomID).Str("result_path", resultPath).Msg("room ended")
	c.notify(notify.Notice{
		Level:   notify.LevelSuccess,
		Message: "The debate has ended. Results are ready.",
		Path:    resultPath,
	})
	c.publish()
}

func (c *Controller) remainingLocked() time.Duration {
	if c.endsAt.IsZero() {
		return 0
	}
	d := c.endsAt.Sub(c.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (c *Controller) statusLocked() Status {
	return Status{
		RoomID:           c.roomID,
		State:            c.state,
		EndsAt:           c.endsAt,
		RemainingSeconds: int(c.remainingLocked().Seconds()),
		ResultPath:       c.resultPath,
	}
}

func (c *Controller) notify(n notify.Notice) {
	if c.notifier == nil {
		return
	}
	n.At = c.clock.Now()
	c.notifier.Notify(n)
}

func (c *Controller) publish() {
	c.mu.Lock()
	status := c.statusLocked()
	subs := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}
