package lifecycle

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/events"
	"github.com/mcdev12/debateroom/go/internal/room/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	notices []notify.Notice
}

func (r *recorder) Notify(n notify.Notice) { r.notices = append(r.notices, n) }

func TestController_EndingThenEnded(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	rec := &recorder{}
	c := NewController(clock, rec)
	c.Reset("room-1")

	c.Observe(events.RoomEnding{EndsAt: clock.Now().Add(90 * time.Second), RemainingSeconds: 90})
	assert.Equal(t, StateEnding, c.State())
	assert.Equal(t, 90*time.Second, c.Remaining())
	require.Len(t, rec.notices, 1)
	assert.Equal(t, notify.LevelInfo, rec.notices[0].Level)
	assert.Empty(t, rec.notices[0].Path)

	clock.Advance(30 * time.Second)
	assert.Equal(t, 60*time.Second, c.Remaining())

	c.Observe(events.RoomEnded{})
	assert.Equal(t, StateEnded, c.State())
	assert.Equal(t, "/rooms/room-1/result", c.ResultPath())
	require.Len(t, rec.notices, 2)
	assert.Equal(t, notify.LevelSuccess, rec.notices[1].Level)
	assert.Equal(t, "/rooms/room-1/result", rec.notices[1].Path)

	// never back to ending
	c.Observe(events.RoomEnding{RemainingSeconds: 10})
	c.Observe(events.RoomEnded{})
	assert.Equal(t, StateEnded, c.State())
	assert.Len(t, rec.notices, 2)
}

func TestController_EndingFromRemainingHint(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(clock, nil)
	c.Reset("room-1")

	c.Observe(events.RoomEnding{RemainingSeconds: 120})
	assert.Equal(t, clock.Now().Add(2*time.Minute), c.EndsAt())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, time.Duration(0), c.Remaining())
}

func TestController_SnapshotAlreadyEnded(t *testing.T) {
	rec := &recorder{}
	c := NewController(clockwork.NewFakeClock(), rec)
	c.Reset("room-7")

	ended := time.Now()
	c.ObserveSnapshot(&models.RoomSnapshot{Meta: models.RoomMeta{ID: "room-7", EndedAt: &ended}})

	assert.Equal(t, StateEnded, c.State())
	assert.Equal(t, "/rooms/room-7/result", c.ResultPath())
	require.Len(t, rec.notices, 1)
	assert.Equal(t, notify.LevelSuccess, rec.notices[0].Level)
}

func TestController_SnapshotSetsCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(clock, nil)
	c.Reset("room-1")

	c.ObserveSnapshot(&models.RoomSnapshot{Meta: models.RoomMeta{EndsAt: clock.Now().Add(10 * time.Minute)}})
	assert.Equal(t, StateActive, c.State())
	assert.Equal(t, 10*time.Minute, c.Remaining())
}

func TestController_ResetForgetsPreviousRoom(t *testing.T) {
	c := NewController(clockwork.NewFakeClock(), nil)
	c.Reset("room-1")
	c.Observe(events.RoomEnded{ResultPath: "/custom"})
	assert.Equal(t, "/custom", c.ResultPath())

	var statuses []Status
	c.Subscribe(func(s Status) { statuses = append(statuses, s) })

	c.Reset("room-2")
	assert.Equal(t, StateActive, c.State())
	assert.Empty(t, c.ResultPath())
	assert.True(t, c.EndsAt().IsZero())
	require.Len(t, statuses, 1)
	assert.Equal(t, "room-2", statuses[0].RoomID)
}
