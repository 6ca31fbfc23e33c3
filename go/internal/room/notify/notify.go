package notify

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Level is the tone of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a transient, dismissable message for the user. It never
// carries room state.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"` // optional navigation target
	At      time.Time `json:"at"`
}

// Notifier delivers notices to whatever UI is listening.
type Notifier interface {
	Notify(n Notice)
}

// Channel is a buffered Notifier. When nobody drains it, new notices are
// dropped rather than blocking the caller.
type Channel struct {
	ch chan Notice
}

func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan Notice, size)}
}

func (c *Channel) Notify(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	select {
	case c.ch <- n:
	default:
		log.Warn().Str("level", string(n.Level)).Str("message", n.Message).Msg("notice channel full, dropping notice")
	}
}

// Notices returns the receive side of the channel.
func (c *Channel) Notices() <-chan Notice {
	return c.ch
}

// Func adapts a function to Notifier.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }
