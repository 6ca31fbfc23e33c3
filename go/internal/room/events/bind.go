package events

import (
	"github.com/mcdev12/debateroom/go/internal/stream"
	"github.com/rs/zerolog/log"
)

// Source is the listener registration surface of a stream connection.
type Source interface {
	On(event string, fn stream.Listener) func()
}

// Handler receives decoded events.
type Handler func(Event)

// Bind registers one listener per known tag on src. Frames are decoded before
// the handler sees them; a frame that fails to decode is dropped.
// The returned function removes every listener Bind added.
func Bind(src Source, handler Handler) func() {
	names := Names()
	unsubscribe := make([]func(), 0, len(names))

	for _, name := range names {
		name := name
		unsubscribe = append(unsubscribe, src.On(string(name), func(f stream.Frame) {
			event, err := Decode(f.Event, f.Data)
			if err != nil {
				log.Debug().Err(err).Str("event", string(name)).Msg("dropping stream event")
				return
			}
			handler(event)
		}))
	}

	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}
