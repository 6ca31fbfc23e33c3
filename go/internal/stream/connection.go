package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/debateroom/go/internal/auth"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultRetryInterval is the fixed wait between reconnect attempts.
const DefaultRetryInterval = 2 * time.Second

var errStreamEnded = errors.New("stream ended by server")

// Listener receives frames for the event name it was registered under.
type Listener func(Frame)

// Options configures a stream connection.
type Options struct {
	BaseURL       string
	Disabled      bool // snapshot-only mode
	Tokens        auth.TokenSource
	Transport     Transport
	RetryInterval time.Duration
	// OnStateChange is called serially for every transition. It must not call Close.
	OnStateChange func(models.ConnectionState)
	Clock         clockwork.Clock
}

type listenerEntry struct {
	fn      Listener
	removed atomic.Bool
}

// Connection is a per-room push stream. It reconnects on a fixed interval,
// forever, until Close is called.
type Connection struct {
	url       string
	transport Transport
	tokens    auth.TokenSource
	retry     time.Duration
	clock     clockwork.Clock
	onState   func(models.ConnectionState)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	listeners map[string][]*listenerEntry
	state     models.ConnectionState
	started   bool
	closed    bool

	stateMu sync.Mutex
}

// Open prepares a connection to path. It returns nil when streaming is not
// available in this context; callers fall back to snapshot-only behavior.
// Listeners should be registered before Start.
func Open(ctx context.Context, path string, opts Options) *Connection {
	if opts.Disabled || opts.BaseURL == "" {
		log.Debug().Str("path", path).Msg("streaming unavailable, running snapshot-only")
		return nil
	}

	if opts.Transport == nil {
		opts.Transport = NewSSETransport()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	return &Connection{
		url:       strings.TrimRight(opts.BaseURL, "/") + path,
		transport: opts.Transport,
		tokens:    opts.Tokens,
		retry:     opts.RetryInterval,
		clock:     opts.Clock,
		onState:   opts.OnStateChange,
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		listeners: make(map[string][]*listenerEntry),
		state:     models.ConnectionIdle,
	}
}

// Start begins connecting. Calling it more than once, or after Close, is a no-op.
func (c *Connection) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

// On registers fn for frames named event and returns a function that removes it.
// Safe to call at any time, including from inside a listener.
func (c *Connection) On(event string, fn Listener) func() {
	entry := &listenerEntry{fn: fn}

	c.mu.Lock()
	if !c.closed {
		// copy on write so in-flight dispatch keeps iterating its own slice
		next := make([]*listenerEntry, 0, len(c.listeners[event])+1)
		next = append(next, c.listeners[event]...)
		c.listeners[event] = append(next, entry)
	}
	c.mu.Unlock()

	return func() {
		entry.removed.Store(true)

		c.mu.Lock()
		defer c.mu.Unlock()
		current := c.listeners[event]
		next := make([]*listenerEntry, 0, len(current))
		for _, e := range current {
			if e != entry {
				next = append(next, e)
			}
		}
		if len(next) == 0 {
			delete(c.listeners, event)
		} else {
			c.listeners[event] = next
		}
	}
}

// State returns the last reported connection state.
func (c *Connection) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops the connection: it cancels any pending reconnect, aborts the
// in-flight request and drops all listeners. Idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, entries := range c.listeners {
		for _, e := range entries {
			e.removed.Store(true)
		}
	}
	c.listeners = make(map[string][]*listenerEntry)
	c.mu.Unlock()

	c.cancel()

	c.stateMu.Lock()
	c.mu.Lock()
	c.state = models.ConnectionClosed
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(models.ConnectionClosed)
	}
	c.stateMu.Unlock()

	log.Debug().Str("url", c.url).Msg("stream connection closed")
}

// Done is closed once the connection goroutine has exited.
func (c *Connection) Done() <-chan struct{} {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

func (c *Connection) run() {
	defer close(c.done)

	for {
		c.setState(models.ConnectionConnecting)

		err := c.connectOnce()
		if c.ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Str("url", c.url).Dur("retry_in", c.retry).Msg("stream connection lost")
		c.setState(models.ConnectionError)

		timer := c.clock.NewTimer(c.retry)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

func (c *Connection) connectOnce() error {
	header := make(http.Header)
	if c.tokens != nil {
		if token, ok := c.tokens.Token(c.ctx); ok {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	reader, err := c.transport.Connect(c.ctx, Request{URL: c.url, Header: header})
	if err != nil {
		return err
	}
	defer reader.Close()

	c.setState(models.ConnectionOpen)

	for {
		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errStreamEnded
			}
			return err
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame Frame) {
	if frame.Event == "" {
		return
	}

	c.mu.Lock()
	entries := c.listeners[frame.Event]
	c.mu.Unlock()

	if len(entries) == 0 {
		log.Debug().Str("event", frame.Event).Msg("no listener for stream event")
		return
	}
	for _, e := range entries {
		if e.removed.Load() {
			continue
		}
		e.fn(frame)
	}
}

func (c *Connection) setState(s models.ConnectionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(s)
	}
}
