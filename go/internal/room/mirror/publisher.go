package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/debateroom/go/internal/room/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // how long to keep mirrored events
	QueueSize     int           // events buffered before the stream listener starts dropping
	MaxRetries    int
	RetryDelay    time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		SubjectPrefix: "room.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
		QueueSize:     256,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
	}
}

// msgPublisher is the part of jetstream.JetStream the mirror needs.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type queued struct {
	roomID string
	event  events.Event
}

// Publisher mirrors decoded room events onto a JetStream stream. Publish
// never blocks the caller: events are queued and sent by a background worker.
type Publisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig
	queue  chan queued

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("roomwatch-mirror"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(context.Background(), js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc
	return p, nil
}

func newPublisher(js msgPublisher, cfg JetStreamConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultJetStreamConfig().QueueSize
	}
	return &Publisher{
		js:     js,
		config: cfg,
		queue:  make(chan queued, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Mirrored debate room events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
	}

	if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
		return err
	}
	log.Info().Str("stream", cfg.StreamName).Msg("JetStream stream ready")
	return nil
}

// Start runs the publish worker until ctx is done or Stop is called.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	log.Info().Str("subject_prefix", p.config.SubjectPrefix).Msg("room event mirror started")
	return nil
}

// Stop halts the worker. Queued events that were not yet sent are dropped.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror publisher not running")
	}
	p.running = false
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()

	if p.nc != nil {
		p.nc.Close()
	}
	log.Info().Msg("room event mirror stopped")
	return nil
}

// Publish queues ev for mirroring.
func (p *Publisher) Publish(roomID string, ev events.Event) {
	select {
	case p.queue <- queued{roomID: roomID, event: ev}:
	default:
		log.Warn().
			Str("room_id", roomID).
			Str("event", string(ev.Type())).
			Msg("mirror queue full, dropping event")
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case q := <-p.queue:
			if err := p.publishWithRetry(ctx, q); err != nil {
				log.Error().
					Err(err).
					Str("room_id", q.roomID).
					Str("event", string(q.event.Type())).
					Msg("failed to mirror room event")
			}
		}
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, q queued) error {
	msg, eventID, err := p.buildMsg(q.roomID, q.event, time.Now().UTC())
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.stop:
				return lastErr
			case <-time.After(p.config.RetryDelay):
			}
		}

		ack, err := p.js.PublishMsg(ctx, msg,
			jetstream.WithMsgID(eventID),
			jetstream.WithExpectStream(p.config.StreamName),
		)
		if err == nil {
			log.Debug().
				Str("subject", msg.Subject).
				Str("event_id", eventID).
				Uint64("sequence", ack.Sequence).
				Msg("mirrored room event")
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("publish to JetStream: %w", lastErr)
}

func (p *Publisher) buildMsg(roomID string, ev events.Event, at time.Time) (*nats.Msg, string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, "", fmt.Errorf("marshal event: %w", err)
	}

	eventID := uuid.NewString()
	eventType := string(ev.Type())
	data, err := json.Marshal(envelope{
		EventID:   eventID,
		EventType: eventType,
		RoomID:    roomID,
		Timestamp: at,
		Payload:   payload,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal envelope: %w", err)
	}

	return &nats.Msg{
		Subject: Subject(p.config.SubjectPrefix, roomID, eventType),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventType},
			"Room-ID":    []string{roomID},
			"Event-ID":   []string{eventID},
		},
	}, eventID, nil
}

// Subject returns prefix.<roomID>.<event>. NATS token separators and
// wildcards in the room ID are replaced with '_'.
func Subject(prefix, roomID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(roomID), eventType)
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
