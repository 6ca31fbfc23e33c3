package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketTransport receives frames over a websocket. Each text message is a
// JSON envelope {"event": "...", "data": {...}, "id": "..."}.
type WebSocketTransport struct {
	Dialer *websocket.Dialer
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{Dialer: websocket.DefaultDialer}
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	ID    string          `json:"id,omitempty"`
}

func (t *WebSocketTransport) Connect(ctx context.Context, req Request) (FrameReader, error) {
	conn, _, err := t.Dialer.DialContext(ctx, websocketURL(req.URL), req.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	r := &wsReader{conn: conn, done: make(chan struct{})}

	// gorilla connections ignore ctx after the handshake
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-r.done:
		}
	}()

	return r, nil
}

type wsReader struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (r *wsReader) Next() (Frame, error) {
	for {
		msgType, message, err := r.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Debug().Err(err).Msg("dropping malformed websocket frame")
			continue
		}
		return Frame{Event: env.Event, Data: env.Data, ID: env.ID}, nil
	}
}

func (r *wsReader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.conn.Close()
	})
	return err
}

func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
