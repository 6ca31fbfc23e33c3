package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/debateroom/go/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketTransport_ReadsEnvelopes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat-updated","data":{"id":"chat-1"},"id":"7"}`))
		// keep the socket open until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer abc")
	r, err := NewWebSocketTransport().Connect(ctx, Request{URL: srv.URL + "/api/rooms/room-1/stream", Header: header})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "Bearer abc", <-gotAuth)

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "chat-updated", frame.Event)
	assert.JSONEq(t, `{"id":"chat-1"}`, string(frame.Data))
	assert.Equal(t, "7", frame.ID)
}

func TestWebSocketTransport_CancelUnblocksNext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewWebSocketTransport().Connect(ctx, Request{URL: srv.URL})
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := r.Next()
		errs <- err
	}()

	cancel()
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
}

func TestConnection_OverWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]interface{}{"event": "room-ending", "data": map[string]int{"remaining_seconds": 60}})
		conn.ReadMessage()
	}))
	defer srv.Close()

	conn := Open(context.Background(), "/api/rooms/room-1/stream", Options{
		BaseURL:   srv.URL,
		Tokens:    auth.NewSession(""),
		Transport: NewWebSocketTransport(),
	})
	require.NotNil(t, conn)
	defer conn.Close()

	frames := make(chan Frame, 1)
	conn.On("room-ending", func(f Frame) { frames <- f })
	conn.Start()

	select {
	case f := <-frames:
		assert.JSONEq(t, `{"remaining_seconds":60}`, string(f.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
}
