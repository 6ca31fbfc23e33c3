package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans UI events out to every connected websocket client
type ConnectionManager struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *UIEvent
}

// Client is one local UI websocket
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for UI websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096, // snapshots are larger than control frames
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			// local UI only
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}
	return &ConnectionManager{
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *UIEvent, 256),
	}
}

// Start processes broadcasts until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// Upgrade upgrades an HTTP request to a websocket client. initial is
// delivered before any broadcast.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, initial []*UIEvent) (*Client, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	client := &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize+len(initial)),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	for _, event := range initial {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("type", string(event.Type)).Msg("failed to marshal initial event")
			continue
		}
		client.Send <- data
	}

	cm.register(client)

	go client.writePump()
	go client.readPump()

	log.Info().Str("client_id", client.ID).Msg("UI websocket connected")
	return client, nil
}

// Broadcast queues event for every client
func (cm *ConnectionManager) Broadcast(event *UIEvent) {
	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (cm *ConnectionManager) ClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

func (cm *ConnectionManager) register(c *Client) {
	cm.mu.Lock()
	cm.clients[c] = true
	total := len(cm.clients)
	cm.mu.Unlock()

	log.Debug().Str("client_id", c.ID).Int("total_clients", total).Msg("client registered")
}

func (cm *ConnectionManager) unregister(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.clients[c]; ok {
		delete(cm.clients, c)
		close(c.Send)
		log.Info().Str("client_id", c.ID).Msg("UI websocket disconnected")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for c := range cm.clients {
		clients = append(clients, c)
	}
	cm.mu.RUnlock()

	for _, c := range clients {
		cm.unregister(c)
	}
}

func (cm *ConnectionManager) handleBroadcast(event *UIEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// sends happen under the read lock so unregister cannot close Send mid-broadcast
	var slow []*Client
	cm.mu.RLock()
	delivered := 0
	for c := range cm.clients {
		select {
		case c.Send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	cm.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("client_id", c.ID).Msg("client send buffer full, closing connection")
		cm.unregister(c)
		c.Conn.Close()
	}

	log.Debug().
		Str("type", string(event.Type)).
		Str("room_id", event.RoomID).
		Int("clients", delivered).
		Msg("event broadcasted")
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("client_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only drains control frames; UI commands go through the REST routes.
func (c *Client) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.ID).Msg("unexpected websocket close error")
			}
			return
		}
		log.Debug().Str("client_id", c.ID).Int("bytes", len(message)).Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
