package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/lifecycle"
	"github.com/mcdev12/debateroom/go/internal/room/notify"
	"github.com/rs/zerolog/log"
)

// Service pushes room state changes to local UI clients and serves the UI routes
type Service struct {
	view              RoomView
	notices           <-chan notify.Notice
	connectionManager *ConnectionManager
	handler           *Handler
	unsubscribers     []func()
}

// NewService creates the gateway and subscribes it to v. notices may be nil.
func NewService(config ConnectionConfig, v RoomView, notices <-chan notify.Notice) *Service {
	cm := NewConnectionManager(config)
	s := &Service{
		view:              v,
		notices:           notices,
		connectionManager: cm,
		handler:           NewHandler(v, cm),
	}
	s.subscribe()
	return s
}

// Start runs the broadcaster until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway")

	go s.connectionManager.Start(ctx)
	defer s.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room gateway shutting down")
			return nil
		case n, ok := <-s.notices:
			if !ok {
				s.notices = nil
				continue
			}
			s.broadcast(EventTypeNotice, n)
		}
	}
}

func (s *Service) subscribe() {
	s.unsubscribers = []func(){
		s.view.Store().Subscribe(func(snap *models.RoomSnapshot) {
			s.broadcast(EventTypeSnapshotUpdated, snap)
		}),
		s.view.OnConnectionState(func(state models.ConnectionState) {
			s.broadcast(EventTypeConnectionChanged, ConnectionPayload{State: string(state), Live: s.view.Live()})
		}),
		s.view.Lifecycle().Subscribe(func(status lifecycle.Status) {
			s.broadcast(EventTypeLifecycleChanged, status)
		}),
	}
}

func (s *Service) unsubscribe() {
	for _, fn := range s.unsubscribers {
		fn()
	}
}

// RegisterRoutes registers the UI routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

func (s *Service) broadcast(eventType UIEventType, payload interface{}) {
	event, err := NewUIEvent(s.view.RoomID(), eventType, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build UI event")
		return
	}
	s.connectionManager.Broadcast(event)
}
