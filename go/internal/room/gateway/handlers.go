package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mcdev12/debateroom/go/clients"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/lifecycle"
	"github.com/mcdev12/debateroom/go/internal/room/mutation"
	"github.com/mcdev12/debateroom/go/internal/room/store"
	"github.com/mcdev12/debateroom/go/internal/room/view"
	"github.com/rs/zerolog/log"
)

const maxUploadSize = 32 << 20

// RoomView is the room state the gateway exposes to the local UI
type RoomView interface {
	RoomID() string
	Store() *store.Store
	Lifecycle() *lifecycle.Controller
	ConnectionState() models.ConnectionState
	OnConnectionState(fn func(models.ConnectionState)) func()
	Live() bool

	Select(ctx context.Context, roomID string) error
	Retry(ctx context.Context) error
	SendChat(ctx context.Context, body string) (*models.ChatMessage, error)
	SubmitEvidence(ctx context.Context, draft models.EvidenceDraft) (*models.Evidence, error)
	PlaceBet(ctx context.Context, factionID string, points int64) (*models.Betting, error)
}

// StateResponse is the full room state returned by GET /api/room/state
type StateResponse struct {
	RoomID     string               `json:"room_id"`
	Connection ConnectionPayload    `json:"connection"`
	Lifecycle  lifecycle.Status     `json:"lifecycle"`
	Pending    int                  `json:"pending"`
	Snapshot   *models.RoomSnapshot `json:"snapshot"`
}

type selectRequest struct {
	RoomID string `json:"room_id"`
}

type chatRequest struct {
	Body string `json:"body"`
}

type betRequest struct {
	FactionID string `json:"faction_id"`
	Points    int64  `json:"points"`
}

// Handler serves the local UI REST and websocket routes
type Handler struct {
	view    RoomView
	manager *ConnectionManager
}

func NewHandler(v RoomView, cm *ConnectionManager) *Handler {
	return &Handler{view: v, manager: cm}
}

// RegisterRoutes registers the UI routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleConnect)
	mux.HandleFunc("GET /ws/stats", h.HandleStats)
	mux.HandleFunc("GET /api/room/state", h.HandleGetState)
	mux.HandleFunc("POST /api/room/select", h.HandleSelect)
	mux.HandleFunc("POST /api/room/retry", h.HandleRetry)
	mux.HandleFunc("POST /api/room/chat", h.HandleChat)
	mux.HandleFunc("POST /api/room/evidence", h.HandleEvidence)
	mux.HandleFunc("POST /api/room/bet", h.HandleBet)
}

func (h *Handler) state() StateResponse {
	st := h.view.Store()
	return StateResponse{
		RoomID: h.view.RoomID(),
		Connection: ConnectionPayload{
			State: string(h.view.ConnectionState()),
			Live:  h.view.Live(),
		},
		Lifecycle: h.view.Lifecycle().Status(),
		Pending:   st.Pending(),
		Snapshot:  st.Snapshot(),
	}
}

// HandleConnect upgrades to a websocket and primes it with the current state
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	s := h.state()
	var initial []*UIEvent
	for _, e := range []struct {
		t UIEventType
		p interface{}
	}{
		{EventTypeSnapshotUpdated, s.Snapshot},
		{EventTypeConnectionChanged, s.Connection},
		{EventTypeLifecycleChanged, s.Lifecycle},
	} {
		event, err := NewUIEvent(s.RoomID, e.t, e.p)
		if err != nil {
			log.Error().Err(err).Msg("failed to build initial event")
			continue
		}
		initial = append(initial, event)
	}

	// Upgrade writes its own error response
	if _, err := h.manager.Upgrade(w, r, initial); err != nil {
		log.Error().Err(err).Msg("failed to upgrade UI websocket")
	}
}

// HandleStats handles GET /ws/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_connections": h.manager.ClientCount(),
		"room_id":           h.view.RoomID(),
	})
}

// HandleGetState handles GET /api/room/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

// HandleSelect handles POST /api/room/select
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoomID == "" {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}
	if err := h.view.Select(r.Context(), req.RoomID); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state())
}

// HandleRetry handles POST /api/room/retry
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if err := h.view.Retry(r.Context()); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state())
}

// HandleChat handles POST /api/room/chat
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.view.SendChat(r.Context(), req.Body)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleEvidence handles POST /api/room/evidence as multipart/form-data with
// faction_id, summary and body fields plus any number of "images" files.
func (h *Handler) HandleEvidence(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	draft := models.EvidenceDraft{
		FactionID: r.FormValue("faction_id"),
		Summary:   r.FormValue("summary"),
		Body:      r.FormValue("body"),
	}
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable image")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable image")
			return
		}
		draft.Images = append(draft.Images, models.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	ev, err := h.view.SubmitEvidence(r.Context(), draft)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// HandleBet handles POST /api/room/bet
func (h *Handler) HandleBet(w http.ResponseWriter, r *http.Request) {
	var req betRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	betting, err := h.view.PlaceBet(r.Context(), req.FactionID, req.Points)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, betting)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeMutationError maps flow errors onto HTTP statuses. Server rejections
// keep the upstream status and message.
func writeMutationError(w http.ResponseWriter, err error) {
	var apiErr *clients.APIError
	switch {
	case errors.As(err, &apiErr):
		writeError(w, apiErr.StatusCode, apiErr.Message)
	case errors.Is(err, mutation.ErrRejected), errors.Is(err, models.ErrDanglingFaction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, view.ErrNoRoom), errors.Is(err, store.ErrNoSnapshot):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, view.ErrSuperseded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
