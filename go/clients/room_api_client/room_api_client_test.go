package room_api_client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/debateroom/go/clients"
	"github.com/mcdev12/debateroom/go/internal/auth"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomApiClient_FetchChatSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/r1/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]models.ChatMessage{{ID: "chat-1", Body: "hi"}})
	}))
	defer srv.Close()

	c := NewRoomApiClient(srv.URL, auth.NewSession("tok"))
	msgs, err := c.FetchChat(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.EntityID("chat-1"), msgs[0].ID)
}

func TestRoomApiClient_AnonymousHasNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"total_pool": 10, "factions": []}`))
	}))
	defer srv.Close()

	c := NewRoomApiClient(srv.URL, auth.NewSession(""))
	betting, err := c.FetchBetting(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), betting.TotalPool)
}

func TestRoomApiClient_RejectionMessageIsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message": "already placed a bet in this room"}`))
	}))
	defer srv.Close()

	c := NewRoomApiClient(srv.URL, nil)
	_, err := c.PlaceBet(context.Background(), "r1", "f1", 100)
	require.Error(t, err)

	var apiErr *clients.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "already placed a bet in this room", apiErr.Message)
}

func TestRoomApiClient_UnauthorizedExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	session := auth.NewSession("stale")
	c := NewRoomApiClient(srv.URL, session)
	_, err := c.SendChat(context.Background(), "r1", "hello")
	require.Error(t, err)
	assert.True(t, clients.IsStatus(err, http.StatusUnauthorized))

	_, ok := session.Token(context.Background())
	assert.False(t, ok)
}

func TestRoomApiClient_SubmitEvidenceMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "f1", r.FormValue("faction_id"))
		assert.Equal(t, "p1", r.FormValue("author"))
		assert.Equal(t, "sum", r.FormValue("summary"))

		files := r.MultipartForm.File["images"]
		if !assert.Len(t, files, 1) {
			return
		}
		f, err := files[0].Open()
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "png-bytes", string(data))

		json.NewEncoder(w).Encode(models.Evidence{ID: "ev-9", FactionID: "f1", Summary: "sum"})
	}))
	defer srv.Close()

	c := NewRoomApiClient(srv.URL, nil)
	ev, err := c.SubmitEvidence(context.Background(), "r1", models.Author{ParticipantID: "p1"}, models.EvidenceDraft{
		FactionID: "f1",
		Summary:   "sum",
		Body:      "body",
		Images:    []models.Image{{Filename: "a.png", ContentType: "image/png", Data: []byte("png-bytes")}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EntityID("ev-9"), ev.ID)
}
