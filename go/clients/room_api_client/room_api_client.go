package room_api_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/mcdev12/debateroom/go/clients"
	"github.com/mcdev12/debateroom/go/internal/auth"
	"github.com/mcdev12/debateroom/go/internal/models"
)

// RoomApiClient talks to the room REST endpoints. It serves both the
// snapshot loader (read facets) and the mutation flows (chat, evidence, bets).
type RoomApiClient struct {
	*clients.BaseClient
}

func NewRoomApiClient(baseURL string, session *auth.Session) *RoomApiClient {
	client := &RoomApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(AcceptHeader, JSONMimeType)
	if session != nil {
		client.SetTokenSource(session)
		client.OnUnauthorized(session.Expire)
	}

	return client
}

func (c *RoomApiClient) FetchMeta(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	var detail models.RoomDetail
	if err := c.GetJSON(ctx, roomPath(RoomEndpoint, roomID), &detail); err != nil {
		return nil, fmt.Errorf("fetch room meta: %w", err)
	}
	return &detail, nil
}

func (c *RoomApiClient) FetchParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	var participants []models.Participant
	if err := c.GetJSON(ctx, roomPath(ParticipantsEndpoint, roomID), &participants); err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}
	return participants, nil
}

func (c *RoomApiClient) FetchBetting(ctx context.Context, roomID string) (*models.Betting, error) {
	var betting models.Betting
	if err := c.GetJSON(ctx, roomPath(BettingEndpoint, roomID), &betting); err != nil {
		return nil, fmt.Errorf("fetch betting: %w", err)
	}
	return &betting, nil
}

func (c *RoomApiClient) FetchEvidence(ctx context.Context, roomID string) ([]models.EvidenceGroup, error) {
	var groups []models.EvidenceGroup
	if err := c.GetJSON(ctx, roomPath(EvidenceEndpoint, roomID), &groups); err != nil {
		return nil, fmt.Errorf("fetch evidence: %w", err)
	}
	return groups, nil
}

func (c *RoomApiClient) FetchChat(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	if err := c.GetJSON(ctx, roomPath(ChatEndpoint, roomID), &messages); err != nil {
		return nil, fmt.Errorf("fetch chat: %w", err)
	}
	return messages, nil
}

// SendChat posts a chat message and returns the stored message.
func (c *RoomApiClient) SendChat(ctx context.Context, roomID, body string) (*models.ChatMessage, error) {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat: %w", err)
	}

	data, err := c.Post(ctx, roomPath(ChatEndpoint, roomID), JSONMimeType, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var msg models.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode chat message: %w", err)
	}
	return &msg, nil
}

// SubmitEvidence uploads an evidence submission as multipart form data.
func (c *RoomApiClient) SubmitEvidence(ctx context.Context, roomID string, author models.Author, draft models.EvidenceDraft) (*models.Evidence, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"faction_id": draft.FactionID,
		"author":     author.ParticipantID,
		"summary":    draft.Summary,
		"body":       draft.Body,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	for _, img := range draft.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Filename))
		if img.ContentType != "" {
			h.Set("Content-Type", img.ContentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, fmt.Errorf("failed to write image %s: %w", img.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	data, err := c.Post(ctx, roomPath(EvidenceEndpoint, roomID), w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	var evidence models.Evidence
	if err := json.Unmarshal(data, &evidence); err != nil {
		return nil, fmt.Errorf("failed to decode evidence: %w", err)
	}
	return &evidence, nil
}

// PlaceBet stakes points on a faction and returns the updated betting summary.
func (c *RoomApiClient) PlaceBet(ctx context.Context, roomID, factionID string, points int64) (*models.Betting, error) {
	payload, err := json.Marshal(struct {
		FactionID string `json:"faction_id"`
		Points    int64  `json:"points"`
	}{factionID, points})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bet: %w", err)
	}

	data, err := c.Post(ctx, roomPath(BetsEndpoint, roomID), JSONMimeType, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var betting models.Betting
	if err := json.Unmarshal(data, &betting); err != nil {
		return nil, fmt.Errorf("failed to decode betting summary: %w", err)
	}
	return &betting, nil
}
