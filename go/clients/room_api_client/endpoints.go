package room_api_client

import "fmt"

const (
	// API Endpoints
	RoomEndpoint         = "/api/rooms/%s"
	ParticipantsEndpoint = "/api/rooms/%s/participants"
	BettingEndpoint      = "/api/rooms/%s/betting"
	EvidenceEndpoint     = "/api/rooms/%s/evidence"
	ChatEndpoint         = "/api/rooms/%s/chat"
	BetsEndpoint         = "/api/rooms/%s/bets"
	StreamEndpoint       = "/api/rooms/%s/stream"

	// Headers
	AcceptHeader = "Accept"
	JSONMimeType = "application/json"
)

func roomPath(format, roomID string) string {
	return fmt.Sprintf(format, roomID)
}

// StreamPath returns the push stream path for a room.
func StreamPath(roomID string) string {
	return roomPath(StreamEndpoint, roomID)
}
