package gateway

import "encoding/json"

const (
	frameWelcome = "gateway.welcome"
	framePing    = "gateway.ping"
	framePong    = "gateway.pong"
	frameError   = "gateway.error"
	frameJoin    = "room.join"
	frameJoined  = "room.joined"
	frameLeave   = "room.leave"
	frameLeft    = "room.left"

	maxFramePayloadBytes = 4 * 1024
)

// controlFrame is every non-broadcast frame in both directions. Broadcasts
// are the bare event envelope {id, type, tenantId, payload, occurredAt}.
type controlFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type roomPayload struct {
	ProjectID string `json:"projectId"`
}

type roomResult struct {
	Room string `json:"room"`
}

type welcomePayload struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	TenantID     string   `json:"tenantId"`
	Rooms        []string `json:"rooms"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
