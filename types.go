package tabichan

import (
	"encoding/json"

	"github.com/podtech-ai/tabichan-go-sdk/wire"
)

// Country selects the regional planning backend.
type Country string

// Supported countries.
const (
	CountryJapan  Country = "japan"
	CountryFrance Country = "france"
)

// HistoryEntry is one prior conversation turn, shared with the WebSocket
// protocol.
type HistoryEntry = wire.HistoryEntry

// ChatOptions carries the optional parameters of StartChat. The zero value
// targets Japan with no history.
type ChatOptions struct {
	Country          Country
	History          []HistoryEntry
	AdditionalInputs map[string]any
}

// Chat task statuses reported by the poll endpoint.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PollResponse is the state of a chat task as returned by GET /chat/poll.
type PollResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// startChatRequest is the body of POST /chat.
type startChatRequest struct {
	UserQuery        string         `json:"user_query"`
	UserID           string         `json:"user_id"`
	Country          Country        `json:"country"`
	History          []HistoryEntry `json:"history"`
	AdditionalInputs map[string]any `json:"additional_inputs"`
}

// startChatResponse is returned by POST /chat.
type startChatResponse struct {
	TaskID string `json:"task_id"`
}

// imageResponse is returned by GET /image.
type imageResponse struct {
	Base64 string `json:"base64"`
}
