// Package wire defines the JSON envelope types for the Tabichan chat
// protocol. Every frame is a JSON object over a WebSocket text frame with a
// "type" discriminator. This package is the single source of truth for the
// SDK's framing.
package wire

import "encoding/json"

// Message types carried in the "type" field.
const (
	TypeChatRequest = "chat_request" // client -> server
	TypeResponse    = "response"    // client -> server
	TypeQuestion    = "question"    // server -> client
	TypeResult      = "result"      // server -> client
	TypeComplete    = "complete"    // server -> client
	TypeError       = "error"       // server -> client
)

// TypeUnknown is the classification assigned to frames that do not parse as
// an envelope. It never appears on the wire.
const TypeUnknown = "unknown"

// HistoryEntry is one prior conversation turn.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest starts a planning session (client -> server).
type ChatRequest struct {
	Type        string         `json:"type"`
	Query       string         `json:"query"`
	History     []HistoryEntry `json:"history"`
	Preferences map[string]any `json:"preferences"`
}

// NewChatRequest builds a chat_request frame. History and preferences are
// normalised to empty (not null) so the encoded JSON always carries an array
// and an object.
func NewChatRequest(query string, history []HistoryEntry, preferences map[string]any) ChatRequest {
	if history == nil {
		history = []HistoryEntry{}
	}
	if preferences == nil {
		preferences = map[string]any{}
	}
	return ChatRequest{
		Type:        TypeChatRequest,
		Query:       query,
		History:     history,
		Preferences: preferences,
	}
}

// Response answers an outstanding clarification question (client -> server).
type Response struct {
	Type       string `json:"type"`
	QuestionID string `json:"question_id"`
	Response   string `json:"response"`
}

// NewResponse builds a response frame for the given question.
func NewResponse(questionID, answer string) Response {
	return Response{
		Type:       TypeResponse,
		QuestionID: questionID,
		Response:   answer,
	}
}

// Envelope is a decoded inbound frame. Data is absent for some types
// (e.g. complete).
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Question is the data payload of a question envelope.
type Question struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text,omitempty"`
}

// Decode parses a text frame into an Envelope. Frames that are not valid
// JSON objects or carry no type are classified as TypeUnknown with the raw
// frame preserved in Data. A bad frame is a classification, never a decode
// failure.
func Decode(frame []byte) Envelope {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Type == "" {
		return Envelope{Type: TypeUnknown, Data: json.RawMessage(frame)}
	}
	return env
}

// ErrorMessage extracts a human-readable message from an error envelope's
// data. The backend sends either a bare string or an object with a message
// field.
func ErrorMessage(data json.RawMessage) string {
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(data)
}
