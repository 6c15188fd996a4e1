package tabichan

import (
	"errors"
	"fmt"
)

// Configuration and state errors. Synchronous API misuse surfaces these
// directly; backend and transport failures arrive through the event channel.
var (
	ErrMissingUserID    = errors.New("tabichan: user_id is required")
	ErrMissingAPIKey    = errors.New("tabichan: API key is not set")
	ErrConnected        = errors.New("tabichan: cannot change base URL while connected")
	ErrNotConnected     = errors.New("tabichan: websocket is not connected")
	ErrNoActiveQuestion = errors.New("tabichan: no active question to respond to")
	ErrConnectTimeout   = errors.New("tabichan: connection attempt timed out")
	ErrConnectAborted   = errors.New("tabichan: connection attempt abandoned by disconnect")
	ErrPollTimeout      = errors.New("tabichan: chat generation took too long")
)

// ChatError is a backend-reported error envelope, delivered via the
// chat_error event.
type ChatError struct {
	Message string
}

func (e *ChatError) Error() string { return e.Message }

// ChatFailedError reports a chat task that the backend marked failed while
// polling.
type ChatFailedError struct {
	TaskID string
	Reason string
}

func (e *ChatFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("tabichan: chat %s failed: %s", e.TaskID, reason)
}

// UnexpectedStatusError reports a poll status outside the known set
// (running, completed, failed).
type UnexpectedStatusError struct {
	TaskID string
	Status string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("tabichan: chat %s returned unexpected status %q", e.TaskID, e.Status)
}
