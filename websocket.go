// Package tabichan provides a Go client for the Tabichan travel-planning
// chat service. It offers an event-driven WebSocket session client for
// interactive planning with clarifying questions, and a synchronous HTTP
// polling client against the same backend.
package tabichan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/podtech-ai/tabichan-go-sdk/wire"
)

// DefaultWSBaseURL is the production WebSocket endpoint.
const DefaultWSBaseURL = "wss://tabichan.podtech-ai.com/v1"

// connectTimeout bounds a single connection handshake.
const connectTimeout = 10 * time.Second

// ConnectionState is derived from the connection handle and its flags, never
// stored separately.
type ConnectionState int

const (
	// StateDisconnected means no connection handle exists.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a handle exists but the session is not ready.
	StateConnecting
	// StateConnected means the session is open and ready.
	StateConnected
	// StateClosed means a handle exists but the transport reported closure.
	StateClosed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WSClient is an event-driven session client for the Tabichan WebSocket
// API. Subscribe handlers with On, then Connect; inbound frames are decoded
// and surfaced as events while StartChat and SendResponse drive the
// conversation.
//
// A WSClient holds one logical session. The inbound dispatcher goroutine is
// the only concurrent activity; Disconnect is always safe to call.
type WSClient struct {
	userID string
	apiKey string

	mu          sync.Mutex
	baseURL     string
	dialTimeout time.Duration
	conn        net.Conn        // nil when disconnected
	connClosed  bool            // transport reported closure, handle not yet discarded
	connected   bool
	questionID  string          // active clarification question, "" when none
	inflight    *connectAttempt // at most one pending handshake
	gen         uint64          // bumped by Disconnect; a handshake from an older gen is abandoned
	readerDone  chan struct{}   // closed when the dispatcher goroutine exits

	writeMu sync.Mutex

	events *emitter
}

// connectAttempt shares one handshake's outcome between concurrent Connect
// callers.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewWSClient creates a session client for the given user. If apiKey is
// empty the TABICHAN_API_KEY environment variable is used, and a
// TABICHAN_BASE_URL environment variable overrides the default endpoint.
func NewWSClient(userID, apiKey string) (*WSClient, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		apiKey = creds.APIKey
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := DefaultWSBaseURL
	if creds.BaseURL != "" {
		baseURL = creds.BaseURL
	}
	return &WSClient{
		userID:      userID,
		apiKey:      apiKey,
		baseURL:     baseURL,
		dialTimeout: connectTimeout,
		events:      newEmitter(),
	}, nil
}

// On registers a handler for the named event. The same handler may be
// registered twice and will be invoked twice.
func (c *WSClient) On(event string, h Handler) { c.events.on(event, h) }

// Off removes a previously registered handler, or every handler for the
// event when called without one.
func (c *WSClient) Off(event string, h ...Handler) { c.events.off(event, h...) }

// BaseURL returns the configured WebSocket endpoint.
func (c *WSClient) BaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

// SetBaseURL replaces the WebSocket endpoint. Fails with ErrConnected while
// a session is open.
func (c *WSClient) SetBaseURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return ErrConnected
	}
	c.baseURL = url
	return nil
}

// ConnectionState reports the current state, derived from the handle and
// its flags.
func (c *WSClient) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conn == nil:
		return StateDisconnected
	case c.connClosed:
		return StateClosed
	case c.connected:
		return StateConnected
	default:
		return StateConnecting
	}
}

// HasActiveQuestion reports whether a clarification question is awaiting a
// response.
func (c *WSClient) HasActiveQuestion() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questionID != ""
}

// Connect establishes the WebSocket session and starts the inbound
// dispatcher. Connect attempts are single-flight: a concurrent call awaits
// the pending handshake and shares its outcome instead of dialing again.
// The handshake is bounded by a 10 second timeout (ErrConnectTimeout).
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected && c.conn != nil && !c.connClosed {
		c.mu.Unlock()
		return nil
	}
	if att := c.inflight; att != nil {
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	c.inflight = att
	endpoint := c.baseURL
	gen := c.gen
	c.mu.Unlock()

	err := c.dial(ctx, endpoint, gen)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	att.err = err
	close(att.done)

	if err != nil {
		switch {
		case errors.Is(err, ErrConnectAborted):
			// Disconnect abandoned the attempt; nothing to report.
		case isAuthRejection(err):
			c.events.emit(EventAuthError, err)
		default:
			c.events.emit(EventError, err)
		}
		return err
	}
	c.events.emit(EventConnected, nil)
	return nil
}

func (c *WSClient) dial(ctx context.Context, endpoint string, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("X-Api-Key", c.apiKey)
	header.Set("X-User-Id", c.userID)
	header.Set("X-Session-Id", uuid.NewString())

	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(header)}
	conn, _, _, err := dialer.Dial(dialCtx, endpoint)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrConnectTimeout
		}
		return fmt.Errorf("dial: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.gen != gen {
		// Disconnect was called while the handshake was in flight; the
		// fresh connection must not be adopted.
		c.mu.Unlock()
		conn.Close()
		return ErrConnectAborted
	}
	c.conn = conn
	c.connClosed = false
	c.connected = true
	c.questionID = ""
	c.readerDone = done
	c.mu.Unlock()

	go c.readLoop(conn, done)

	slog.Info("connected to tabichan", "endpoint", endpoint, "user_id", c.userID)
	return nil
}

// isAuthRejection reports whether a handshake failure was an authentication
// rejection from the server.
func isAuthRejection(err error) bool {
	var status ws.StatusError
	if !errors.As(err, &status) {
		return false
	}
	return int(status) == http.StatusUnauthorized || int(status) == http.StatusForbidden
}

// Disconnect closes the session. It is idempotent and never fails: the
// handle is discarded, the active question cleared, and the dispatcher
// unblocked regardless of prior state. A handshake still in flight is
// abandoned; its Connect call returns ErrConnectAborted. No events are
// attributed to the connection after Disconnect returns.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	alreadyClosed := c.connClosed
	c.conn = nil
	c.connClosed = false
	c.connected = false
	c.questionID = ""
	c.readerDone = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if !alreadyClosed {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "Client disconnecting")
		if err := wsutil.WriteClientMessage(conn, ws.OpClose, body); err != nil {
			slog.Debug("close frame not delivered", "error", err)
		}
	}
	conn.Close()
}

// StartChat submits a planning query. It requires an open session and does
// not wait for the itinerary: results, questions and completion arrive
// asynchronously through events.
func (c *WSClient) StartChat(ctx context.Context, query string, history []wire.HistoryEntry, preferences map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.connected && conn != nil
	c.mu.Unlock()
	if !open {
		return ErrNotConnected
	}
	return c.send(ctx, conn, wire.NewChatRequest(query, history, preferences))
}

// SendResponse answers the active clarification question. The question
// marker is cleared as soon as the response is handed to the transport; it
// does not wait for backend acknowledgement.
func (c *WSClient) SendResponse(ctx context.Context, answer string) error {
	c.mu.Lock()
	conn := c.conn
	if !c.connected || conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.questionID == "" {
		c.mu.Unlock()
		return ErrNoActiveQuestion
	}
	msg := wire.NewResponse(c.questionID, answer)
	c.questionID = ""
	c.mu.Unlock()

	return c.send(ctx, conn, msg)
}

func (c *WSClient) send(ctx context.Context, conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// The deadline must be set while the write lock is held, otherwise a
	// concurrent send could replace it mid-write.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := wsutil.WriteClientText(conn, data); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// readLoop is the inbound dispatcher: one goroutine per connection,
// consuming text frames until the stream ends. Individual bad frames never
// terminate the loop.
func (c *WSClient) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			c.finishRead(conn, err)
			return
		}
		c.handleFrame(conn, data)
	}
}

// finishRead tears the session down after the inbound stream ends. When the
// handle was already discarded by Disconnect the exit is silent; otherwise
// stream end emits disconnected and a read failure emits error.
func (c *WSClient) finishRead(conn net.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	// Mark the transport closed before discarding the handle: a Disconnect
	// landing in this window must not write a close frame to a dead
	// connection.
	c.connClosed = true
	c.mu.Unlock()

	c.mu.Lock()
	if c.conn != conn {
		// Disconnect won the window and reports nothing; the dead
		// transport still needs closing.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = nil
	c.connClosed = false
	c.connected = false
	c.questionID = ""
	c.readerDone = nil
	c.mu.Unlock()
	conn.Close()

	var closeErr wsutil.ClosedError
	switch {
	case errors.As(err, &closeErr):
		c.events.emit(EventDisconnected, fmt.Sprintf("%d %s", closeErr.Code, closeErr.Reason))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		c.events.emit(EventDisconnected, "connection closed")
	default:
		slog.Warn("read error, disconnecting", "error", err)
		c.events.emit(EventError, err)
	}
}

// handleFrame classifies one inbound frame, updates session state and fans
// it out to subscribers.
func (c *WSClient) handleFrame(conn net.Conn, data []byte) {
	env := wire.Decode(data)
	switch env.Type {
	case wire.TypeQuestion:
		var q wire.Question
		if err := json.Unmarshal(env.Data, &q); err != nil {
			slog.Debug("bad question payload", "error", err)
		}
		c.mu.Lock()
		if c.conn == conn {
			c.questionID = q.QuestionID
		}
		c.mu.Unlock()
		c.events.emit(EventMessage, env)
		c.events.emit(EventQuestion, q)

	case wire.TypeResult:
		c.events.emit(EventMessage, env)
		c.events.emit(EventResult, env.Data)

	case wire.TypeComplete:
		c.mu.Lock()
		if c.conn == conn {
			c.questionID = ""
		}
		c.mu.Unlock()
		c.events.emit(EventMessage, env)
		c.events.emit(EventComplete, nil)

	case wire.TypeError:
		c.events.emit(EventMessage, env)
		c.events.emit(EventChatError, &ChatError{Message: wire.ErrorMessage(env.Data)})

	default:
		c.events.emit(EventUnknownMessage, env)
	}
}
