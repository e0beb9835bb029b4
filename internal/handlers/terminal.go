package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/remdesk/agent/internal/relay"
	"github.com/remdesk/agent/internal/session"
)

// terminalRateLimit defines the maximum number of messages allowed per second
// per WebSocket connection. Messages beyond this rate are dropped.
const terminalRateLimit = 200

// terminalRateBurst is the token bucket burst size, allowing short bursts
// of rapid input (e.g., paste operations) before rate limiting kicks in.
const terminalRateBurst = 200

// termControlMsg is a JSON control frame sent by the browser as a text
// message (e.g. resize).
type termControlMsg struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// terminalDescriptor is the external view of a terminal session.
type terminalDescriptor struct {
	ID        string `json:"id"`
	PID       int    `json:"pid"`
	Shell     string `json:"shell"`
	CreatedAt string `json:"created_at"`
}

func describeTerminal(t *session.Terminal) terminalDescriptor {
	return terminalDescriptor{
		ID:        t.ID,
		PID:       t.PID,
		Shell:     t.Shell,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateTerminalSession spawns a new shell session and returns its descriptor.
func (a *API) CreateTerminalSession(w http.ResponseWriter, r *http.Request) {
	t, err := session.StartTerminal(a.Sessions, a.Shell)
	if err != nil {
		log.Printf("terminal: session creation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to start shell")
		return
	}
	writeJSON(w, http.StatusCreated, describeTerminal(t))
}

// ListTerminalSessions returns descriptors for all live terminal sessions.
func (a *API) ListTerminalSessions(w http.ResponseWriter, r *http.Request) {
	handles := a.Sessions.List(session.KindTerminal)

	resp := make([]terminalDescriptor, 0, len(handles))
	for _, h := range handles {
		if t, ok := h.(*session.Terminal); ok {
			resp = append(resp, describeTerminal(t))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": resp,
	})
}

// CloseTerminalSession terminates a specific terminal session.
func (a *API) CloseTerminalSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := a.Sessions.Get(id); !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	a.Sessions.Remove(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// TerminalWS bridges a browser WebSocket to a shell session's pty. Binary
// frames are shell input; text frames carry JSON control messages (resize)
// that are intercepted and never forwarded to the shell. An unknown session
// id is rejected before the handshake completes.
func (a *API) TerminalWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h, ok := a.Sessions.Get(id)
	term, isTerm := h.(*session.Terminal)
	if !ok || !isTerm {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("terminal: session %s websocket accept error: %v", id, err)
		return
	}
	defer clientConn.CloseNow()

	clientConn.SetReadLimit(1024 * 1024)

	browser := &termClientEndpoint{
		conn:    clientConn,
		term:    term,
		limiter: newTokenBucket(terminalRateBurst, terminalRateLimit),
	}
	shell := relay.NewStreamEndpoint(term, relay.StreamBufSize)

	out := relay.Run(r.Context(), browser, shell)
	log.Printf("terminal: session %s tunnel closed reason=%s browser→shell=%dB shell→browser=%dB",
		id, out.Reason, out.AToB, out.BToA)
	if out.Err != nil {
		log.Printf("terminal: session %s relay error: %v", id, out.Err)
	}

	clientConn.Close(websocket.StatusNormalClosure, "")
}

// termClientEndpoint adapts the browser side of a terminal tunnel. Its Read
// loop intercepts control frames and enforces the rate limit and input size
// cap, so the relay only ever sees shell input; writes towards the browser
// are text frames of decoded shell output.
type termClientEndpoint struct {
	conn    *websocket.Conn
	term    *session.Terminal
	limiter *tokenBucket
}

func (e *termClientEndpoint) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := e.conn.Read(ctx)
		if err != nil {
			return nil, err
		}

		// Rate limit: drop messages that exceed the allowed rate
		if !e.limiter.allow() {
			continue
		}

		if msgType == websocket.MessageText {
			e.handleControl(data)
			continue
		}

		// Enforce per-message input size limit
		if len(data) > session.MaxInputMessageSize {
			log.Printf("terminal: session %s input frame too large: size=%d limit=%d",
				e.term.ID, len(data), session.MaxInputMessageSize)
			continue
		}
		return data, nil
	}
}

// handleControl parses and dispatches one control frame. Malformed frames
// are dropped and logged, never fatal to the tunnel.
func (e *termClientEndpoint) handleControl(data []byte) {
	var msg termControlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("terminal: session %s malformed control frame dropped: %v", e.term.ID, err)
		return
	}
	if msg.Type != "resize" || msg.Cols == 0 || msg.Rows == 0 {
		log.Printf("terminal: session %s unsupported control frame %q dropped", e.term.ID, msg.Type)
		return
	}
	if err := e.term.Resize(msg.Rows, msg.Cols); err != nil {
		log.Printf("terminal: session %s resize failed: %v", e.term.ID, err)
	}
}

func (e *termClientEndpoint) Write(ctx context.Context, p []byte) error {
	return e.conn.Write(ctx, websocket.MessageText, p)
}

func (e *termClientEndpoint) Close() error {
	return e.conn.CloseNow()
}

// tokenBucket implements a simple token bucket rate limiter for terminal messages.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	// Refill tokens based on elapsed time
	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}
