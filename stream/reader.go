package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/localrivet/mcpsmoke/mcp"
)

// Session correlates the stream with the message endpoint for one logical
// client. It is created once per run from the first event on the stream and
// immutable thereafter.
type Session struct {
	Token     string
	Endpoint  string // absolute URL for POSTing messages, sessionId included
	CreatedAt time.Time
}

// SessionError is the terminal failure raised when no session token is
// observed on the stream within the allotted wait. The raw event capture is
// carried along for diagnosis.
type SessionError struct {
	Err    error
	Buffer string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("no session token observed on stream: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Reader consumes the SSE stream in a background goroutine for the remainder
// of the run. Every complete event lands in the Buffer; the first endpoint
// event resolves the session, and JSON-RPC responses are routed to the
// channel registered for their id.
type Reader struct {
	client *http.Client
	logger *slog.Logger
	buf    *Buffer

	base      *url.URL
	sessionCh chan Session

	mu      sync.Mutex
	pending map[int64]chan mcp.Response

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewReader creates a Reader. The logger may not be nil; pass a discard
// logger when silence is wanted.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{
		// No overall timeout: the stream stays open for the whole run and is
		// torn down via Close.
		client:    &http.Client{},
		logger:    logger,
		buf:       &Buffer{},
		sessionCh: make(chan Session, 1),
		pending:   make(map[int64]chan mcp.Response),
	}
}

// Buffer exposes the raw event capture for diagnostics.
func (r *Reader) Buffer() *Buffer {
	return r.buf
}

// Open establishes the streaming connection and starts the consuming
// goroutine. It returns once the HTTP response headers confirm an event
// stream; event processing continues until Close or until the server drops
// the connection.
func (r *Reader) Open(ctx context.Context, streamURL string) error {
	base, err := url.Parse(streamURL)
	if err != nil {
		return fmt.Errorf("parse stream url: %w", err)
	}
	r.base = base

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("stream endpoint returned %q, not an event stream", ct)
	}

	go r.consume(resp.Body)
	return nil
}

// consume parses SSE framing: event/data lines accumulate until a blank line
// completes the event. Multiple data lines join with a newline, and only the
// single space after the field colon is stripped, so payload whitespace
// survives intact.
func (r *Reader) consume(body io.ReadCloser) {
	defer body.Close()

	reader := bufio.NewReader(body)
	var data bytes.Buffer
	var eventType string

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				r.logger.Debug("stream read ended", "error", err)
			}
			return
		}
		line = bytes.TrimRight(line, "\r\n")

		switch {
		case bytes.HasPrefix(line, []byte(":")):
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(fieldValue(line, "event:"))
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(fieldValue(line, "data:"))
		case len(line) == 0 && data.Len() > 0:
			event := make([]byte, data.Len())
			copy(event, data.Bytes())
			r.dispatch(eventType, event)
			data.Reset()
			eventType = ""
		}
	}
}

// fieldValue strips the field name and the optional single space after the
// colon, nothing more.
func fieldValue(line []byte, field string) []byte {
	value := bytes.TrimPrefix(line, []byte(field))
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return value
}

func (r *Reader) dispatch(eventType string, data []byte) {
	r.buf.Append(data)
	r.logger.Debug("stream event", "type", eventType, "data", string(data))

	if eventType == "endpoint" {
		r.resolveSession(data)
		return
	}

	var resp mcp.Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.ID == 0 {
		// Notifications and non-JSON payloads stay in the buffer only.
		return
	}

	r.mu.Lock()
	ch, ok := r.pending[resp.ID]
	if ok {
		delete(r.pending, resp.ID)
	}
	r.mu.Unlock()

	if ok {
		ch <- resp
	}
}

// resolveSession extracts the sessionId query parameter from the endpoint
// event. Relative endpoints are resolved against the stream URL.
func (r *Reader) resolveSession(data []byte) {
	endpoint, err := url.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		r.logger.Debug("unparseable endpoint event", "data", string(data), "error", err)
		return
	}
	if !endpoint.IsAbs() && r.base != nil {
		endpoint = r.base.ResolveReference(endpoint)
	}

	token := endpoint.Query().Get("sessionId")
	if token == "" {
		r.logger.Debug("endpoint event without sessionId", "endpoint", endpoint.String())
		return
	}

	session := Session{
		Token:     token,
		Endpoint:  endpoint.String(),
		CreatedAt: time.Now(),
	}
	select {
	case r.sessionCh <- session:
		r.logger.Debug("session established", "session_id", token)
	default:
		// session already resolved; later endpoint events are ignored
	}
}

// WaitSession blocks until the session token arrives or the context expires.
// Expiry is terminal: the run aborts with a SessionError carrying the full
// event capture.
func (r *Reader) WaitSession(ctx context.Context) (Session, error) {
	select {
	case session := <-r.sessionCh:
		return session, nil
	case <-ctx.Done():
		return Session{}, &SessionError{Err: ctx.Err(), Buffer: r.buf.String()}
	}
}

// Expect registers interest in the response for the given correlation id.
// The returned channel receives at most one response. Register before
// issuing the request, so a fast response cannot slip past.
func (r *Reader) Expect(id int64) <-chan mcp.Response {
	ch := make(chan mcp.Response, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	return ch
}

// Forget drops the expectation for an id whose response was never observed.
func (r *Reader) Forget(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Close tears the stream down. Safe to call more than once, and before Open.
func (r *Reader) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}
