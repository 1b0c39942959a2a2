package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/localrivet/mcpsmoke/mcp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// responder produces the stream response for one received request, or nil to
// drop it (response never observed).
type responder func(req mcp.Request) *mcp.Response

// fakeServer emulates the server under test: GET /sse streams events starting
// with the endpoint discovery event, POST /message accepts envelopes and
// answers out-of-band on the stream.
type fakeServer struct {
	t         *testing.T
	srv       *httptest.Server
	sessionID string
	events    chan string

	mu         sync.Mutex
	responders map[string]responder
	received   []mcp.Request
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:          t,
		sessionID:  "sess-test",
		events:     make(chan string, 16),
		responders: map[string]responder{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", f.handleSSE)
	mux.HandleFunc("/message", f.handleMessage)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) URL() string { return f.srv.URL }

func (f *fakeServer) respond(method string, fn responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[method] = fn
}

func (f *fakeServer) requests() []mcp.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mcp.Request{}, f.received...)
}

func (f *fakeServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", f.sessionID)
	flusher.Flush()

	for {
		select {
		case data := <-f.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (f *fakeServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sessionId") != f.sessionID {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var req mcp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.received = append(f.received, req)
	fn := f.responders[req.Method]
	f.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)

	if req.ID == 0 || fn == nil {
		return
	}
	if resp := fn(req); resp != nil {
		data, err := json.Marshal(resp)
		if err != nil {
			f.t.Errorf("marshal fake response: %v", err)
			return
		}
		f.events <- string(data)
	}
}

func resultResponse(id int64, result interface{}) *mcp.Response {
	raw, _ := json.Marshal(result)
	return &mcp.Response{JSONRPC: "2.0", ID: id, Result: raw}
}

func errorResponse(id int64, code int, message string) *mcp.Response {
	return &mcp.Response{JSONRPC: "2.0", ID: id, Error: &mcp.RPCError{Code: code, Message: message}}
}
