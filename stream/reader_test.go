package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sseHandler streams the given events and then holds the connection open
// until the client goes away.
func sseHandler(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher := w.(http.Flusher)
		flusher.Flush()

		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
		<-r.Context().Done()
	}
}

func openReader(t *testing.T, handler http.HandlerFunc) *Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r := NewReader(discardLogger())
	t.Cleanup(r.Close)
	require.NoError(t, r.Open(context.Background(), srv.URL+"/sse"))
	return r
}

func TestWaitSessionExtractsToken(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: endpoint\ndata: /message?sessionId=abc-123\n\n",
	))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := r.WaitSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", session.Token)
	assert.Contains(t, session.Endpoint, "/message?sessionId=abc-123")
	assert.True(t, session.Endpoint[:4] == "http", "relative endpoint must be resolved against the stream URL")
}

func TestWaitSessionAbsoluteEndpoint(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: endpoint\ndata: http://example.test/message?sessionId=tok9\n\n",
	))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := r.WaitSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok9", session.Token)
	assert.Equal(t, "http://example.test/message?sessionId=tok9", session.Endpoint)
}

func TestWaitSessionFailsWithoutToken(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: endpoint\ndata: /message\n\n",
		"event: message\ndata: {\"hello\":true}\n\n",
	))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := r.WaitSession(ctx)
	require.Error(t, err)

	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	// the dump must contain the raw events for diagnosis
	assert.Contains(t, sessionErr.Buffer, "/message")
	assert.Contains(t, sessionErr.Buffer, `"hello":true`)
}

func TestExpectDeliversMatchingResponse(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: endpoint\ndata: /message?sessionId=s1\n\n",
		"event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":7,\"result\":{\"ok\":true}}\n\n",
	))

	ch := r.Expect(7)
	select {
	case resp := <-ch:
		assert.EqualValues(t, 7, resp.ID)
		assert.True(t, resp.IsSuccess())
	case <-time.After(2 * time.Second):
		t.Fatal("response for id 7 never delivered")
	}
}

func TestExpectIgnoresOtherIDsAndNotifications(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/message\",\"params\":{}}\n\n",
		"event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n",
		"event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{}}\n\n",
	))

	ch := r.Expect(2)
	select {
	case resp := <-ch:
		assert.EqualValues(t, 2, resp.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("response for id 2 never delivered")
	}

	// everything, including the unrelated id and the notification, is captured
	assert.Eventually(t, func() bool { return r.Buffer().Len() == 3 }, time.Second, 10*time.Millisecond)
}

func TestMultiLineDataIsReassembled(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: message\ndata: {\"jsonrpc\":\"2.0\",\ndata: \"id\":4,\"result\":{}}\n\n",
	))

	ch := r.Expect(4)
	select {
	case resp := <-ch:
		assert.EqualValues(t, 4, resp.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("split event never reassembled")
	}
}

func TestMultiLineDataJoinsWithNewline(t *testing.T) {
	// data lines join with \n, and only the single space after the colon is
	// stripped, so inner whitespace comes through untouched
	r := openReader(t, sseHandler(
		"event: message\ndata: first\ndata:  indented\n\n",
	))

	assert.Eventually(t, func() bool { return r.Buffer().Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "first\n indented", r.Buffer().String())
}

func TestCarriageReturnLineEndingsAccepted(t *testing.T) {
	r := openReader(t, sseHandler(
		"event: endpoint\r\ndata: /message?sessionId=crlf-1\r\n\r\n",
	))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := r.WaitSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "crlf-1", session.Token)
}

func TestOpenRejectsNonStreamResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "not a stream")
	}))
	t.Cleanup(srv.Close)

	r := NewReader(discardLogger())
	err := r.Open(context.Background(), srv.URL+"/sse")
	require.Error(t, err)
}

func TestOpenRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boot in progress", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	r := NewReader(discardLogger())
	err := r.Open(context.Background(), srv.URL+"/sse")
	require.Error(t, err)
}
