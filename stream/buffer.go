// Package stream opens the long-lived SSE connection to the server under
// test, extracts the session token from the first event, and demultiplexes
// asynchronously delivered JSON-RPC responses to waiting callers.
package stream

import (
	"strings"
	"sync"
)

// Buffer is an append-only capture of every raw event payload received on the
// stream. It has a single writer (the stream-consuming goroutine); readers
// only ever see a consistent prefix. Its sole purpose is diagnostics: when a
// session or response never shows up, the whole capture is dumped.
type Buffer struct {
	mu     sync.Mutex
	events []string
}

// Append records one complete event payload.
func (b *Buffer) Append(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, string(data))
}

// Len returns the number of captured events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// String returns all captured events, one per line, oldest first.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.events, "\n")
}
