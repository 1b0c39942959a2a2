// Package harness orchestrates one smoke-test run against an MCP server:
// launch the target, poll for readiness, establish the SSE session, drive the
// fixed JSON-RPC exchange, and tear everything down unconditionally.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/localrivet/mcpsmoke/target"
)

// diagnosticLines is how much trailing target output is attached to fatal
// readiness errors.
const diagnosticLines = 40

// ReadinessReason distinguishes the fatal readiness outcomes.
type ReadinessReason string

const (
	ReasonTimeout      ReadinessReason = "timeout"
	ReasonTargetExited ReadinessReason = "target_exited"
	ReasonCancelled    ReadinessReason = "cancelled"
)

// ReadinessError is raised when the target never becomes reachable. It
// carries the tail of the target's diagnostic output.
type ReadinessError struct {
	Reason      ReadinessReason
	Attempts    int
	Diagnostics string
	Err         error
}

func (e *ReadinessError) Error() string {
	switch e.Reason {
	case ReasonTargetExited:
		return "target exited while waiting for readiness"
	case ReasonCancelled:
		return fmt.Sprintf("readiness wait cancelled after %d attempts: %v", e.Attempts, e.Err)
	default:
		return fmt.Sprintf("target not ready after %d attempts", e.Attempts)
	}
}

func (e *ReadinessError) Unwrap() error {
	return e.Err
}

// Poller probes the streaming endpoint until the target answers 200 or the
// attempt budget runs out. This bounded loop is the harness's only retry
// policy; individual probes are never retried on their own.
type Poller struct {
	Attempts     int
	Interval     time.Duration
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// NewPoller returns a poller with the fixed 1s interval and short per-probe
// timeout. attempts <= 0 selects the default budget of 15.
func NewPoller(attempts int, logger *slog.Logger) *Poller {
	if attempts <= 0 {
		attempts = 15
	}
	return &Poller{
		Attempts:     attempts,
		Interval:     time.Second,
		ProbeTimeout: 2 * time.Second,
		Logger:       logger,
	}
}

// WaitReady blocks until probeURL answers 200, the target dies, or the
// attempt budget is exhausted. A dead target fails immediately with
// ReasonTargetExited.
func (p *Poller) WaitReady(ctx context.Context, t target.Target, probeURL string) error {
	client := &http.Client{Timeout: p.ProbeTimeout}

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if !t.Alive() {
			return &ReadinessError{
				Reason:      ReasonTargetExited,
				Attempts:    attempt,
				Diagnostics: t.Logs(diagnosticLines),
			}
		}

		if p.probe(ctx, client, probeURL) {
			p.Logger.Info("target ready", "attempt", attempt, "url", probeURL)
			return nil
		}
		p.Logger.Debug("target not ready yet", "attempt", attempt, "of", p.Attempts)

		select {
		case <-time.After(p.Interval):
		case <-ctx.Done():
			// A cancelled run is neither a timeout nor a target exit.
			return &ReadinessError{
				Reason:      ReasonCancelled,
				Attempts:    attempt,
				Diagnostics: t.Logs(diagnosticLines),
				Err:         ctx.Err(),
			}
		}
	}

	return &ReadinessError{
		Reason:      ReasonTimeout,
		Attempts:    p.Attempts,
		Diagnostics: t.Logs(diagnosticLines),
	}
}

func (p *Poller) probe(ctx context.Context, client *http.Client, probeURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
