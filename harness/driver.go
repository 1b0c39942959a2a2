package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/localrivet/mcpsmoke/mcp"
	"github.com/localrivet/mcpsmoke/stream"
)

// Per-call settle budgets: how long the driver waits for the response to show
// up on the stream before its single recheck. Tool calls get the largest
// budget because they round-trip to the backing cloud.
const (
	initializeSettle = 2 * time.Second
	listSettle       = 3 * time.Second
	callSettle       = 8 * time.Second
)

// Driver issues the JSON-RPC calls of the exchange phase. Requests are
// fire-and-forget POSTs to the session's message endpoint; the POST body is
// never read, and results are awaited from the stream demultiplexer instead.
type Driver struct {
	session stream.Session
	reader  *stream.Reader
	client  *http.Client
	logger  *slog.Logger

	// settleOverride shortens the per-call waits in tests. Zero selects the
	// per-method defaults.
	settleOverride time.Duration
}

// NewDriver creates a driver bound to an established session.
func NewDriver(session stream.Session, reader *stream.Reader, logger *slog.Logger) *Driver {
	return &Driver{
		session: session,
		reader:  reader,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (d *Driver) settle(method string) time.Duration {
	if d.settleOverride > 0 {
		return d.settleOverride
	}
	switch method {
	case mcp.MethodCallTool:
		return callSettle
	case mcp.MethodListTools:
		return listSettle
	default:
		return initializeSettle
	}
}

// post sends the envelope to the message endpoint. Only transport failures
// are reported; the response body belongs to the stream, not to the POST.
func (d *Driver) post(ctx context.Context, req mcp.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", req.Method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.session.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.Method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	d.logger.Debug("posting request", "method", req.Method, "id", req.ID)
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", req.Method, err)
	}
	resp.Body.Close()
	return nil
}

// Notify sends a one-way notification. No response is expected, so the step
// succeeds as soon as the POST goes out.
func (d *Driver) Notify(ctx context.Context, method string, params interface{}) Step {
	start := time.Now()
	step := Step{Method: method, Status: StatusOK, Detail: "notification sent"}
	if err := d.post(ctx, mcp.NewNotification(method, params)); err != nil {
		step.Status = StatusFailed
		step.Err = err.Error()
	}
	step.Duration = time.Since(start)
	return step
}

// Call issues a correlated request and waits for its response on the stream.
// The wait is bounded: one settle period, then exactly one additional
// wait-and-recheck. An unobserved response is a soft failure; it is recorded
// and the run continues.
func (d *Driver) Call(ctx context.Context, id int64, method string, params interface{}) Step {
	start := time.Now()
	step := Step{ID: id, Method: method}

	ch := d.reader.Expect(id)
	if err := d.post(ctx, mcp.NewRequest(id, method, params)); err != nil {
		d.reader.Forget(id)
		step.Status = StatusFailed
		step.Err = err.Error()
		step.Duration = time.Since(start)
		return step
	}

	settle := d.settle(method)
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case resp := <-ch:
			d.classify(&step, resp)
			step.Duration = time.Since(start)
			return step
		case <-time.After(settle):
			if attempt == 0 {
				d.logger.Debug("response not observed yet, rechecking", "method", method, "id", id)
			}
		case <-ctx.Done():
			d.reader.Forget(id)
			step.Status = StatusFailed
			step.Err = "run cancelled while waiting for response"
			step.Duration = time.Since(start)
			return step
		}
	}

	d.reader.Forget(id)
	step.Status = StatusFailed
	step.Err = fmt.Sprintf("no response observed for id %d", id)
	step.Duration = time.Since(start)
	return step
}

func (d *Driver) classify(step *Step, resp mcp.Response) {
	if resp.IsError() {
		step.Status = StatusFailed
		step.Err = resp.Error.Message
		return
	}
	step.Status = StatusOK
	step.Detail = summarize(step.Method, resp.Result)
}

// summarize turns a raw result payload into the one-line detail shown in the
// report.
func summarize(method string, result json.RawMessage) string {
	switch method {
	case mcp.MethodInitialize:
		var init struct {
			ProtocolVersion string `json:"protocolVersion"`
			ServerInfo      struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
		}
		if err := json.Unmarshal(result, &init); err == nil && init.ServerInfo.Name != "" {
			return fmt.Sprintf("server %s %s, protocol %s", init.ServerInfo.Name, init.ServerInfo.Version, init.ProtocolVersion)
		}

	case mcp.MethodListTools:
		var list mcp.ListToolsResult
		if err := json.Unmarshal(result, &list); err == nil {
			names := make([]string, 0, len(list.Tools))
			for _, tool := range list.Tools {
				names = append(names, tool.Name)
			}
			detail := fmt.Sprintf("%d tools", len(list.Tools))
			if len(names) > 0 {
				const show = 5
				if len(names) > show {
					names = append(names[:show], "...")
				}
				detail += ": " + strings.Join(names, ", ")
			}
			return detail
		}

	case mcp.MethodCallTool:
		// Tool results embed escaped JSON text; pull out the name fields
		// after unescaping.
		if names := fieldValues(string(result), "name"); len(names) > 0 {
			return "name: " + strings.Join(names, ", ")
		}
	}

	return truncate(decodeEscaped(string(result)), 120)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
