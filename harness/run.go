package harness

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/localrivet/mcpsmoke/config"
	"github.com/localrivet/mcpsmoke/mcp"
	"github.com/localrivet/mcpsmoke/stream"
	"github.com/localrivet/mcpsmoke/target"
)

// defaultSessionWait bounds how long the run waits for the session token
// after the stream opens.
const defaultSessionWait = 3 * time.Second

// Runner executes one smoke-test run: Launching, WaitingReady,
// SessionEstablishing, Exchanging, Reporting, TearingDown. Any fatal error
// jumps straight to teardown; soft call failures never abort the exchange.
type Runner struct {
	cfg    *config.Config
	target target.Target
	logger *slog.Logger
	poller *Poller

	sessionWait time.Duration

	// test hook, see Driver.settleOverride
	driverSettle time.Duration
}

// NewRunner creates a runner for the given configuration and target.
func NewRunner(cfg *config.Config, t target.Target, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:         cfg,
		target:      t,
		logger:      logger,
		poller:      NewPoller(cfg.ReadyAttempts, logger),
		sessionWait: defaultSessionWait,
	}
}

// Run drives the full state machine. The returned report is always non-nil;
// a non-nil error marks a fatal outcome (the caller should exit non-zero).
// Teardown of the target and the stream is unconditional.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Target:    r.target.Kind(),
		StartedAt: time.Now(),
	}
	defer func() { report.FinishedAt = time.Now() }()

	logger := r.logger.With("run_id", report.RunID, "target", string(report.Target))
	logger.Info("starting smoke-test run")

	// Credentials are a hard precondition, checked before anything spawns.
	if err := r.cfg.Validate(); err != nil {
		return fatal(report, err)
	}

	reader := stream.NewReader(logger)
	defer func() {
		reader.Close()
		if err := r.target.Stop(); err != nil {
			logger.Warn("teardown error", "error", err)
		} else {
			logger.Info("teardown complete")
		}
	}()

	if err := r.target.Start(ctx); err != nil {
		return fatal(report, err)
	}

	if err := r.poller.WaitReady(ctx, r.target, r.cfg.SSEURL()); err != nil {
		if re, ok := err.(*ReadinessError); ok && re.Diagnostics != "" {
			logger.Error("target diagnostics", "output", re.Diagnostics)
		}
		return fatal(report, err)
	}

	if err := reader.Open(ctx, r.cfg.SSEURL()); err != nil {
		return fatal(report, &stream.SessionError{Err: err})
	}

	sessCtx, cancel := context.WithTimeout(ctx, r.sessionWait)
	session, err := reader.WaitSession(sessCtx)
	cancel()
	if err != nil {
		if se, ok := err.(*stream.SessionError); ok && se.Buffer != "" {
			logger.Error("stream capture", "events", se.Buffer)
		}
		return fatal(report, err)
	}
	report.SessionToken = session.Token
	logger.Info("session established", "session_id", session.Token)
	if !strings.Contains(session.Endpoint, r.cfg.MessagePath) {
		logger.Warn("advertised message endpoint differs from configured path",
			"endpoint", session.Endpoint, "configured", r.cfg.MessagePath)
	}

	driver := NewDriver(session, reader, logger)
	driver.settleOverride = r.driverSettle
	r.exchange(ctx, driver, report)

	logger.Info("run finished", "soft_failures", report.SoftFailures())
	return report, nil
}

// exchange issues the fixed call sequence. Ids are never reused and every
// outcome, soft failures included, lands in the report.
func (r *Runner) exchange(ctx context.Context, driver *Driver, report *Report) {
	report.Steps = append(report.Steps,
		driver.Call(ctx, 1, mcp.MethodInitialize, mcp.NewInitializeParams()),
		driver.Notify(ctx, mcp.MethodInitialized, nil),
		driver.Call(ctx, 2, mcp.MethodListTools, nil),
	)

	if r.cfg.Credentials.SubscriptionID == "" {
		report.Steps = append(report.Steps, Step{
			ID:     3,
			Method: mcp.MethodCallTool,
			Status: StatusSkipped,
			Detail: "subscription_id not configured",
		})
		return
	}

	params := mcp.CallToolParams{
		Name:      r.cfg.ToolName,
		Arguments: map[string]interface{}{"subscription": r.cfg.Credentials.SubscriptionID},
	}
	report.Steps = append(report.Steps, driver.Call(ctx, 3, mcp.MethodCallTool, params))
}

func fatal(report *Report, err error) (*Report, error) {
	report.Fatal = err.Error()
	return report, err
}
