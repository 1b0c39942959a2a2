package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/localrivet/mcpsmoke/config"
	"github.com/localrivet/mcpsmoke/harness"
	"github.com/localrivet/mcpsmoke/target"
	"github.com/localrivet/mcpsmoke/ui"
)

type rootOptions struct {
	configPath string
	host       string
	port       int
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mcpsmoke",
		Short: "Smoke-test an MCP server over HTTP/SSE",
		Long: `mcpsmoke launches an MCP server, waits for it to listen, opens its SSE
stream, drives the initialize / tools/list / tools/call handshake and prints
a per-step report. The target is always torn down, pass or fail.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&opts.host, "host", "", "override the target host")
	flags.IntVar(&opts.port, "port", 0, "override the target port")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newProcessCommand(opts),
		newContainerCommand(opts),
		newComposeCommand(opts),
	)
	return root
}

// setup resolves the effective configuration and builds the logger shared by
// every subcommand.
func (o *rootOptions) setup() (*config.Config, *slog.Logger, error) {
	level := charmlog.InfoLevel
	if o.verbose {
		level = charmlog.DebugLevel
	}
	logger := slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}))

	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return nil, nil, err
		}
	}
	if o.host != "" {
		cfg.Host = o.host
	}
	if o.port > 0 {
		cfg.Port = o.port
	}
	return cfg, logger, nil
}

// runSmoke executes the harness against the given target and prints the
// report. A fatal run surfaces as a non-nil error so the process exits
// non-zero; soft call failures do not.
func runSmoke(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, tgt target.Target) error {
	report, err := harness.NewRunner(cfg, tgt, logger).Run(cmd.Context())
	fmt.Fprint(cmd.OutOrStdout(), ui.RenderReport(report))
	return err
}

func newProcessCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Launch the server as a local process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			tgt := target.NewLocalProcess(cfg.Process, cfg.Port, cfg.Credentials.Env(), logger)
			return runSmoke(cmd, cfg, logger, tgt)
		},
	}
}

func newContainerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "container",
		Short: "Launch the server as a standalone Docker container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			tgt := target.NewContainer(cfg.Container, cfg.Port, cfg.Credentials.Env(), logger)
			return runSmoke(cmd, cfg, logger, tgt)
		},
	}
}

func newComposeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compose",
		Short: "Launch the server as a Docker Compose stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			tgt := target.NewComposeStack(cfg.Compose, cfg.Credentials.Env(), logger)
			return runSmoke(cmd, cfg, logger, tgt)
		},
	}
}
