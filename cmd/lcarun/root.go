package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/okian/lcarun/internal/adapters/ipc"
	"github.com/okian/lcarun/internal/app"
	"github.com/okian/lcarun/internal/config"
	"github.com/okian/lcarun/internal/domain/schema"
	"github.com/okian/lcarun/pkg/logger"
	"github.com/okian/lcarun/pkg/metrics"
)

// errReported marks failures already written to the user.
var errReported = errors.New("workflow failed")

// cli holds what the commands share once flags are parsed.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	flags      config.Config
	cfg        *config.Config
	log        logger.Logger
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}
	defaults := config.New()

	root := &cobra.Command{
		Use:   "lcarun",
		Short: "Calculate the climate impact of a process in a running LCA application",
		Long: `lcarun connects to the IPC server of a running LCA application, finds the
target process and impact assessment method (falling back to a keyword scan
when the exact names are missing), runs a calculation and prints the
climate change (GWP100) indicators of the result.

Settings come from defaults, an optional YAML file ($LCARUN_CONFIG or
--config), LCARUN_* environment variables and finally flags.

Examples:
  lcarun
  lcarun --port 8081 --process "electric cables"
  lcarun --method "EF 3.1" --amount 10
  lcarun processes cable`,
		Args:              cobra.NoArgs,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		RunE:              c.run,
	}

	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	pf.StringVar(&c.flags.Host, "host", defaults.Host, "host of the IPC server")
	pf.IntVar(&c.flags.Port, "port", defaults.Port, "port of the IPC server")
	pf.IntVar(&c.flags.TimeoutMS, "timeout-ms", defaults.TimeoutMS, "timeout of a single IPC call in milliseconds")
	pf.StringVar(&c.flags.LogLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&c.flags.LogFormat, "log-format", defaults.LogFormat, "log format: text or json")

	f := root.Flags()
	f.StringVar(&c.flags.ProcessName, "process", defaults.ProcessName, "exact name of the target process")
	f.StringSliceVar(&c.flags.ProcessKeywords, "process-keyword", defaults.ProcessKeywords, "keywords for the process fallback scan")
	f.StringVar(&c.flags.MethodName, "method", defaults.MethodName, "exact name of the impact assessment method")
	f.StringSliceVar(&c.flags.MethodKeywords, "method-keyword", defaults.MethodKeywords, "case-insensitive keywords for the method fallback scan")
	f.Float64Var(&c.flags.Amount, "amount", defaults.Amount, "amount of the process reference flow")
	f.BoolVar(&c.flags.Simulate, "simulate", defaults.Simulate, "also submit a simulation before calculating")
	f.IntVar(&c.flags.PollIntervalMS, "poll-interval-ms", defaults.PollIntervalMS, "delay between result state polls in milliseconds")
	f.IntVar(&c.flags.WaitTimeoutMS, "wait-timeout-ms", defaults.WaitTimeoutMS, "give up waiting for the result after this many milliseconds (0 waits forever)")
	f.StringVar(&c.flags.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	root.AddCommand(
		newListCommand(c, "processes", "List process descriptors", schema.RefProcess),
		newListCommand(c, "methods", "List impact assessment method descriptors", schema.RefImpactMethod),
		newVersionCommand(),
	)
	return root
}

// setup loads the configuration, applies explicitly set flags on top, and
// initialises logging.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Read(cmd.Context(), c.configPath)
	if err != nil {
		return err
	}
	c.applyFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	if err := logger.InitWith(c.stderr, cfg.LogFormat); err != nil {
		return err
	}
	c.log = logger.Named("lcarun")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

func (c *cli) applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("host", func() { cfg.Host = c.flags.Host })
	set("port", func() { cfg.Port = c.flags.Port })
	set("timeout-ms", func() { cfg.TimeoutMS = c.flags.TimeoutMS })
	set("log-level", func() { cfg.LogLevel = c.flags.LogLevel })
	set("log-format", func() { cfg.LogFormat = c.flags.LogFormat })
	set("process", func() { cfg.ProcessName = c.flags.ProcessName })
	set("process-keyword", func() { cfg.ProcessKeywords = c.flags.ProcessKeywords })
	set("method", func() { cfg.MethodName = c.flags.MethodName })
	set("method-keyword", func() { cfg.MethodKeywords = c.flags.MethodKeywords })
	set("amount", func() { cfg.Amount = c.flags.Amount })
	set("simulate", func() { cfg.Simulate = c.flags.Simulate })
	set("poll-interval-ms", func() { cfg.PollIntervalMS = c.flags.PollIntervalMS })
	set("wait-timeout-ms", func() { cfg.WaitTimeoutMS = c.flags.WaitTimeoutMS })
	set("metrics-file", func() { cfg.MetricsFile = c.flags.MetricsFile })
}

func (c *cli) client() *ipc.Client {
	return ipc.New(c.cfg.BaseURL(),
		ipc.WithTimeout(c.cfg.Timeout()),
		ipc.WithPollInterval(c.cfg.PollInterval()),
		ipc.WithLogger(c.log.Named("ipc")),
	)
}

func (c *cli) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	start := time.Now()

	w := app.New(c.client(), append(app.FromConfig(c.cfg), app.WithLogger(c.log))...)
	out, runErr := w.Run(ctx)

	if err := app.Render(c.stdout, out, runErr, c.cfg.Port); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if c.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(c.cfg.MetricsFile); err != nil {
			c.log.Warn(ctx, "metrics export failed", logger.String("path", c.cfg.MetricsFile), logger.Error(err))
		}
	}

	if runErr != nil {
		c.log.Error(ctx, "run failed", logger.Error(runErr), logger.Duration("elapsed", time.Since(start)))
		return errReported
	}
	c.log.Debug(ctx, "run finished",
		logger.Int("disposed", out.Disposed),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
