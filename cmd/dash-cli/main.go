package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backtestdash/internal/config"
	"backtestdash/internal/jobs"
	"backtestdash/internal/notify"
	"backtestdash/internal/query"
	"backtestdash/internal/util"
	"backtestdash/pkg/backtestdash"
)

const version = "0.3.0"

// app carries what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	backendURL string
	logLevel   string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	client *backtestdash.Client
	out    io.Writer
	in     io.Reader
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.backendURL != "" {
		cfg.Backend.BaseURL = a.backendURL
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger, closer, err := util.NewFileLogger(util.LogOptions{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: a.verbose,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	util.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.closer = closer
	a.client = backtestdash.NewClient(cfg.Backend.BaseURL,
		backtestdash.WithTimeout(cfg.Backend.Timeout),
		backtestdash.WithRateLimit(cfg.Backend.RequestsPerMin),
		backtestdash.WithLogger(logger),
	)
	logger.Debug("cli configured", "backend", cfg.Backend.BaseURL, "config", a.configPath)
	return nil
}

func (a *app) teardown() {
	if a.closer != nil {
		a.closer.Close()
	}
}

// notifier prints action outcomes to the terminal and logs them.
func (a *app) notifier() notify.Notifier {
	return notify.Multi{
		notify.LogNotifier{Logger: a.logger},
		&consoleNotifier{w: a.out},
	}
}

func (a *app) manager(confirm jobs.ConfirmFunc) *jobs.Manager {
	qc := query.NewClient(query.Options{StaleTime: a.cfg.Query.StaleTime, Logger: a.logger})
	return jobs.NewManager(a.client, qc, jobs.ManagerOptions{
		MaxJobs:    a.cfg.Jobs.PageSize,
		FetchLimit: a.cfg.Jobs.FetchLimit,
		Notifier:   a.notifier(),
		Confirm:    confirm,
		Saver:      jobs.FileSaver{Dir: a.cfg.Jobs.DownloadDir},
		Logger:     a.logger,
	})
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dash-cli",
		Short:         "Inspect and manage backtest jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.in = cmd.InOrStdin()
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.Path(), "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&a.backendURL, "backend", "", "backend base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "write logs to stdout")

	cmd.AddCommand(JobsCmd(a))
	cmd.AddCommand(ChartCmd(a))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := rootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
