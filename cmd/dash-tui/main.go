package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"backtestdash/internal/config"
	"backtestdash/internal/jobs"
	"backtestdash/internal/notify"
	"backtestdash/internal/query"
	"backtestdash/internal/util"
	"backtestdash/pkg/backtestdash"
)

// programRef lets background commands reach the running program. It is set
// before Run.
type programRef struct {
	p *tea.Program
}

// confirmer returns a ConfirmFunc that asks through the TUI and blocks until
// the user answers or ctx ends.
func (r *programRef) confirmer() jobs.ConfirmFunc {
	return func(ctx context.Context, prompt string) bool {
		if r.p == nil {
			return false
		}
		reply := make(chan bool, 1)
		r.p.Send(confirmMsg{prompt: prompt, reply: reply})
		select {
		case ok := <-reply:
			return ok
		case <-ctx.Done():
			return false
		}
	}
}

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logPath := cfg.Logging.File
	if logPath == "" {
		logPath = filepath.Join(os.TempDir(), fmt.Sprintf("dash-tui-%s.log", time.Now().Format("2006-01-02")))
	}
	logger, closer, err := util.NewFileLogger(util.LogOptions{Level: cfg.Logging.Level, File: logPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	util.SetDefault(logger)

	client := backtestdash.NewClient(cfg.Backend.BaseURL,
		backtestdash.WithTimeout(cfg.Backend.Timeout),
		backtestdash.WithRateLimit(cfg.Backend.RequestsPerMin),
		backtestdash.WithLogger(logger),
	)

	toasts := notify.NewToasts(4, 4*time.Second)
	var completion notify.Notifier = toasts
	if cfg.Notify.NtfyURL != "" {
		completion = notify.Multi{toasts, &notify.Ntfy{
			Endpoint: cfg.Notify.NtfyURL,
			Client:   http.DefaultClient,
			Title:    "backtestdash",
			Logger:   logger,
		}}
	}

	ref := &programRef{}
	qc := query.NewClient(query.Options{StaleTime: cfg.Query.StaleTime, Logger: logger})
	manager := jobs.NewManager(client, qc, jobs.ManagerOptions{
		MaxJobs:    cfg.Jobs.PageSize,
		FetchLimit: cfg.Jobs.FetchLimit,
		Notifier:   notify.Multi{toasts, notify.LogNotifier{Logger: logger}},
		Confirm:    ref.confirmer(),
		Saver:      jobs.FileSaver{Dir: cfg.Jobs.DownloadDir},
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(ctx, deps{
		manager:    manager,
		status:     client.JobStatus,
		toasts:     toasts,
		completion: completion,
		interval:   cfg.Polling.Interval,
		logger:     logger,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	ref.p = p

	logger.Info("dash-tui starting", "backend", cfg.Backend.BaseURL)
	if _, err := p.Run(); err != nil {
		logger.Error("tui exited", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// deps are the long-lived collaborators of the model.
type deps struct {
	manager    *jobs.Manager
	status     jobs.StatusFetcher
	toasts     *notify.Toasts
	completion notify.Notifier
	interval   time.Duration
	logger     *slog.Logger
}
