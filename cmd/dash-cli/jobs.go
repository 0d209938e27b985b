package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"backtestdash/internal/dashboard"
	"backtestdash/internal/domain"
	"backtestdash/internal/jobs"
	"backtestdash/internal/notify"
	"backtestdash/pkg/backtestdash"
)

// JobsCmd groups the job list and job action subcommands.
func JobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List, watch and act on backtest jobs",
	}
	cmd.AddCommand(
		ListCmd(a),
		StatusCmd(a),
		WatchCmd(a),
		CancelCmd(a),
		DeleteCmd(a),
		DownloadCmd(a),
		SavedCmd(a),
		SubmitCmd(a),
	)
	return cmd
}

func ListCmd(a *app) *cobra.Command {
	var (
		search, status, sortBy, order string
		page, pageSize                int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs with search, status filter, sort and paging",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pageSize > 0 {
				a.cfg.Jobs.PageSize = pageSize
			}
			m := a.manager(nil)
			if err := m.Load(cmd.Context()); err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			m.SetSearchTerm(search)
			m.SetStatusFilter(status)
			m.SetSort(jobs.SortKey(sortBy), jobs.SortOrder(order))
			m.SetPage(page)

			v := m.View()
			if v.Total == 0 {
				fmt.Fprintln(a.out, "No jobs found.")
				return nil
			}
			fmt.Fprintln(a.out, renderJobs(v, time.Now()))
			for _, g := range dashboard.GroupByStatus(v.Jobs) {
				fmt.Fprintf(a.out, "%s %d  ", statusStyle(g.Status).Render(dashboard.StatusLabel(g.Status)), g.Count)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "match job id or type (case-insensitive)")
	cmd.Flags().StringVar(&status, "status", jobs.StatusAll, "filter by status (all, pending, running, completed, failed, cancelled)")
	cmd.Flags().StringVar(&sortBy, "sort", string(jobs.SortByCreatedAt), "sort by created_at, status or type")
	cmd.Flags().StringVar(&order, "order", string(jobs.Desc), "sort order: asc or desc")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "jobs per page (default from config)")
	return cmd
}

func StatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.client.Job(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			renderJob(a.out, j, time.Now())
			return nil
		},
	}
}

func WatchCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		ntfyURL  string
	)
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = a.cfg.Polling.Interval
			}
			if ntfyURL == "" {
				ntfyURL = a.cfg.Notify.NtfyURL
			}
			return watchJob(cmd.Context(), a, args[0], interval, ntfyURL)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "poll interval (default from config)")
	cmd.Flags().StringVar(&ntfyURL, "ntfy", "", "ntfy topic URL to notify on completion")
	return cmd
}

func watchJob(ctx context.Context, a *app, id string, interval time.Duration, ntfyURL string) error {
	job, err := a.client.Job(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job.Status.Terminal() {
		renderJob(a.out, job, time.Now())
		return nil
	}

	completed := make(chan domain.Job, 1)
	p := jobs.NewPoller(job, a.client.JobStatus, jobs.PollerOptions{
		Interval: interval,
		Logger:   a.logger,
		OnComplete: func(j domain.Job) {
			completed <- j
		},
	})
	subID, events := p.Subscribe(16)
	defer p.Unsubscribe(subID)

	if !p.Start(ctx) {
		return errors.New("poller did not start")
	}
	defer p.Stop()

	fmt.Fprintf(a.out, "watching %s every %s\n", id, interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-events:
			line := fmt.Sprintf("%s %s", dashboard.FormatProgress(evt.Job.Progress, 20),
				statusStyle(evt.Job.Status).Render(dashboard.StatusLabel(evt.Job.Status)))
			if evt.Estimate != "" {
				line += "  " + dimStyle.Render(evt.Estimate)
			}
			fmt.Fprintln(a.out, line)
			if evt.Job.Status.Terminal() && !evt.Completed {
				renderJob(a.out, evt.Job, time.Now())
				if evt.Job.Status == domain.JobFailed {
					return fmt.Errorf("job %s failed: %s", id, evt.Job.Error)
				}
				return nil
			}
		case j := <-completed:
			renderJob(a.out, j, time.Now())
			a.notifier().Success("Job completed")
			if ntfyURL != "" {
				sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				msg := fmt.Sprintf("Backtest %s completed", j.ID)
				headers := map[string]string{"Title": "backtestdash", "Tags": "white_check_mark"}
				if err := notify.Send(sendCtx, http.DefaultClient, ntfyURL, msg, headers); err != nil {
					a.logger.Warn("ntfy push failed", "error", err)
				}
			}
			return nil
		}
	}
}

func CancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager(nil).HandleCancelJob(cmd.Context(), args[0])
		},
	}
}

func DeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := promptConfirm(a.in, a.out)
			if yes {
				confirm = alwaysConfirm
			}
			return a.manager(confirm).HandleDeleteJob(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func DownloadCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Save a job's results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir != "" {
				a.cfg.Jobs.DownloadDir = dir
			}
			path, err := a.manager(nil).HandleDownloadResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default from config)")
	return cmd
}

func SavedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "saved [job-id]",
		Short: "List previously downloaded results, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := dashboard.ListSavedResults(a.cfg.Jobs.DownloadDir)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				for _, s := range saved {
					if s.JobID != args[0] {
						continue
					}
					payload, err := dashboard.LoadSavedResult(s.Path)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(a.out, string(payload))
					return err
				}
				return fmt.Errorf("no saved results for job %s", args[0])
			}
			if len(saved) == 0 {
				fmt.Fprintln(a.out, "No saved results.")
				return nil
			}
			for _, s := range saved {
				fmt.Fprintf(a.out, "%-36s %10s  %s  %s\n", s.JobID, dashboard.FormatInt(int(s.Size)),
					s.ModTime.Format("2006-01-02 15:04"), dimStyle.Render(s.Path))
			}
			return nil
		},
	}
}

func SubmitCmd(a *app) *cobra.Command {
	var (
		req    backtestdash.BacktestRequest
		params []string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			req.Params = p
			j, err := a.client.SubmitBacktest(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to submit backtest: %w", err)
			}
			fmt.Fprintf(a.out, "submitted %s (%s)\n", j.ID, dashboard.StatusLabel(j.Status))
			if watch {
				return watchJob(cmd.Context(), a, j.ID, a.cfg.Polling.Interval, a.cfg.Notify.NtfyURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Strategy, "strategy", "", "strategy name")
	cmd.Flags().StringVar(&req.Dataset, "dataset", "", "dataset name")
	cmd.Flags().StringVar(&req.Symbol, "symbol", "", "symbol to trade")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&req.InitialCapital, "capital", 0, "initial capital")
	cmd.Flags().StringArrayVar(&params, "param", nil, "strategy parameter key=value (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "watch the job after submitting")
	cmd.MarkFlagRequired("strategy")
	cmd.MarkFlagRequired("dataset")
	return cmd
}
