package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"backtestdash/internal/dashboard"
	"backtestdash/internal/domain"
	"backtestdash/internal/jobs"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func statusStyle(s domain.JobStatus) lipgloss.Style {
	switch s {
	case domain.JobCompleted:
		return successStyle
	case domain.JobFailed:
		return errorStyle
	case domain.JobRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	case domain.JobCancelled:
		return dimStyle
	default:
		return warnStyle
	}
}

// consoleNotifier prints action outcomes, one per line.
type consoleNotifier struct {
	w io.Writer
}

func (c *consoleNotifier) Success(message string) {
	fmt.Fprintln(c.w, successStyle.Render("ok  ")+message)
}

func (c *consoleNotifier) Error(message string) {
	fmt.Fprintln(c.w, errorStyle.Render("err ")+message)
}

func (c *consoleNotifier) Warning(message string) {
	fmt.Fprintln(c.w, warnStyle.Render("warn")+message)
}

// promptConfirm asks on out and reads a y/N answer from in.
func promptConfirm(in io.Reader, out io.Writer) jobs.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func alwaysConfirm(context.Context, string) bool { return true }

// renderJobs draws the job table for one derived page.
func renderJobs(v jobs.View, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(v.Jobs) {
				return statusStyle(v.Jobs[row].Status).Padding(0, 1)
			}
			return cellStyle
		}).
		Headers("ID", "TYPE", "STATUS", "PROGRESS", "CREATED", "RUNTIME", "ERROR")

	for _, j := range v.Jobs {
		t.Row(
			j.ID,
			string(j.Type),
			dashboard.StatusLabel(j.Status),
			dashboard.FormatProgress(j.Progress, 10),
			dashboard.FormatAge(j.CreatedAt, now),
			dashboard.FormatDuration(dashboard.JobRuntime(j, now)),
			truncate(j.Error, 40),
		)
	}
	footer := fmt.Sprintf("page %d/%d  showing %d of %d matching (%d total)",
		v.Page, v.TotalPages, len(v.Jobs), v.Filtered, v.Total)
	return t.Render() + "\n" + dimStyle.Render(footer)
}

func renderJob(w io.Writer, j domain.Job, now time.Time) {
	row := func(k, v string) {
		fmt.Fprintf(w, "%-12s %s\n", dimStyle.Render(k), v)
	}
	row("id", j.ID)
	row("type", string(j.Type))
	row("status", statusStyle(j.Status).Render(dashboard.StatusLabel(j.Status)))
	row("progress", dashboard.FormatProgress(j.Progress, 20))
	row("created", dashboard.FormatTimestamp(j.CreatedAt, time.Local))
	if j.CompletedAt != nil {
		row("completed", dashboard.FormatTimestamp(*j.CompletedAt, time.Local))
	}
	row("runtime", dashboard.FormatDuration(dashboard.JobRuntime(j, now)))
	if j.Error != "" {
		row("error", errorStyle.Render(j.Error))
	}
}

func renderStats(w io.Writer, jc *dashboard.JobChart) {
	s := jc.Stats
	fmt.Fprintf(w, "%s  trades %s  win rate %s  net %s  profit factor %s\n",
		headerStyle.Render(jc.Symbol),
		dashboard.FormatCount(s.Trades),
		dashboard.FormatPercent(s.WinRate()),
		dashboard.FormatMoney(s.NetPnL),
		formatFactor(s.ProfitFactor()),
	)
	fmt.Fprintf(w, "return %s  max drawdown %s\n",
		dashboard.FormatPercent(jc.TotalReturn),
		dashboard.FormatPercent(jc.MaxDrawdown),
	)
	for _, side := range jc.BySide {
		fmt.Fprintf(w, "  %-5s trades %s  win rate %s  net %s\n",
			side.Side,
			dashboard.FormatCount(side.Trades),
			dashboard.FormatPercent(side.WinRate()),
			dashboard.FormatMoney(side.NetPnL),
		)
	}
	if top := s.TopExitReasons(3); len(top) > 0 {
		fmt.Fprintf(w, "  exits %s\n", dimStyle.Render(strings.Join(top, ", ")))
	}
}

func formatFactor(f float64) string {
	if f > 1e9 {
		return "inf"
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// parseParams turns key=value pairs into strategy parameters. Numbers and
// booleans are typed, everything else stays a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, want key=value", p)
		}
		v = strings.TrimSpace(v)
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
		} else {
			out[k] = v
		}
	}
	return out, nil
}
