package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"backtestdash/internal/dashboard"
	"backtestdash/internal/domain"
)

// Column widths.
const (
	colID       = 14
	colType     = 13
	colStatus   = 10
	colProgress = 18
	colCreated  = 10
	colRuntime  = 10
)

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerText := fmt.Sprintf(
		" backtestdash    jobs: %s/%s  active: %d    page %d/%d    status: %s    sort: %s %s ",
		dashboard.FormatInt(m.view.Filtered),
		dashboard.FormatInt(m.view.Total),
		dashboard.ActiveCount(m.deps.manager.State().Data.Jobs),
		m.view.Page,
		m.view.TotalPages,
		m.criteria.Status,
		m.criteria.SortBy,
		m.criteria.Order,
	)
	if m.loading {
		headerText += "   loading... "
	}
	headerBar := headerBarStyle.Render(padOrTrunc(headerText, m.width))

	footerLeft := " q quit  / search  f status  s sort  o order  [/] page  enter watch  c cancel  d delete  w download  r refresh"
	footerRight := fmt.Sprintf("%.0f%% ", m.viewport.ScrollPercent()*100)
	gap := m.width - len(footerLeft) - len(footerRight)
	if gap < 0 {
		gap = 0
	}
	footerBar := footerBarStyle.Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + m.renderBottom() + "\n" + footerBar
}

func (m model) renderContent() string {
	var b strings.Builder
	now := time.Now()

	colLine := fmt.Sprintf("  %-*s %-*s %-*s %-*s %*s %*s  %s",
		colID, "ID", colType, "TYPE", colStatus, "STATUS", colProgress, "PROGRESS",
		colCreated, "CREATED", colRuntime, "RUNTIME", "ERROR")
	b.WriteString(colHeaderStyle.Render(padOrTrunc(colLine, m.width)))
	b.WriteString("\n")

	switch {
	case len(m.view.Jobs) == 0 && m.loading:
		b.WriteString(dimStyle.Render("  Loading..."))
		b.WriteString("\n")
	case len(m.view.Jobs) == 0 && m.view.Total == 0:
		b.WriteString(dimStyle.Render("  No jobs yet."))
		b.WriteString("\n")
	case len(m.view.Jobs) == 0:
		b.WriteString(dimStyle.Render("  (no jobs match the current filters)"))
		b.WriteString("\n")
	}
	for i, j := range m.view.Jobs {
		renderRow(&b, j, now, m.width, i == m.cursor)
	}

	if m.watch != nil {
		b.WriteString("\n")
		renderWatch(&b, m.watch, now, m.width)
	}
	return b.String()
}

// hlStyle returns a copy of s with the highlight background applied when hl is true.
func hlStyle(s lipgloss.Style, hl bool) lipgloss.Style {
	if !hl {
		return s
	}
	return s.Background(highlightBG)
}

func renderRow(b *strings.Builder, j domain.Job, now time.Time, width int, hl bool) {
	plain := hlStyle(lipgloss.NewStyle(), hl)
	marker := "  "
	if hl {
		marker = "> "
	}
	b.WriteString(plain.Render(marker))
	b.WriteString(hlStyle(idStyle, hl).Render(padOrTrunc(j.ID, colID)))
	b.WriteString(plain.Render(" " + padOrTrunc(string(j.Type), colType) + " "))
	b.WriteString(hlStyle(statusStyle(j.Status), hl).Render(padOrTrunc(dashboard.StatusLabel(j.Status), colStatus)))
	b.WriteString(plain.Render(" " + padOrTrunc(dashboard.FormatProgress(j.Progress, 10), colProgress) + " "))
	b.WriteString(hlStyle(dimStyle, hl).Render(fmt.Sprintf("%*s %*s",
		colCreated, dashboard.FormatAge(j.CreatedAt, now),
		colRuntime, dashboard.FormatDuration(dashboard.JobRuntime(j, now)))))

	used := 2 + colID + 1 + colType + 1 + colStatus + 1 + colProgress + 1 + colCreated + 1 + colRuntime
	if rest := width - used - 2; rest > 0 {
		b.WriteString(hlStyle(errorStyle, hl).Render("  " + padOrTrunc(j.Error, rest)))
	}
	b.WriteString("\n")
}

func renderWatch(b *strings.Builder, w *watch, now time.Time, width int) {
	j := w.job
	title := fmt.Sprintf(" JOB %s  %s ", j.ID, j.Type)
	if w.poller != nil && w.poller.IsPolling() {
		title += " polling "
	}
	b.WriteString(panelTitleStyle.Width(width).Render(title))
	b.WriteString("\n")

	row := func(k, v string) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %-10s", k)))
		b.WriteString(v)
		b.WriteString("\n")
	}
	row("status", statusStyle(j.Status).Render(dashboard.StatusLabel(j.Status)))
	row("progress", dashboard.FormatProgress(j.Progress, 30))
	if !j.Status.Terminal() {
		est := w.last.Estimate
		if w.poller != nil && est == "" {
			est = w.poller.EstimatedTimeRemaining()
		}
		if est != "" {
			row("remaining", est)
		}
	}
	row("created", dashboard.FormatTimestamp(j.CreatedAt, time.Local))
	if j.CompletedAt != nil {
		row("completed", dashboard.FormatTimestamp(*j.CompletedAt, time.Local))
	}
	row("runtime", dashboard.FormatDuration(dashboard.JobRuntime(j, now)))
	if j.Error != "" {
		row("error", errorStyle.Render(j.Error))
	}
}

// renderBottom draws the toast stack and the input or prompt line, always
// bottomLines tall.
func (m model) renderBottom() string {
	lines := make([]string, 0, bottomLines)
	toasts := m.deps.toasts.Active()
	if limit := bottomLines - 1; len(toasts) > limit {
		toasts = toasts[len(toasts)-limit:]
	}
	for i := 0; i < bottomLines-1-len(toasts); i++ {
		lines = append(lines, "")
	}
	for _, t := range toasts {
		lines = append(lines, toastStyle(t.Level).Render(padOrTrunc(" "+t.Message, m.width)))
	}

	switch {
	case m.confirm != nil:
		lines = append(lines, confirmBarStyle.Render(padOrTrunc(" "+m.confirm.prompt+" [y/N] ", m.width)))
	case m.searching:
		lines = append(lines, m.search.View())
	default:
		lines = append(lines, dimStyle.Render(padOrTrunc(m.criteriaLine(), m.width)))
	}
	return strings.Join(lines, "\n")
}

func (m model) criteriaLine() string {
	parts := []string{fmt.Sprintf(" status=%s", m.criteria.Status)}
	if m.criteria.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", m.criteria.Search))
	}
	parts = append(parts, fmt.Sprintf("showing %d of %d", len(m.view.Jobs), m.view.Filtered))
	return strings.Join(parts, "  ")
}

func padOrTrunc(s string, width int) string {
	if width <= 0 {
		return ""
	}
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}
