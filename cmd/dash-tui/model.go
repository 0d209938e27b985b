package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"backtestdash/internal/domain"
	"backtestdash/internal/jobs"
	"backtestdash/internal/notify"
)

// Styles.
var (
	headerBarStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerBarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	confirmBarStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")) // black on yellow
	colHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	runningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	highlightBG     = lipgloss.Color("236")
)

func statusStyle(s domain.JobStatus) lipgloss.Style {
	switch s {
	case domain.JobCompleted:
		return successStyle
	case domain.JobFailed:
		return errorStyle
	case domain.JobRunning:
		return runningStyle
	case domain.JobCancelled:
		return dimStyle
	default:
		return warnStyle
	}
}

func toastStyle(l notify.Level) lipgloss.Style {
	switch l {
	case notify.LevelSuccess:
		return successStyle
	case notify.LevelError:
		return errorStyle
	default:
		return warnStyle
	}
}

// Filter and sort cycles.
var (
	statusCycle = []string{
		jobs.StatusAll,
		string(domain.JobPending),
		string(domain.JobRunning),
		string(domain.JobCompleted),
		string(domain.JobFailed),
		string(domain.JobCancelled),
	}
	sortCycle = []jobs.SortKey{jobs.SortByCreatedAt, jobs.SortByStatus, jobs.SortByType}
)

func nextStatus(cur string) string {
	for i, s := range statusCycle {
		if s == cur {
			return statusCycle[(i+1)%len(statusCycle)]
		}
	}
	return statusCycle[0]
}

func nextSortKey(cur jobs.SortKey) jobs.SortKey {
	for i, k := range sortCycle {
		if k == cur {
			return sortCycle[(i+1)%len(sortCycle)]
		}
	}
	return sortCycle[0]
}

// Lines below the viewport: toasts plus the input/prompt line.
const bottomLines = 5

// autoRefreshTicks is how many ticks pass between background list loads.
const autoRefreshTicks = 10

// Messages.
type tickMsg time.Time

type jobsLoadedMsg struct {
	err error
}

type actionMsg struct {
	action string
	jobID  string
	path   string
	err    error
}

// confirmMsg asks the user a yes/no question on behalf of a running action.
type confirmMsg struct {
	prompt string
	reply  chan<- bool
}

// pollMsg carries one poller event; gen ties it to the watch that produced it.
type pollMsg struct {
	gen    int
	evt    jobs.JobEvent
	closed bool
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// watch is the job shown in the progress panel.
type watch struct {
	gen    int
	job    domain.Job
	poller *jobs.Poller
	subID  int
	events <-chan jobs.JobEvent
	last   jobs.JobEvent
}

func (w *watch) stop() {
	if w == nil || w.poller == nil {
		return
	}
	w.poller.Stop()
	w.poller.Unsubscribe(w.subID)
}

// Model.
type model struct {
	ctx  context.Context
	deps deps

	view     jobs.View
	criteria jobs.Criteria
	cursor   int
	loading  bool
	ticks    int

	watch    *watch
	watchGen int

	searching bool
	search    textinput.Model
	confirm   *confirmMsg

	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func newModel(ctx context.Context, d deps) model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "job id or type"
	ti.CharLimit = 64
	m := model{
		ctx:     ctx,
		deps:    d,
		search:  ti,
		loading: true,
	}
	m.syncView()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.loadCmd(false))
}

func (m model) loadCmd(force bool) tea.Cmd {
	mgr := m.deps.manager
	ctx := m.ctx
	return func() tea.Msg {
		if force {
			return jobsLoadedMsg{err: mgr.HandleRefresh(ctx)}
		}
		return jobsLoadedMsg{err: mgr.Load(ctx)}
	}
}

func waitForPoll(gen int, ch <-chan jobs.JobEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		return pollMsg{gen: gen, evt: evt, closed: !ok}
	}
}

// syncView re-derives the visible page and keeps the cursor in range.
func (m *model) syncView() {
	m.view = m.deps.manager.View()
	m.criteria = m.deps.manager.Criteria()
	if m.cursor >= len(m.view.Jobs) {
		m.cursor = len(m.view.Jobs) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *model) refresh() {
	m.syncView()
	if m.ready {
		m.viewport.SetContent(m.renderContent())
		m.ensureVisible()
	}
}

func (m model) selected() (domain.Job, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Jobs) {
		return domain.Job{}, false
	}
	return m.view.Jobs[m.cursor], true
}

// ensureVisible scrolls the viewport so the selected row is visible.
func (m *model) ensureVisible() {
	line := m.cursor + 1 // column header
	yOff := m.viewport.YOffset
	vpH := m.viewport.Height
	if line < yOff {
		m.viewport.SetYOffset(line)
	} else if line >= yOff+vpH {
		m.viewport.SetYOffset(line - vpH + 1)
	}
}

// startWatch replaces the progress panel with job and polls it when it is
// still active.
func (m *model) startWatch(job domain.Job) tea.Cmd {
	m.watch.stop()
	m.watchGen++
	w := &watch{gen: m.watchGen, job: job}
	m.watch = w
	if job.Status.Terminal() {
		return nil
	}

	notifier := m.deps.completion
	w.poller = jobs.NewPoller(job, m.deps.status, jobs.PollerOptions{
		Interval: m.deps.interval,
		Logger:   m.deps.logger,
		OnComplete: func(j domain.Job) {
			notifier.Success(fmt.Sprintf("Job %s completed", j.ID))
		},
	})
	w.subID, w.events = w.poller.Subscribe(16)
	if !w.poller.Start(m.ctx) {
		w.poller.Unsubscribe(w.subID)
		w.poller = nil
		return nil
	}
	m.deps.logger.Debug("watching job", "job_id", job.ID)
	return waitForPoll(w.gen, w.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirm != nil {
			return m.updateConfirm(msg)
		}
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2 - bottomLines
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.search.Width = m.width - 4
		m.refresh()
		return m, nil

	case tickMsg:
		m.ticks++
		var cmd tea.Cmd
		if m.ticks%autoRefreshTicks == 0 && !m.loading {
			m.loading = true
			cmd = m.loadCmd(false)
		}
		m.refresh()
		return m, tea.Batch(tickCmd(), cmd)

	case jobsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.deps.logger.Warn("job list load failed", "error", msg.err)
		}
		m.refresh()
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.deps.logger.Warn("action failed", "action", msg.action, "job_id", msg.jobID, "error", msg.err)
		} else if msg.path != "" {
			m.deps.logger.Info("results saved", "job_id", msg.jobID, "path", msg.path)
		}
		if msg.action == "cancel" && msg.err == nil && m.watch != nil && m.watch.job.ID == msg.jobID {
			m.watch.stop()
			m.watch.poller = nil
			if j, ok := m.deps.manager.Find(msg.jobID); ok {
				m.watch.job = j
			}
		}
		m.refresh()
		return m, nil

	case confirmMsg:
		m.confirm = &msg
		return m, nil

	case pollMsg:
		if m.watch == nil || msg.gen != m.watch.gen || msg.closed {
			return m, nil
		}
		m.watch.job = msg.evt.Job
		m.watch.last = msg.evt
		m.refresh()
		if !msg.evt.Polling {
			m.watch.stop()
			// Pick up the terminal status in the list.
			return m, m.loadCmd(true)
		}
		return m, waitForPoll(m.watch.gen, m.watch.events)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	answer := false
	switch msg.String() {
	case "y", "Y":
		answer = true
	case "n", "N", "esc", "enter":
	case "ctrl+c":
		m.confirm.reply <- false
		m.confirm = nil
		m.watch.stop()
		return m, tea.Quit
	default:
		return m, nil
	}
	m.confirm.reply <- answer
	m.confirm = nil
	return m, nil
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		m.search.Blur()
		m.deps.manager.SetSearchTerm(m.search.Value())
		m.cursor = 0
		m.refresh()
		return m, nil
	case "esc":
		m.searching = false
		m.search.Blur()
		m.search.SetValue(m.criteria.Search)
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	// Filter as the user types.
	m.deps.manager.SetSearchTerm(m.search.Value())
	m.cursor = 0
	m.refresh()
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mgr := m.deps.manager
	switch msg.String() {
	case "q", "ctrl+c":
		m.watch.stop()
		return m, tea.Quit
	case "/":
		m.searching = true
		return m, m.search.Focus()
	case "esc":
		if m.criteria.Search != "" {
			m.search.SetValue("")
			mgr.SetSearchTerm("")
			m.refresh()
		}
		return m, nil
	case "f":
		mgr.SetStatusFilter(nextStatus(m.criteria.Status))
		m.cursor = 0
		m.refresh()
		return m, nil
	case "s":
		mgr.SetSort(nextSortKey(m.criteria.SortBy), m.criteria.Order)
		m.refresh()
		return m, nil
	case "o":
		mgr.ToggleSort(m.criteria.SortBy)
		m.refresh()
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.refresh()
		return m, nil
	case "down", "j":
		if m.cursor < len(m.view.Jobs)-1 {
			m.cursor++
		}
		m.refresh()
		return m, nil
	case "left", "[":
		mgr.SetPage(m.view.Page - 1)
		m.cursor = 0
		m.refresh()
		return m, nil
	case "right", "]":
		mgr.SetPage(m.view.Page + 1)
		m.cursor = 0
		m.refresh()
		return m, nil
	case "r":
		m.loading = true
		return m, m.loadCmd(true)
	case "enter":
		j, ok := m.selected()
		if !ok {
			return m, nil
		}
		cmd := m.startWatch(j)
		m.refresh()
		return m, cmd
	case "c":
		return m, m.actionCmd("cancel", func(ctx context.Context, id string) (string, error) {
			return "", mgr.HandleCancelJob(ctx, id)
		})
	case "d":
		return m, m.actionCmd("delete", func(ctx context.Context, id string) (string, error) {
			return "", mgr.HandleDeleteJob(ctx, id)
		})
	case "w":
		return m, m.actionCmd("download", mgr.HandleDownloadResults)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// actionCmd runs fn for the selected job off the update loop.
func (m model) actionCmd(action string, fn func(context.Context, string) (string, error)) tea.Cmd {
	j, ok := m.selected()
	if !ok {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		path, err := fn(ctx, j.ID)
		return actionMsg{action: action, jobID: j.ID, path: path, err: err}
	}
}
