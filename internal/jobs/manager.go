package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"backtestdash/internal/domain"
	"backtestdash/internal/notify"
	"backtestdash/internal/query"
)

// Backend is the subset of the job API the manager drives.
type Backend interface {
	ListJobs(ctx context.Context, limit int) (json.RawMessage, error)
	CancelJob(ctx context.Context, jobID string) error
	DeleteJob(ctx context.Context, jobID string) error
	JobResults(ctx context.Context, jobID string) (json.RawMessage, error)
}

// ConfirmFunc asks the user a yes/no question. Delete never reaches the
// backend unless it returns true.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// MaxJobs is the page size of the derived view. Default 20.
	MaxJobs int
	// FetchLimit is how many jobs to request. The request uses
	// max(FetchLimit, MaxJobs), clamped to [1, 100]. Default 100.
	FetchLimit int
	Notifier   notify.Notifier
	Confirm    ConfirmFunc
	Saver      ResultSaver
	Logger     *slog.Logger
}

// Manager owns the job list view state and its actions.
type Manager struct {
	backend  Backend
	query    *query.Query[json.RawMessage, Page]
	notifier notify.Notifier
	confirm  ConfirmFunc
	saver    ResultSaver
	logger   *slog.Logger

	mu       sync.Mutex
	criteria Criteria
	jobs     []domain.Job
	errored  bool
}

// NewManager creates a manager reading jobs through qc.
func NewManager(backend Backend, qc *query.Client, opts ManagerOptions) *Manager {
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultPageSize
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = maxListLimit
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Saver == nil {
		opts.Saver = FileSaver{Dir: "."}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := max(opts.FetchLimit, opts.MaxJobs)

	return &Manager{
		backend:  backend,
		query:    JobsQuery(qc, backend.ListJobs, limit),
		notifier: opts.Notifier,
		confirm:  opts.Confirm,
		saver:    opts.Saver,
		logger:   opts.Logger,
		criteria: DefaultCriteria(opts.MaxJobs),
	}
}

// Load fetches the job list, serving from cache while it is fresh.
func (m *Manager) Load(ctx context.Context) error {
	page, err := m.query.Load(ctx)
	m.observe(page, err)
	return err
}

func (m *Manager) refetch(ctx context.Context) error {
	page, err := m.query.Refetch(ctx)
	m.observe(page, err)
	if err != nil {
		m.logger.Warn("job list refetch failed", "error", err)
	}
	return err
}

// observe records a query result. The load-failure notification fires once
// per transition into the error state. It reports whether it fired.
func (m *Manager) observe(page Page, err error) bool {
	m.mu.Lock()
	fire := false
	if err != nil {
		if !m.errored {
			fire = true
		}
		m.errored = true
	} else {
		m.errored = false
		m.jobs = append([]domain.Job(nil), page.Jobs...)
		m.clampPageLocked()
	}
	m.mu.Unlock()

	if fire {
		m.notifier.Error("Failed to load jobs")
	}
	return fire
}

// ---------------------------------------------------------------------------
// View state
// ---------------------------------------------------------------------------

// SetSearchTerm filters by case-insensitive substring of id or type.
func (m *Manager) SetSearchTerm(term string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criteria.Search = term
	m.criteria.Page = 1
}

// SetStatusFilter filters by exact status; StatusAll clears the filter.
func (m *Manager) SetStatusFilter(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "" {
		status = StatusAll
	}
	m.criteria.Status = status
	m.criteria.Page = 1
}

// SetSort changes the sort key and order.
func (m *Manager) SetSort(key SortKey, order SortOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criteria.SortBy = key
	m.criteria.Order = order
	m.criteria.Page = 1
}

// ToggleSort sorts by key, flipping the order when key is already active.
// A new key starts descending.
func (m *Manager) ToggleSort(key SortKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.criteria.SortBy == key {
		if m.criteria.Order == Desc {
			m.criteria.Order = Asc
		} else {
			m.criteria.Order = Desc
		}
	} else {
		m.criteria.SortBy = key
		m.criteria.Order = Desc
	}
	m.criteria.Page = 1
}

// SetPage moves to page n, clamped to the available pages.
func (m *Manager) SetPage(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criteria.Page = n
	m.clampPageLocked()
}

func (m *Manager) clampPageLocked() {
	v := Derive(m.jobs, m.criteria)
	m.criteria.Page = v.Page
}

// Criteria returns the current view state.
func (m *Manager) Criteria() Criteria {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.criteria
}

// View derives the current page from the last loaded jobs.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := Derive(m.jobs, m.criteria)
	m.criteria.Page = v.Page
	return v
}

// State exposes loading and error flags of the underlying query.
func (m *Manager) State() query.State[Page] {
	return m.query.State()
}

// Find returns the locally known job with id.
func (m *Manager) Find(id string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return domain.Job{}, false
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// HandleCancelJob cancels a job. The local status flips to cancelled only
// after the backend accepts the request.
func (m *Manager) HandleCancelJob(ctx context.Context, id string) error {
	if err := m.backend.CancelJob(ctx, id); err != nil {
		m.logger.Error("cancel job failed", "job_id", id, "error", err)
		m.notifier.Error("Failed to cancel job")
		return fmt.Errorf("cancel job %s: %w", id, err)
	}

	m.mu.Lock()
	for i := range m.jobs {
		if m.jobs[i].ID == id {
			m.jobs[i].Status = domain.JobCancelled
		}
	}
	m.mu.Unlock()

	m.notifier.Success("Job cancelled")
	m.refetch(ctx)
	return nil
}

// HandleDeleteJob deletes a job after confirmation. A declined confirmation
// is not an error.
func (m *Manager) HandleDeleteJob(ctx context.Context, id string) error {
	if m.confirm == nil || !m.confirm(ctx, fmt.Sprintf("Delete job %s? This cannot be undone.", id)) {
		m.logger.Debug("delete not confirmed", "job_id", id)
		return nil
	}

	if err := m.backend.DeleteJob(ctx, id); err != nil {
		m.logger.Error("delete job failed", "job_id", id, "error", err)
		m.notifier.Error("Failed to delete job")
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	m.mu.Lock()
	kept := m.jobs[:0]
	for _, j := range m.jobs {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	m.jobs = kept
	m.clampPageLocked()
	m.mu.Unlock()

	m.notifier.Success("Job deleted")
	m.refetch(ctx)
	return nil
}

// HandleDownloadResults fetches a job's results and saves them. It returns
// the saved location.
func (m *Manager) HandleDownloadResults(ctx context.Context, id string) (string, error) {
	payload, err := m.backend.JobResults(ctx, id)
	if err != nil {
		m.logger.Error("fetch results failed", "job_id", id, "error", err)
		m.notifier.Error("Failed to download results")
		return "", fmt.Errorf("fetch results %s: %w", id, err)
	}

	path, err := m.saver.Save(id, payload)
	if err != nil {
		m.logger.Error("save results failed", "job_id", id, "error", err)
		m.notifier.Error("Failed to save results")
		return "", fmt.Errorf("save results %s: %w", id, err)
	}

	m.notifier.Success("Results downloaded")
	m.logger.Info("results saved", "job_id", id, "path", path)
	m.refetch(ctx)
	return path, nil
}

// HandleRefresh forces a refetch of the job list.
func (m *Manager) HandleRefresh(ctx context.Context) error {
	page, err := m.query.Refetch(ctx)
	fired := m.observe(page, err)
	if err != nil {
		if !fired {
			m.notifier.Error("Failed to refresh jobs")
		}
		return fmt.Errorf("refresh jobs: %w", err)
	}
	m.notifier.Success("Jobs refreshed")
	return nil
}
