package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"backtestdash/internal/domain"
	"backtestdash/internal/query"
)

type fakeBackend struct {
	mu        sync.Mutex
	listBody  string
	listErr   error
	listCalls int
	lastLimit int
	cancelErr error
	deleteErr error
	cancelled []string
	deleted   []string
	results   json.RawMessage
}

func (f *fakeBackend) ListJobs(ctx context.Context, limit int) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return json.RawMessage(f.listBody), nil
}

func (f *fakeBackend) CancelJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeBackend) DeleteJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) JobResults(ctx context.Context, id string) (json.RawMessage, error) {
	return f.results, nil
}

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, s)
}

func (r *recorder) Success(m string) { r.add("success:" + m) }
func (r *recorder) Error(m string)   { r.add("error:" + m) }
func (r *recorder) Warning(m string) { r.add("warning:" + m) }

func (r *recorder) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

const twoJobs = `{
  "items": [
    {"id": "job-a", "type": "backtest", "status": "completed", "progress": 100, "created_at": "2024-01-03"},
    {"id": "job-b", "type": "optimization", "status": "running", "progress": 40, "created_at": "2024-01-01"}
  ],
  "total": 2, "limit": 100, "pages": 1, "page": 1
}`

func newTestManager(t *testing.T, be *fakeBackend, opts ManagerOptions) (*Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts.Notifier = rec
	m := NewManager(be, query.NewClient(query.Options{}), opts)
	return m, rec
}

func ids(jobs []domain.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func TestManagerSortThenFilter(t *testing.T) {
	be := &fakeBackend{listBody: twoJobs}
	m, _ := newTestManager(t, be, ManagerOptions{})

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.SetSort(SortByCreatedAt, Desc)
	if got := ids(m.View().Jobs); strings.Join(got, ",") != "job-a,job-b" {
		t.Fatalf("sorted desc = %v, want [job-a job-b]", got)
	}

	m.SetStatusFilter(string(domain.JobCompleted))
	if got := ids(m.View().Jobs); strings.Join(got, ",") != "job-a" {
		t.Fatalf("filtered = %v, want [job-a]", got)
	}

	m.SetStatusFilter(StatusAll)
	m.SetSearchTerm("OPTIM")
	if got := ids(m.View().Jobs); strings.Join(got, ",") != "job-b" {
		t.Fatalf("search by type = %v, want [job-b]", got)
	}
}

func TestManagerFetchLimit(t *testing.T) {
	be := &fakeBackend{listBody: `{"items": []}`}
	m, _ := newTestManager(t, be, ManagerOptions{MaxJobs: 10, FetchLimit: 500})
	m.Load(context.Background())
	if be.lastLimit != 100 {
		t.Errorf("requested limit = %d, want clamped 100", be.lastLimit)
	}

	be2 := &fakeBackend{listBody: `{"items": []}`}
	m2, _ := newTestManager(t, be2, ManagerOptions{MaxJobs: 30, FetchLimit: 5})
	m2.Load(context.Background())
	if be2.lastLimit != 30 {
		t.Errorf("requested limit = %d, want page size 30", be2.lastLimit)
	}
}

func TestManagerSettersResetPage(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"items":[`)
	for i := 0; i < 45; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"id":"j` + string(rune('a'+i%26)) + string(rune('a'+i/26)) + `","type":"backtest","status":"running"}`)
	}
	b.WriteString(`]}`)

	be := &fakeBackend{listBody: b.String()}
	m, _ := newTestManager(t, be, ManagerOptions{MaxJobs: 20})
	m.Load(context.Background())

	m.SetPage(3)
	if v := m.View(); v.Page != 3 || v.TotalPages != 3 || len(v.Jobs) != 5 {
		t.Fatalf("page 3 view = page %d of %d with %d jobs", v.Page, v.TotalPages, len(v.Jobs))
	}

	m.SetSearchTerm("j")
	if p := m.Criteria().Page; p != 1 {
		t.Errorf("page after search change = %d, want 1", p)
	}

	m.SetPage(99)
	if p := m.Criteria().Page; p != 3 {
		t.Errorf("SetPage(99) = %d, want clamped 3", p)
	}
}

func TestManagerClampsPageWhenFilterShrinks(t *testing.T) {
	be := &fakeBackend{listBody: twoJobs}
	m, _ := newTestManager(t, be, ManagerOptions{MaxJobs: 1})
	m.Load(context.Background())

	m.SetPage(2)
	if v := m.View(); v.Page != 2 {
		t.Fatalf("page = %d, want 2", v.Page)
	}

	// Backend now returns a single job; page 2 no longer exists.
	be.mu.Lock()
	be.listBody = `{"items":[{"id":"job-a","type":"backtest","status":"completed"}]}`
	be.mu.Unlock()
	if err := m.HandleRefresh(context.Background()); err != nil {
		t.Fatalf("HandleRefresh: %v", err)
	}
	if v := m.View(); v.Page != 1 || len(v.Jobs) != 1 {
		t.Errorf("view after shrink = page %d with %d jobs", v.Page, len(v.Jobs))
	}
}

func TestManagerLoadErrorNotifiesOncePerTransition(t *testing.T) {
	be := &fakeBackend{listErr: errors.New("503")}
	m, rec := newTestManager(t, be, ManagerOptions{})

	m.Load(context.Background())
	m.Load(context.Background())
	m.Load(context.Background())
	if got := rec.count("error:Failed to load jobs"); got != 1 {
		t.Fatalf("load error toasts = %d, want 1", got)
	}
	if st := m.State(); !st.IsError {
		t.Error("State().IsError = false")
	}

	be.mu.Lock()
	be.listErr = nil
	be.listBody = twoJobs
	be.mu.Unlock()
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("recovery Load: %v", err)
	}

	be.mu.Lock()
	be.listErr = errors.New("503 again")
	be.mu.Unlock()
	m.HandleRefresh(context.Background())
	if got := rec.count("error:Failed to load jobs"); got != 2 {
		t.Errorf("load error toasts after second outage = %d, want 2", got)
	}
	if got := rec.count("error:Failed to refresh jobs"); got != 0 {
		t.Errorf("duplicate refresh toast fired %d times", got)
	}
	// Last good data is still shown.
	if n := len(m.View().Jobs); n != 2 {
		t.Errorf("jobs after failed refresh = %d, want 2", n)
	}
}

func TestManagerCancel(t *testing.T) {
	be := &fakeBackend{listBody: twoJobs}
	m, rec := newTestManager(t, be, ManagerOptions{})
	m.Load(context.Background())
	calls := be.listCalls

	if err := m.HandleCancelJob(context.Background(), "job-b"); err != nil {
		t.Fatalf("HandleCancelJob: %v", err)
	}
	if len(be.cancelled) != 1 || be.cancelled[0] != "job-b" {
		t.Errorf("cancelled = %v", be.cancelled)
	}
	if rec.count("success:Job cancelled") != 1 {
		t.Errorf("messages = %v", rec.messages)
	}
	if be.listCalls != calls+1 {
		t.Errorf("list calls = %d, want refetch after cancel", be.listCalls)
	}
}

func TestManagerCancelFailureLeavesStatus(t *testing.T) {
	be := &fakeBackend{listBody: twoJobs, cancelErr: errors.New("conflict")}
	m, rec := newTestManager(t, be, ManagerOptions{})
	m.Load(context.Background())

	if err := m.HandleCancelJob(context.Background(), "job-b"); err == nil {
		t.Fatal("expected error")
	}
	if j, _ := m.Find("job-b"); j.Status != domain.JobRunning {
		t.Errorf("status = %s, want running (no optimistic flip on failure)", j.Status)
	}
	if rec.count("error:Failed to cancel job") != 1 {
		t.Errorf("messages = %v", rec.messages)
	}
}

func TestManagerDeleteRequiresConfirmation(t *testing.T) {
	be := &fakeBackend{listBody: twoJobs}
	answer := false
	var prompts []string
	m, rec := newTestManager(t, be, ManagerOptions{
		Confirm: func(ctx context.Context, prompt string) bool {
			prompts = append(prompts, prompt)
			return answer
		},
	})
	m.Load(context.Background())

	if err := m.HandleDeleteJob(context.Background(), "job-a"); err != nil {
		t.Fatalf("declined delete returned error: %v", err)
	}
	if len(be.deleted) != 0 {
		t.Fatal("backend delete called without confirmation")
	}

	answer = true
	if err := m.HandleDeleteJob(context.Background(), "job-a"); err != nil {
		t.Fatalf("HandleDeleteJob: %v", err)
	}
	if len(be.deleted) != 1 {
		t.Fatalf("deleted = %v", be.deleted)
	}
	if len(prompts) != 2 || !strings.Contains(prompts[0], "job-a") {
		t.Errorf("prompts = %v", prompts)
	}
	if rec.count("success:Job deleted") != 1 {
		t.Errorf("messages = %v", rec.messages)
	}
}

func TestManagerDeleteWithoutConfirmFuncIsNoop(t *testing.T) {
	be := &fakeBackend{listBody: twoJobs}
	m, _ := newTestManager(t, be, ManagerOptions{})
	m.HandleDeleteJob(context.Background(), "job-a")
	if len(be.deleted) != 0 {
		t.Fatal("delete reached backend with no confirmation gate")
	}
}

func TestManagerDownloadResults(t *testing.T) {
	dir := t.TempDir()
	be := &fakeBackend{listBody: twoJobs, results: json.RawMessage(`{"sharpe":1.4,"trades":[]}`)}
	m, rec := newTestManager(t, be, ManagerOptions{Saver: FileSaver{Dir: dir}})

	path, err := m.HandleDownloadResults(context.Background(), "job-a")
	if err != nil {
		t.Fatalf("HandleDownloadResults: %v", err)
	}
	if filepath.Base(path) != "job_job-a_results.json" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	if !strings.Contains(string(data), "\"sharpe\": 1.4") {
		t.Errorf("results not indented JSON: %s", data)
	}
	if rec.count("success:Results downloaded") != 1 {
		t.Errorf("messages = %v", rec.messages)
	}
}

func TestResultFileNameSanitizes(t *testing.T) {
	if got := ResultFileName("../etc/passwd"); strings.Contains(got, "/") {
		t.Errorf("ResultFileName = %q contains a separator", got)
	}
}
