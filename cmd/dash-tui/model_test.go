package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"backtestdash/internal/domain"
	"backtestdash/internal/jobs"
	"backtestdash/internal/notify"
	"backtestdash/internal/query"
)

type stubBackend struct{}

func (stubBackend) ListJobs(ctx context.Context, limit int) (json.RawMessage, error) {
	return json.RawMessage(`{"jobs": [
		{"id": "job-1", "type": "backtest", "status": "completed", "progress": 100, "created_at": "2024-01-01T10:00:00Z"},
		{"id": "job-2", "type": "optimization", "status": "running", "progress": 40, "created_at": "2024-01-02T10:00:00Z"},
		{"id": "job-3", "type": "backtest", "status": "pending", "progress": 0, "created_at": "2024-01-03T10:00:00Z"}
	], "total": 3}`), nil
}

func (stubBackend) CancelJob(ctx context.Context, id string) error { return nil }
func (stubBackend) DeleteJob(ctx context.Context, id string) error { return nil }
func (stubBackend) JobResults(ctx context.Context, id string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func newTestModel(t *testing.T) model {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	toasts := notify.NewToasts(4, 0)
	mgr := jobs.NewManager(stubBackend{}, query.NewClient(query.Options{Logger: logger}), jobs.ManagerOptions{
		MaxJobs:  10,
		Notifier: toasts,
		Logger:   logger,
	})
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := newModel(context.Background(), deps{
		manager:    mgr,
		toasts:     toasts,
		completion: toasts,
		logger:     logger,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return next.(model)
}

func press(t *testing.T, m model, key string) model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return next.(model)
}

func TestNextStatusCycles(t *testing.T) {
	got := []string{}
	s := jobs.StatusAll
	for range statusCycle {
		s = nextStatus(s)
		got = append(got, s)
	}
	want := "pending,running,completed,failed,cancelled,all"
	if strings.Join(got, ",") != want {
		t.Errorf("cycle = %v", got)
	}
	if nextStatus("bogus") != jobs.StatusAll {
		t.Error("unknown status should reset to all")
	}
	if nextSortKey(jobs.SortByType) != jobs.SortByCreatedAt {
		t.Error("sort key cycle should wrap")
	}
}

func TestPadOrTrunc(t *testing.T) {
	if got := padOrTrunc("abc", 5); got != "abc  " {
		t.Errorf("pad = %q", got)
	}
	if got := padOrTrunc("abcdef", 3); got != "abc" {
		t.Errorf("trunc = %q", got)
	}
	if got := padOrTrunc("abc", 0); got != "" {
		t.Errorf("zero width = %q", got)
	}
}

func TestStatusFilterKey(t *testing.T) {
	m := newTestModel(t)
	if len(m.view.Jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(m.view.Jobs))
	}
	m = press(t, m, "f") // pending
	m = press(t, m, "f") // running
	if m.criteria.Status != "running" {
		t.Fatalf("status = %q", m.criteria.Status)
	}
	if len(m.view.Jobs) != 1 || m.view.Jobs[0].ID != "job-2" {
		t.Errorf("filtered jobs = %+v", m.view.Jobs)
	}
	if !strings.Contains(m.View(), "status: running") {
		t.Error("header does not show the status filter")
	}
}

func TestCursorMovesAndClamps(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "j")
	m = press(t, m, "j")
	m = press(t, m, "j")
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.cursor)
	}
	j, ok := m.selected()
	if !ok || j.ID != m.view.Jobs[2].ID {
		t.Errorf("selected = %+v, %v", j, ok)
	}
	m = press(t, m, "f") // pending leaves one job
	if m.cursor != 0 {
		t.Errorf("cursor after filter = %d", m.cursor)
	}
}

func TestConfirmPrompt(t *testing.T) {
	m := newTestModel(t)
	reply := make(chan bool, 1)
	next, _ := m.Update(confirmMsg{prompt: "Delete job job-1?", reply: reply})
	m = next.(model)
	if !strings.Contains(m.View(), "Delete job job-1? [y/N]") {
		t.Fatal("prompt not shown")
	}
	// Other keys are swallowed while the prompt is open.
	m = press(t, m, "f")
	if m.criteria.Status != jobs.StatusAll || m.confirm == nil {
		t.Fatal("key leaked past the prompt")
	}
	m = press(t, m, "y")
	if m.confirm != nil {
		t.Error("prompt still open")
	}
	if !<-reply {
		t.Error("'y' should confirm")
	}

	next, _ = m.Update(confirmMsg{prompt: "again?", reply: reply})
	m = next.(model)
	m = press(t, m, "n")
	if <-reply {
		t.Error("'n' should decline")
	}
}

func TestSearchFiltersAsYouType(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "/")
	if !m.searching {
		t.Fatal("search mode not entered")
	}
	m = press(t, m, "optim")
	if len(m.view.Jobs) != 1 || m.view.Jobs[0].ID != "job-2" {
		t.Errorf("search results = %+v", m.view.Jobs)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if m.searching || m.criteria.Search != "optim" {
		t.Errorf("searching=%v search=%q", m.searching, m.criteria.Search)
	}
}

func TestStalePollEventIgnored(t *testing.T) {
	m := newTestModel(t)
	m.watchGen = 2
	m.watch = &watch{gen: 2, job: domain.Job{ID: "job-2", Status: domain.JobRunning, Progress: 40}}

	next, _ := m.Update(pollMsg{gen: 1, evt: jobs.JobEvent{Job: domain.Job{ID: "job-9", Status: domain.JobCompleted}}})
	m = next.(model)
	if m.watch.job.ID != "job-2" {
		t.Errorf("stale event applied: %+v", m.watch.job)
	}

	next, _ = m.Update(pollMsg{gen: 2, evt: jobs.JobEvent{Job: domain.Job{ID: "job-2", Status: domain.JobRunning, Progress: 60}, Polling: true}})
	m = next.(model)
	if m.watch.job.Progress != 60 {
		t.Errorf("progress = %d, want 60", m.watch.job.Progress)
	}
	if !strings.Contains(m.View(), "JOB job-2") {
		t.Error("progress panel not rendered")
	}
}
