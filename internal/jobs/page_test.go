package jobs

import (
	"encoding/json"
	"testing"

	"backtestdash/internal/domain"
)

func TestClampLimit(t *testing.T) {
	tests := map[int]int{-5: 1, 0: 1, 1: 1, 50: 50, 100: 100, 101: 100, 10000: 100}
	for in, want := range tests {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNormalizeJobsPageDefaults(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		limit int
		want  Page
	}{
		{
			name:  "missing pages",
			raw:   `{"items":[{"id":"a"}],"total":45,"limit":20}`,
			limit: 20,
			want:  Page{Total: 45, Limit: 20, Pages: 3, Page: 1},
		},
		{
			name:  "missing everything but items",
			raw:   `{"items":[{"id":"a"},{"id":"b"}]}`,
			limit: 50,
			want:  Page{Total: 2, Limit: 50, Pages: 1, Page: 1},
		},
		{
			name:  "items not an array",
			raw:   `{"items":"oops","total":0}`,
			limit: 10,
			want:  Page{Total: 0, Limit: 10, Pages: 1, Page: 1},
		},
		{
			name:  "items absent",
			raw:   `{"total":7,"page":2}`,
			limit: 5,
			want:  Page{Total: 7, Limit: 5, Pages: 2, Page: 2},
		},
		{
			name:  "not json",
			raw:   `<html>502</html>`,
			limit: 20,
			want:  Page{Total: 0, Limit: 20, Pages: 1, Page: 1},
		},
		{
			name:  "bare array",
			raw:   `[{"id":"a"},{"id":"b"},{"id":"c"}]`,
			limit: 2,
			want:  Page{Total: 3, Limit: 2, Pages: 2, Page: 1},
		},
		{
			name:  "zero limit from server",
			raw:   `{"items":[],"total":10,"limit":0}`,
			limit: 4,
			want:  Page{Total: 10, Limit: 4, Pages: 3, Page: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeJobsPage(json.RawMessage(tt.raw), tt.limit)
			if got.Jobs == nil {
				t.Fatal("Jobs is nil, want empty slice")
			}
			if got.Total != tt.want.Total || got.Limit != tt.want.Limit ||
				got.Pages != tt.want.Pages || got.Page != tt.want.Page {
				t.Errorf("page = {total %d limit %d pages %d page %d}, want %+v",
					got.Total, got.Limit, got.Pages, got.Page, tt.want)
			}
		})
	}
}

func TestNormalizeJobsPageSkipsBadItems(t *testing.T) {
	raw := `{"items":[{"id":"a","status":"running"}, 42, {"id":"b","created_at":"garbage"}]}`
	got := NormalizeJobsPage(json.RawMessage(raw), 20)
	if len(got.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(got.Jobs))
	}
	if got.Jobs[0].Status != domain.JobRunning {
		t.Errorf("status = %q", got.Jobs[0].Status)
	}
	if !got.Jobs[1].CreatedAt.IsZero() {
		t.Errorf("malformed created_at should decode to zero time")
	}
}

func TestPaginationInvariant(t *testing.T) {
	for n := 0; n <= 45; n++ {
		jobs := make([]domain.Job, n)
		for i := range jobs {
			jobs[i] = domain.Job{ID: string(rune('a' + i%26)), Status: domain.JobRunning}
		}
		for _, size := range []int{1, 7, 20} {
			for _, page := range []int{-1, 0, 1, 3, 100} {
				v := Derive(jobs, Criteria{Status: StatusAll, PageSize: size, Page: page})
				want := 1
				if n > 0 {
					want = (n + size - 1) / size
				}
				if v.TotalPages != want {
					t.Fatalf("n=%d size=%d: TotalPages = %d, want %d", n, size, v.TotalPages, want)
				}
				if v.Page < 1 || v.Page > v.TotalPages {
					t.Fatalf("n=%d size=%d page=%d: clamped page %d out of [1,%d]", n, size, page, v.Page, v.TotalPages)
				}
				if len(v.Jobs) > size {
					t.Fatalf("page holds %d jobs, size %d", len(v.Jobs), size)
				}
			}
		}
	}
}

func TestDeriveSortsByStatusAndType(t *testing.T) {
	jobs := []domain.Job{
		{ID: "1", Type: domain.JobTypeUpload, Status: domain.JobRunning},
		{ID: "2", Type: domain.JobTypeBacktest, Status: domain.JobCancelled},
		{ID: "3", Type: domain.JobTypeOptimization, Status: domain.JobFailed},
	}

	v := Derive(jobs, Criteria{Status: StatusAll, SortBy: SortByStatus, Order: Asc})
	if got := ids(v.Jobs); got[0] != "2" || got[1] != "3" || got[2] != "1" {
		t.Errorf("status asc = %v", got)
	}

	v = Derive(jobs, Criteria{Status: StatusAll, SortBy: SortByType, Order: Desc})
	if got := ids(v.Jobs); got[0] != "1" || got[1] != "3" || got[2] != "2" {
		t.Errorf("type desc = %v", got)
	}

	if jobs[0].ID != "1" {
		t.Error("Derive modified its input")
	}
}

func TestNormalizeJobsPageAcceptsJobsKey(t *testing.T) {
	p := NormalizeJobsPage(json.RawMessage(`{"jobs":[{"id":"a"},{"id":"b"}],"total":2}`), 20)
	if len(p.Jobs) != 2 || p.Jobs[0].ID != "a" || p.Jobs[1].ID != "b" {
		t.Fatalf("jobs = %+v", p.Jobs)
	}
	if p.Total != 2 || p.Pages != 1 {
		t.Errorf("page = %+v", p)
	}

	// items wins when both are present.
	p = NormalizeJobsPage(json.RawMessage(`{"items":[{"id":"x"}],"jobs":[{"id":"a"},{"id":"b"}]}`), 20)
	if len(p.Jobs) != 1 || p.Jobs[0].ID != "x" {
		t.Errorf("jobs with both keys = %+v", p.Jobs)
	}
}
