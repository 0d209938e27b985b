package jobs

import (
	"sort"
	"strings"

	"backtestdash/internal/domain"
)

// SortKey selects the column the job list is ordered by.
type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByStatus    SortKey = "status"
	SortByType      SortKey = "type"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// StatusAll disables the status filter.
const StatusAll = "all"

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 20

// Criteria is the local view state applied to the fetched job set.
type Criteria struct {
	Search   string
	Status   string
	SortBy   SortKey
	Order    SortOrder
	Page     int
	PageSize int
}

// DefaultCriteria shows every job, newest first.
func DefaultCriteria(pageSize int) Criteria {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return Criteria{
		Status:   StatusAll,
		SortBy:   SortByCreatedAt,
		Order:    Desc,
		Page:     1,
		PageSize: pageSize,
	}
}

// View is one derived page of jobs.
type View struct {
	Jobs       []domain.Job
	Page       int
	TotalPages int
	// Filtered counts jobs that passed the filters across all pages.
	Filtered int
	// Total counts jobs before filtering.
	Total int
}

// Derive sorts, filters and paginates jobs. The returned page is clamped to
// [1, TotalPages]; the input slice is not modified.
func Derive(jobs []domain.Job, c Criteria) View {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}

	sorted := make([]domain.Job, len(jobs))
	copy(sorted, jobs)
	sortJobs(sorted, c.SortBy, c.Order)

	search := strings.ToLower(strings.TrimSpace(c.Search))
	filtered := make([]domain.Job, 0, len(sorted))
	for _, j := range sorted {
		if !matchesSearch(j, search) {
			continue
		}
		if c.Status != "" && c.Status != StatusAll && string(j.Status) != c.Status {
			continue
		}
		filtered = append(filtered, j)
	}

	totalPages := pageCount(len(filtered), c.PageSize)
	page := c.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * c.PageSize
	end := start + c.PageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return View{
		Jobs:       filtered[start:end],
		Page:       page,
		TotalPages: totalPages,
		Filtered:   len(filtered),
		Total:      len(jobs),
	}
}

func matchesSearch(j domain.Job, lowered string) bool {
	if lowered == "" {
		return true
	}
	return strings.Contains(strings.ToLower(j.ID), lowered) ||
		strings.Contains(strings.ToLower(string(j.Type)), lowered)
}

func sortJobs(jobs []domain.Job, key SortKey, order SortOrder) {
	less := func(a, b domain.Job) int {
		switch key {
		case SortByStatus:
			return strings.Compare(string(a.Status), string(b.Status))
		case SortByType:
			return strings.Compare(string(a.Type), string(b.Type))
		default:
			ta, tb := a.CreatedAt.UnixMilli(), b.CreatedAt.UnixMilli()
			switch {
			case ta < tb:
				return -1
			case ta > tb:
				return 1
			}
			return 0
		}
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		c := less(jobs[i], jobs[k])
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}
