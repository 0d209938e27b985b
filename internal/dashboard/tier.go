package dashboard

import (
	"backtestdash/internal/domain"
)

// StatusGroup holds the jobs of one status with a count.
type StatusGroup struct {
	Status domain.JobStatus
	Count  int
	Jobs   []domain.Job
}

// statusOrder is the display order: active work first.
var statusOrder = []domain.JobStatus{
	domain.JobRunning,
	domain.JobPending,
	domain.JobCompleted,
	domain.JobFailed,
	domain.JobCancelled,
}

// GroupByStatus buckets jobs by status (only non-empty groups), keeping the
// input order within each group. Unknown statuses are left out.
func GroupByStatus(jobs []domain.Job) []StatusGroup {
	buckets := make(map[domain.JobStatus][]domain.Job, len(statusOrder))
	for _, j := range jobs {
		buckets[j.Status] = append(buckets[j.Status], j)
	}
	var groups []StatusGroup
	for _, s := range statusOrder {
		if js := buckets[s]; len(js) > 0 {
			groups = append(groups, StatusGroup{Status: s, Count: len(js), Jobs: js})
		}
	}
	return groups
}

// ActiveCount is the number of pending or running jobs.
func ActiveCount(jobs []domain.Job) int {
	n := 0
	for _, j := range jobs {
		if j.Status == domain.JobPending || j.Status == domain.JobRunning {
			n++
		}
	}
	return n
}
