package jobs

import (
	"context"
	"encoding/json"
	"math"

	"backtestdash/internal/domain"
	"backtestdash/internal/query"
)

const (
	minListLimit = 1
	maxListLimit = 100
)

// Page is a normalized page of jobs from the list endpoint.
type Page struct {
	Jobs  []domain.Job `json:"jobs"`
	Total int          `json:"total"`
	Limit int          `json:"limit"`
	Pages int          `json:"pages"`
	Page  int          `json:"page"`
}

// ClampLimit bounds a list limit to [1, 100].
func ClampLimit(limit int) int {
	switch {
	case limit < minListLimit:
		return minListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// ListFunc fetches the raw list payload for a limit.
type ListFunc func(ctx context.Context, limit int) (json.RawMessage, error)

// JobsQuery builds the cached jobs query keyed by the clamped limit.
func JobsQuery(c *query.Client, list ListFunc, limit int) *query.Query[json.RawMessage, Page] {
	limit = ClampLimit(limit)
	return query.New(c,
		[]any{"jobs", map[string]int{"limit": limit}},
		func(ctx context.Context) (json.RawMessage, error) { return list(ctx, limit) },
		func(raw json.RawMessage) Page { return NormalizeJobsPage(raw, limit) },
	)
}

// NormalizeJobsPage converts a loosely shaped list response into a Page.
// Missing or malformed fields fall back to defaults derived from what is
// present; it never fails. A bare JSON array is treated as the item list.
// Items that do not decode as a job are skipped.
func NormalizeJobsPage(raw json.RawMessage, requestedLimit int) Page {
	requestedLimit = ClampLimit(requestedLimit)

	var fields map[string]json.RawMessage
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		fields = nil
		if err := json.Unmarshal(raw, &items); err != nil {
			items = nil
		}
	} else {
		v, ok := fields["items"]
		if !ok {
			v, ok = fields["jobs"]
		}
		if ok {
			if err := json.Unmarshal(v, &items); err != nil {
				items = nil
			}
		}
	}

	jobs := make([]domain.Job, 0, len(items))
	for _, it := range items {
		var j domain.Job
		if err := json.Unmarshal(it, &j); err != nil {
			continue
		}
		jobs = append(jobs, j)
	}

	p := Page{Jobs: jobs}

	if v, ok := intField(fields, "total"); ok && v >= 0 {
		p.Total = v
	} else {
		p.Total = len(jobs)
	}
	if v, ok := intField(fields, "limit"); ok && v > 0 {
		p.Limit = v
	} else {
		p.Limit = requestedLimit
	}
	if v, ok := intField(fields, "pages"); ok && v > 0 {
		p.Pages = v
	} else {
		p.Pages = pageCount(p.Total, p.Limit)
	}
	if v, ok := intField(fields, "page"); ok && v > 0 {
		p.Page = v
	} else {
		p.Page = 1
	}
	return p
}

func intField(fields map[string]json.RawMessage, key string) (int, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// pageCount returns max(1, ceil(n/size)).
func pageCount(n, size int) int {
	if size <= 0 || n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}
