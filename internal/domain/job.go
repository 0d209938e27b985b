// Package domain defines the core value types shared by the job tracking and
// chart layers of the dashboard.
package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// JobType identifies the kind of backend task.
type JobType string

const (
	JobTypeBacktest     JobType = "backtest"
	JobTypeOptimization JobType = "optimization"
	JobTypeUpload       JobType = "upload"
)

// JobStatus is the lifecycle state of a job as reported by the backend.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is one backend-executed backtest, optimization or upload task.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   Timestamp  `json:"created_at"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// StatusUpdate is the payload of the job status endpoint. Nil fields leave
// the corresponding job field untouched when applied.
type StatusUpdate struct {
	Status      JobStatus  `json:"status"`
	Progress    *int       `json:"progress,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
}

// Apply merges u into j. Only status, progress, error and completed_at are
// touched.
func (j *Job) Apply(u StatusUpdate) {
	if u.Status != "" {
		j.Status = u.Status
	}
	if u.Progress != nil {
		j.Progress = clampProgress(*u.Progress)
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.CompletedAt != nil {
		ts := *u.CompletedAt
		j.CompletedAt = &ts
	}
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Timestamp is a point in time decoded leniently from the backend, which
// mixes RFC 3339, naive datetimes, bare dates and Unix numbers.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s with the layouts the backend is known to emit.
// Unparseable input yields the zero Timestamp and false.
func ParseTimestamp(s string) (Timestamp, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, true
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnixNumber(n), true
	}
	return Timestamp{}, false
}

// fromUnixNumber accepts seconds or milliseconds.
func fromUnixNumber(n float64) Timestamp {
	if n > 1e12 {
		return Timestamp{Time: time.UnixMilli(int64(n)).UTC()}
	}
	return Timestamp{Time: time.Unix(int64(n), 0).UTC()}
}

// UnmarshalJSON never fails on malformed values; they decode to the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = Timestamp{}
			return nil
		}
		*t, _ = ParseTimestamp(s)
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*t = Timestamp{}
		return nil
	}
	*t = fromUnixNumber(n)
	return nil
}

// MarshalJSON emits RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnixMilli returns milliseconds since the epoch, or 0 for the zero time.
func (t Timestamp) UnixMilli() int64 {
	if t.IsZero() {
		return 0
	}
	return t.Time.UnixMilli()
}
