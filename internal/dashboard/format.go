package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"backtestdash/internal/domain"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats a signed amount with B/M/K suffixes.
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s%.1fB", sign, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s%.1fM", sign, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s%.1fK", sign, v/1e3)
	default:
		return fmt.Sprintf("%s%.2f", sign, v)
	}
}

// FormatPrice formats a price as X.XX, or "-" for zero or non-finite.
func FormatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatPercent formats a ratio as a signed percentage, "+12.5%".
// Drops decimal for values >= 100% to keep width compact.
func FormatPercent(r float64) string {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return "-"
	}
	pct := r * 100
	sign := "+"
	if pct < 0 {
		sign = "-"
		pct = -pct
	}
	if pct == 0 {
		return "0.0%"
	}
	if pct >= 100 {
		return fmt.Sprintf("%s%.0f%%", sign, pct)
	}
	return fmt.Sprintf("%s%.1f%%", sign, pct)
}

// FormatCount formats a trade count, using K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return FormatInt(n)
}

// FormatProgress renders p (0..100) as a bar of width cells plus the
// percentage.
func FormatProgress(p, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if width <= 0 {
		return fmt.Sprintf("%d%%", p)
	}
	filled := p * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), p)
}

// FormatDuration renders d with its two most significant units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatAge renders how long ago t was, "-" for the zero time.
func FormatAge(t domain.Timestamp, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if t.After(now) {
		return "just now"
	}
	return FormatDuration(now.Sub(t.Time)) + " ago"
}

// FormatTimestamp renders t in loc, "-" for the zero time.
func FormatTimestamp(t domain.Timestamp, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

// StatusLabel is the upper-case table label of a status.
func StatusLabel(s domain.JobStatus) string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(s))
}

// JobRuntime is the wall time a job has run: until completed_at when set,
// else until now.
func JobRuntime(j domain.Job, now time.Time) time.Duration {
	if j.CreatedAt.IsZero() {
		return 0
	}
	end := now
	if j.CompletedAt != nil && !j.CompletedAt.IsZero() {
		end = j.CompletedAt.Time
	}
	if end.Before(j.CreatedAt.Time) {
		return 0
	}
	return end.Sub(j.CreatedAt.Time)
}
