package jobs

import (
	"fmt"
	"time"
)

// EstimateRemaining extrapolates linearly from elapsed time and percent
// progress: remaining = elapsed/(progress/100) - elapsed.
func EstimateRemaining(elapsed time.Duration, progress int) string {
	if progress <= 0 {
		return "Calculating..."
	}
	total := time.Duration(float64(elapsed) * 100 / float64(progress))
	remaining := total - elapsed
	if remaining <= 0 {
		return "Completing..."
	}

	secs := int(remaining / time.Second)
	if secs >= 60 {
		return fmt.Sprintf("~%dm %ds remaining", secs/60, secs%60)
	}
	return fmt.Sprintf("~%ds remaining", secs)
}
