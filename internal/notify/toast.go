package notify

import (
	"sync"
	"time"
)

// Toast is one queued message for an interactive view.
type Toast struct {
	Level   Level
	Message string
	At      time.Time
}

// Toasts is a bounded, time-limited queue of messages. It implements
// Notifier so it can be handed directly to the job manager.
type Toasts struct {
	mu    sync.Mutex
	items []Toast
	max   int
	ttl   time.Duration
	now   func() time.Time
}

// NewToasts keeps at most max messages, each visible for ttl.
func NewToasts(max int, ttl time.Duration) *Toasts {
	if max < 1 {
		max = 1
	}
	return &Toasts{max: max, ttl: ttl, now: time.Now}
}

func (t *Toasts) push(level Level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, Toast{Level: level, Message: message, At: t.now()})
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

func (t *Toasts) Success(message string) { t.push(LevelSuccess, message) }
func (t *Toasts) Error(message string)   { t.push(LevelError, message) }
func (t *Toasts) Warning(message string) { t.push(LevelWarning, message) }

// Active prunes expired messages and returns the rest, oldest first.
func (t *Toasts) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	keep := t.items[:0]
	for _, it := range t.items {
		if t.ttl <= 0 || now.Sub(it.At) < t.ttl {
			keep = append(keep, it)
		}
	}
	t.items = keep
	out := make([]Toast, len(keep))
	copy(out, keep)
	return out
}
