// Package jobs tracks backend backtest jobs: polling a single job until it
// finishes, and deriving the filtered, sorted, paginated job list with its
// cancel, delete and download actions.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"backtestdash/internal/domain"
)

// DefaultPollInterval is used when PollerOptions.Interval is not set.
const DefaultPollInterval = 2 * time.Second

// StatusFetcher returns the current status of a job.
type StatusFetcher func(ctx context.Context, jobID string) (domain.StatusUpdate, error)

// JobEvent is emitted to subscribers after every applied status update.
type JobEvent struct {
	Job       domain.Job
	Previous  domain.JobStatus
	Estimate  string
	Polling   bool
	Completed bool
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration
	// OnComplete fires at most once, when the job transitions into completed
	// during this poller's lifetime.
	OnComplete func(domain.Job)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Poller refreshes one job on a fixed interval until it reaches a terminal
// status. Each tick's fetch runs on its own goroutine; responses older than
// the newest applied one, or from a stopped session, are discarded.
type Poller struct {
	fetch      StatusFetcher
	interval   time.Duration
	onComplete func(domain.Job)
	logger     *slog.Logger
	now        func() time.Time
	newTicker  func(time.Duration) (<-chan time.Time, func())

	mu         sync.Mutex
	job        domain.Job
	completed  bool // latch for onComplete
	polling    bool
	session    uint64
	cancel     context.CancelFunc
	seqIssued  uint64
	seqApplied uint64
	startedAt  time.Time
	estimate   string

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan JobEvent
}

// NewPoller creates a poller for job. It does not start polling.
func NewPoller(job domain.Job, fetch StatusFetcher, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		fetch:      fetch,
		interval:   opts.Interval,
		onComplete: opts.OnComplete,
		logger:     opts.Logger,
		now:        opts.Now,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		job:       job,
		completed: job.Status.Terminal(),
		subs:      make(map[int]chan JobEvent),
	}
}

// Start begins polling. It returns false, and does nothing, when the job is
// already terminal or polling is already running. Cancelling ctx stops
// polling the same way Stop does.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.polling || p.job.Status.Terminal() {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	p.session++
	p.cancel = cancel
	p.polling = true
	p.startedAt = p.now()
	p.estimate = EstimateRemaining(p.elapsedLocked(), p.job.Progress)

	ticks, stopTicker := p.newTicker(p.interval)
	go p.loop(ctx, p.session, ticks, stopTicker)

	p.logger.Debug("poller started", "job_id", p.job.ID, "interval", p.interval)
	return true
}

func (p *Poller) loop(ctx context.Context, session uint64, ticks <-chan time.Time, stopTicker func()) {
	defer stopTicker()
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.session == session {
				p.stopLocked()
			}
			p.mu.Unlock()
			return
		case <-ticks:
			if !p.tick(ctx, session) {
				return
			}
		}
	}
}

// tick issues one fetch. It reports false when the session has ended.
func (p *Poller) tick(ctx context.Context, session uint64) bool {
	p.mu.Lock()
	if p.session != session || !p.polling {
		p.mu.Unlock()
		return false
	}
	p.seqIssued++
	seq := p.seqIssued
	id := p.job.ID
	p.mu.Unlock()

	go func() {
		update, err := p.fetch(ctx, id)
		p.apply(session, seq, update, err)
	}()
	return true
}

func (p *Poller) apply(session, seq uint64, update domain.StatusUpdate, err error) {
	p.mu.Lock()
	if p.session != session || !p.polling {
		p.mu.Unlock()
		return
	}
	id := p.job.ID
	if err != nil {
		p.mu.Unlock()
		p.logger.Debug("poll fetch failed", "job_id", id, "seq", seq, "error", err)
		return
	}
	if seq <= p.seqApplied {
		applied := p.seqApplied
		p.mu.Unlock()
		p.logger.Debug("discarding stale poll response", "job_id", id, "seq", seq, "applied", applied)
		return
	}
	p.seqApplied = seq

	prev := p.job.Status
	p.job.Apply(update)
	p.estimate = EstimateRemaining(p.elapsedLocked(), p.job.Progress)

	fire := false
	if p.job.Status.Terminal() {
		p.stopLocked()
		if p.job.Status == domain.JobCompleted && !p.completed {
			fire = true
		}
		p.completed = true
	}

	evt := JobEvent{
		Job:       p.job,
		Previous:  prev,
		Estimate:  p.estimate,
		Polling:   p.polling,
		Completed: fire,
	}
	onComplete := p.onComplete
	p.mu.Unlock()

	p.broadcast(evt)
	if fire && onComplete != nil {
		onComplete(evt.Job)
	}
}

// elapsedLocked measures from created_at when it is set and not in the
// future, else from when polling started.
func (p *Poller) elapsedLocked() time.Duration {
	now := p.now()
	if c := p.job.CreatedAt; !c.IsZero() && !c.After(now) {
		return now.Sub(c.Time)
	}
	return now.Sub(p.startedAt)
}

// Stop halts polling. In-flight responses are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.polling {
		return
	}
	p.polling = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.logger.Debug("poller stopped", "job_id", p.job.ID, "status", p.job.Status)
}

// Reset stops polling and switches to tracking job. The completion latch is
// re-armed unless job is already terminal. Call Start to resume.
func (p *Poller) Reset(job domain.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.session++
	p.job = job
	p.completed = job.Status.Terminal()
	p.seqIssued = 0
	p.seqApplied = 0
	p.estimate = ""
}

// Job returns a copy of the tracked job.
func (p *Poller) Job() domain.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

// IsPolling reports whether the timer is running.
func (p *Poller) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// EstimatedTimeRemaining returns the estimate computed at the last applied
// update, or "" before polling has started.
func (p *Poller) EstimatedTimeRemaining() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimate
}

// Subscribe returns a channel receiving every applied update and its ID.
// Sends are non-blocking; a slow subscriber misses events.
func (p *Poller) Subscribe(bufSize int) (int, <-chan JobEvent) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan JobEvent, bufSize)
	p.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (p *Poller) Unsubscribe(id int) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	if ch, ok := p.subs[id]; ok {
		close(ch)
		delete(p.subs, id)
	}
}

func (p *Poller) broadcast(evt JobEvent) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
