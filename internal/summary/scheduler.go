// Package summary keeps session summaries fresh in the background.
//
// The Scheduler counts user messages per session and, every Interval
// messages, runs a delayed regeneration task unless a user has edited the
// summary by hand. The Regenerator is the task: it loads the conversation,
// asks a Generator for a title and persists it.
package summary

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultInterval = 3
	DefaultDelay    = 2 * time.Second
)

// Mode selects how a regeneration reads the conversation.
type Mode int

const (
	// ModeCadence runs every Interval user messages. It always regenerates
	// from the most recent messages.
	ModeCadence Mode = iota
	// ModeInitial runs once when a new session exits cleanly. It reads the
	// whole conversation and leaves existing summaries alone.
	ModeInitial
)

func (m Mode) String() string {
	if m == ModeInitial {
		return "initial"
	}
	return "cadence"
}

// Job is one regeneration request.
type Job struct {
	Project   string
	SessionID string
	Mode      Mode

	// Suppressed reports whether a manual edit arrived after the job was
	// scheduled. It is checked right before the summary is written.
	Suppressed func() bool
}

// Task performs a regeneration.
type Task func(ctx context.Context, job Job)

// Timer is the handle of a scheduled task.
type Timer interface {
	Stop() bool
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Interval int
	Delay    time.Duration
	Logger   *slog.Logger

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
}

type counter struct {
	project string
	count   int
	timer   Timer
}

// Scheduler tracks user message counts and manual edits per session.
type Scheduler struct {
	interval  int
	delay     time.Duration
	afterFunc func(time.Duration, func()) Timer
	task      Task
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	counters map[string]*counter
	manual   map[string]struct{}
	// edits holds one flag per scheduled cadence job that has not finished.
	// MarkManuallyEdited sets it so the job backs off even after Forget.
	edits map[string]*atomic.Bool
	wg    sync.WaitGroup
}

// NewScheduler creates a scheduler that runs task for due regenerations.
func NewScheduler(cfg SchedulerConfig, task Task) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Delay < 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		interval:  cfg.Interval,
		delay:     cfg.Delay,
		afterFunc: cfg.AfterFunc,
		task:      task,
		logger:    cfg.Logger.With("component", "summary-scheduler"),
		ctx:       ctx,
		cancel:    cancel,
		counters:  make(map[string]*counter),
		manual:    make(map[string]struct{}),
		edits:     make(map[string]*atomic.Bool),
	}
}

// OnUserMessage counts a user message. Every Interval messages a delayed
// cadence regeneration is scheduled, unless the summary was edited by hand
// or one is already pending.
func (s *Scheduler) OnUserMessage(project, sessionID string) {
	if sessionID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[sessionID]
	if !ok {
		c = &counter{project: project}
		s.counters[sessionID] = c
	}
	c.count++
	if project != "" {
		c.project = project
	}

	if _, edited := s.manual[sessionID]; edited {
		return
	}
	if c.count%s.interval != 0 || c.timer != nil || s.ctx.Err() != nil {
		return
	}

	edited := &atomic.Bool{}
	s.edits[sessionID] = edited
	job := s.job(c.project, sessionID, ModeCadence)
	job.Suppressed = func() bool { return edited.Load() || s.IsManuallyEdited(sessionID) }

	var timer Timer
	timer = s.afterFunc(s.delay, func() {
		s.mu.Lock()
		if cur, ok := s.counters[sessionID]; ok && cur.timer == timer {
			cur.timer = nil
		}
		s.mu.Unlock()
		s.run(job)

		s.mu.Lock()
		if s.edits[sessionID] == edited {
			delete(s.edits, sessionID)
		}
		s.mu.Unlock()
	})
	c.timer = timer
	s.logger.Debug("summary regeneration scheduled", "session", sessionID, "count", c.count)
}

// Initial runs the end-of-session regeneration in the background.
func (s *Scheduler) Initial(project, sessionID string) {
	if sessionID == "" || s.ctx.Err() != nil {
		return
	}
	job := s.job(project, sessionID, ModeInitial)
	go s.run(job)
}

// MarkManuallyEdited suppresses automatic regeneration for a session.
func (s *Scheduler) MarkManuallyEdited(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual[sessionID] = struct{}{}
	if edited, ok := s.edits[sessionID]; ok {
		edited.Store(true)
	}
}

// ClearManualEditFlag re-enables automatic regeneration for a session.
func (s *Scheduler) ClearManualEditFlag(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.manual, sessionID)
	if edited, ok := s.edits[sessionID]; ok {
		edited.Store(false)
	}
}

// IsManuallyEdited reports whether automatic regeneration is suppressed.
func (s *Scheduler) IsManuallyEdited(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.manual[sessionID]
	return ok
}

// Count returns the number of user messages seen for a session.
func (s *Scheduler) Count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[sessionID]; ok {
		return c.count
	}
	return 0
}

// Pending reports whether a cadence regeneration is scheduled and has not
// fired yet.
func (s *Scheduler) Pending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[sessionID]
	return ok && c.timer != nil
}

// Forget drops the counter and manual-edit flag of a session. A pending
// timer is left to fire; it still backs off if the summary was edited by
// hand at any point after it was scheduled.
func (s *Scheduler) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, sessionID)
	delete(s.manual, sessionID)
}

// Stop cancels pending timers and running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, c := range s.counters {
		if c.timer != nil && c.timer.Stop() {
			c.timer = nil
			s.wg.Done()
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) job(project, sessionID string, mode Mode) Job {
	s.wg.Add(1)
	return Job{
		Project:    project,
		SessionID:  sessionID,
		Mode:       mode,
		Suppressed: func() bool { return s.IsManuallyEdited(sessionID) },
	}
}

func (s *Scheduler) run(job Job) {
	defer s.wg.Done()
	if s.task == nil || s.ctx.Err() != nil {
		return
	}
	s.task(s.ctx, job)
}
