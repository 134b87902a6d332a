package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramworld21/sda-auditor/scanner"
)

type ProgressSubscriber chan *Progress

const (
	DefaultMaxConcurrentJobs = 4
	DefaultJobTTL            = time.Hour
	DefaultCleanupInterval   = 5 * time.Minute
)

// ManagerOptions configures a Manager. Zero fields take the defaults.
type ManagerOptions struct {
	JobTTL          time.Duration
	CleanupInterval time.Duration
	MaxConcurrent   int
	Logger          *slog.Logger
	// Now is the clock used for job timestamps and TTL cleanup.
	Now func() time.Time
}

type Manager struct {
	run    AuditFunc
	logger *slog.Logger
	now    func() time.Time

	mu           sync.RWMutex
	jobs         map[string]*Job
	visitorJobs  map[string]string
	subscribers  map[string][]ProgressSubscriber
	subscriberMu sync.RWMutex

	queue         []string
	queueMu       sync.Mutex
	runningCount  int
	maxConcurrent int
	queueCond     *sync.Cond
	closed        bool

	jobTTL          time.Duration
	cleanupInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	loops   sync.WaitGroup
	stop    chan struct{}
}

// NewManager starts the queue processor and the cleanup loop. Call Close to
// stop them.
func NewManager(run AuditFunc, opts ManagerOptions) *Manager {
	if opts.JobTTL <= 0 {
		opts.JobTTL = DefaultJobTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrentJobs
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		run:             run,
		logger:          opts.Logger.With("component", "jobs"),
		now:             opts.Now,
		jobs:            make(map[string]*Job),
		visitorJobs:     make(map[string]string),
		subscribers:     make(map[string][]ProgressSubscriber),
		queue:           make([]string, 0),
		maxConcurrent:   opts.MaxConcurrent,
		jobTTL:          opts.JobTTL,
		cleanupInterval: opts.CleanupInterval,
		ctx:             ctx,
		cancel:          cancel,
		stop:            make(chan struct{}),
	}
	m.queueCond = sync.NewCond(&m.queueMu)

	m.loops.Add(2)
	go m.cleanupLoop()
	go m.queueProcessor()

	m.logger.Info("job manager initialized", "max_concurrent", opts.MaxConcurrent)
	return m
}

// CreateJob queues an audit of url for visitorIP. A visitor holds at most
// one active job at a time.
func (m *Manager) CreateJob(visitorIP, url string, fast bool) (*Job, error) {
	m.mu.Lock()

	if activeJobID, exists := m.visitorJobs[visitorIP]; exists {
		activeJob := m.jobs[activeJobID]
		if activeJob != nil && activeJob.Status.Active() {
			m.mu.Unlock()
			return nil, &ActiveJobError{JobID: activeJobID}
		}
	}

	job := &Job{
		ID:        uuid.New().String(),
		URL:       url,
		FastMode:  fast,
		VisitorIP: visitorIP,
		Status:    JobStatusQueued,
		CreatedAt: m.now(),
	}

	if !m.enqueueJob(job.ID) {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.jobs[job.ID] = job
	m.visitorJobs[visitorIP] = job.ID
	snapshot := *job
	m.mu.Unlock()

	snapshot.QueuePosition = m.queuePosition(job.ID)
	m.logger.Info("job queued", "job_id", job.ID, "url", url, "fast_mode", fast, "position", snapshot.QueuePosition)
	return &snapshot, nil
}

func (m *Manager) enqueueJob(jobID string) bool {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	if m.closed {
		return false
	}
	m.queue = append(m.queue, jobID)
	m.queueCond.Signal()
	return true
}

// queuePosition is 1-based; 0 means the job is not waiting.
func (m *Manager) queuePosition(jobID string) int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	for i, id := range m.queue {
		if id == jobID {
			return i + 1
		}
	}
	return 0
}

func (m *Manager) queueProcessor() {
	defer m.loops.Done()

	for {
		m.queueMu.Lock()

		for !m.closed && (len(m.queue) == 0 || m.runningCount >= m.maxConcurrent) {
			m.queueCond.Wait()
		}
		if m.closed {
			m.queueMu.Unlock()
			return
		}

		jobID := m.queue[0]
		m.queue = m.queue[1:]
		m.runningCount++

		m.queueMu.Unlock()

		m.startJobExecution(jobID)
	}
}

func (m *Manager) startJobExecution(jobID string) {
	m.mu.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.Unlock()
		m.jobFinished()
		return
	}

	now := m.now()
	job.Status = JobStatusPending
	job.StartedAt = &now
	m.mu.Unlock()

	m.notifySubscribers(jobID, &Progress{Stage: "Starting", Current: 0, Total: 0})

	m.running.Add(1)
	go m.executeJob(m.ctx, job)
}

func (m *Manager) jobFinished() {
	m.queueMu.Lock()
	m.runningCount--
	m.queueCond.Signal()
	m.queueMu.Unlock()
}

// GetJob returns a copy of the job's current state.
func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.RUnlock()
		return nil, false
	}
	snapshot := *job
	m.mu.RUnlock()

	if snapshot.Status == JobStatusQueued {
		snapshot.QueuePosition = m.queuePosition(jobID)
	}
	return &snapshot, true
}

func (m *Manager) executeJob(ctx context.Context, job *Job) {
	defer m.running.Done()
	defer m.jobFinished()

	m.mu.Lock()
	job.Status = JobStatusRunning
	url, fast := job.URL, job.FastMode
	m.mu.Unlock()

	onProgress := func(stage string, current, total int) {
		m.mu.Lock()
		job.Progress = &Progress{
			Stage:   stage,
			Current: current,
			Total:   total,
		}
		progress := *job.Progress
		m.mu.Unlock()

		m.notifySubscribers(job.ID, &progress)
	}

	result := m.run(ctx, url, scanner.Options{FastMode: fast, OnProgress: onProgress})

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	job.EndedAt = &now
	job.Progress = nil
	job.Result = result

	switch {
	case result == nil:
		job.Status = JobStatusFailed
		job.Error = "audit produced no result"
	case result.NavigationError != "":
		job.Status = JobStatusFailed
		job.Error = result.NavigationError
	default:
		job.Status = JobStatusCompleted
	}

	m.logger.Info("job finished", "job_id", job.ID, "status", job.Status)

	m.closeSubscribers(job.ID)
}

// Subscribe returns a channel of progress updates that is closed when the
// job ends. For unknown or finished jobs the channel is already closed.
func (m *Manager) Subscribe(jobID string) (ProgressSubscriber, func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()

	ch := make(chan *Progress, 10)
	if job := m.jobs[jobID]; job == nil || !job.Status.Active() {
		close(ch)
		return ch, func() {}
	}
	m.subscribers[jobID] = append(m.subscribers[jobID], ch)

	unsubscribe := func() {
		m.subscriberMu.Lock()
		defer m.subscriberMu.Unlock()
		subs := m.subscribers[jobID]
		for i, sub := range subs {
			if sub == ch {
				m.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsubscribe
}

func (m *Manager) notifySubscribers(jobID string, progress *Progress) {
	m.subscriberMu.RLock()
	defer m.subscriberMu.RUnlock()

	for _, sub := range m.subscribers[jobID] {
		select {
		case sub <- progress:
		default:
			// slow subscriber; it will see the next update
		}
	}
}

func (m *Manager) closeSubscribers(jobID string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()

	for _, sub := range m.subscribers[jobID] {
		close(sub)
	}
	delete(m.subscribers, jobID)
}

func (m *Manager) cleanupLoop() {
	defer m.loops.Done()

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.jobTTL)
	removed := 0
	for id, job := range m.jobs {
		if !job.Status.Active() && job.EndedAt != nil && job.EndedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++

			if m.visitorJobs[job.VisitorIP] == id {
				delete(m.visitorJobs, job.VisitorIP)
			}
		}
	}
	if removed > 0 {
		m.logger.Debug("expired jobs removed", "count", removed)
	}
}

func (m *Manager) GetActiveJobForVisitor(visitorIP string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobID, exists := m.visitorJobs[visitorIP]
	if !exists {
		return "", false
	}

	job := m.jobs[jobID]
	if job == nil || !job.Status.Active() {
		return "", false
	}

	return jobID, true
}

func (m *Manager) GetQueueStats() (running, queued, maxConcurrent int) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return m.runningCount, len(m.queue), m.maxConcurrent
}

// Close stops accepting jobs, cancels running audits and waits for them.
// Audits cancelled this way end as failed jobs.
func (m *Manager) Close() {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		return
	}
	m.closed = true
	m.queueCond.Broadcast()
	m.queueMu.Unlock()

	close(m.stop)
	m.cancel()
	m.loops.Wait()
	m.running.Wait()
	m.logger.Info("job manager stopped")
}
