package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of work run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
	// MaxRuns stops the job after that many runs. Zero means unlimited.
	MaxRuns int
}

// JobStatus is a snapshot of a job's execution state.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Active    bool      `json:"active"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

type scheduledJob struct {
	job     Job
	entryID cron.EntryID
	status  JobStatus
	running sync.Mutex
}

// Scheduler runs jobs on cron schedules. A job never overlaps itself.
type Scheduler struct {
	mu       sync.RWMutex
	jobs     map[string]*scheduledJob
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	timeout  time.Duration
	location *time.Location
	metrics  *telemetry.Metrics
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	logger   log.Logger
	location *time.Location
	timeout  time.Duration
	metrics  *telemetry.Metrics
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLocation sets the time zone schedules are evaluated in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithJobTimeout bounds each run. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMetrics records every run.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewScheduler creates a scheduler. Call Start to begin firing jobs.
func NewScheduler(opts ...Option) *Scheduler {
	o := &options{logger: log.GetDefaultLogger(), location: time.UTC}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.WithComponent("scheduler")

	// Standard 5-field expressions (minute hour day month weekday) plus descriptors.
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(o.location),
		cron.WithLogger(cronLogger{logger: logger}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:     make(map[string]*scheduledJob),
		cron:     c,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		timeout:  o.timeout,
		location: o.location,
		metrics:  o.metrics,
	}
}

// Start starts firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", log.Int("jobs", len(s.List())))
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out, cancelling running jobs")
	}
	s.cancel()
}

// Add schedules job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already scheduled", job.Name)
	}
	sj := &scheduledJob{
		job:    job,
		status: JobStatus{Name: job.Name, Schedule: job.Schedule, Active: true},
	}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.fire(sj) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}
	sj.entryID = id
	s.jobs[job.Name] = sj
	s.logger.Info("Job scheduled", log.Str("job", job.Name), log.Str("schedule", job.Schedule))
	return nil
}

// Remove unschedules a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	s.cron.Remove(sj.entryID)
	delete(s.jobs, name)
	return nil
}

// RunNow runs a job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	sj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	sj.running.Lock()
	defer sj.running.Unlock()
	return s.execute(ctx, sj)
}

// List returns the status of every job, sorted by name.
func (s *Scheduler) List() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, sj := range s.jobs {
		st := sj.status
		if st.Active {
			e := s.cron.Entry(sj.entryID)
			st.NextRun = e.Next
			// entries only get a next time once the scheduler is running
			if st.NextRun.IsZero() && e.Schedule != nil {
				st.NextRun = e.Schedule.Next(time.Now().In(s.location))
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// fire is the cron callback. Overlapping runs of the same job are skipped.
func (s *Scheduler) fire(sj *scheduledJob) {
	if !sj.running.TryLock() {
		s.logger.Warn("Skipping job run, previous run still in progress", log.Str("job", sj.job.Name))
		return
	}
	defer sj.running.Unlock()
	_ = s.execute(s.ctx, sj)
}

// execute runs the job. The caller holds sj.running.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) error {
	s.mu.Lock()
	if !sj.status.Active {
		s.mu.Unlock()
		return fmt.Errorf("job %s is no longer active", sj.job.Name)
	}
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info("Running job", log.Str("job", sj.job.Name))
	err := sj.job.Run(ctx)

	s.metrics.RecordJobRun(sj.job.Name, err == nil, start)

	s.mu.Lock()
	defer s.mu.Unlock()
	sj.status.Runs++
	sj.status.LastRun = start
	if err != nil {
		sj.status.Failures++
		sj.status.LastError = err.Error()
		s.logger.Error("Job failed", log.Str("job", sj.job.Name), log.Err(err), log.Duration("duration", time.Since(start)))
	} else {
		sj.status.LastError = ""
		s.logger.Info("Job completed", log.Str("job", sj.job.Name), log.Duration("duration", time.Since(start)))
	}
	if sj.job.MaxRuns > 0 && sj.status.Runs >= sj.job.MaxRuns {
		s.cron.Remove(sj.entryID)
		sj.status.Active = false
		s.logger.Info("Job reached its run limit", log.Str("job", sj.job.Name), log.Int("runs", sj.status.Runs))
	}
	return err
}

// cronLogger adapts our logger to cron.Logger.
type cronLogger struct {
	logger log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(kvFields(keysAndValues), log.Err(err))...)
}

func kvFields(kv []interface{}) []log.Field {
	fields := make([]log.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, log.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
