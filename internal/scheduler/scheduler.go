package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/metrics"
)

// Func is a job body. The returned details are stored with the result.
type Func func(ctx context.Context) (map[string]interface{}, error)

// Job is one entry of the job table
type Job struct {
	job.Definition
	Run Func
}

// Options configure a Scheduler
type Options struct {
	// StartupDelay is the grace period before the first run of every
	// enabled job. Negative disables the startup run.
	StartupDelay time.Duration
	HistorySize  int
	// Recorder optionally persists every result
	Recorder job.Repository
}

// Scheduler runs a fixed table of recurring jobs
type Scheduler struct {
	jobs     []*Job
	byID     map[string]*Job
	locks    map[string]*sync.Mutex
	history  *History
	recorder job.Repository
	delay    time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	running   bool
	startedAt *time.Time
	cancel    context.CancelFunc
	startup   *time.Timer
	runCounts map[string]int
	// draining is set from Stop until in-flight runs have returned; no
	// run is admitted meanwhile
	draining bool
	inflight sync.WaitGroup
}

// New creates a stopped scheduler over jobs. Job ids must be unique.
func New(jobs []Job, opts Options, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		byID:      make(map[string]*Job, len(jobs)),
		locks:     make(map[string]*sync.Mutex, len(jobs)),
		history:   NewHistory(opts.HistorySize),
		recorder:  opts.Recorder,
		delay:     opts.StartupDelay,
		log:       log,
		now:       time.Now,
		entries:   make(map[string]cron.EntryID),
		runCounts: make(map[string]int),
	}
	for i := range jobs {
		j := jobs[i]
		s.jobs = append(s.jobs, &j)
		s.byID[j.ID] = &j
		s.locks[j.ID] = &sync.Mutex{}
	}
	return s
}

// Start arms one recurring timer per enabled job and schedules a run of
// every enabled job after the startup delay.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Conflict("scheduler is already running")
	}
	if s.draining {
		return errors.Conflict("scheduler is still stopping")
	}

	for _, j := range s.jobs {
		if j.Enabled && j.Interval <= 0 {
			return errors.SchedulingFault(j.ID, fmt.Errorf("interval must be positive, got %s", j.Interval))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	scheduled := 0
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		s.entries[j.ID] = c.Schedule(cron.Every(j.Interval), cron.FuncJob(func() {
			if s.enter() != nil {
				return
			}
			s.run(ctx, j, job.TriggerSchedule)
		}))
		scheduled++
	}

	c.Start()
	now := s.now()
	s.cron = c
	s.cancel = cancel
	s.running = true
	s.startedAt = &now

	if s.delay >= 0 {
		s.startup = time.AfterFunc(s.delay, func() {
			s.runAll(ctx, job.TriggerStartup)
		})
	}

	s.log.WithFields(map[string]interface{}{
		"jobs_scheduled": scheduled,
		"startup_delay":  s.delay.String(),
	}).Info("Job scheduler started")
	return nil
}

// Stop disarms every timer and cancels the context handed to running jobs.
// The returned context is done once in-flight jobs have returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, finish := context.WithCancel(context.Background())
	if !s.running {
		finish()
		return done
	}

	if s.startup != nil {
		s.startup.Stop()
		s.startup = nil
	}
	s.cancel()
	cronDone := s.cron.Stop()
	s.running = false
	s.draining = true
	s.startedAt = nil
	s.entries = make(map[string]cron.EntryID)

	go func() {
		<-cronDone.Done()
		s.inflight.Wait()
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
		finish()
	}()

	s.log.Info("Job scheduler stopped")
	return done
}

// IsRunning reports whether timers are armed
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerJob runs one job synchronously, enabled or not. It fails while
// the scheduler is stopping.
func (s *Scheduler) TriggerJob(ctx context.Context, jobID string) (*job.Result, error) {
	j, ok := s.byID[jobID]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Job %q", jobID))
	}
	if err := s.enter(); err != nil {
		return nil, err
	}
	return s.run(ctx, j, job.TriggerManual), nil
}

// RunAllChecks runs every enabled job once, in table order
func (s *Scheduler) RunAllChecks(ctx context.Context) []*job.Result {
	return s.runAll(ctx, job.TriggerManual)
}

func (s *Scheduler) runAll(ctx context.Context, trigger string) []*job.Result {
	var out []*job.Result
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		if ctx.Err() != nil || s.enter() != nil {
			break
		}
		out = append(out, s.run(ctx, j, trigger))
	}
	return out
}

// enter admits one run into the in-flight group
func (s *Scheduler) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return errors.PreconditionFailed("scheduler is stopping")
	}
	s.inflight.Add(1)
	return nil
}

// run executes one job under its lock and records the result. The caller
// must have been admitted by enter.
func (s *Scheduler) run(ctx context.Context, j *Job, trigger string) *job.Result {
	defer s.inflight.Done()

	lock := s.locks[j.ID]
	lock.Lock()
	defer lock.Unlock()

	log := s.log.WithFields(map[string]interface{}{
		"job_id":  j.ID,
		"trigger": trigger,
	})
	log.Info("Job started")

	start := s.now()
	res := &job.Result{
		ID:        uuid.NewString(),
		JobID:     j.ID,
		JobName:   j.Name,
		Trigger:   trigger,
		StartedAt: start,
	}

	details, err := safeRun(ctx, j)
	res.CompletedAt = s.now()
	res.Duration = res.CompletedAt.Sub(start)
	res.Details = details
	res.Success = err == nil
	if err != nil {
		res.Error = err.Error()
	}

	s.history.Add(res)
	s.mu.Lock()
	s.runCounts[j.ID]++
	s.mu.Unlock()
	metrics.RecordJobRun(j.ID, res.Success, res.Duration)

	if s.recorder != nil {
		// the job context may already be cancelled on shutdown
		if err := s.recorder.CreateExecution(context.WithoutCancel(ctx), res); err != nil {
			log.WarnWithErr(err, "Failed to record job execution")
		}
	}

	if err != nil {
		log.With("duration_ms", res.Duration.Milliseconds()).ErrorWithErr(err, "Job failed")
	} else {
		log.With("duration_ms", res.Duration.Milliseconds()).Info("Job completed")
	}
	return res
}

// safeRun converts a panicking or failing body into a SchedulingFault
func safeRun(ctx context.Context, j *Job) (details map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.SchedulingFault(j.ID, fmt.Errorf("panic: %v", rec))
		}
	}()
	if j.Run == nil {
		return nil, errors.SchedulingFault(j.ID, fmt.Errorf("job has no body"))
	}
	details, err = j.Run(ctx)
	if err != nil && !errors.HasCode(err, errors.ErrCodeScheduling) {
		err = errors.SchedulingFault(j.ID, err)
	}
	return details, err
}

// GetStatus returns the job table with run counts, last results and next runs
func (s *Scheduler) GetStatus() job.SchedulerStatus {
	s.mu.Lock()
	status := job.SchedulerStatus{
		Running:     s.running,
		HistorySize: s.history.Len(),
		Jobs:        make([]job.JobStatus, 0, len(s.jobs)),
	}
	if s.startedAt != nil {
		t := *s.startedAt
		status.StartedAt = &t
	}
	next := make(map[string]time.Time, len(s.entries))
	if s.cron != nil && s.running {
		for id, entryID := range s.entries {
			if e := s.cron.Entry(entryID); !e.Next.IsZero() {
				next[id] = e.Next
			}
		}
	}
	counts := make(map[string]int, len(s.runCounts))
	for id, n := range s.runCounts {
		counts[id] = n
	}
	s.mu.Unlock()

	for _, j := range s.jobs {
		js := job.JobStatus{
			Definition: j.Definition,
			RunCount:   counts[j.ID],
			LastRun:    s.history.Last(j.ID),
		}
		if t, ok := next[j.ID]; ok {
			js.NextRun = &t
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status
}

// History returns up to limit results newest first, optionally for one job
func (s *Scheduler) History(jobID string, limit int) []*job.Result {
	return s.history.List(jobID, limit)
}

// Jobs returns the job table
func (s *Scheduler) Jobs() []job.Definition {
	out := make([]job.Definition, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Definition)
	}
	return out
}

// cronLogger routes robfig/cron logging through the platform logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).ErrorWithErr(err, "cron: "+msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
