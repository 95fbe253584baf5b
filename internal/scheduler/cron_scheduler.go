package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/model"
)

// JobFunc is the body of a scheduled job
type JobFunc func(ctx context.Context) error

// CronScheduler runs named jobs on cron expressions with a seconds field
type CronScheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
	parser cron.Parser

	mu   sync.RWMutex
	ctx  context.Context
	jobs map[string]*cronJob
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewCronScheduler creates a new scheduler
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	}

	return &CronScheduler{
		logger: logger.Named("scheduler"),
		cron:   cron.New(cronOptions...),
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		ctx:    context.Background(),
		jobs:   make(map[string]*cronJob),
	}
}

// Start starts the scheduler. Jobs receive ctx and stop being scheduled on Stop.
func (s *CronScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.Schedules())))
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// AddJob registers fn under name, run on expression
func (s *CronScheduler) AddJob(name, expression string, fn JobFunc) error {
	spec, err := s.parser.Parse(expression)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidExpression, expression, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	job := &cronJob{
		scheduler: s,
		schedule:  &model.Schedule{Name: name, Expression: expression},
		fn:        fn,
	}
	job.entryID = s.cron.Schedule(spec, job)
	s.jobs[name] = job

	s.logger.Info("Added job",
		zap.String("name", name),
		zap.String("expression", expression),
		zap.Time("next_run", spec.Next(time.Now())))

	return nil
}

// RemoveJob unregisters a job
func (s *CronScheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.cron.Remove(job.entryID)
	delete(s.jobs, name)

	s.logger.Info("Removed job", zap.String("name", name))
	return nil
}

// Trigger runs a job immediately on the caller's goroutine
func (s *CronScheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job.execute(ctx)
}

// Schedules returns a snapshot of every job, sorted by name
func (s *CronScheduler) Schedules() []model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]model.Schedule, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.mu.Lock()
		schedule := *job.schedule
		job.mu.Unlock()

		if next := s.cron.Entry(job.entryID).Next; !next.IsZero() {
			schedule.NextRunTime = &next
		}
		schedules = append(schedules, schedule)
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].Name < schedules[j].Name
	})
	return schedules
}

func (s *CronScheduler) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	fn        JobFunc
	entryID   cron.EntryID

	mu       sync.Mutex
	schedule *model.Schedule
}

// Run implements cron.Job
func (j *cronJob) Run() {
	ctx := j.scheduler.baseContext()
	if ctx.Err() != nil {
		return
	}
	_ = j.execute(ctx)
}

func (j *cronJob) execute(ctx context.Context) error {
	started := time.Now()
	err := j.fn(ctx)
	elapsed := time.Since(started)

	j.mu.Lock()
	j.schedule.Runs++
	j.schedule.LastRunTime = &started
	j.schedule.LastElapsed = elapsed
	j.schedule.LastError = ""
	if err != nil {
		j.schedule.LastError = err.Error()
	}
	name := j.schedule.Name
	j.mu.Unlock()

	if err != nil {
		j.scheduler.logger.Error("Job failed",
			zap.String("name", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return err
	}

	j.scheduler.logger.Info("Executed job",
		zap.String("name", name),
		zap.Time("executed_at", started),
		zap.Duration("elapsed", elapsed))
	return nil
}
