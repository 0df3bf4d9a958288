package fleet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/metrics"
	"github.com/OjusWiZard/triton-bot/internal/metrics/metricsTypes"
	"github.com/OjusWiZard/triton-bot/pkg/notifier"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	StartupDelay           = 3 * time.Second
	BalanceCheckFirstDelay = 5 * time.Second

	Job_Startup      = "startup"
	Job_BalanceCheck = "balance_check"
	Job_Autoclaim    = "autoclaim"

	StartupMessage = "Triton has started"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func NewRealClock() Clock {
	return realClock{}
}

// Schedule returns the next fire time given the current time and how many times the job has
// fired. A zero time means the job is done.
type Schedule func(now time.Time, runs int) time.Time

func Once(delay time.Duration) Schedule {
	return func(now time.Time, runs int) time.Time {
		if runs > 0 {
			return time.Time{}
		}
		return now.Add(delay)
	}
}

func Every(first time.Duration, interval time.Duration) Schedule {
	return func(now time.Time, runs int) time.Time {
		if runs == 0 {
			return now.Add(first)
		}
		return now.Add(interval)
	}
}

func Monthly(day int, hourUtc int) Schedule {
	return func(now time.Time, runs int) time.Time {
		return NextMonthlyRun(now, day, hourUtc)
	}
}

// NextMonthlyRun returns the first instant strictly after now that falls on the given day of
// month at the given hour, in UTC. Months that are too short for the day are skipped.
func NextMonthlyRun(now time.Time, day int, hourUtc int) time.Time {
	now = now.UTC()
	year, month := now.Year(), now.Month()
	for i := 0; i < 24; i++ {
		y := year + (int(month)-1+i)/12
		m := time.Month((int(month)-1+i)%12 + 1)
		if day > daysIn(y, m) {
			continue
		}
		candidate := time.Date(y, m, day, hourUtc, 0, 0, 0, time.UTC)
		if candidate.After(now) {
			return candidate
		}
	}
	return time.Time{}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

type scheduledJob struct {
	Job
	running atomic.Bool
	mu      sync.Mutex
	next    time.Time
}

func (j *scheduledJob) setNext(t time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.next = t
}

func (j *scheduledJob) getNext() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

type SchedulerConfig struct {
	JobTimeout time.Duration
	Location   *time.Location
}

// Scheduler fires each job on its own timer. Ticks of the same job never overlap: a tick that
// comes due while the previous run is still going is skipped.
type Scheduler struct {
	jobs        []*scheduledJob
	clock       Clock
	config      *SchedulerConfig
	metricsSink *metrics.MetricsSink
	logger      *zap.Logger
	wg          sync.WaitGroup
}

func NewScheduler(clock Clock, cfg *SchedulerConfig, ms *metrics.MetricsSink, l *zap.Logger) *Scheduler {
	if clock == nil {
		clock = NewRealClock()
	}
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		jobs:        make([]*scheduledJob, 0),
		clock:       clock,
		config:      cfg,
		metricsSink: ms,
		logger:      l,
	}
}

func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, &scheduledJob{Job: j})
}

// Start launches one timer loop per job and returns immediately. Loops stop when ctx is
// cancelled; Wait blocks until they and any in-flight runs are done.
func (s *Scheduler) Start(ctx context.Context) {
	now := s.clock.Now()
	for _, j := range s.jobs {
		j.setNext(j.Schedule(now, 0))
	}
	for _, j := range s.jobs {
		j := j
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, j)
		}()
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *scheduledJob) {
	runs := 0
	for {
		next := j.getNext()
		if next.IsZero() {
			s.logger.Sugar().Debugw("Job has no further runs", zap.String("job", j.Name))
			return
		}
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}

		runs++
		s.fire(ctx, j)
		j.setNext(j.Schedule(s.clock.Now(), runs))
	}
}

func (s *Scheduler) fire(ctx context.Context, j *scheduledJob) {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Sugar().Warnw("Skipping job tick, previous run still in progress", zap.String("job", j.Name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		s.runJob(ctx, j)
	}()
}

func (s *Scheduler) runJob(ctx context.Context, j *scheduledJob) {
	runId := uuid.New().String()
	l := s.logger.With(zap.String("job", j.Name), zap.String("runId", runId))

	jobCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			l.Sugar().Errorw("Recovered from panic in job", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	l.Sugar().Infow("Running job")
	err := j.Run(jobCtx)
	duration := time.Since(start)
	_ = s.metricsSink.Timing(metricsTypes.Metric_Timing_JobDuration, duration, []metricsTypes.MetricsLabel{
		{Name: "job", Value: j.Name},
	})
	if err != nil {
		l.Sugar().Errorw("Job failed", zap.Error(err), zap.Duration("duration", duration))
		return
	}
	l.Sugar().Infow("Job finished", zap.Duration("duration", duration))
}

type JobInfo struct {
	Name string
	Next time.Time
}

// Jobs lists the pending jobs ordered by their next run.
func (s *Scheduler) Jobs() []JobInfo {
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		next := j.getNext()
		if next.IsZero() {
			continue
		}
		infos = append(infos, JobInfo{Name: j.Name, Next: next})
	}
	sort.SliceStable(infos, func(a, b int) bool {
		return infos[a].Next.Before(infos[b].Next)
	})
	return infos
}

func (s *Scheduler) JobsReport() string {
	infos := s.Jobs()
	if len(infos) == 0 {
		return "No scheduled jobs"
	}
	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		lines = append(lines, fmt.Sprintf("• %s: %s", info.Name, info.Next.In(s.config.Location).Format(epochTimeLayout)))
	}
	return strings.Join(lines, "\n")
}

// StandardJobs are the startup notice, the periodic balance check and the monthly autoclaim.
func (f *Fleet) StandardJobs() []Job {
	sc := f.config.SchedulerConfig
	return []Job{
		{
			Name:     Job_Startup,
			Schedule: Once(StartupDelay),
			Run: func(ctx context.Context) error {
				return f.sink.SendMessage(ctx, StartupMessage, notifier.Format_Plain)
			},
		},
		{
			Name:     Job_BalanceCheck,
			Schedule: Every(BalanceCheckFirstDelay, sc.BalanceCheckInterval),
			Run:      f.BalanceCheck,
		},
		{
			Name:     Job_Autoclaim,
			Schedule: Monthly(sc.AutoclaimDay, sc.AutoclaimHourUtc),
			Run:      f.Autoclaim,
		},
	}
}
