package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
	Entries() []Entry
	Trigger(ctx context.Context, name string) error
}

// Entry describes one registered job.
type Entry struct {
	Name      string     `json:"name"`
	Spec      string     `json:"schedule"`
	Next      *time.Time `json:"next_run,omitempty"`
	Prev      *time.Time `json:"last_run,omitempty"`
	Running   bool       `json:"running"`
	LastError string     `json:"last_error,omitempty"`
}

type registered struct {
	job     Job
	spec    string
	entryID cron.EntryID
	running atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

type CronScheduler struct {
	cron *cron.Cron

	mu   sync.RWMutex
	jobs map[string]*registered
	ctx  context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		jobs: make(map[string]*registered),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled: %w", name, appErr.ErrConflict)
	}
	r := &registered{job: job, spec: spec}
	entryID, err := c.cron.AddFunc(spec, func() {
		_ = c.run(c.baseContext(), r)
	})
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	r.entryID = entryID
	c.jobs[name] = r
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

// Stop waits for running jobs to finish.
func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.jobs))
	for name, r := range c.jobs {
		e := Entry{Name: name, Spec: r.spec, Running: r.running.Load()}
		ce := c.cron.Entry(r.entryID)
		if !ce.Next.IsZero() {
			next := ce.Next
			e.Next = &next
		}
		r.mu.Lock()
		if !r.lastRun.IsZero() {
			prev := r.lastRun
			e.Prev = &prev
		}
		if r.lastErr != nil {
			e.LastError = r.lastErr.Error()
		}
		r.mu.Unlock()
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger runs a job now, outside its schedule. It shares the running guard
// with scheduled runs and fails with ErrJobRunning instead of waiting.
func (c *CronScheduler) Trigger(ctx context.Context, name string) error {
	c.mu.RLock()
	r, ok := c.jobs[name]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s: %w", name, appErr.ErrNotFound)
	}
	return c.run(ctx, r)
}

func (c *CronScheduler) baseContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *CronScheduler) run(ctx context.Context, r *registered) error {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", r.job.Name()),
		zap.String("spec", r.spec),
	)
	if !r.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return fmt.Errorf("job %s: %w", r.job.Name(), appErr.ErrJobRunning)
	}
	defer r.running.Store(false)

	start := time.Now()
	logger.Info("job started")
	err := r.job.Run(ctx)
	elapsed := time.Since(start)
	r.mu.Lock()
	r.lastRun = start
	r.lastErr = err
	r.mu.Unlock()
	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return err
	}
	logger.Info("job finished", zap.Duration("duration", elapsed))
	return nil
}
