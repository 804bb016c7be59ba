package curator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

const retryDelay = 30 * time.Second

type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// Scheduler triggers jobs on their cron schedules. A tick that arrives while
// the previous run of the same job is still going is skipped.
type Scheduler struct {
	jobs     []Job
	log      *zap.Logger
	now      func() time.Time
	nextTick func(expr string, after time.Time) (time.Time, error)
	wg       sync.WaitGroup
}

func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		log:  logger,
		now:  time.Now,
		nextTick: func(expr string, after time.Time) (time.Time, error) {
			return gronx.NextTickAfter(expr, after, false)
		},
	}
}

// Run blocks until ctx is done and every in-flight job has returned. Jobs
// with an empty cron expression are not scheduled.
func (s *Scheduler) Run(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Cron == "" {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	log := s.log.With(zap.String("job", job.Name), zap.String("cron", job.Cron))
	log.Info("scheduled job")

	var running atomic.Bool
	for {
		wait := retryDelay
		next, err := s.nextTick(job.Cron, s.now())
		if err != nil {
			log.Error("compute next tick", zap.Error(err))
		} else {
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("stopping job")
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}

		if !running.CompareAndSwap(false, true) {
			log.Warn("previous run still in progress, skipping tick")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer running.Store(false)

			start := time.Now()
			if err := job.Run(ctx); err != nil {
				log.Error("job failed", zap.Error(err))
				return
			}
			log.Info("job finished", zap.Duration("elapsed", time.Since(start)))
		}()
	}
}
