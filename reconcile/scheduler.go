/*
scheduler.go - Periodic background sync

PURPOSE:
  Runs the reconciler on a fixed interval while the device is online.
  Retryable transport failures (timeouts, unreachable remote) are retried
  sooner with exponential backoff instead of waiting a full interval.

DESIGN:
  - One background goroutine driven by a timer
  - First run happens immediately on Start
  - RunNow triggers a run from the API without waiting for the timer
  - Stop cancels an in-flight run; its pending changes stay pending

CONFIGURATION:
  - Interval:    Time between successful runs (default: 5 minutes)
  - BackoffBase: First retry delay after a retryable failure (default: 5s)
  - BackoffMax:  Upper bound of the retry delay (default: 10 minutes)

USAGE:
  scheduler := reconcile.NewScheduler(reconciler, 5*time.Minute)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package reconcile

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scheduler runs a Reconciler periodically.
type Scheduler struct {
	Reconciler  *Reconciler
	Interval    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// OnComplete, when set, is called after every run.
	OnComplete func(Report, error)

	stop   chan struct{}
	wakeup chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	retry *backoff.ExponentialBackOff
}

// NewScheduler creates a scheduler with default backoff settings.
func NewScheduler(r *Reconciler, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		Reconciler:  r,
		Interval:    interval,
		BackoffBase: 5 * time.Second,
		BackoffMax:  10 * time.Minute,
		wakeup:      make(chan struct{}, 1),
	}
}

// Start begins periodic syncing. Calling Start twice has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.retry = newRetryBackOff(s.BackoffBase, s.BackoffMax)
	s.wg.Add(1)

	go s.run(ctx, s.stop)

	log.Printf("[Scheduler] Started with sync interval: %v", s.Interval)
}

// Stop stops the scheduler and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
	log.Println("[Scheduler] Stopped")
}

// Trigger asks the background loop to run now. It does not block.
func (s *Scheduler) Trigger() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// RunNow runs one sync synchronously on the caller's context.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	report, err := s.Reconciler.Run(ctx)
	if s.OnComplete != nil && !errors.Is(err, ErrSyncInProgress) {
		s.OnComplete(report, err)
	}
	return report, err
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-s.wakeup:
		case <-stop:
			return
		}

		_, err := s.RunNow(ctx)
		delay := s.nextDelay(err)
		if err != nil && !errors.Is(err, ErrSyncInProgress) {
			log.Printf("[Scheduler] Sync failed, next attempt in %v: %v", delay, err)
		}
		timer.Reset(delay)
	}
}

// nextDelay returns the wait before the next run given the last result.
// Only the loop goroutine touches retry.
func (s *Scheduler) nextDelay(err error) time.Duration {
	if !IsRetryable(err) {
		s.retry.Reset()
		return s.Interval
	}
	return s.retry.NextBackOff()
}

// newRetryBackOff doubles from base up to limit without jitter and never
// gives up. A limit below base is raised to base.
func newRetryBackOff(base, limit time.Duration) *backoff.ExponentialBackOff {
	if limit < base {
		limit = base
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = limit
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Backoff returns the delay after the given number of consecutive
// failures: base * 2^(failures-1), capped at limit.
func Backoff(failures int, base, limit time.Duration) time.Duration {
	if failures <= 0 || base <= 0 {
		return base
	}
	b := newRetryBackOff(base, limit)
	var d time.Duration
	for range failures {
		d = b.NextBackOff()
	}
	return d
}
