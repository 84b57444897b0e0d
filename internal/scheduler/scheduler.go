package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// TickerCreator hands out periodic tick channels. The stop func releases the
// underlying ticker.
type TickerCreator interface {
	Create(period time.Duration) (<-chan time.Time, func())
}

type realTickers struct{}

func (realTickers) Create(period time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(period)
	return t.C, t.Stop
}

func NewTickerGen() TickerCreator { return realTickers{} }

// Scheduler runs fire once per period until stopped. At most one ticker is
// live per Scheduler.
type Scheduler struct {
	period  time.Duration
	tickers TickerCreator

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(period time.Duration, tickers TickerCreator) *Scheduler {
	if tickers == nil {
		tickers = NewTickerGen()
	}
	return &Scheduler{period: period, tickers: tickers}
}

// Start arms the ticker. fire receives a context that is canceled by Stop, so
// a fire blocked on a busy consumer never outlives the scheduler.
func (s *Scheduler) Start(parent context.Context, fire func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	ticks, stop := s.tickers.Create(s.period)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				// A tick and a cancel can be ready together.
				if ctx.Err() != nil {
					return
				}
				fire(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels the ticker and returns once the tick goroutine has exited.
// Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
