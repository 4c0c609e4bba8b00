package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remesas-ve/tasas/runlock"
	"github.com/remesas-ve/tasas/scrape"
	"github.com/remesas-ve/tasas/storage"
	"github.com/remesas-ve/tasas/storage/memory"
	"github.com/remesas-ve/tasas/storage/types"
)

func TestScheduler_Trigger(t *testing.T) {
	t.Parallel()

	t.Run("manual run reaches a terminal report", func(t *testing.T) {
		t.Parallel()

		var (
			store = memory.NewStorage()

			adapters = []scrape.Adapter{
				quoteAdapter("ves-buy", types.CurrencyVES, scrape.SideBuy, 45.30),
				quoteAdapter("ves-sell", types.CurrencyVES, scrape.SideSell, 45.50),
			}

			s = NewScheduler(
				NewOrchestrator(storage.NewGateway(store), testConfig(types.CurrencyVES), adapters),
				runlock.NewMemoryLock(),
				testConfig(types.CurrencyVES),
				WithQueryInterval(time.Millisecond*10),
			)
		)

		// A trigger is accepted before the loop even starts
		id, err := s.Trigger()
		require.NoError(t, err)

		report, ok := s.Status(id)
		require.True(t, ok)
		assert.Equal(t, StatusPending, report.Status)
		assert.True(t, report.FinishedAt.IsZero())

		ctx, cancelFn := context.WithCancel(context.Background())
		defer cancelFn()

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx)
		}()

		require.Eventually(t, func() bool {
			report, ok = s.Status(id)

			return ok && report.Status.Terminal()
		}, time.Second*5, time.Millisecond*10)

		assert.Equal(t, StatusSucceeded, report.Status)
		assert.Equal(t, 3, report.RatesWritten)
		assert.Empty(t, report.Errors)
		assert.False(t, report.StartedAt.IsZero())
		assert.False(t, report.FinishedAt.IsZero())

		// The loop stops cleanly on context cancellation
		cancelFn()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second * 5):
			t.Fatal("scheduler did not stop on context cancellation")
		}
	})

	t.Run("trigger rejected while a run is active", func(t *testing.T) {
		t.Parallel()

		var (
			fetchStarted = make(chan struct{})
			fetchRelease = make(chan struct{})

			blocking = &mockAdapter{
				nameFn: func() string {
					return "blocking"
				},
				fetchFn: func(_ context.Context) ([]scrape.Quote, error) {
					close(fetchStarted)
					<-fetchRelease

					return nil, nil
				},
			}

			s = NewScheduler(
				NewOrchestrator(
					storage.NewGateway(memory.NewStorage()),
					testConfig(types.CurrencyVES),
					[]scrape.Adapter{blocking},
				),
				runlock.NewMemoryLock(),
				testConfig(types.CurrencyVES),
				WithQueryInterval(time.Millisecond*10),
			)
		)

		ctx, cancelFn := context.WithCancel(context.Background())
		defer cancelFn()

		go func() {
			_ = s.Start(ctx)
		}()

		// Wait for the boot run to occupy the scheduler
		select {
		case <-fetchStarted:
		case <-time.After(time.Second * 5):
			t.Fatal("boot run never started")
		}

		_, err := s.Trigger()
		assert.ErrorIs(t, err, ErrRunInProgress)

		close(fetchRelease)
	})

	t.Run("queued manual run blocks a second trigger", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler(
			NewOrchestrator(
				storage.NewGateway(memory.NewStorage()),
				testConfig(types.CurrencyVES),
				nil,
			),
			runlock.NewMemoryLock(),
			testConfig(types.CurrencyVES),
		)

		// Never started, so the first trigger just sits in the queue
		_, err := s.Trigger()
		require.NoError(t, err)

		_, err = s.Trigger()
		assert.ErrorIs(t, err, ErrRunInProgress)
	})
}

func TestScheduler_RunLock(t *testing.T) {
	t.Parallel()

	var (
		fetched atomic.Int32

		adapter = &mockAdapter{
			fetchFn: func(_ context.Context) ([]scrape.Quote, error) {
				fetched.Add(1)

				return nil, nil
			},
		}

		lock = runlock.NewMemoryLock()
	)

	// Another worker holds the lease for the whole test
	acquired, err := lock.TryAcquire(context.Background(), time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	s := NewScheduler(
		NewOrchestrator(
			storage.NewGateway(memory.NewStorage()),
			testConfig(types.CurrencyVES),
			[]scrape.Adapter{adapter},
		),
		lock,
		testConfig(types.CurrencyVES),
		WithQueryInterval(time.Millisecond*10),
	)

	id, err := s.Trigger()
	require.NoError(t, err)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		_ = s.Start(ctx)
	}()

	var report Report

	require.Eventually(t, func() bool {
		var ok bool

		report, ok = s.Status(id)

		return ok && report.Status.Terminal()
	}, time.Second*5, time.Millisecond*10)

	// The run never reached the orchestrator
	assert.Equal(t, StatusFailed, report.Status)
	assert.Zero(t, report.RatesWritten)
	assert.NotEmpty(t, report.Errors)
	assert.Zero(t, fetched.Load())
}

func TestScheduler_PeriodicRescheduling(t *testing.T) {
	t.Parallel()

	var (
		runs atomic.Int32

		adapter = &mockAdapter{
			fetchFn: func(_ context.Context) ([]scrape.Quote, error) {
				runs.Add(1)

				return nil, nil
			},
		}

		// A zero interval makes the periodic run immediately due again
		cfg = testConfig(types.CurrencyVES)
	)

	cfg.IntervalSeconds = 0

	s := NewScheduler(
		NewOrchestrator(
			storage.NewGateway(memory.NewStorage()),
			cfg,
			[]scrape.Adapter{adapter},
		),
		runlock.NewMemoryLock(),
		cfg,
		WithQueryInterval(time.Millisecond*10),
	)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		_ = s.Start(ctx)
	}()

	// The periodic run keeps rescheduling itself
	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second*5, time.Millisecond*10)
}
