package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDriver_RunsImmediatelyAndRepeats(t *testing.T) {
	var n int32
	d := NewDriver(5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&n, 1)
		return nil
	})
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&n) < 3 {
		select {
		case <-deadline:
			t.Fatal("driver did not tick 3 times")
		case <-time.After(time.Millisecond):
		}
	}
	d.Stop()
	d.Stop()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if d.Runs() < 3 {
		t.Fatalf("runs = %d", d.Runs())
	}
}

func TestDriver_FirstCycleNotDelayed(t *testing.T) {
	started := make(chan struct{}, 1)
	d := NewDriver(time.Hour, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		return nil
	})
	go d.Run(context.Background())
	defer d.Stop()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first cycle waited for the interval")
	}
}

func TestDriver_ErrorsDoNotStopLoop(t *testing.T) {
	var n int32
	d := NewDriver(time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&n, 1)
		return errors.New("fetch failed")
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.Run(ctx); close(done) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&n) < 3 {
		select {
		case <-deadline:
			t.Fatal("loop stopped after an error")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestDriver_StopWaitsForInFlightCycle(t *testing.T) {
	entered := make(chan struct{})
	var finished int32
	d := NewDriver(time.Hour, func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return ctx.Err()
	})
	done := make(chan struct{})
	go func() { d.Run(context.Background()); close(done) }()

	<-entered
	d.Stop()
	<-done
	if atomic.LoadInt32(&finished) != 1 {
		t.Fatal("Run returned before the cycle finished")
	}
	if d.Runs() != 1 {
		t.Fatalf("runs = %d", d.Runs())
	}
}
