package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerFiresImmediately(t *testing.T) {
	t.Parallel()

	var fired atomic.Int64
	s := NewTickerScheduler(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx, func(time.Time) { fired.Add(1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never fired")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestTickerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewTickerScheduler(time.Hour)
	if err := s.Start(context.Background(), func(time.Time) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestTickerConcurrentStop(t *testing.T) {
	t.Parallel()

	s := NewTickerScheduler(time.Hour)
	if err := s.Start(context.Background(), func(time.Time) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Stop(context.Background())
		}()
	}
	wg.Wait()

	if err := s.Start(context.Background(), func(time.Time) {}); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("final Stop: %v", err)
	}
}

func TestTickerNilJob(t *testing.T) {
	t.Parallel()

	s := NewTickerScheduler(time.Hour)
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start with nil job: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
