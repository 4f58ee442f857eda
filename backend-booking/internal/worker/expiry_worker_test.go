package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/service"
)

type fakeSweeper struct {
	calls   atomic.Int32
	result  *service.ExpiryResult
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *fakeSweeper) ExpireStaleBookings(ctx context.Context) (*service.ExpiryResult, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
		return nil
	}, true, nil
}

func TestExpiryWorker_RunOnceRecordsStats(t *testing.T) {
	sweeper := &fakeSweeper{result: &service.ExpiryResult{Expired: 3, PublishFailures: 1}}
	w, err := NewExpiryWorker(sweeper, nil, nil)
	if err != nil {
		t.Fatalf("NewExpiryWorker: %v", err)
	}

	w.RunOnce()
	w.RunOnce()

	stats := w.GetStats()
	if stats.TotalRuns != 2 {
		t.Errorf("Expected 2 runs, got %d", stats.TotalRuns)
	}
	if stats.TotalExpired != 6 {
		t.Errorf("Expected 6 expired, got %d", stats.TotalExpired)
	}
	if stats.TotalPublishFailures != 2 {
		t.Errorf("Expected 2 publish failures, got %d", stats.TotalPublishFailures)
	}
	if stats.LastExpiredCount != 3 {
		t.Errorf("Expected LastExpiredCount=3, got %d", stats.LastExpiredCount)
	}
	if stats.Schedule != "@every 2m" {
		t.Errorf("Expected default schedule, got %q", stats.Schedule)
	}
}

func TestExpiryWorker_SweepErrorIsRecorded(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	w, err := NewExpiryWorker(sweeper, nil, nil)
	if err != nil {
		t.Fatalf("NewExpiryWorker: %v", err)
	}

	w.RunOnce()

	stats := w.GetStats()
	if stats.LastError != "db down" {
		t.Errorf("Expected LastError=db down, got %q", stats.LastError)
	}
	if stats.TotalExpired != 0 {
		t.Errorf("Expected 0 expired, got %d", stats.TotalExpired)
	}
}

func TestExpiryWorker_SkipsWhenLockHeld(t *testing.T) {
	sweeper := &fakeSweeper{result: &service.ExpiryResult{}}
	locker := &fakeLocker{held: true}
	w, err := NewExpiryWorker(sweeper, locker, nil)
	if err != nil {
		t.Fatalf("NewExpiryWorker: %v", err)
	}

	w.RunOnce()

	if sweeper.calls.Load() != 0 {
		t.Errorf("Expected no sweep while the lock is held, got %d", sweeper.calls.Load())
	}
	if w.GetStats().SkippedRuns != 1 {
		t.Errorf("Expected 1 skipped run, got %d", w.GetStats().SkippedRuns)
	}

	locker.held = false
	w.RunOnce()

	if sweeper.calls.Load() != 1 {
		t.Errorf("Expected 1 sweep, got %d", sweeper.calls.Load())
	}
	if locker.released != 1 {
		t.Errorf("Expected the lock to be released once, got %d", locker.released)
	}
}

func TestExpiryWorker_OverlappingRunsAreSkipped(t *testing.T) {
	sweeper := &fakeSweeper{
		result:  &service.ExpiryResult{},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	w, err := NewExpiryWorker(sweeper, nil, nil)
	if err != nil {
		t.Fatalf("NewExpiryWorker: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.RunOnce()
		close(done)
	}()
	<-sweeper.started

	// a second run while the first is still going returns without sweeping
	w.RunOnce()
	close(sweeper.block)
	<-done

	if sweeper.calls.Load() != 1 {
		t.Errorf("Expected 1 sweep, got %d", sweeper.calls.Load())
	}
}

func TestExpiryWorker_StartRunsImmediately(t *testing.T) {
	sweeper := &fakeSweeper{result: &service.ExpiryResult{}, started: make(chan struct{}, 1)}
	w, err := NewExpiryWorker(sweeper, nil, &ExpiryWorkerConfig{Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("NewExpiryWorker: %v", err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	select {
	case <-sweeper.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a sweep right after Start")
	}

	if err := w.Start(context.Background()); err == nil {
		t.Error("Expected an error when starting twice")
	}
}

func TestExpiryWorker_InvalidSchedule(t *testing.T) {
	_, err := NewExpiryWorker(&fakeSweeper{}, nil, &ExpiryWorkerConfig{Schedule: "every now and then"})
	if err == nil {
		t.Error("Expected an error for an invalid schedule")
	}
}
