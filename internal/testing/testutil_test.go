package testing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTest(t *testing.T) {
	gt := NewGoroutineTest(t)

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		gt.Go(func() error {
			ran.Add(1)
			return nil
		})
	}
	gt.Wait()

	if got := ran.Load(); got != 4 {
		t.Errorf("ran %d goroutines, want 4", got)
	}
}

func TestGoroutineTestCancel(t *testing.T) {
	gt := NewGoroutineTest(t)

	started := make(chan struct{})
	gt.GoWithContext(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	<-started
	gt.Cancel()
	gt.Wait()

	if err := gt.Context().Err(); err != context.Canceled {
		t.Errorf("context err = %v, want context.Canceled", err)
	}
}

func TestWithTimeout(t *testing.T) {
	if err := WithTimeout(time.Second, func() error { return nil }); err != nil {
		t.Errorf("fast function: unexpected error: %v", err)
	}

	block := make(chan struct{})
	defer close(block)
	err := WithTimeout(10*time.Millisecond, func() error {
		<-block
		return nil
	})
	if err == nil {
		t.Error("blocked function: expected a timeout error")
	}
}

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		ready.Store(true)
	}()

	if err := Eventually(2*time.Second, 5*time.Millisecond, ready.Load); err != nil {
		t.Errorf("condition never observed: %v", err)
	}

	err := Eventually(20*time.Millisecond, 5*time.Millisecond, func() bool { return false })
	if err == nil {
		t.Error("expected an error for a condition that never holds")
	}
}
