// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFenceSignalMonotonic(t *testing.T) {
	f := New()
	f.Signal(5)
	f.Signal(3)
	if got := f.Value(); got != 5 {
		t.Errorf("Value() = %d, want 5", got)
	}
	if got := f.Increment(); got != 6 {
		t.Errorf("Increment() = %d, want 6", got)
	}
	if !f.Reached(6) || f.Reached(7) {
		t.Error("Reached disagrees with Value")
	}
}

func TestFenceWaitAcrossGoroutines(t *testing.T) {
	f := New()
	const n = 16

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Increment()
		}()
	}

	done := make(chan struct{})
	go func() {
		f.Wait(n)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after all increments")
	}
	wg.Wait()
}

func TestFenceWaitContext(t *testing.T) {
	f := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.WaitContext(ctx, 1); err != context.DeadlineExceeded {
		t.Fatalf("WaitContext = %v, want DeadlineExceeded", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Signal(2)
	}()
	if err := f.WaitContext(context.Background(), 2); err != nil {
		t.Fatalf("WaitContext = %v, want nil", err)
	}
}
