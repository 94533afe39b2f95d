package lifecycle

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestForwardOnlyTransitions(t *testing.T) {
	l := New()
	if !l.Accepting() {
		t.Fatal("fresh lifecycle must accept work")
	}

	if !l.BeginDrain() {
		t.Fatal("first BeginDrain must win")
	}
	if l.Accepting() {
		t.Error("draining process must not accept work")
	}
	if l.BeginDrain() {
		t.Error("second BeginDrain must lose")
	}

	if !l.FinishStop() {
		t.Fatal("FinishStop from Draining must succeed")
	}
	if l.FinishStop() {
		t.Error("second FinishStop must lose")
	}
	if l.State() != Stopped {
		t.Errorf("expected Stopped, got %d", l.State())
	}
}

func TestStopRequiresDrain(t *testing.T) {
	l := New()
	if l.FinishStop() {
		t.Error("FinishStop must fail from Running")
	}
	if l.State() != Running {
		t.Error("failed transition must not change state")
	}
}

func TestConcurrentSignalsOneDrain(t *testing.T) {
	l := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.BeginDrain() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("exactly one signal may start the drain, got %d", got)
	}
}
