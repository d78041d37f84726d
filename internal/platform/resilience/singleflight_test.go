package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleFlight_CollapsesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var flight SingleFlight
	var executions atomic.Int32
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func() (any, error) {
		once.Do(func() { close(started) })
		executions.Add(1)
		<-release
		return "payload", nil
	}

	var wg sync.WaitGroup
	var sharedCount atomic.Int32

	call := func() {
		defer wg.Done()
		out, err, shared := flight.Do("scoreboard", fn)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if out != "payload" {
			t.Errorf("unexpected result %v", out)
		}
		if shared {
			sharedCount.Add(1)
		}
	}

	wg.Add(1)
	go call()
	<-started

	const lateCallers = 7
	for i := 0; i < lateCallers; i++ {
		wg.Add(1)
		go call()
	}
	// Give the late callers time to join the in-flight call before it
	// completes.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := executions.Load(); got != 1 {
		t.Fatalf("expected one execution, got %d", got)
	}
	if got := sharedCount.Load(); got != lateCallers {
		t.Fatalf("expected %d shared results, got %d", lateCallers, got)
	}
}

func TestSingleFlight_SequentialCallsRunIndependently(t *testing.T) {
	t.Parallel()

	var flight SingleFlight
	var executions atomic.Int32

	for i := 0; i < 3; i++ {
		_, err, shared := flight.Do("key", func() (any, error) {
			executions.Add(1)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if shared {
			t.Fatalf("sequential call %d should not share", i)
		}
	}

	if got := executions.Load(); got != 3 {
		t.Fatalf("expected three executions, got %d", got)
	}
}
