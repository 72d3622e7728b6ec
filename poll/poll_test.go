package poll_test

import (
	"errors"
	"testing"
	"time"

	"github.com/qmlab/rsscope/poll"
)

func TestUntilStopsWhenConditionHolds(t *testing.T) {
	calls := 0
	err := poll.Until(time.Millisecond, time.Second, func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestUntilTimesOut(t *testing.T) {
	start := time.Now()
	err := poll.Until(5*time.Millisecond, 30*time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond || elapsed > time.Second {
		t.Errorf("expected timeout near 30ms, took %v", elapsed)
	}
}

func TestUntilWaitsOutTheWholeTimeout(t *testing.T) {
	calls := 0
	start := time.Now()
	err := poll.Until(100*time.Millisecond, time.Second, func() (bool, error) {
		calls++
		return false, nil
	})
	elapsed := time.Since(start)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed < time.Second {
		t.Errorf("expected to poll for at least 1s, gave up after %v", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("expected timeout near 1s, took %v", elapsed)
	}
	if calls < 11 {
		t.Errorf("expected a final check at the deadline, got %d calls", calls)
	}
}

func TestUntilFinalCheckAtDeadline(t *testing.T) {
	start := time.Now()
	err := poll.Until(100*time.Millisecond, 250*time.Millisecond, func() (bool, error) {
		return time.Since(start) >= 250*time.Millisecond, nil
	})
	if err != nil {
		t.Errorf("expected the check at the deadline to succeed, got %v", err)
	}
}

func TestUntilFirstCheckIsImmediate(t *testing.T) {
	start := time.Now()
	err := poll.Until(time.Hour, 0, func() (bool, error) { return true, nil })
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected immediate return, took %v", elapsed)
	}
}

func TestUntilPropagatesConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := poll.Until(time.Millisecond, 0, func() (bool, error) { return false, boom })
	if err != boom {
		t.Errorf("expected %v got %v", boom, err)
	}
}
