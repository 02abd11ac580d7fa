package settle

import (
	"testing"
	"time"
)

// Ensure negative attempts are normalized to 0.
func TestRetry_NegativeAttemptsDefaultsToZero(t *testing.T) {
	p := Retry(-5).Policy()
	if p.Attempts != 0 {
		t.Fatalf("expected Attempts=0 for Retry(-5), got %d", p.Attempts)
	}

	p = Retry(0).Policy()
	if p.Attempts != 0 || p.Delay != 0 {
		t.Fatalf("expected zero policy for Retry(0), got %+v", p)
	}
}

func TestRetry_WithDelay(t *testing.T) {
	p := Retry(3).WithDelay(100 * time.Millisecond).Policy()

	if p.Attempts != 3 {
		t.Fatalf("expected Attempts=3, got %d", p.Attempts)
	}
	if p.Delay != 100*time.Millisecond {
		t.Fatalf("expected Delay=100ms, got %v", p.Delay)
	}
}

// Negative delays are clamped so the policy always validates.
func TestRetry_WithNegativeDelay(t *testing.T) {
	p := Retry(1).WithDelay(-time.Second).Policy()
	if p.Delay != 0 {
		t.Fatalf("expected Delay=0, got %v", p.Delay)
	}
}

// Immediate should clear any configured delay but keep the attempt budget.
func TestRetry_Immediate(t *testing.T) {
	p := Retry(4).
		WithDelay(time.Second).
		Immediate().
		Policy()

	if p.Attempts != 4 {
		t.Fatalf("expected Attempts=4, got %d", p.Attempts)
	}
	if p.Delay != 0 {
		t.Fatalf("expected Delay=0 after Immediate, got %v", p.Delay)
	}
}

// Builders are values; deriving one must not mutate the original.
func TestRetry_BuilderIsImmutable(t *testing.T) {
	base := Retry(2)
	_ = base.WithDelay(time.Minute)

	if base.Policy().Delay != 0 {
		t.Fatalf("expected base builder to stay unchanged, got %v", base.Policy().Delay)
	}
}
