package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestResult_Basics(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Error("Ok should be ok")
	}
	if v, err := ok.Unwrap(); v != 42 || err != nil {
		t.Errorf("unwrap = %v, %v", v, err)
	}

	bad := Err[int](errBoom)
	if bad.IsOk() || !bad.IsErr() {
		t.Error("Err should be err")
	}
	if bad.UnwrapOr(7) != 7 {
		t.Error("UnwrapOr should return fallback")
	}

	if _, err := Errf[int]("wrapped: %w", errBoom).Unwrap(); !errors.Is(err, errBoom) {
		t.Error("Errf should wrap")
	}
	if v, _ := FromPair(3, nil).Unwrap(); v != 3 {
		t.Error("FromPair should be ok for nil error")
	}
}

func TestCollect(t *testing.T) {
	all := []Result[int]{Ok(1), Ok(2), Ok(3)}
	vs, err := Collect(all).Unwrap()
	if err != nil || len(vs) != 3 {
		t.Fatalf("collect: %v %v", vs, err)
	}

	mixed := []Result[int]{Ok(1), Err[int](errBoom)}
	if _, err := Collect(mixed).Unwrap(); !errors.Is(err, errBoom) {
		t.Error("collect should return first error")
	}
}

func TestThen_ShortCircuits(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	fail := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errBoom) })

	v, err := Then(double, double)(context.Background(), 3).Unwrap()
	if err != nil || v != 12 {
		t.Errorf("then = %v, %v", v, err)
	}

	called := false
	spy := Stage[int, int](func(_ context.Context, n int) Result[int] { called = true; return Ok(n) })
	if _, err := Then(fail, spy)(context.Background(), 3).Unwrap(); !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
	if called {
		t.Error("second stage ran after failure")
	}
}

func TestTapStage(t *testing.T) {
	var seen int
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	if v, _ := tap(context.Background(), 5).Unwrap(); v != 5 || seen != 5 {
		t.Errorf("tap = %d, seen = %d", v, seen)
	}
}

func TestTracedStage_PassesThrough(t *testing.T) {
	st := TracedStage("test", MapStage(func(n int) int { return n + 1 }))
	if v, err := st(context.Background(), 1).Unwrap(); v != 2 || err != nil {
		t.Errorf("traced = %v, %v", v, err)
	}
	bad := TracedStage("test", Stage[int, int](func(_ context.Context, _ int) Result[int] {
		return Err[int](errBoom)
	}))
	if _, err := bad(context.Background(), 1).Unwrap(); !errors.Is(err, errBoom) {
		t.Errorf("traced error = %v", err)
	}
}

func TestParMapResult_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := ParMapResult(items, 2, func(n int) Result[int] { return Ok(n * n) })
	vs, err := Collect(results).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vs {
		if v != items[i]*items[i] {
			t.Errorf("out of order at %d: %d", i, v)
		}
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond},
		func(context.Context) Result[string] {
			attempts++
			if attempts < 3 {
				return Err[string](errBoom)
			}
			return Ok("done")
		})
	if v, err := r.Unwrap(); err != nil || v != "done" {
		t.Errorf("retry = %v, %v", v, err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond},
		func(context.Context) Result[int] { return Err[int](errBoom) })
	if _, err := r.Unwrap(); !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Minute},
		func(context.Context) Result[int] { return Err[int](errBoom) })
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
