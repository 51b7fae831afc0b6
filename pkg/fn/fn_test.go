package fn

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(3, nil); !r.IsOk() {
		t.Fatal("expected ok")
	}
	boom := errors.New("boom")
	r := FromPair(0, boom)
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestLiftAndThen(t *testing.T) {
	parse := Lift(func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) })
	double := Lift(func(_ context.Context, n int) (int, error) { return n * 2, nil })

	v, err := Then(parse, double)(context.Background(), "21").Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %d (%v)", v, err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	first := Lift(func(_ context.Context, _ string) (int, error) { return 0, errors.New("first failed") })
	second := Lift(func(_ context.Context, n int) (int, error) { called = true; return n, nil })

	r := Then(first, second)(context.Background(), "x")
	if r.IsOk() {
		t.Fatal("expected error")
	}
	if called {
		t.Fatal("second stage must not run after a failure")
	}
}

func TestTracedStage(t *testing.T) {
	ok := TracedStage("ok", Lift(func(_ context.Context, n int) (int, error) { return n + 1, nil }))
	if v, _ := ok(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}

	bad := TracedStage("bad", Lift(func(_ context.Context, _ int) (int, error) { return 0, errors.New("nope") }))
	if bad(context.Background(), 1).IsOk() {
		t.Fatal("expected error to pass through")
	}
}
