package fn

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// --- Result ---

func TestResult(t *testing.T) {
	v, err := Ok(42).Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("Ok unwrap = %d, %v", v, err)
	}
	e := Err[int](errBoom)
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should not be ok")
	}
	if _, err := e.Unwrap(); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if Ok(1).UnwrapOr(9) != 1 || e.UnwrapOr(9) != 9 {
		t.Fatal("UnwrapOr")
	}
}

func TestFromPair(t *testing.T) {
	n, err := strconv.Atoi("12")
	if v, err := FromPair(n, err).Unwrap(); v != 12 || err != nil {
		t.Fatalf("got %d, %v", v, err)
	}
	n, err = strconv.Atoi("x")
	if FromPair(n, err).IsOk() {
		t.Fatal("parse error should be Err")
	}
}

func TestCollect(t *testing.T) {
	all, err := Collect([]Result[string]{Ok("a"), Ok("b")}).Unwrap()
	if err != nil || strings.Join(all, "") != "ab" {
		t.Fatalf("got %v, %v", all, err)
	}
	if _, err := Collect([]Result[string]{Ok("a"), Err[string](errBoom), Ok("c")}).Unwrap(); !errors.Is(err, errBoom) {
		t.Fatalf("first error should win, got %v", err)
	}
	if empty, err := Collect[int](nil).Unwrap(); err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty collect = %v, %v", empty, err)
	}
}

// --- Slices ---

func TestMapFilter(t *testing.T) {
	sizes := Map([]int{4, 6, 8}, strconv.Itoa)
	if strings.Join(sizes, ",") != "4,6,8" {
		t.Fatalf("Map = %v", sizes)
	}
	even := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if len(even) != 2 || even[0] != 2 || even[1] != 4 {
		t.Fatalf("Filter = %v", even)
	}
	if Filter([]int{1}, func(int) bool { return false }) != nil {
		t.Fatal("Filter with no matches should be nil")
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n    int
		want []int // chunk lengths
	}{
		{2, []int{2, 2, 1}},
		{5, []int{5}},
		{10, []int{5}},
		{0, nil},
	}
	for _, tt := range tests {
		chunks := Chunk([]int{1, 2, 3, 4, 5}, tt.n)
		if len(chunks) != len(tt.want) {
			t.Fatalf("n=%d: %d chunks, want %d", tt.n, len(chunks), len(tt.want))
		}
		for i, c := range chunks {
			if len(c) != tt.want[i] {
				t.Fatalf("n=%d chunk %d has %d items", tt.n, i, len(c))
			}
		}
	}
	if Chunk([]int{}, 3) != nil {
		t.Fatal("empty input should give no chunks")
	}
}

func TestUniqueBy(t *testing.T) {
	type product struct{ id, name string }
	in := []product{{"a", "first"}, {"b", "b"}, {"a", "second"}}
	out := UniqueBy(in, func(p product) string { return p.id })
	if len(out) != 2 || out[0].name != "first" || out[1].id != "b" {
		t.Fatalf("UniqueBy = %+v", out)
	}
}

// --- Parallel ---

func TestParMapResultOrderAndBound(t *testing.T) {
	var running, peak atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results := ParMapResult(items, 3, func(n int) Result[int] {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		if n == 5 {
			return Err[int](errBoom)
		}
		return Ok(n * 10)
	})

	if peak.Load() > 3 {
		t.Fatalf("ran %d at once, limit 3", peak.Load())
	}
	for i, r := range results {
		v, err := r.Unwrap()
		if items[i] == 5 {
			if err == nil {
				t.Fatal("expected error for 5")
			}
			continue
		}
		if v != items[i]*10 {
			t.Fatalf("result %d = %d", i, v)
		}
	}
}

func TestParMapResultEmpty(t *testing.T) {
	if got := ParMapResult(nil, 4, func(int) Result[int] { return Ok(1) }); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestFanOut(t *testing.T) {
	out := FanOut(
		func() string { time.Sleep(10 * time.Millisecond); return "slow" },
		func() string { return "fast" },
	)
	if out[0] != "slow" || out[1] != "fast" {
		t.Fatalf("FanOut = %v", out)
	}
}

// --- Retry ---

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 4, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond},
		func(context.Context) Result[string] {
			calls++
			if calls < 3 {
				return Err[string](errBoom)
			}
			return Ok("up")
		})
	if v, err := r.Unwrap(); v != "up" || err != nil || calls != 3 {
		t.Fatalf("got %q, %v after %d calls", v, err, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, Jitter: true},
		func(context.Context) Result[int] {
			calls++
			return Err[int](errBoom)
		})
	if _, err := r.Unwrap(); !errors.Is(err, errBoom) || calls != 2 {
		t.Fatalf("err = %v after %d calls", err, calls)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	Retry(context.Background(), RetryOpts{}, func(context.Context) Result[int] {
		calls++
		return Err[int](errBoom)
	})
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		cancel()
		return Err[int](errBoom)
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	opts := RetryOpts{MaxWait: 50 * time.Millisecond, Jitter: true}
	for range 20 {
		if d := opts.delay(40 * time.Millisecond); d < 20*time.Millisecond || d > 50*time.Millisecond {
			t.Fatalf("delay %v out of range", d)
		}
	}
}

// --- Stages ---

func TestThen(t *testing.T) {
	parse := Stage[string, int](func(_ context.Context, s string) Result[int] {
		n, err := strconv.Atoi(s)
		return FromPair(n, err)
	})
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })

	if v, err := Then(parse, double)(context.Background(), "21").Unwrap(); v != 42 || err != nil {
		t.Fatalf("got %d, %v", v, err)
	}

	called := false
	never := Stage[int, int](func(_ context.Context, n int) Result[int] { called = true; return Ok(n) })
	if Then(parse, never)(context.Background(), "x").IsOk() || called {
		t.Fatal("second stage must not run after an error")
	}
}

func TestTracedStagePassesThrough(t *testing.T) {
	stage := TracedStage("test", func(_ context.Context, n int) Result[int] {
		if n < 0 {
			return Err[int](errBoom)
		}
		return Ok(n + 1)
	})
	if v, _ := stage(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatalf("got %d", v)
	}
	if stage(context.Background(), -1).IsOk() {
		t.Fatal("error lost")
	}
}

func TestLoggedStage(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	stage := LoggedStage("match", log, func(_ context.Context, fail bool) Result[int] {
		if fail {
			return Err[int](errBoom)
		}
		return Ok(1)
	})

	stage(context.Background(), false)
	stage(context.Background(), true)

	out := buf.String()
	for _, want := range []string{"msg=stage.enter stage=match", "level=DEBUG msg=stage.exit", "level=WARN msg=stage.exit", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
