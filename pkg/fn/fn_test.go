package fn

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultUnwrap(t *testing.T) {
	v, err := Ok(42).Unwrap()
	if v != 42 || err != nil {
		t.Errorf("Ok.Unwrap = (%d, %v)", v, err)
	}

	boom := errors.New("boom")
	_, err = Err[int](boom).Unwrap()
	if !errors.Is(err, boom) {
		t.Errorf("Err.Unwrap returned %v", err)
	}

	if got := Err[int](boom).UnwrapOr(7); got != 7 {
		t.Errorf("UnwrapOr = %d, want 7", got)
	}
	if got := Ok(1).UnwrapOr(7); got != 1 {
		t.Errorf("UnwrapOr = %d, want 1", got)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(5, nil); r.IsErr() {
		t.Error("FromPair(5, nil) is an error")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Error("FromPair with error is ok")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(3), func(v int) string { return strconv.Itoa(v * 2) })
	if v, _ := r.Unwrap(); v != "6" {
		t.Errorf("MapResult = %q", v)
	}

	boom := errors.New("boom")
	r = MapResult(Err[int](boom), func(v int) string { return "unused" })
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Errorf("MapResult error = %v", err)
	}
}

func TestCollect(t *testing.T) {
	vals, err := Collect([]Result[int]{Ok(1), Ok(2), Ok(3)}).Unwrap()
	if err != nil || len(vals) != 3 || vals[2] != 3 {
		t.Errorf("Collect = (%v, %v)", vals, err)
	}

	boom := errors.New("boom")
	_, err = Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3)}).Unwrap()
	if !errors.Is(err, boom) {
		t.Errorf("Collect error = %v", err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	first := func(_ context.Context, s string) Result[int] { return Err[int](boom) }
	called := false
	second := func(_ context.Context, v int) Result[string] {
		called = true
		return Ok("unused")
	}

	_, err := Then(first, second)(context.Background(), "in").Unwrap()
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if called {
		t.Error("second stage ran after first failed")
	}
}

func TestBatchStage(t *testing.T) {
	double := func(_ context.Context, v int) Result[int] { return Ok(v * 2) }
	out, err := BatchStage(2, double)(context.Background(), []int{1, 2, 3, 4}).Unwrap()
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	want := []int{2, 4, 6, 8}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestParMapResultKeepsOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	results := ParMapResult(items, 8, func(v int) Result[int] { return Ok(v * v) })
	for i, r := range results {
		if v, _ := r.Unwrap(); v != i*i {
			t.Errorf("results[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestParMapResultBoundsWorkers(t *testing.T) {
	var active, peak int64
	var mu sync.Mutex
	results := ParMapResult(make([]int, 50), 4, func(int) Result[int] {
		n := atomic.AddInt64(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		atomic.AddInt64(&active, -1)
		return Ok(0)
	})
	if len(results) != 50 {
		t.Fatalf("got %d results", len(results))
	}
	if peak > 4 {
		t.Errorf("observed %d concurrent workers, limit 4", peak)
	}
}

func TestRetryStopsAfterSuccess(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	calls := 0
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		if calls < 3 {
			return Errf[int]("attempt %d failed", calls)
		}
		return Ok(99)
	})
	if v, err := r.Unwrap(); err != nil || v != 99 {
		t.Errorf("retry = (%d, %v)", v, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	boom := errors.New("boom")
	calls := 0
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](boom)
	})
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour}
	r := Retry(ctx, opts, func(context.Context) Result[int] {
		return Errf[int]("always fails")
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMapFilterChunk(t *testing.T) {
	doubled := Map([]int{1, 2, 3}, func(v int) int { return v * 2 })
	if doubled[2] != 6 {
		t.Errorf("Map = %v", doubled)
	}

	evens := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if len(evens) != 2 || evens[1] != 4 {
		t.Errorf("Filter = %v", evens)
	}

	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 || chunks[2][0] != 5 {
		t.Errorf("Chunk = %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Error("Chunk with n=0 not nil")
	}
}
