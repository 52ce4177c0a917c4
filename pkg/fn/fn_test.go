package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, func(n int) string { return strconv.Itoa(n * 2) })
	want := []string{"2", "4", "6"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFilter(t *testing.T) {
	got := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("unexpected: %v", got)
	}
}

func TestFilterMap(t *testing.T) {
	got := FilterMap([]string{"1", "x", "3"}, func(s string) (int, bool) {
		n, err := strconv.Atoi(s)
		return n, err == nil
	})
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected: %v", got)
	}
}

func TestUniqueByKeepsFirst(t *testing.T) {
	type pair struct {
		id  int
		tag string
	}
	got := UniqueBy([]pair{{1, "a"}, {2, "b"}, {1, "c"}}, func(p pair) int { return p.id })
	if len(got) != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
	if got[0].tag != "a" {
		t.Fatal("expected first occurrence kept")
	}
}

func TestChunk(t *testing.T) {
	got := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if len(got[2]) != 1 || got[2][0] != 5 {
		t.Fatalf("unexpected last chunk: %v", got[2])
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("expected nil for n=0")
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	got := ParMap(items, 8, func(n int) int { return n * n })
	for i, v := range got {
		if v != i*i {
			t.Fatalf("index %d: expected %d, got %d", i, i*i, v)
		}
	}
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int64
	ParMap(make([]int, 50), 4, func(int) int {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return 0
	})
	if peak.Load() > 4 {
		t.Fatalf("expected at most 4 concurrent workers, saw %d", peak.Load())
	}
}

func TestParMapEmpty(t *testing.T) {
	got := ParMap(nil, 0, func(int) int { return 1 })
	if len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestFanOutResult(t *testing.T) {
	r := FanOutResult(
		func() Result[int] { return Ok(1) },
		func() Result[int] { return Ok(2) },
	)
	vals, err := r.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if vals[0] != 1 || vals[1] != 2 {
		t.Fatalf("unexpected: %v", vals)
	}
}

func TestFanOutResultError(t *testing.T) {
	boom := errors.New("boom")
	r := FanOutResult(
		func() Result[int] { return Ok(1) },
		func() Result[int] { return Err[int](boom) },
	)
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCollect(t *testing.T) {
	r := Collect([]Result[int]{Ok(1), Ok(2)})
	vals, err := r.Unwrap()
	if err != nil || len(vals) != 2 {
		t.Fatalf("unexpected: %v %v", vals, err)
	}

	boom := errors.New("boom")
	r = Collect([]Result[int]{Ok(1), Err[int](boom), Err[int](errors.New("later"))})
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected first error, got %v", err)
	}
}

func TestResultHelpers(t *testing.T) {
	if Ok(5).UnwrapOr(0) != 5 {
		t.Fatal("UnwrapOr on Ok")
	}
	if Err[int](errors.New("x")).UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr on Err")
	}
	if FromPair(3, nil).IsErr() {
		t.Fatal("FromPair nil err")
	}
	if FromPair(3, errors.New("x")).IsOk() {
		t.Fatal("FromPair non-nil err")
	}
	if Errf[int]("bad %d", 7).IsOk() {
		t.Fatal("Errf")
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Err[int](errors.New("transient"))
		}
		return Ok(42)
	})
	v, err := r.Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("unexpected: %v %v", v, err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	boom := errors.New("permanent")
	opts := RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		return Err[int](boom)
	})
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Minute, MaxWait: time.Minute}
	r := Retry(ctx, opts, func(context.Context) Result[int] {
		return Err[int](errors.New("transient"))
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
