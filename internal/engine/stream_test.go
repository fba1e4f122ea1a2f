package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSliceStreamCollect(t *testing.T) {
	got, err := Collect(context.Background(), SliceStream([]int{1, 2, 3}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}

func TestEmptyAndErrorStream(t *testing.T) {
	got, err := Collect(context.Background(), EmptyStream[int]())
	if err != nil || len(got) != 0 {
		t.Errorf("EmptyStream: got %v, %v", got, err)
	}

	boom := errors.New("boom")
	if _, err := Collect(context.Background(), ErrorStream[int](boom)); !errors.Is(err, boom) {
		t.Errorf("ErrorStream: got %v, want %v", err, boom)
	}
}

func TestMapAndFilterStream(t *testing.T) {
	s := FilterStream(
		MapStream(SliceStream([]int{1, 2, 3, 4}), func(_ context.Context, v int) (int, error) {
			return v * 10, nil
		}),
		func(v int) bool { return v != 20 },
	)

	got, err := Collect(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{10, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFuncStreamClosesOnce(t *testing.T) {
	var closed atomic.Int32
	s := NewFuncStream[int](nil, func() { closed.Add(1) })
	s.Close()
	s.Close()
	if closed.Load() != 1 {
		t.Errorf("onClose called %d times, want 1", closed.Load())
	}
}

func TestPrefetchPreservesOrder(t *testing.T) {
	for _, buffer := range []int{0, 1, 4} {
		got, err := Collect(context.Background(), Prefetch(SliceStream([]int{1, 2, 3, 4, 5}), buffer))
		if err != nil {
			t.Fatalf("buffer %d: unexpected error: %v", buffer, err)
		}
		for i, v := range got {
			if v != i+1 {
				t.Errorf("buffer %d: got %v", buffer, got)
				break
			}
		}
		if len(got) != 5 {
			t.Errorf("buffer %d: got %d items, want 5", buffer, len(got))
		}
	}
}

func TestPrefetchPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	i := 0
	src := NewFuncStream(func(context.Context) (int, error) {
		i++
		if i == 3 {
			return 0, boom
		}
		return i, nil
	}, nil)

	got, err := Collect(context.Background(), Prefetch[int](src, 1))
	if !errors.Is(err, boom) {
		t.Fatalf("got error %v, want %v", err, boom)
	}
	if len(got) != 2 {
		t.Errorf("got %v before the error, want 2 items", got)
	}
}

func TestPrefetchCloseJoinsProducer(t *testing.T) {
	var srcClosed atomic.Bool
	src := NewFuncStream(func(ctx context.Context) (int, error) {
		// Block until the prefetching goroutine is cancelled.
		<-ctx.Done()
		return 0, ctx.Err()
	}, func() { srcClosed.Store(true) })

	s := Prefetch[int](src, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Read(ctx); err == nil {
		t.Fatal("expected read to fail on timeout")
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	if !srcClosed.Load() {
		t.Error("Close should close the input stream")
	}
}

func TestPrefetchCloseBeforeRead(t *testing.T) {
	var srcClosed atomic.Bool
	s := Prefetch[int](NewFuncStream[int](nil, func() { srcClosed.Store(true) }), 1)
	s.Close()
	if !srcClosed.Load() {
		t.Error("Close should close the input stream")
	}
	if _, err := s.Read(context.Background()); err == nil {
		t.Error("Read after Close should fail")
	}
}

func TestPrefetchReportsCancelCause(t *testing.T) {
	cause := errors.New("sibling failed")

	for _, buffer := range []int{0, 1} {
		for range 100 {
			ctx, cancel := context.WithCancelCause(context.Background())
			n := 0
			s := Prefetch[int](NewFuncStream(func(context.Context) (int, error) {
				n++
				return n, nil
			}, nil), buffer)

			if _, err := s.Read(ctx); err != nil {
				t.Fatalf("buffer %d: first read failed: %v", buffer, err)
			}
			cancel(cause)

			var err error
			for i := 0; i < 10 && err == nil; i++ {
				_, err = s.Read(context.Background())
			}
			s.Close()
			if !errors.Is(err, cause) {
				t.Fatalf("buffer %d: got %v, want %v", buffer, err, cause)
			}
		}
	}
}
