// Package engine defines the operator graph, query processors and the pull-based streams
// query processors produce.
package engine

import (
	"context"
	"errors"
)

// EOF is returned by Stream.Read when the stream is exhausted.
var EOF = errors.New("stream exhausted") //nolint:revive,staticcheck

var errStreamClosed = errors.New("stream is closed")

// Stream is a pull-based sequence of query results. Read returns EOF when exhausted;
// any other error ends the stream. Close releases the stream's resources and must
// close all of its inputs.
type Stream[T any] interface {
	Read(context.Context) (T, error)
	Close()
}

type readFunc[T any] func(context.Context) (T, error)

// FuncStream is a stream backed by a read function.
type FuncStream[T any] struct {
	read    readFunc[T]
	onClose func()
}

var _ Stream[int] = (*FuncStream[int])(nil)

// NewFuncStream returns a stream that calls read for every item and onClose once on Close.
func NewFuncStream[T any](read func(context.Context) (T, error), onClose func()) *FuncStream[T] {
	return &FuncStream[T]{read: read, onClose: onClose}
}

// Read implements Stream.
func (s *FuncStream[T]) Read(ctx context.Context) (T, error) {
	if s.read == nil {
		var zero T
		return zero, EOF
	}
	return s.read(ctx)
}

// Close implements Stream.
func (s *FuncStream[T]) Close() {
	if s.onClose != nil {
		s.onClose()
		s.onClose = nil
	}
}

// SliceStream emits the items of a slice in order.
func SliceStream[T any](items []T) Stream[T] {
	i := 0
	return NewFuncStream(func(ctx context.Context) (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if i >= len(items) {
			return zero, EOF
		}
		i++
		return items[i-1], nil
	}, nil)
}

// EmptyStream returns a stream that is immediately exhausted.
func EmptyStream[T any]() Stream[T] {
	return NewFuncStream[T](nil, nil)
}

// ErrorStream returns a stream that fails with err on the first read.
func ErrorStream[T any](err error) Stream[T] {
	return NewFuncStream(func(context.Context) (T, error) {
		var zero T
		return zero, err
	}, nil)
}

// MapStream applies fn to every item of src.
func MapStream[T, U any](src Stream[T], fn func(context.Context, T) (U, error)) Stream[U] {
	return NewFuncStream(func(ctx context.Context) (U, error) {
		var zero U
		v, err := src.Read(ctx)
		if err != nil {
			return zero, err
		}
		return fn(ctx, v)
	}, src.Close)
}

// FilterStream skips items for which keep reports false.
func FilterStream[T any](src Stream[T], keep func(T) bool) Stream[T] {
	return NewFuncStream(func(ctx context.Context) (T, error) {
		for {
			v, err := src.Read(ctx)
			if err != nil || keep(v) {
				return v, err
			}
		}
	}, src.Close)
}

// Collect drains s and closes it. It returns the items read before the first error.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	defer s.Close()

	var out []T
	for {
		v, err := s.Read(ctx)
		if errors.Is(err, EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

type state[T any] struct {
	item T
	err  error
}

// prefetchStream reads its input in a separate goroutine so that producing the next
// item overlaps with consuming the current one.
type prefetchStream[T any] struct {
	src Stream[T]

	initialized bool
	buffer      int
	ch          chan state[T]
	cancel      context.CancelCauseFunc
	stopped     error // cancellation cause that ended the goroutine early, set before ch closes
}

var _ Stream[int] = (*prefetchStream[int])(nil)

// Prefetch wraps src so that up to buffer items are read ahead in a goroutine.
// The goroutine starts on the first Read and is stopped and joined by Close.
func Prefetch[T any](src Stream[T], buffer int) Stream[T] {
	return &prefetchStream[T]{src: src, buffer: max(buffer, 0)}
}

// Read implements Stream.
func (p *prefetchStream[T]) Read(ctx context.Context) (T, error) {
	if !p.initialized {
		p.initialized = true
		p.ch = make(chan state[T], p.buffer)

		var pctx context.Context
		pctx, p.cancel = context.WithCancelCause(ctx)
		go p.prefetch(pctx)
	}

	select {
	case s, ok := <-p.ch:
		if !ok {
			var zero T
			switch {
			case p.stopped != nil:
				return zero, p.stopped
			case p.cancel != nil:
				return zero, EOF
			default:
				return zero, errStreamClosed
			}
		}
		return s.item, s.err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

func (p *prefetchStream[T]) prefetch(ctx context.Context) {
	defer close(p.ch)

	for {
		if ctx.Err() != nil {
			p.stopped = context.Cause(ctx)
			return
		}

		var s state[T]
		s.item, s.err = p.src.Read(ctx)

		select {
		case <-ctx.Done():
			p.stopped = context.Cause(ctx)
			return
		case p.ch <- s:
		}
		if s.err != nil {
			return
		}
	}
}

// Close implements Stream.
func (p *prefetchStream[T]) Close() {
	if p.cancel != nil {
		p.cancel(errStreamClosed)

		// Join the prefetch goroutine before closing its input.
		for range p.ch { //nolint:revive
		}
		p.cancel = nil
	} else if !p.initialized {
		p.initialized = true
		p.ch = make(chan state[T])
		close(p.ch)
	}
	p.src.Close()
}

// OnError calls fn with every error other than EOF that src returns.
func OnError[T any](src Stream[T], fn func(error)) Stream[T] {
	return NewFuncStream(func(ctx context.Context) (T, error) {
		v, err := src.Read(ctx)
		if err != nil && !errors.Is(err, EOF) {
			fn(err)
		}
		return v, err
	}, src.Close)
}
