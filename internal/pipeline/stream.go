// Package pipeline holds the pull-driven sequence stages the radio composes
// per listener: flattening, pacing and shutdown filtering.
//
// A Stream is lazy: nothing is produced until the consumer calls Next, and a
// stage pulls from its upstream only as often as its own consumer pulls from
// it. Next returns io.EOF once the sequence is exhausted. Close releases the
// stage and everything upstream of it and may be called more than once.
package pipeline

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Stream is a lazily evaluated sequence of T.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// Quantifier is implemented by items a RateLimiter can pace.
type Quantifier interface {
	// Quantity is the item's size in the limiter's rate units, for example
	// frames for PCM or bytes for encoded audio.
	Quantity() int
}

type sliceStream[T any] struct {
	items []T
}

// FromSlice returns a finite stream over items.
func FromSlice[T any](items ...T) Stream[T] {
	return &sliceStream[T]{items: items}
}

func (s *sliceStream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(s.items) == 0 {
		return zero, io.EOF
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}

func (s *sliceStream[T]) Close() error {
	s.items = nil
	return nil
}

// Empty returns a stream that ends immediately.
func Empty[T any]() Stream[T] {
	return &sliceStream[T]{}
}

type flatMap[T, U any] struct {
	src  Stream[T]
	open func(T) Stream[U]
	cur  Stream[U]
}

// FlatMap concatenates the inner streams open returns for each item of src.
// An inner stream is closed once it reports io.EOF, before the next one is
// opened. Errors other than io.EOF end the outer stream.
func FlatMap[T, U any](src Stream[T], open func(T) Stream[U]) Stream[U] {
	return &flatMap[T, U]{src: src, open: open}
}

func (f *flatMap[T, U]) Next(ctx context.Context) (U, error) {
	var zero U
	for {
		if f.cur == nil {
			item, err := f.src.Next(ctx)
			if err != nil {
				return zero, err
			}
			f.cur = f.open(item)
		}

		u, err := f.cur.Next(ctx)
		if err == nil {
			return u, nil
		}
		closeErr := f.cur.Close()
		f.cur = nil
		if !errors.Is(err, io.EOF) {
			return zero, err
		}
		if closeErr != nil {
			return zero, closeErr
		}
	}
}

func (f *flatMap[T, U]) Close() error {
	var err error
	if f.cur != nil {
		err = f.cur.Close()
		f.cur = nil
	}
	if srcErr := f.src.Close(); err == nil {
		err = srcErr
	}
	return err
}

// Collect drains s and closes it. It is meant for finite streams.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	defer s.Close()
	var out []T
	for {
		item, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
}
