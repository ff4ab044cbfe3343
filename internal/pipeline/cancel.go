package pipeline

import (
	"context"
	"io"
)

type until[T any] struct {
	l   *Listener
	src Stream[T]
}

// Until ends src as soon as l's shutdown has fired. The check happens before
// every pull and does not wait for the upstream to become ready.
func Until[T any](l *Listener, src Stream[T]) Stream[T] {
	return &until[T]{l: l, src: src}
}

func (u *until[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if u.l.Fired() {
		return zero, io.EOF
	}
	return u.src.Next(ctx)
}

func (u *until[T]) Close() error {
	return u.src.Close()
}
