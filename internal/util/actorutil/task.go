package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var errNilResult = errors.New("background task returned no result")

// SafeBackgroundTask runs a blocking function outside of the actor and
// delivers its result, or its recovered failure, as a message.
type SafeBackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func() (*T, error)
	timeout *time.Duration
	recover func(error) T
}

func NewBackgroundTaskNoError[T any](ctx actor.Context, fn func() *T) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn: func() (*T, error) {
			return fn(), nil
		},
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

// Recover maps a failed or timed out task to a result. Without it failures
// are dropped.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeTo runs the task in a new goroutine and sends the result to pid.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	root := t.ctx.ActorSystem().Root
	go func() {
		if value, ok := t.run(); ok {
			root.Send(pid, value)
		}
	}()
}

// run executes the task on the calling goroutine. Panics inside fn are
// turned into errors by goio.
func (t *SafeBackgroundTask[T]) run() (T, bool) {
	bg := io.Map(io.Eval(t.fn), func(a *T) T {
		if a == nil {
			panic(errNilResult)
		}
		return *a
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover == nil {
		var zero T
		return zero, false
	}
	return t.recover(result.Error), true
}
