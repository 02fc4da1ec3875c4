package skill

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/couchskill/pkg/alexa"
)

// Task is the pending result of a handler that waits on a provider call.
// The response is only populated once the call has succeeded.
type Task struct {
	g    *errgroup.Group
	done chan struct{}
	resp *alexa.ResponseEnvelope
	then func(*alexa.ResponseEnvelope)

	once sync.Once
	err  error
}

// startTask runs call in its own goroutine. then runs on the waiting
// goroutine, exactly once, and only if call returned nil.
func startTask(ctx context.Context, resp *alexa.ResponseEnvelope, call func(context.Context) error, then func(*alexa.ResponseEnvelope)) *Task {
	g, gctx := errgroup.WithContext(ctx)
	t := &Task{g: g, done: make(chan struct{}), resp: resp, then: then}
	g.Go(func() error {
		defer close(t.done)
		return call(gctx)
	})
	return t
}

// Done returns a channel that is closed when the provider call has settled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the provider call settles. On success it returns the
// completed response; on failure it returns the call's error and a nil
// response. Wait may be called more than once.
func (t *Task) Wait() (*alexa.ResponseEnvelope, error) {
	t.once.Do(func() {
		t.err = t.g.Wait()
		if t.err == nil && t.then != nil {
			t.then(t.resp)
		}
	})
	if t.err != nil {
		return nil, t.err
	}
	return t.resp, nil
}
