package netstate

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrStopTimeout = errors.New("background tasks did not stop in time")

// TaskHandle owns the goroutines spawned by one service start. Cancelling the
// handle's context asks every task to exit; Wait blocks until they have.
type TaskHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTaskHandle(parent context.Context) *TaskHandle {
	ctx, cancel := context.WithCancel(parent)
	return &TaskHandle{ctx: ctx, cancel: cancel}
}

func (h *TaskHandle) Context() context.Context {
	return h.ctx
}

// Go runs fn as a task of this handle.
func (h *TaskHandle) Go(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(h.ctx)
	}()
}

// Stop cancels the tasks and waits up to timeout for them to return.
// A non-positive timeout waits indefinitely.
func (h *TaskHandle) Stop(timeout time.Duration) error {
	h.cancel()
	return h.Wait(timeout)
}

func (h *TaskHandle) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}
