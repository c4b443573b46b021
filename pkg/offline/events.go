package offline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ExtendableEvent is a lifecycle event whose handler may register
// deferred work. The dispatcher does not consider the event complete
// until every registered function has returned.
type ExtendableEvent struct {
	ctx   context.Context
	group *errgroup.Group

	mu       sync.Mutex
	finished bool
}

func newExtendableEvent(ctx context.Context) *ExtendableEvent {
	group, gctx := errgroup.WithContext(ctx)
	return &ExtendableEvent{ctx: gctx, group: group}
}

// Context returns the event context. It is cancelled when any deferred
// function fails.
func (e *ExtendableEvent) Context() context.Context {
	return e.ctx
}

// WaitUntil runs fn in the background and extends the event until it
// returns. The first error fails the event. Calling it after the
// dispatcher started waiting returns ErrEventFinished.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return ErrEventFinished
	}
	e.group.Go(func() error { return fn(e.ctx) })
	return nil
}

// wait closes the event to new work and blocks until all deferred work
// finished.
func (e *ExtendableEvent) wait() error {
	e.mu.Lock()
	e.finished = true
	e.mu.Unlock()

	return e.group.Wait()
}

// InstallEvent is dispatched when a worker is installed.
type InstallEvent struct {
	*ExtendableEvent

	mu          sync.Mutex
	skipWaiting bool
}

// SkipWaiting asks the registration to activate the worker as soon as
// install completes instead of waiting for the old worker's clients.
func (e *InstallEvent) SkipWaiting() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skipWaiting = true
}

func (e *InstallEvent) skipsWaiting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skipWaiting
}

// ActivateEvent is dispatched when a worker becomes the active one.
type ActivateEvent struct {
	*ExtendableEvent
}

// RespondFunc produces the response to an intercepted request.
type RespondFunc func(ctx context.Context) (*Response, error)

// FetchEvent is dispatched for every intercepted request.
type FetchEvent struct {
	*ExtendableEvent
	Request *Request

	mu      sync.Mutex
	respond RespondFunc
}

// RespondWith sets how the request is answered. Without it the request
// goes to the network untouched.
func (e *FetchEvent) RespondWith(fn RespondFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.respond != nil {
		return ErrAlreadyResponded
	}
	e.respond = fn
	return nil
}

func (e *FetchEvent) responder() RespondFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.respond
}
