package offline

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xmhha/calmspace/pkg/logger"
)

// Registration drives workers through their lifecycle and routes
// requests to the active one.
type Registration struct {
	logger  logger.Logger
	clients *Clients

	// opMu serializes lifecycle operations. Fetches only take mu.
	opMu sync.Mutex

	mu         sync.RWMutex
	state      State
	installing *Worker
	waiting    *Worker
	active     *Worker
}

// NewRegistration creates an uninstalled registration.
func NewRegistration(log logger.Logger) *Registration {
	if log == nil {
		log = logger.Noop()
	}
	return &Registration{
		logger:  log,
		clients: NewClients(),
		state:   StateUninstalled,
	}
}

// Clients returns the registration's client set.
func (r *Registration) Clients() *Clients {
	return r.clients
}

// State returns the current lifecycle state. While a new version
// installs over an active one the state is StateInstalling, and the
// active version keeps serving.
func (r *Registration) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// ActiveVersion returns the version serving requests, or "".
func (r *Registration) ActiveVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return ""
	}
	return r.active.Version()
}

// WaitingVersion returns the installed version waiting to activate, or "".
func (r *Registration) WaitingVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.waiting == nil {
		return ""
	}
	return r.waiting.Version()
}

// Register installs w and activates it right away when it asked to skip
// waiting, when nothing is active yet, or when no client is controlled.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	skip, err := r.install(ctx, w)
	if err != nil {
		return err
	}

	r.mu.RLock()
	hasActive := r.active != nil
	r.mu.RUnlock()

	if skip || !hasActive || r.clients.Controlled() == 0 {
		return r.activate(ctx)
	}

	r.logger.Info("worker waiting", "version", w.Version())
	return nil
}

// Install runs w's install handler. On success w becomes the waiting
// worker; the returned flag reports whether it asked to skip waiting.
// On failure the registration returns to its previous state.
func (r *Registration) Install(ctx context.Context, w *Worker) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.install(ctx, w)
}

// Activate promotes the waiting worker to active.
func (r *Registration) Activate(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.activate(ctx)
}

// Adopt makes w active without installing it, when its cache already
// exists in storage. Its activate handler still runs, so other cache
// versions are evicted and clients claimed. It reports whether w was
// adopted.
func (r *Registration) Adopt(ctx context.Context, w *Worker) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	ok, err := w.storage.Has(w.Version())
	if err != nil {
		return false, fmt.Errorf("failed to look up cache %s: %w", w.Version(), err)
	}
	if !ok {
		return false, nil
	}

	w.attach(r.clients)

	ev := &ActivateEvent{ExtendableEvent: newExtendableEvent(ctx)}
	w.OnActivate(ev)
	if err := ev.wait(); err != nil {
		return false, fmt.Errorf("adopt %s: %w", w.Version(), err)
	}

	r.mu.Lock()
	r.active = w
	r.state = StateActive
	r.mu.Unlock()

	r.logger.Info("worker adopted", "version", w.Version())
	return true, nil
}

// Resume makes w the waiting worker without installing it, when its
// cache already exists in storage. A following Activate promotes it and
// evicts every other cache version.
func (r *Registration) Resume(w *Worker) (bool, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	ok, err := w.storage.Has(w.Version())
	if err != nil {
		return false, fmt.Errorf("failed to look up cache %s: %w", w.Version(), err)
	}
	if !ok {
		return false, nil
	}

	w.attach(r.clients)

	r.mu.Lock()
	r.waiting = w
	r.state = StateInstalled
	r.mu.Unlock()

	r.logger.Debug("worker resumed", "version", w.Version())
	return true, nil
}

// Fetch answers req through the active worker. The worker active when
// the fetch starts serves it to the end, even if another activates
// meanwhile.
func (r *Registration) Fetch(ctx context.Context, req *Request) (*Response, error) {
	r.mu.RLock()
	w := r.active
	r.mu.RUnlock()

	if w == nil {
		return nil, ErrNoActiveWorker
	}

	if req.ClientID != "" {
		if client, ok := r.clients.Get(req.ClientID); ok && !client.Controlled() {
			return w.fetchNetwork(ctx, req)
		}
	}

	ev := &FetchEvent{ExtendableEvent: newExtendableEvent(ctx), Request: req}
	w.OnFetch(ev)

	var (
		resp *Response
		err  error
	)
	if respond := ev.responder(); respond != nil {
		resp, err = respond(ctx)
	} else {
		resp, err = w.fetchNetwork(ctx, req)
	}

	if waitErr := ev.wait(); waitErr != nil {
		r.logger.Warn("fetch event work failed", "url", req.URL, "error", waitErr)
	}
	return resp, err
}

func (r *Registration) install(ctx context.Context, w *Worker) (bool, error) {
	r.mu.Lock()
	r.installing = w
	r.state = StateInstalling
	r.mu.Unlock()

	r.logger.Info("installing worker", "version", w.Version())

	w.attach(r.clients)
	ev := &InstallEvent{ExtendableEvent: newExtendableEvent(ctx)}
	w.OnInstall(ev)
	err := ev.wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.installing = nil
	if err != nil {
		r.state = r.settledState()
		r.logger.Error("install failed", "version", w.Version(), "state", r.state.String(), "error", err)
		return false, err
	}

	r.waiting = w
	r.state = StateInstalled
	return ev.skipsWaiting(), nil
}

func (r *Registration) activate(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	if w == nil {
		r.mu.Unlock()
		return ErrNothingWaiting
	}
	r.state = StateActivating
	r.mu.Unlock()

	ev := &ActivateEvent{ExtendableEvent: newExtendableEvent(ctx)}
	w.OnActivate(ev)
	err := ev.wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.state = r.settledState()
		return fmt.Errorf("activate %s: %w", w.Version(), err)
	}

	r.active = w
	r.waiting = nil
	r.state = StateActive

	r.logger.Info("worker activated", "version", w.Version())
	return nil
}

// settledState is the state implied by the current workers. Callers
// hold mu.
func (r *Registration) settledState() State {
	switch {
	case r.active != nil:
		return StateActive
	case r.waiting != nil:
		return StateInstalled
	default:
		return StateUninstalled
	}
}
