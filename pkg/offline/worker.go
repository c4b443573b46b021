package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
)

// Worker owns one cache generation and handles its lifecycle events.
type Worker struct {
	manifest Manifest
	storage  CacheStorage
	network  Fetcher
	config   Config
	logger   logger.Logger

	scope   string
	assets  []string // resolved cache keys, manifest order
	rootKey string
	bypass  []glob.Glob

	// clients is set by the registration that installs the worker.
	clientsMu sync.RWMutex
	clients   *Clients
}

// NewWorker creates a worker for manifest.
func NewWorker(manifest Manifest, storage CacheStorage, network Fetcher, cfg Config, log logger.Logger) (*Worker, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	if cfg.InstallConcurrency <= 0 {
		cfg.InstallConcurrency = 4
	}
	if log == nil {
		log = logger.Noop()
	}

	scope := normalizeScope(cfg.Scope)
	assets, err := manifest.Resolve(scope)
	if err != nil {
		return nil, err
	}

	bypass := make([]glob.Glob, 0, len(cfg.Bypass))
	for _, pattern := range cfg.Bypass {
		g, compileErr := glob.Compile(pattern, '/')
		if compileErr != nil {
			return nil, fmt.Errorf("invalid bypass pattern %q: %w", pattern, compileErr)
		}
		bypass = append(bypass, g)
	}

	return &Worker{
		manifest: manifest,
		storage:  storage,
		network:  network,
		config:   cfg,
		logger:   log.With("version", manifest.Version),
		scope:    scope,
		assets:   assets,
		rootKey:  scope,
		bypass:   bypass,
	}, nil
}

// Version returns the cache name this worker owns.
func (w *Worker) Version() string {
	return w.manifest.Version
}

// Assets returns the resolved cache keys of the manifest.
func (w *Worker) Assets() []string {
	return append([]string(nil), w.assets...)
}

func (w *Worker) attach(c *Clients) {
	w.clientsMu.Lock()
	defer w.clientsMu.Unlock()
	w.clients = c
}

// OnInstall precaches every manifest asset and asks to skip waiting.
func (w *Worker) OnInstall(ev *InstallEvent) {
	_ = ev.WaitUntil(w.precache) //nolint:errcheck // event is fresh
	ev.SkipWaiting()
}

// OnActivate evicts every other cache generation, then claims clients.
func (w *Worker) OnActivate(ev *ActivateEvent) {
	_ = ev.WaitUntil(func(ctx context.Context) error { //nolint:errcheck // event is fresh
		if err := w.evictStale(); err != nil {
			return err
		}

		w.clientsMu.RLock()
		clients := w.clients
		w.clientsMu.RUnlock()

		if clients != nil {
			n := clients.Claim(w.Version())
			w.logger.Info("clients claimed", "count", n)
		}
		return nil
	})
}

// OnFetch answers from the cache first, then the network.
func (w *Worker) OnFetch(ev *FetchEvent) {
	req := ev.Request
	if !w.intercepts(req) {
		return
	}

	_ = ev.RespondWith(func(ctx context.Context) (*Response, error) { //nolint:errcheck // event is fresh
		return w.respond(ctx, req)
	})
}

// precache fetches every asset, then stores them all at once. Any failure
// leaves storage untouched.
func (w *Worker) precache(ctx context.Context) error {
	responses := make([]*Response, len(w.assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.InstallConcurrency)

	for i, key := range w.assets {
		i, key := i, key
		g.Go(func() error {
			resp, err := w.fetchNetwork(gctx, &Request{Method: http.MethodGet, URL: key})
			if err != nil {
				return &InstallError{Version: w.Version(), URL: key, Err: err}
			}
			if !resp.OK() {
				return &InstallError{Version: w.Version(), URL: key, Status: resp.Status}
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		w.logger.Error("install aborted", "error", err)
		return err
	}

	entries := make(map[string]*Response, len(w.assets))
	for i, key := range w.assets {
		entries[key] = responses[i]
	}

	if err := w.storage.PutAll(w.Version(), entries); err != nil {
		return &InstallError{Version: w.Version(), URL: w.rootKey, Err: err}
	}

	w.logger.Info("cache installed", "assets", len(entries))
	return nil
}

// evictStale deletes every cache whose name is not this worker's version.
func (w *Worker) evictStale() error {
	names, err := w.storage.Names()
	if err != nil {
		return fmt.Errorf("failed to list caches: %w", err)
	}

	for _, name := range names {
		if name == w.Version() {
			continue
		}
		if _, err := w.storage.Delete(name); err != nil {
			return fmt.Errorf("failed to delete stale cache %s: %w", name, err)
		}
		w.logger.Info("stale cache deleted", "cache", name)
	}
	return nil
}

func (w *Worker) respond(ctx context.Context, req *Request) (*Response, error) {
	key, err := resolveURL(w.scope, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.URL, err)
	}

	cached, err := w.storage.Match(w.Version(), key)
	switch {
	case err == nil:
		cached.FromCache = true
		return cached, nil
	case !errors.Is(err, ErrNotCached):
		w.logger.Warn("cache lookup failed", "url", key, "error", err)
	}

	resp, netErr := w.fetchNetwork(ctx, req)
	if netErr == nil {
		return resp, nil
	}

	if req.Mode == ModeNavigate {
		root, rootErr := w.storage.Match(w.Version(), w.rootKey)
		if rootErr == nil {
			w.logger.Debug("offline navigation served from root document", "url", key)
			root.FromCache = true
			return root, nil
		}
	}

	return nil, netErr
}

// intercepts reports whether the worker handles req at all. Non-GET
// requests, bypassed paths and requests outside the scope go straight to
// the network.
func (w *Worker) intercepts(req *Request) bool {
	if req.Method != "" && req.Method != http.MethodGet {
		return false
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		p := u.Path
		if p == "" || p[0] != '/' {
			p = "/" + p
		}
		if p+"/" != w.scope && !strings.HasPrefix(p, w.scope) {
			return false
		}
	}

	for _, g := range w.bypass {
		if g.Match(u.Path) {
			return false
		}
	}
	return true
}

func (w *Worker) fetchNetwork(ctx context.Context, req *Request) (*Response, error) {
	if w.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.FetchTimeout)
		defer cancel()
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrNetwork) {
			err = fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return nil, err
	}
	return resp, nil
}
