package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetwork serves fixed pages and can be switched offline.
type fakeNetwork struct {
	mu      sync.Mutex
	pages   map[string]string
	offline bool
	calls   map[string]int
}

func newFakeNetwork(pages map[string]string) *fakeNetwork {
	return &fakeNetwork{pages: pages, calls: make(map[string]int)}
}

func (f *fakeNetwork) Fetch(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[req.URL]++
	if f.offline {
		return nil, fmt.Errorf("%w: offline", ErrNetwork)
	}

	body, ok := f.pages[req.URL]
	if !ok {
		return &Response{URL: req.URL, Status: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	return &Response{URL: req.URL, Status: http.StatusOK, Body: []byte(body)}, nil
}

func (f *fakeNetwork) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeNetwork) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
}

func (f *fakeNetwork) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func sitePages(version string) map[string]string {
	return map[string]string{
		"/":           "<html>root " + version + "</html>",
		"/index.html": "<html>index " + version + "</html>",
		"/app.js":     "console.log('" + version + "')",
		"/style.css":  "body{}",
	}
}

func siteManifest(version string) Manifest {
	return Manifest{
		Version: version,
		Assets:  []string{"./", "index.html", "app.js", "style.css"},
	}
}

func newTestWorker(t *testing.T, version string, storage CacheStorage, network Fetcher, cfg Config) *Worker {
	t.Helper()
	w, err := NewWorker(siteManifest(version), storage, network, cfg, logger.Noop())
	require.NoError(t, err)
	return w
}

func get(url string) *Request {
	return &Request{Method: http.MethodGet, URL: url}
}

func TestRegister_InstallsAndActivates(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	net := newFakeNetwork(sitePages("v1"))
	reg := NewRegistration(logger.Noop())

	assert.Equal(t, StateUninstalled, reg.State())

	_, err := reg.Fetch(ctx, get("/app.js"))
	assert.ErrorIs(t, err, ErrNoActiveWorker)

	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", storage, net, Config{})))

	assert.Equal(t, StateActive, reg.State())
	assert.Equal(t, "v1", reg.ActiveVersion())

	entries, err := storage.Entries("v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/app.js", "/index.html", "/style.css"}, entries)
}

func TestFetch_CacheFirstWithoutRevalidation(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(sitePages("v1"))
	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", NewMemoryStorage(), net, Config{})))

	net.set("/app.js", "changed on the server")

	resp, err := reg.Fetch(ctx, get("/app.js"))
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "console.log('v1')", string(resp.Body))
	assert.Equal(t, 1, net.callCount("/app.js"), "cached asset must not hit the network again")
}

func TestFetch_MissGoesToNetwork(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(sitePages("v1"))
	net.set("/api/extra.json", `{"ok":true}`)

	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", NewMemoryStorage(), net, Config{})))

	resp, err := reg.Fetch(ctx, get("/api/extra.json"))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
}

func TestFetch_OfflineFallbacks(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(sitePages("v1"))
	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", NewMemoryStorage(), net, Config{})))

	net.setOffline(true)

	t.Run("cached asset still served", func(t *testing.T) {
		resp, err := reg.Fetch(ctx, get("/style.css"))
		require.NoError(t, err)
		assert.Equal(t, "body{}", string(resp.Body))
	})

	t.Run("navigation falls back to root document", func(t *testing.T) {
		req := get("/journal")
		req.Mode = ModeNavigate

		resp, err := reg.Fetch(ctx, req)
		require.NoError(t, err)
		assert.True(t, resp.FromCache)
		assert.Equal(t, "<html>root v1</html>", string(resp.Body))
	})

	t.Run("subresource failure propagates", func(t *testing.T) {
		_, err := reg.Fetch(ctx, get("/images/missing.png"))
		assert.ErrorIs(t, err, ErrNetwork)
	})
}

func TestFetch_NonGetAndBypassSkipCache(t *testing.T) {
	ctx := context.Background()
	pages := sitePages("v1")
	pages["/api/state"] = "fresh"
	net := newFakeNetwork(pages)

	reg := NewRegistration(logger.Noop())
	w := newTestWorker(t, "v1", NewMemoryStorage(), net, Config{Bypass: []string{"/api/**"}})
	require.NoError(t, reg.Register(ctx, w))

	t.Run("non-GET", func(t *testing.T) {
		before := net.callCount("/app.js")
		resp, err := reg.Fetch(ctx, &Request{Method: http.MethodPost, URL: "/app.js"})
		require.NoError(t, err)
		assert.False(t, resp.FromCache)
		assert.Equal(t, before+1, net.callCount("/app.js"))
	})

	t.Run("bypass pattern", func(t *testing.T) {
		resp, err := reg.Fetch(ctx, get("/api/state"))
		require.NoError(t, err)
		assert.False(t, resp.FromCache)
		assert.Equal(t, "fresh", string(resp.Body))
	})
}

func TestInstall_AllOrNothing(t *testing.T) {
	tests := []struct {
		name     string
		breakNet func(n *fakeNetwork)
		status   int
	}{
		{
			name:     "missing asset",
			breakNet: func(n *fakeNetwork) { delete(n.pages, "/style.css") },
			status:   http.StatusNotFound,
		},
		{
			name:     "network down",
			breakNet: func(n *fakeNetwork) { n.offline = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := NewMemoryStorage()
			net := newFakeNetwork(sitePages("v1"))
			tt.breakNet(net)

			reg := NewRegistration(logger.Noop())
			err := reg.Register(ctx, newTestWorker(t, "v1", storage, net, Config{InstallConcurrency: 2}))

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInstallFailed)

			var installErr *InstallError
			require.True(t, errors.As(err, &installErr))
			assert.Equal(t, "v1", installErr.Version)
			assert.Equal(t, tt.status, installErr.Status)

			has, err := storage.Has("v1")
			require.NoError(t, err)
			assert.False(t, has, "failed install must not leave a cache")

			assert.Equal(t, StateUninstalled, reg.State())
			assert.Empty(t, reg.ActiveVersion())
		})
	}
}

func TestRegister_NewVersionEvictsOld(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	reg := NewRegistration(logger.Noop())

	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", storage, newFakeNetwork(sitePages("v1")), Config{})))
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v2", storage, newFakeNetwork(sitePages("v2")), Config{})))

	names, err := storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
	assert.Equal(t, "v2", reg.ActiveVersion())

	resp, err := reg.Fetch(ctx, get("/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log('v2')", string(resp.Body))
}

func TestRegister_FailedUpgradeKeepsActive(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", storage, newFakeNetwork(sitePages("v1")), Config{})))

	broken := newFakeNetwork(sitePages("v2"))
	broken.setOffline(true)
	err := reg.Register(ctx, newTestWorker(t, "v2", storage, broken, Config{}))
	assert.ErrorIs(t, err, ErrInstallFailed)

	assert.Equal(t, StateActive, reg.State())
	assert.Equal(t, "v1", reg.ActiveVersion())

	names, err := storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)

	resp, err := reg.Fetch(ctx, get("/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log('v1')", string(resp.Body))
}

func TestInstall_WaitsUntilActivated(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", storage, newFakeNetwork(sitePages("v1")), Config{})))

	skip, err := reg.Install(ctx, newTestWorker(t, "v2", storage, newFakeNetwork(sitePages("v2")), Config{}))
	require.NoError(t, err)
	assert.True(t, skip)

	assert.Equal(t, StateInstalled, reg.State())
	assert.Equal(t, "v2", reg.WaitingVersion())

	resp, err := reg.Fetch(ctx, get("/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log('v1')", string(resp.Body), "old version serves until activation")

	require.NoError(t, reg.Activate(ctx))
	assert.Equal(t, StateActive, reg.State())
	assert.Equal(t, "v2", reg.ActiveVersion())
	assert.Empty(t, reg.WaitingVersion())

	assert.ErrorIs(t, reg.Activate(ctx), ErrNothingWaiting)
}

func TestClients_ControlAndClaim(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(sitePages("v1"))
	reg := NewRegistration(logger.Noop())

	early := reg.Clients().Connect()
	assert.False(t, early.Controlled())

	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", NewMemoryStorage(), net, Config{})))

	claimed, ok := reg.Clients().Get(early.ID)
	require.True(t, ok)
	assert.Equal(t, "v1", claimed.Controller, "activation claims open clients")

	late := reg.Clients().Connect()
	assert.Equal(t, "v1", late.Controller)
	assert.Equal(t, 2, reg.Clients().Controlled())

	assert.Len(t, reg.Clients().List(), 2)
	assert.True(t, reg.Clients().Disconnect(late.ID))
	assert.False(t, reg.Clients().Disconnect(late.ID))
}

func TestClients_UncontrolledBypassesCache(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(sitePages("v1"))
	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", NewMemoryStorage(), net, Config{})))

	// A client that never got claimed, e.g. after a registry reset.
	reg.Clients().mu.Lock()
	reg.Clients().clients["stray"] = &Client{ID: "stray"}
	reg.Clients().mu.Unlock()

	net.set("/app.js", "network copy")

	req := get("/app.js")
	req.ClientID = "stray"
	resp, err := reg.Fetch(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, "network copy", string(resp.Body))
}

// gatedNetwork blocks fetches of one URL until released.
type gatedNetwork struct {
	*fakeNetwork
	url     string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req.URL == g.url {
		close(g.entered)
		<-g.release
	}
	return g.fakeNetwork.Fetch(ctx, req)
}

func TestFetch_InFlightKeepsStartingVersion(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	v1Pages := sitePages("v1")
	v1Pages["/live"] = "served by v1 network"
	v1Net := &gatedNetwork{
		fakeNetwork: newFakeNetwork(v1Pages),
		url:         "/live",
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}

	reg := NewRegistration(logger.Noop())
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v1", storage, v1Net, Config{})))

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := reg.Fetch(ctx, get("/live"))
		done <- result{resp, err}
	}()

	<-v1Net.entered
	require.NoError(t, reg.Register(ctx, newTestWorker(t, "v2", storage, newFakeNetwork(sitePages("v2")), Config{})))
	assert.Equal(t, "v2", reg.ActiveVersion())
	close(v1Net.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "served by v1 network", string(res.resp.Body))
}

func TestAdopt(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	net := newFakeNetwork(sitePages("v1"))

	first := NewRegistration(logger.Noop())
	require.NoError(t, first.Register(ctx, newTestWorker(t, "v1", storage, net, Config{})))

	net.setOffline(true)

	second := NewRegistration(logger.Noop())
	ok, err := second.Adopt(ctx, newTestWorker(t, "v1", storage, net, Config{}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateActive, second.State())

	resp, err := second.Fetch(ctx, get("/index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>index v1</html>", string(resp.Body))

	ok, err = NewRegistration(logger.Noop()).Adopt(ctx, newTestWorker(t, "v9", storage, net, Config{}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdoptEvictsOtherVersions(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	first := NewRegistration(logger.Noop())
	require.NoError(t, first.Register(ctx, newTestWorker(t, "v1", storage, newFakeNetwork(sitePages("v1")), Config{})))

	// v2 installed without activation, then picked up by a new process.
	net := newFakeNetwork(sitePages("v2"))
	_, err := NewRegistration(logger.Noop()).Install(ctx, newTestWorker(t, "v2", storage, net, Config{}))
	require.NoError(t, err)

	reg := NewRegistration(logger.Noop())
	client := reg.Clients().Connect()
	assert.False(t, client.Controlled())

	ok, err := reg.Adopt(ctx, newTestWorker(t, "v2", storage, net, Config{}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", reg.ActiveVersion())

	names, err := storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	claimed, ok := reg.Clients().Get(client.ID)
	require.True(t, ok)
	assert.True(t, claimed.Controlled())
}

func TestResumeThenActivate(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	net := newFakeNetwork(sitePages("v1"))

	first := NewRegistration(logger.Noop())
	require.NoError(t, first.Register(ctx, newTestWorker(t, "v1", storage, net, Config{})))

	// v2 installed by another process but never activated.
	net = newFakeNetwork(sitePages("v2"))
	_, err := NewRegistration(logger.Noop()).Install(ctx, newTestWorker(t, "v2", storage, net, Config{}))
	require.NoError(t, err)

	net.setOffline(true)

	reg := NewRegistration(logger.Noop())
	ok, err := reg.Resume(newTestWorker(t, "v2", storage, net, Config{}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateInstalled, reg.State())
	assert.Equal(t, "v2", reg.WaitingVersion())

	require.NoError(t, reg.Activate(ctx))
	assert.Equal(t, "v2", reg.ActiveVersion())

	names, err := storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	ok, err = NewRegistration(logger.Noop()).Resume(newTestWorker(t, "v9", storage, net, Config{}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewWorker_InvalidInput(t *testing.T) {
	_, err := NewWorker(Manifest{Version: "v1"}, NewMemoryStorage(), newFakeNetwork(nil), Config{}, logger.Noop())
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = NewWorker(siteManifest("v1"), NewMemoryStorage(), newFakeNetwork(nil), Config{Bypass: []string{"[unclosed"}}, logger.Noop())
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	t.Run("wait returns first error", func(t *testing.T) {
		ev := newExtendableEvent(context.Background())
		boom := errors.New("boom")

		require.NoError(t, ev.WaitUntil(func(context.Context) error { return nil }))
		require.NoError(t, ev.WaitUntil(func(context.Context) error { return boom }))

		assert.ErrorIs(t, ev.wait(), boom)
	})

	t.Run("no extension after wait", func(t *testing.T) {
		ev := newExtendableEvent(context.Background())
		require.NoError(t, ev.wait())

		err := ev.WaitUntil(func(context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrEventFinished)
	})

	t.Run("respond once", func(t *testing.T) {
		ev := &FetchEvent{ExtendableEvent: newExtendableEvent(context.Background()), Request: get("/")}
		assert.Nil(t, ev.responder())

		fn := func(context.Context) (*Response, error) { return &Response{Status: http.StatusOK}, nil }
		require.NoError(t, ev.RespondWith(fn))
		assert.ErrorIs(t, ev.RespondWith(fn), ErrAlreadyResponded)
		assert.NotNil(t, ev.responder())
	})

	t.Run("skip waiting", func(t *testing.T) {
		ev := &InstallEvent{ExtendableEvent: newExtendableEvent(context.Background())}
		assert.False(t, ev.skipsWaiting())
		ev.SkipWaiting()
		assert.True(t, ev.skipsWaiting())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninstalled", StateUninstalled.String())
	assert.Equal(t, "installing", StateInstalling.String())
	assert.Equal(t, "installed", StateInstalled.String())
	assert.Equal(t, "activating", StateActivating.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "unknown", State(42).String())
}
