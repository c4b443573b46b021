package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/0xmhha/calmspace/pkg/backup"
	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/kvstore"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/0xmhha/calmspace/pkg/offline"
	"github.com/0xmhha/calmspace/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchFetcher wraps a directory fetcher that can be taken offline.
type switchFetcher struct {
	mu      sync.Mutex
	inner   offline.Fetcher
	offline bool
}

func (f *switchFetcher) Fetch(ctx context.Context, req *offline.Request) (*offline.Response, error) {
	f.mu.Lock()
	down := f.offline
	f.mu.Unlock()
	if down {
		return nil, fmt.Errorf("%w: offline", offline.ErrNetwork)
	}
	return f.inner.Fetch(ctx, req)
}

func (f *switchFetcher) setOffline(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = down
}

type fixture struct {
	server  *Server
	acc     *collection.Accessors
	store   kvstore.Store
	reg     *offline.Registration
	network *switchFetcher
}

func newFixture(t *testing.T, activate bool) *fixture {
	t.Helper()

	web := t.TempDir()
	for name, body := range map[string]string{
		"index.html": "<html>calm</html>",
		"app.js":     "console.log('calm')",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(web, name), []byte(body), 0o600))
	}

	store := kvstore.NewMemory()
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	acc := collection.New(store, collection.WithClock(func() time.Time { return now }))
	rec := progress.NewRecorder(acc, progress.NewMilestones(1, 7), logger.Noop())

	network := &switchFetcher{inner: offline.NewDirFetcher(web)}
	reg := offline.NewRegistration(logger.Noop())

	if activate {
		w, err := offline.NewWorker(
			offline.Manifest{Version: "v1", Assets: []string{"./", "index.html", "app.js"}},
			offline.NewMemoryStorage(),
			network,
			offline.Config{Bypass: []string{"/api/**"}},
			logger.Noop(),
		)
		require.NoError(t, err)
		require.NoError(t, reg.Register(context.Background(), w))
	}

	srv, err := New(Config{}, acc, rec, reg, logger.Noop())
	require.NoError(t, err)

	return &fixture{server: srv, acc: acc, store: store, reg: reg, network: network}
}

func (f *fixture) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "active", body["cache_state"])
	assert.Equal(t, "v1", body["active_version"])
}

func TestMoodEndpoints(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/mood", `{"score": 4}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/mood", `{"score": 9}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/mood", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/mood", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []collection.MoodEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, []collection.MoodEntry{{Day: "2026-10-17", Score: 4}}, entries)
}

func TestJournalRoundTrip(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPut, "/api/journal", "slept well\nfelt calm", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/journal", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "slept well\nfelt calm", rec.Body.String())
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/profile", `{"email":"a@b.c","name":"Ana","dob":"1990-01-01"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/profile", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p collection.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Ana", p.Name)
	assert.Empty(t, p.Avatar)
}

func TestThemeEndpoints(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/theme", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"theme":"light"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/theme/toggle", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"theme":"dark"}`, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/api/theme", `{"theme":"sepia"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/theme", `{"theme":"light"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	theme, err := f.acc.Theme()
	require.NoError(t, err)
	assert.Equal(t, collection.ThemeLight, theme)
}

func TestSessionAndUsageEndpoints(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/sessions/focus", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var started sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "2026-10-17", started.Entry.Date)
	assert.Equal(t, []int{1}, started.Milestones)

	rec = f.do(t, http.MethodPost, "/api/sessions/yoga", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions/focus", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []collection.SessionEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	// Same day again: usage log stays at one day.
	rec = f.do(t, http.MethodPost, "/api/usage", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"streak":1,"milestones":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/usage", "", nil)
	assert.JSONEq(t, `["2026-10-17"]`, rec.Body.String())
}

func TestProgressReport(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodPost, "/api/sessions/sleep", "", nil)
	f.do(t, http.MethodPost, "/api/mood", `{"score": 2}`, nil)

	rec := f.do(t, http.MethodGet, "/api/progress", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report progress.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.DaysPracticed)
	assert.Equal(t, 1, report.TotalSessions())
}

func TestBackupExportImport(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.acc.SaveJournal("before"))

	rec := f.do(t, http.MethodGet, "/api/backup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), BackupFilename)

	doc, err := backup.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "before", doc[collection.KeyJournal])

	rec = f.do(t, http.MethodPost, "/api/backup", `{"journal":"after","theme":"dark"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"imported":2}`, rec.Body.String())

	text, err := f.acc.Journal()
	require.NoError(t, err)
	assert.Equal(t, "after", text)

	rec = f.do(t, http.MethodPost, "/api/backup", `["not", "an", "object"]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	text, err = f.acc.Journal()
	require.NoError(t, err)
	assert.Equal(t, "after", text, "rejected import must not touch the store")
}

func TestLogoutClearsStore(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.acc.SaveJournal("private"))

	rec := f.do(t, http.MethodPost, "/api/logout", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	keys, err := f.store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUnknownAPIRoute(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShellServedFromCache(t *testing.T) {
	f := newFixture(t, true)
	nav := http.Header{"Sec-Fetch-Mode": {"navigate"}}

	rec := f.do(t, http.MethodGet, "/", "", nav)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>calm</html>", rec.Body.String())
	assert.Equal(t, "hit", rec.Header().Get(CacheHeader))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ClientCookie, cookies[0].Name)

	client, ok := f.reg.Clients().Get(cookies[0].Value)
	require.True(t, ok)
	assert.True(t, client.Controlled())
}

func TestShellOffline(t *testing.T) {
	f := newFixture(t, true)
	f.network.setOffline(true)

	// Uncached page load falls back to the root document.
	rec := f.do(t, http.MethodGet, "/journal", "", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>calm</html>", rec.Body.String())

	// Cached subresource still served.
	rec = f.do(t, http.MethodGet, "/app.js", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get(CacheHeader))

	// Uncached subresource has nothing to fall back to.
	rec = f.do(t, http.MethodGet, "/missing.png", "", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestShellMissGoesToNetwork(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/missing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get(CacheHeader))
}

func TestShellWithoutActiveWorker(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestMode(t *testing.T) {
	tests := []struct {
		name   string
		method string
		header http.Header
		want   offline.Mode
	}{
		{"fetch metadata navigate", http.MethodGet, http.Header{"Sec-Fetch-Mode": {"navigate"}}, offline.ModeNavigate},
		{"fetch metadata cors", http.MethodGet, http.Header{"Sec-Fetch-Mode": {"cors"}, "Accept": {"text/html"}}, offline.ModeSubresource},
		{"html accept", http.MethodGet, http.Header{"Accept": {"text/html,application/xhtml+xml"}}, offline.ModeNavigate},
		{"html accept on post", http.MethodPost, http.Header{"Accept": {"text/html"}}, offline.ModeSubresource},
		{"plain", http.MethodGet, nil, offline.ModeSubresource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			for k, vs := range tt.header {
				req.Header[k] = vs
			}
			assert.Equal(t, tt.want, requestMode(req))
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
