// Package offline implements the versioned offline asset cache.
//
// A Worker owns one cache generation, named by its manifest's version tag.
// A Registration drives workers through the lifecycle
//
//	Uninstalled -> Installing -> Installed -> Activating -> Active
//
// and routes requests to the active worker. Lifecycle handlers receive
// events whose deferred work (WaitUntil, RespondWith) the Registration
// waits for before moving on.
//
//   - install fetches every manifest asset and stores them all in one
//     transaction, or stores nothing.
//   - activate deletes every cache not named by the worker's version and
//     claims the connected clients.
//   - fetch serves the cached response when there is one, without
//     revalidation, and otherwise goes to the network. A failed
//     navigation falls back to the cached root document.
//
// Example usage:
//
//	storage, err := offline.NewBoltStorage(offline.StorageConfig{
//	    DBPath: "~/.config/calmspace/cache.db",
//	}, log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manifest, err := offline.LoadManifest("manifest.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w, err := offline.NewWorker(manifest, storage, offline.NewDirFetcher("./web"), offline.Config{}, log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg := offline.NewRegistration(log)
//	if err := reg.Register(ctx, w); err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := reg.Fetch(ctx, &offline.Request{Method: "GET", URL: "/index.html"})
package offline

import (
	"context"
	"net/http"
	"time"
)

// State is a registration lifecycle state.
type State int

// Lifecycle states.
const (
	StateUninstalled State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Mode is the request mode.
type Mode int

// Request modes.
const (
	// ModeSubresource is any request that is not a top-level page load.
	ModeSubresource Mode = iota

	// ModeNavigate is a top-level page load.
	ModeNavigate
)

// Request is an intercepted outgoing request.
type Request struct {
	Method string

	// URL is a path (with optional query) relative to the origin, or an
	// absolute URL.
	URL string

	Mode   Mode
	Header http.Header

	// ClientID identifies the page issuing the request, if known.
	ClientID string
}

// Response is a fetched or cached response.
type Response struct {
	URL    string      `json:"url"`
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`

	// FromCache is set when the response was served from a cache.
	FromCache bool `json:"-"`
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Fetcher performs network requests.
type Fetcher interface {
	// Fetch performs req. HTTP error statuses are returned as responses;
	// only transport failures are errors (wrapping ErrNetwork).
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Config contains worker configuration.
type Config struct {
	// Scope is the URL path the worker controls. Relative manifest entries
	// resolve against it. Default: "/".
	Scope string

	// Bypass lists glob patterns ('/'-separated, ** allowed) of request
	// paths that are never served from the cache.
	Bypass []string

	// InstallConcurrency bounds parallel asset fetches during install.
	// Default: 4.
	InstallConcurrency int

	// FetchTimeout bounds each network fetch. Zero means no timeout.
	FetchTimeout time.Duration
}
