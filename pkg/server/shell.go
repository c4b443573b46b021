package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/0xmhha/calmspace/pkg/offline"
)

// CacheHeader reports whether a shell response came from the cache.
const CacheHeader = "X-Calmspace-Cache"

// forwardedHeaders are copied from the browser request to the fetch.
var forwardedHeaders = []string{"Accept", "Accept-Language", "If-None-Match", "If-Modified-Since"}

// handleShell routes a non-API request through the offline registration.
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	client := s.client(w, r)

	req := &offline.Request{
		Method:   r.Method,
		URL:      r.URL.RequestURI(),
		Mode:     requestMode(r),
		Header:   make(http.Header),
		ClientID: client,
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := s.registration.Fetch(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, offline.ErrNoActiveWorker):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, offline.ErrNetwork):
			s.logger.Debug("shell request failed offline", "url", req.URL, "error", err)
			writeError(w, http.StatusGatewayTimeout, err)
		default:
			s.internalError(w, r, err)
		}
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if resp.FromCache {
		w.Header().Set(CacheHeader, "hit")
	} else {
		w.Header().Set(CacheHeader, "miss")
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// client returns the offline client id for the request, connecting a
// new client and setting its cookie when the browser has none or an
// unknown one.
func (s *Server) client(w http.ResponseWriter, r *http.Request) string {
	clients := s.registration.Clients()
	if c, err := r.Cookie(ClientCookie); err == nil {
		if _, ok := clients.Get(c.Value); ok {
			return c.Value
		}
	}

	// Only page loads open a new client.
	if requestMode(r) != offline.ModeNavigate {
		return ""
	}

	c := clients.Connect()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    c.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	s.logger.Debug("client connected", "id", c.ID, "controlled", c.Controlled())
	return c.ID
}

// requestMode detects top-level page loads.
func requestMode(r *http.Request) offline.Mode {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		if mode == "navigate" {
			return offline.ModeNavigate
		}
		return offline.ModeSubresource
	}
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return offline.ModeNavigate
	}
	return offline.ModeSubresource
}
