package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// HTTPFetcher fetches from an origin server.
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPFetcher creates a fetcher resolving relative request URLs against
// origin. A nil client means http.DefaultClient.
func NewHTTPFetcher(origin string, client *http.Client) (*HTTPFetcher, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("invalid origin %q: must be an absolute URL", origin)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{base: base, client: client}, nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	ref, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.URL, err)
	}
	target := f.base.ResolveReference(ref)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, target, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, target, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %v", ErrNetwork, target, err)
	}

	return &Response{
		URL:    target.String(),
		Status: httpResp.StatusCode,
		Header: httpResp.Header.Clone(),
		Body:   body,
	}, nil
}

// DirFetcher serves requests from a local directory, the way a static
// file server would. Directory paths map to their index.html.
type DirFetcher struct {
	root string
}

// NewDirFetcher creates a fetcher rooted at dir.
func NewDirFetcher(dir string) *DirFetcher {
	return &DirFetcher{root: dir}
}

// Fetch implements Fetcher. Missing files produce a 404 response, not an
// error; a missing root directory fails like an unreachable server.
func (f *DirFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.URL, err)
	}
	if u.IsAbs() {
		return nil, fmt.Errorf("%w: %s: cross-origin request", ErrNetwork, req.URL)
	}

	// A missing root is an unreachable origin, not a missing file.
	if _, err := os.Stat(f.root); err != nil {
		return nil, fmt.Errorf("%w: origin %s: %v", ErrNetwork, f.root, err)
	}

	clean := path.Clean("/" + u.Path)
	if strings.HasSuffix(u.Path, "/") || clean == "/" {
		clean = path.Join(clean, "index.html")
	}

	file := filepath.Join(f.root, filepath.FromSlash(clean))
	body, err := os.ReadFile(file) // nolint:gosec // confined to root by path.Clean
	if errors.Is(err, fs.ErrNotExist) {
		return &Response{
			URL:    req.URL,
			Status: http.StatusNotFound,
			Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
			Body:   []byte("404 page not found\n"),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.URL, err)
	}

	ctype := mime.TypeByExtension(path.Ext(clean))
	if ctype == "" {
		ctype = http.DetectContentType(body)
	}

	return &Response{
		URL:    req.URL,
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":   {ctype},
			"Content-Length": {strconv.Itoa(len(body))},
		},
		Body: body,
	}, nil
}

// NewFetcher picks an HTTP fetcher for http(s) origins and a directory
// fetcher otherwise.
func NewFetcher(origin string) (Fetcher, error) {
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		return NewHTTPFetcher(origin, nil)
	}
	return NewDirFetcher(expandHome(origin)), nil
}
