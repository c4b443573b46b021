package offline

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the fixed asset list of one cache generation.
type Manifest struct {
	// Version names the cache. Change it whenever Assets change.
	Version string `yaml:"version" json:"version"`

	// Assets are relative paths (resolved against the scope) or
	// absolute URLs.
	Assets []string `yaml:"assets" json:"assets"`
}

// LoadManifest reads a YAML manifest from path and validates it.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path) // nolint:gosec // path from trusted config
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks the manifest names a version and at least one asset,
// and that no two entries resolve to the same URL.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("%w: empty version", ErrInvalidManifest)
	}
	if len(m.Assets) == 0 {
		return fmt.Errorf("%w: no assets", ErrInvalidManifest)
	}

	_, err := m.Resolve("/")
	return err
}

// Resolve returns the cache key of every asset, in manifest order.
func (m Manifest) Resolve(scope string) ([]string, error) {
	seen := make(map[string]string, len(m.Assets))
	keys := make([]string, 0, len(m.Assets))

	for _, asset := range m.Assets {
		key, err := resolveURL(scope, asset)
		if err != nil {
			return nil, fmt.Errorf("%w: asset %q: %v", ErrInvalidManifest, asset, err)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q and %q both resolve to %s",
				ErrInvalidManifest, prev, asset, key)
		}
		seen[key] = asset
		keys = append(keys, key)
	}
	return keys, nil
}

// resolveURL turns a manifest entry or request URL into a cache key:
// absolute URLs are kept, everything else becomes an absolute path under
// scope, with the query preserved and the fragment dropped.
func resolveURL(scope, raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Fragment = ""

	if u.IsAbs() {
		return u.String(), nil
	}

	base := &url.URL{Path: normalizeScope(scope)}
	resolved := base.ResolveReference(u)
	return resolved.RequestURI(), nil
}

// normalizeScope makes scope an absolute path ending in '/'.
func normalizeScope(scope string) string {
	if scope == "" {
		return "/"
	}
	if !strings.HasPrefix(scope, "/") {
		scope = "/" + scope
	}
	if !strings.HasSuffix(scope, "/") {
		scope += "/"
	}
	return scope
}
