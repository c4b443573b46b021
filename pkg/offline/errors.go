package offline

import (
	"errors"
	"fmt"
)

var (
	// ErrInstallFailed is returned when a manifest asset could not be
	// cached. No cache is created for the version.
	ErrInstallFailed = errors.New("install failed")

	// ErrNetwork is returned when a request can be served neither from
	// the cache nor from the network.
	ErrNetwork = errors.New("network error")

	// ErrNotCached is returned by storage when a cache or entry is absent.
	ErrNotCached = errors.New("not cached")

	// ErrInvalidManifest is returned for a manifest without version or
	// assets, or with duplicate assets.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrNoActiveWorker is returned when fetching before any activation.
	ErrNoActiveWorker = errors.New("no active worker")

	// ErrNothingWaiting is returned by Activate with no installed worker.
	ErrNothingWaiting = errors.New("no installed worker waiting to activate")

	// ErrEventFinished is returned when extending an event whose handler
	// already returned.
	ErrEventFinished = errors.New("event already finished")

	// ErrAlreadyResponded is returned by a second RespondWith call.
	ErrAlreadyResponded = errors.New("fetch event already responded")

	// ErrStorageClosed is returned when using closed cache storage.
	ErrStorageClosed = errors.New("cache storage is closed")
)

// InstallError reports the asset that made an install fail.
type InstallError struct {
	Version string
	URL     string

	// Status is the HTTP status when the asset was fetched but not OK.
	Status int

	Err error
}

func (e *InstallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("install %s: %s: status %d", e.Version, e.URL, e.Status)
	}
	return fmt.Sprintf("install %s: %s: %v", e.Version, e.URL, e.Err)
}

// Is matches ErrInstallFailed.
func (e *InstallError) Is(target error) bool {
	return target == ErrInstallFailed
}

// Unwrap returns the underlying fetch error, if any.
func (e *InstallError) Unwrap() error {
	return e.Err
}
