package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/config"
	"github.com/0xmhha/calmspace/pkg/display"
	"github.com/0xmhha/calmspace/pkg/kvstore"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/0xmhha/calmspace/pkg/offline"
	"github.com/0xmhha/calmspace/pkg/progress"
	"golang.org/x/term"
)

// app holds the components shared by state commands.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    kvstore.Store
	acc      *collection.Accessors
	recorder *progress.Recorder
}

// loadConfig loads configuration and creates the logger.
func loadConfig(configPath string) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, log, nil
}

// openApp loads configuration and opens the state store.
func openApp(configPath string) (*app, error) {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := kvstore.Open(kvstore.Config{
		Backend: cfg.Storage.Backend,
		DBPath:  cfg.Storage.DBPath,
		Timeout: cfg.Storage.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	acc := collection.New(store,
		collection.WithLocation(loc),
		collection.WithLogger(log),
	)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		acc:      acc,
		recorder: progress.NewRecorder(acc, progress.NewMilestones(cfg.Session.Milestones...), log),
	}, nil
}

// close releases the store.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close store", "error", err)
	}
}

// formatter creates a display formatter for the named format.
func formatter(format string, compact bool) (display.Formatter, error) {
	f, err := display.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return display.New(display.Config{Format: f, Compact: compact}), nil
}

// cacheParts holds the offline cache components built from config.
type cacheParts struct {
	storage      offline.CacheStorage
	worker       *offline.Worker
	registration *offline.Registration
}

// openCache opens cache storage and builds a worker for the configured
// manifest. The registration starts empty.
func openCache(cfg *config.Config, log logger.Logger) (*cacheParts, error) {
	storage, err := offline.NewBoltStorage(offline.StorageConfig{
		DBPath:  cfg.Cache.DBPath,
		Timeout: cfg.Storage.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}

	w, err := newWorker(cfg, storage, log)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	return &cacheParts{
		storage:      storage,
		worker:       w,
		registration: offline.NewRegistration(log),
	}, nil
}

// newWorker loads the manifest and creates its worker.
func newWorker(cfg *config.Config, storage offline.CacheStorage, log logger.Logger) (*offline.Worker, error) {
	manifest, err := offline.LoadManifest(kvstore.ExpandHome(cfg.Cache.Manifest))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	network, err := offline.NewFetcher(cfg.Cache.Origin)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	return offline.NewWorker(manifest, storage, network, offline.Config{
		Scope:              cfg.Cache.Scope,
		Bypass:             cfg.Cache.Bypass,
		FetchTimeout:       cfg.Cache.FetchTimeout,
		InstallConcurrency: cfg.Cache.InstallConcurrency,
	}, log.With("cache", manifest.Version))
}

// close releases cache storage.
func (c *cacheParts) close(log logger.Logger) {
	if err := c.storage.Close(); err != nil {
		log.Error("failed to close cache storage", "error", err)
	}
}

// confirm asks a yes/no question on an interactive terminal. Without a
// terminal it answers no, so scripts must pass -force.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(stdout, "%s: not a terminal, pass -force to confirm\n", prompt)
		return false
	}

	fmt.Fprintf(stdout, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}
