package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/0xmhha/calmspace/pkg/config"
	"github.com/0xmhha/calmspace/pkg/kvstore"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/0xmhha/calmspace/pkg/offline"
	"github.com/0xmhha/calmspace/pkg/server"
	"github.com/0xmhha/calmspace/pkg/watcher"
)

// cacheCommand manages the offline cache.
type cacheCommand struct {
	configPath string
}

// Execute runs the cache command with given arguments.
func (c *cacheCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "install":
		return c.runInstall(subargs)
	case "activate":
		return c.runActivate()
	case "list":
		return c.runList()
	case "fetch":
		return c.runFetch(subargs)
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown cache subcommand: %s", subcommand)
	}
}

func (c *cacheCommand) open() (*config.Config, logger.Logger, *cacheParts, error) {
	cfg, log, err := loadConfig(c.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	parts, err := openCache(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, parts, nil
}

// runInstall downloads the manifest's assets into a new cache version.
// Unless -wait is given the version is activated right away.
func (c *cacheCommand) runInstall(args []string) error {
	fs := flag.NewFlagSet("cache install", flag.ContinueOnError)
	wait := fs.Bool("wait", false, "install without activating")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, log, parts, err := c.open()
	if err != nil {
		return err
	}
	defer parts.close(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	version := parts.worker.Version()
	if *wait {
		if _, err := parts.registration.Install(ctx, parts.worker); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Installed %s (%d assets), waiting for activation\n", version, len(parts.worker.Assets()))
		return nil
	}

	if err := parts.registration.Register(ctx, parts.worker); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Installed and activated %s (%d assets)\n", version, len(parts.worker.Assets()))
	return nil
}

// runActivate promotes the installed cache of the current manifest and
// deletes every other version.
func (c *cacheCommand) runActivate() error {
	_, log, parts, err := c.open()
	if err != nil {
		return err
	}
	defer parts.close(log)

	ok, err := parts.registration.Resume(parts.worker)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not installed, run 'calmspace cache install -wait' first",
			offline.ErrNothingWaiting, parts.worker.Version())
	}

	if err := parts.registration.Activate(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Activated %s\n", parts.worker.Version())
	return nil
}

func (c *cacheCommand) runList() error {
	_, log, parts, err := c.open()
	if err != nil {
		return err
	}
	defer parts.close(log)

	names, err := parts.storage.Names()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(stdout, "No caches installed")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tENTRIES\tMANIFEST")
	for _, name := range names {
		entries, err := parts.storage.Entries(name)
		if err != nil {
			return err
		}
		current := ""
		if name == parts.worker.Version() {
			current = "current"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(entries), current)
	}
	return w.Flush()
}

// runFetch requests a URL through the cache, the way the app shell does.
func (c *cacheCommand) runFetch(args []string) error {
	fs := flag.NewFlagSet("cache fetch", flag.ContinueOnError)
	navigate := fs.Bool("navigate", false, "treat the request as a page load")
	headers := fs.Bool("i", false, "print status and headers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: calmspace cache fetch [-navigate] [-i] <path>")
	}

	_, log, parts, err := c.open()
	if err != nil {
		return err
	}
	defer parts.close(log)

	if err := activate(context.Background(), parts); err != nil {
		return err
	}

	mode := offline.ModeSubresource
	if *navigate {
		mode = offline.ModeNavigate
	}

	resp, err := parts.registration.Fetch(context.Background(), &offline.Request{
		Method: "GET",
		URL:    fs.Arg(0),
		Mode:   mode,
	})
	if err != nil {
		return err
	}

	if *headers {
		source := "network"
		if resp.FromCache {
			source = "cache"
		}
		fmt.Fprintf(stdout, "%d (%s)\n", resp.Status, source)
		for k, vs := range resp.Header {
			for _, v := range vs {
				fmt.Fprintf(stdout, "%s: %s\n", k, v)
			}
		}
		fmt.Fprintln(stdout)
	}
	_, err = stdout.Write(resp.Body)
	return err
}

// activate makes the manifest's worker active, installing it first when
// its cache is missing.
func activate(ctx context.Context, parts *cacheParts) error {
	ok, err := parts.registration.Adopt(ctx, parts.worker)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return parts.registration.Register(ctx, parts.worker)
}

// runServeCommand serves the API and the cached app shell.
func runServeCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (default: from config)")
	watch := fs.Bool("watch", false, "reinstall the cache when the manifest changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if *addr != "" {
		a.cfg.Server.Addr = *addr
	}

	parts, err := openCache(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer parts.close(a.log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A missing origin should not keep the API down.
	if err := activate(ctx, parts); err != nil {
		a.log.Warn("offline cache unavailable", "error", err)
	}

	srv, err := server.New(server.Config{
		Addr:            a.cfg.Server.Addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.acc, a.recorder, parts.registration, a.log)
	if err != nil {
		return err
	}

	if *watch || a.cfg.Server.WatchManifest {
		stop, err := watchManifest(ctx, a.cfg, parts, a.log)
		if err != nil {
			return err
		}
		defer stop()
	}

	return srv.ListenAndServe(ctx)
}

// watchManifest registers a new worker whenever the manifest file
// changes. The returned function stops watching.
func watchManifest(ctx context.Context, cfg *config.Config, parts *cacheParts, log logger.Logger) (func(), error) {
	manifestPath, err := filepath.Abs(kvstore.ExpandHome(cfg.Cache.Manifest))
	if err != nil {
		return nil, err
	}

	w, err := watcher.New(watcher.Config{DebounceInterval: cfg.Server.Debounce}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx, []string{manifestPath}); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch manifest: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				if ev.Op == watcher.OpRemove {
					continue
				}
				reloadManifest(ctx, cfg, parts, log)
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				log.Warn("manifest watcher error", "error", err)
			}
		}
	}()

	log.Info("watching manifest", "path", manifestPath)
	return func() {
		if err := w.Close(); err != nil {
			log.Error("failed to close watcher", "error", err)
		}
	}, nil
}

// reloadManifest registers the manifest's worker when its version
// differs from the active one.
func reloadManifest(ctx context.Context, cfg *config.Config, parts *cacheParts, log logger.Logger) {
	next, err := newWorker(cfg, parts.storage, log)
	if err != nil {
		log.Warn("ignoring manifest change", "error", err)
		return
	}
	if next.Version() == parts.registration.ActiveVersion() {
		log.Debug("manifest version unchanged", "version", next.Version())
		return
	}

	if err := parts.registration.Register(ctx, next); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("failed to register new cache version", "version", next.Version(), "error", err)
		return
	}
	log.Info("manifest reloaded",
		"version", next.Version(),
		"state", parts.registration.State().String(),
		"waiting", parts.registration.WaitingVersion())
}

// showHelp displays help for cache command.
func (c *cacheCommand) showHelp() error {
	help := `Cache - Offline app shell cache

Usage:
  calmspace cache <subcommand> [flags]

Subcommands:
  install   Download every manifest asset into a new cache version
  activate  Activate the installed manifest version, deleting older ones
  list      List cache versions in storage
  fetch     Request a path through the cache

Install Flags:
  -wait       Install without activating

Fetch Flags:
  -navigate   Treat the request as a page load (offline root fallback)
  -i          Print status and headers

Examples:
  calmspace cache install
  calmspace cache install -wait && calmspace cache activate
  calmspace cache fetch -i /index.html
`
	fmt.Fprint(stdout, help)
	return nil
}
