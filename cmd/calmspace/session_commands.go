package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/config"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/0xmhha/calmspace/pkg/session"
	"golang.org/x/term"
)

// sessionCommand logs, lists and runs guided sessions.
type sessionCommand struct {
	configPath string
}

// Execute runs the session command with given arguments.
func (c *sessionCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "log":
		return c.runLog(subargs)
	case "list":
		return c.runList(subargs)
	case "run":
		return c.runRun(subargs)
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown session subcommand: %s", subcommand)
	}
}

// parseType reads the session type from the first positional argument.
func parseType(fs *flag.FlagSet) (collection.SessionType, error) {
	if fs.NArg() < 1 {
		return "", fmt.Errorf("session type required (breathing, meditation, focus, sleep)")
	}
	return collection.ParseSessionType(fs.Arg(0))
}

// runLog appends a session entry without running a timer.
func (c *sessionCommand) runLog(args []string) error {
	fs := flag.NewFlagSet("session log", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseType(fs)
	if err != nil {
		return err
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	reached, err := a.recorder.RecordUsage()
	if err != nil {
		return err
	}
	entry, err := a.recorder.LogSession(t)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Logged %s session on %s\n", t, entry.Date)
	printMilestones(reached)
	return nil
}

func (c *sessionCommand) runList(args []string) error {
	fs := flag.NewFlagSet("session list", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseType(fs)
	if err != nil {
		return err
	}

	f, err := formatter(*format, false)
	if err != nil {
		return err
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.acc.SessionLog(t)
	if err != nil {
		return err
	}
	return f.FormatSessions(stdout, t, entries)
}

// runRun starts a timed session and renders it until it completes or
// the user interrupts it.
func (c *sessionCommand) runRun(args []string) error {
	fs := flag.NewFlagSet("session run", flag.ContinueOnError)
	duration := fs.Duration("duration", 0, "session length (default: per type)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseType(fs)
	if err != nil {
		return err
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	done := make(chan struct{})
	render := newTickPrinter(term.IsTerminal(int(os.Stdout.Fd())), done)

	ctrl := session.New(sessionConfig(a.cfg), a.recorder, render, a.log)
	ctrl.Attach(t, &levelChannel{log: a.log.With("channel", string(t))})
	defer func() {
		if err := ctrl.Close(); err != nil {
			a.log.Error("failed to close session controller", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	started, err := ctrl.Start(ctx, t, *duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s session, %s\n", capitalize(string(t)), started.Duration.Round(time.Second))
	printMilestones(started.Milestones)

	select {
	case <-done:
	case <-ctx.Done():
		ctrl.Stop(t)
		fmt.Fprintln(stdout, "\nSession stopped")
	}
	return nil
}

// sessionConfig maps config to controller settings.
func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		PhaseInterval:     cfg.Session.PhaseInterval,
		BreathingDuration: cfg.Session.BreathingDuration,
		DefaultDuration:   cfg.Session.DefaultDuration,
		FadeInterval:      cfg.Session.FadeInterval,
		FadeStep:          cfg.Session.FadeStep,
		MaxVolume:         cfg.Session.MaxVolume,
	}
}

// tickPrinter renders ticks on one line of a terminal, or one line per
// tick otherwise.
type tickPrinter struct {
	inPlace bool
	done    chan struct{}
	once    sync.Once
}

func newTickPrinter(inPlace bool, done chan struct{}) *tickPrinter {
	return &tickPrinter{inPlace: inPlace, done: done}
}

// Render implements session.Renderer.
func (p *tickPrinter) Render(tick session.Tick) {
	if tick.Prompt != "" {
		fmt.Fprintln(stdout, tick.Prompt)
	}

	line := tick.Phase
	if tick.Type != collection.SessionBreathing {
		line = formatCountdown(tick.Remaining)
	}
	if tick.Done {
		line = "Session complete"
	}

	if p.inPlace {
		fmt.Fprintf(stdout, "\r\033[K%s", line)
		if tick.Done {
			fmt.Fprintln(stdout)
		}
	} else {
		fmt.Fprintln(stdout, line)
	}

	if tick.Done {
		p.once.Do(func() { close(p.done) })
	}
}

// levelChannel is a silent audio channel: the terminal plays no sound,
// but the fade levels are tracked and logged.
type levelChannel struct {
	log logger.Logger

	mu      sync.Mutex
	volume  float64
	playing bool
}

// Play implements session.Channel.
func (c *levelChannel) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = true
	c.log.Debug("audio playing", "volume", c.volume)
}

// Pause implements session.Channel.
func (c *levelChannel) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.log.Debug("audio paused")
}

// Volume implements session.Channel.
func (c *levelChannel) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetVolume implements session.Channel.
func (c *levelChannel) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
}

// formatCountdown renders d as MM:SS.
func formatCountdown(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// showHelp displays help for session command.
func (c *sessionCommand) showHelp() error {
	help := `Session - Guided sessions

Usage:
  calmspace session <subcommand> [flags] <type>

Types:
  breathing, meditation, focus, sleep

Subcommands:
  log       Record a session (and today's practice) without a timer
  list      Show the session log of one type
  run       Run a timed session in the terminal

List Flags:
  -format     Output format (table, json, simple)

Run Flags:
  -duration   Session length (default: 2m breathing, 5m others)

Examples:
  calmspace session run breathing
  calmspace session run -duration 10m meditation
  calmspace session list -format json focus
`
	fmt.Fprint(stdout, help)
	return nil
}
