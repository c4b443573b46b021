// Package session runs guided session timers.
//
// A Controller owns one timer per session type. Starting a type cancels
// its running timer first, records usage and logs the session, fades the
// type's audio channel in and starts ticking: a countdown every second for
// meditation, focus and sleep, the Inhale/Hold/Exhale/Hold cycle for
// breathing. Stopping cancels the timer before returning and leaves the
// fade-out running in the background.
//
// Example usage:
//
//	ctrl := session.New(session.Config{}, recorder, renderer, logger.Default())
//	defer ctrl.Close()
//
//	ctrl.Attach(collection.SessionMeditation, zenAudio)
//
//	if _, err := ctrl.Start(ctx, collection.SessionMeditation, 10*time.Minute); err != nil {
//	    log.Fatal(err)
//	}
//	...
//	ctrl.Stop(collection.SessionMeditation)
package session

import (
	"context"
	"time"

	"github.com/0xmhha/calmspace/pkg/collection"
)

// Breathing phases, in cycle order.
var BreathingPhases = []string{"Inhale", "Hold", "Exhale", "Hold"}

// PhaseComplete is shown once a session ends.
const PhaseComplete = "Complete"

// Channel is an audio channel whose volume the controller ramps.
// Implementations must be comparable (typically a pointer).
type Channel interface {
	Play()
	Pause()
	Volume() float64
	SetVolume(v float64)
}

// Renderer receives the ticks of running sessions. Calls for one session
// type never overlap.
type Renderer interface {
	Render(t Tick)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(t Tick)

// Render implements Renderer.
func (f RendererFunc) Render(t Tick) { f(t) }

// Tick is one timer update.
type Tick struct {
	Type collection.SessionType

	// Phase is the breathing phase, or PhaseComplete on the final tick.
	Phase string

	// Remaining is the countdown value. Zero for breathing.
	Remaining time.Duration

	// Prompt is the guidance text, set on the first tick.
	Prompt string

	// Done marks the final tick of a session.
	Done bool
}

// Recorder persists session starts. *progress.Recorder implements it.
type Recorder interface {
	RecordUsage() ([]int, error)
	LogSession(t collection.SessionType) (collection.SessionEntry, error)
}

// Started describes a session that just started.
type Started struct {
	Entry    collection.SessionEntry
	Duration time.Duration

	// Milestones lists streak thresholds reached by this start.
	Milestones []int
}

// Controller runs at most one timer per session type.
type Controller interface {
	// Start cancels any running timer of type t, records the session and
	// starts a new timer. A non-positive duration selects the default
	// for t.
	//
	// Returns error if:
	//   - t is not a known session type
	//   - the session cannot be recorded
	//   - the controller is closed
	Start(ctx context.Context, t collection.SessionType, duration time.Duration) (Started, error)

	// Stop cancels the timer of type t and starts fading its channel out.
	// No tick for t is rendered after Stop returns. It reports whether a
	// timer was running.
	Stop(t collection.SessionType) bool

	// Attach sets the audio channel of type t.
	Attach(t collection.SessionType, ch Channel)

	// Running returns the types with a running timer, in SessionTypes order.
	Running() []collection.SessionType

	// Close stops every timer and waits for every fade to finish.
	Close() error
}

// Config contains controller configuration.
type Config struct {
	// TickInterval is the countdown resolution (default: 1 second).
	TickInterval time.Duration

	// PhaseInterval is the length of one breathing phase (default: 4 seconds).
	PhaseInterval time.Duration

	// BreathingDuration is the breathing session length (default: 2 minutes).
	BreathingDuration time.Duration

	// DefaultDuration is the countdown length when Start gets none
	// (default: 5 minutes).
	DefaultDuration time.Duration

	// FadeInterval is the volume ramp resolution (default: 50ms).
	FadeInterval time.Duration

	// FadeStep is the volume change per ramp step (default: 0.02).
	FadeStep float64

	// MaxVolume is the fade-in target (default: 0.5).
	MaxVolume float64
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PhaseInterval <= 0 {
		c.PhaseInterval = 4 * time.Second
	}
	if c.BreathingDuration <= 0 {
		c.BreathingDuration = 2 * time.Minute
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 5 * time.Minute
	}
	if c.FadeInterval <= 0 {
		c.FadeInterval = 50 * time.Millisecond
	}
	if c.FadeStep <= 0 {
		c.FadeStep = 0.02
	}
	if c.MaxVolume <= 0 || c.MaxVolume > 1 {
		c.MaxVolume = 0.5
	}
}

// Prompt returns the guidance text shown when a session of type t starts.
func Prompt(t collection.SessionType) string {
	switch t {
	case collection.SessionSleep:
		return "Let go and rest."
	case collection.SessionFocus:
		return "Stay gently focused."
	default:
		return "Notice your breath."
	}
}
