package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/logger"
)

// timer is the running tick loop of one session type.
type timer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// fade is the running volume ramp of one channel.
type fade struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// controller implements the Controller interface.
type controller struct {
	config   Config
	recorder Recorder
	renderer Renderer
	logger   logger.Logger

	// typeMu serializes Start and Stop per session type, so a replaced
	// timer is always stopped before its successor is registered.
	typeMu map[collection.SessionType]*sync.Mutex

	mu       sync.Mutex
	closed   bool
	timers   map[collection.SessionType]*timer
	channels map[collection.SessionType]Channel
	fades    map[Channel]*fade

	// fadeMu serializes fade replacement so two ramps never run on the
	// same channel.
	fadeMu sync.Mutex
	fadeWG sync.WaitGroup
}

// New creates a session controller. A nil renderer discards ticks.
func New(cfg Config, rec Recorder, render Renderer, log logger.Logger) Controller {
	cfg.applyDefaults()
	if render == nil {
		render = RendererFunc(func(Tick) {})
	}
	if log == nil {
		log = logger.Noop()
	}

	typeMu := make(map[collection.SessionType]*sync.Mutex, len(collection.SessionTypes))
	for _, t := range collection.SessionTypes {
		typeMu[t] = &sync.Mutex{}
	}

	return &controller{
		config:   cfg,
		recorder: rec,
		renderer: render,
		logger:   log,
		typeMu:   typeMu,
		timers:   make(map[collection.SessionType]*timer),
		channels: make(map[collection.SessionType]Channel),
		fades:    make(map[Channel]*fade),
	}
}

// Start implements Controller.Start.
func (c *controller) Start(ctx context.Context, t collection.SessionType, duration time.Duration) (Started, error) {
	if _, err := collection.ParseSessionType(string(t)); err != nil {
		return Started{}, err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Started{}, ErrControllerClosed
	}

	unlock := c.lockType(t)
	defer unlock()

	// Exactly one timer per type: the previous one is gone before the new
	// one is recorded.
	c.stop(t)

	if duration <= 0 {
		duration = c.config.DefaultDuration
		if t == collection.SessionBreathing {
			duration = c.config.BreathingDuration
		}
	}

	milestones, err := c.recorder.RecordUsage()
	if err != nil {
		return Started{}, fmt.Errorf("failed to record usage: %w", err)
	}
	entry, err := c.recorder.LogSession(t)
	if err != nil {
		return Started{}, fmt.Errorf("failed to log session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	tm := &timer{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return Started{}, ErrControllerClosed
	}
	c.timers[t] = tm
	ch := c.channels[t]
	c.mu.Unlock()

	if ch != nil {
		c.startFade(ch, true)
	}

	go c.run(runCtx, tm, t, duration)

	c.logger.Info("session started",
		"type", string(t),
		"duration", duration,
		"milestones", milestones)

	return Started{Entry: entry, Duration: duration, Milestones: milestones}, nil
}

// Stop implements Controller.Stop.
func (c *controller) Stop(t collection.SessionType) bool {
	unlock := c.lockType(t)
	defer unlock()
	return c.stop(t)
}

// lockType locks the Start/Stop mutex of t. Unknown types have none.
func (c *controller) lockType(t collection.SessionType) func() {
	m, ok := c.typeMu[t]
	if !ok {
		return func() {}
	}
	m.Lock()
	return m.Unlock
}

// stop cancels the timer of t. Callers hold the type lock.
func (c *controller) stop(t collection.SessionType) bool {
	c.mu.Lock()
	tm := c.timers[t]
	delete(c.timers, t)
	ch := c.channels[t]
	c.mu.Unlock()

	if tm == nil {
		return false
	}

	tm.cancel()
	<-tm.done

	c.renderer.Render(Tick{Type: t, Phase: PhaseComplete, Done: true})

	if ch != nil {
		c.startFade(ch, false)
	}

	c.logger.Info("session stopped", "type", string(t))
	return true
}

// Attach implements Controller.Attach.
func (c *controller) Attach(t collection.SessionType, ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch == nil {
		delete(c.channels, t)
		return
	}
	c.channels[t] = ch
}

// Running implements Controller.Running.
func (c *controller) Running() []collection.SessionType {
	c.mu.Lock()
	defer c.mu.Unlock()

	running := make([]collection.SessionType, 0, len(c.timers))
	for _, t := range collection.SessionTypes {
		if _, ok := c.timers[t]; ok {
			running = append(running, t)
		}
	}
	return running
}

// Close implements Controller.Close.
func (c *controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for _, t := range collection.SessionTypes {
		c.Stop(t)
	}

	c.fadeWG.Wait()

	c.logger.Info("session controller closed")
	return nil
}

// run ticks until ctx is cancelled or the session runs out.
func (c *controller) run(ctx context.Context, tm *timer, t collection.SessionType, duration time.Duration) {
	defer close(tm.done)

	interval := c.config.TickInterval
	breathing := t == collection.SessionBreathing
	if breathing {
		interval = c.config.PhaseInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	phase := 0
	remaining := duration

	next := func() Tick {
		if breathing {
			tick := Tick{Type: t, Phase: BreathingPhases[phase]}
			phase = (phase + 1) % len(BreathingPhases)
			return tick
		}
		return Tick{Type: t, Remaining: remaining}
	}

	first := next()
	first.Prompt = Prompt(t)
	c.renderer.Render(first)

	for {
		select {
		case <-ctx.Done():
			c.finish(tm, t, "session cancelled")
			return

		case <-ticker.C:
			if ctx.Err() != nil {
				c.finish(tm, t, "session cancelled")
				return
			}
			if !breathing {
				remaining -= interval
				if remaining <= 0 {
					c.finish(tm, t, "session completed")
					return
				}
			}
			c.renderer.Render(next())

		case <-deadline.C:
			if ctx.Err() != nil {
				c.finish(tm, t, "session cancelled")
				return
			}
			c.finish(tm, t, "session completed")
			return
		}
	}
}

// finish ends a session that ran out or whose context was cancelled. It
// runs on the timer goroutine, so it cannot wait on the timer the way Stop
// does. A timer already removed by Stop is left alone.
func (c *controller) finish(tm *timer, t collection.SessionType, event string) {
	c.mu.Lock()
	current := c.timers[t] == tm
	if current {
		delete(c.timers, t)
	}
	ch := c.channels[t]
	c.mu.Unlock()

	if !current {
		return
	}

	tm.cancel()
	c.renderer.Render(Tick{Type: t, Phase: PhaseComplete, Done: true})

	if ch != nil {
		c.startFade(ch, false)
	}

	c.logger.Info(event, "type", string(t))
}

// startFade replaces any ramp running on ch. The old ramp has exited
// before the new one touches the volume.
func (c *controller) startFade(ch Channel, in bool) {
	c.fadeMu.Lock()
	defer c.fadeMu.Unlock()

	c.mu.Lock()
	old := c.fades[ch]
	c.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &fade{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.fades[ch] = f
	c.mu.Unlock()

	if in {
		ch.SetVolume(0)
		ch.Play()
	}

	c.fadeWG.Add(1)
	go func() {
		defer c.fadeWG.Done()
		defer close(f.done)
		defer func() {
			c.mu.Lock()
			if c.fades[ch] == f {
				delete(c.fades, ch)
			}
			c.mu.Unlock()
			cancel()
		}()

		c.ramp(ctx, ch, in)
	}()
}

// ramp moves the volume one step per interval until it reaches the
// target. Fading out pauses the channel at zero.
func (c *controller) ramp(ctx context.Context, ch Channel, in bool) {
	ticker := time.NewTicker(c.config.FadeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			v := ch.Volume()
			if in {
				v = math.Min(v+c.config.FadeStep, c.config.MaxVolume)
				ch.SetVolume(v)
				if v >= c.config.MaxVolume {
					return
				}
				continue
			}

			v = math.Max(v-c.config.FadeStep, 0)
			ch.SetVolume(v)
			if v == 0 {
				ch.Pause()
				return
			}
		}
	}
}
