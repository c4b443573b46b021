package progress

import (
	"fmt"
	"sync"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/logger"
)

// defaultMood is assumed when no mood was ever recorded.
const defaultMood = 3

// Recorder writes usage and session logs.
type Recorder struct {
	acc        *collection.Accessors
	milestones *Milestones
	logger     logger.Logger
}

// NewRecorder creates a recorder over acc that checks milestones after
// every usage record.
func NewRecorder(acc *collection.Accessors, milestones *Milestones, log logger.Logger) *Recorder {
	if milestones == nil {
		milestones = NewMilestones(DefaultThresholds...)
	}
	return &Recorder{
		acc:        acc,
		milestones: milestones,
		logger:     log,
	}
}

// RecordUsage marks today as practiced and returns the milestones reached
// by this call. Repeated calls on one day leave the log unchanged.
func (r *Recorder) RecordUsage() ([]int, error) {
	added, err := r.acc.AppendUsageToday()
	if err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	streak, err := r.Streak()
	if err != nil {
		return nil, err
	}

	if added {
		r.logger.Info("usage recorded", "day", r.acc.Today(), "streak", streak)
	}

	reached := r.milestones.Check(streak)
	for _, m := range reached {
		r.logger.Info("streak milestone reached", "days", m)
	}
	return reached, nil
}

// LogSession appends a session of type t to its history.
func (r *Recorder) LogSession(t collection.SessionType) (collection.SessionEntry, error) {
	entry, err := r.acc.AppendSession(t)
	if err != nil {
		return entry, fmt.Errorf("failed to log %s session: %w", t, err)
	}

	r.logger.Debug("session logged", "type", t, "id", entry.ID)
	return entry, nil
}

// Streak returns the number of distinct days practiced.
func (r *Recorder) Streak() (int, error) {
	log, err := r.acc.UsageLog()
	if err != nil {
		return 0, err
	}
	return len(log), nil
}

// Summary builds a progress report from the store.
func (r *Recorder) Summary() (Report, error) {
	report := Report{
		SessionCounts: make(map[collection.SessionType]int, len(collection.SessionTypes)),
		GeneratedOn:   r.acc.Today(),
	}

	profile, err := r.acc.Profile()
	if err != nil {
		return report, err
	}
	if profile != nil {
		report.Name = profile.Name
	}

	if report.DaysPracticed, err = r.Streak(); err != nil {
		return report, err
	}

	for _, t := range collection.SessionTypes {
		entries, logErr := r.acc.SessionLog(t)
		if logErr != nil {
			return report, logErr
		}
		report.SessionCounts[t] = len(entries)
	}

	moods, err := r.acc.MoodEntries()
	if err != nil {
		return report, err
	}
	report.MoodEntries = len(moods)

	mood := defaultMood
	if len(moods) > 0 {
		report.LastMood = moods[len(moods)-1].Score
		mood = report.LastMood
	}
	report.GuidedMessage = GuidedMessage(mood)

	return report, nil
}

// GuidedMessage picks the meditation prompt for the latest mood score.
func GuidedMessage(mood int) string {
	switch {
	case mood <= 2:
		return "Slow down. You are safe."
	case mood == 3:
		return "Notice your breath."
	default:
		return "Carry this calm forward."
	}
}

// Milestones tracks which streak thresholds were already announced by
// this process. Nothing is persisted, so a fresh process announces a
// threshold again when the streak still equals it.
type Milestones struct {
	mu         sync.Mutex
	thresholds []int
	notified   map[int]bool
}

// NewMilestones creates a tracker for the given thresholds.
func NewMilestones(thresholds ...int) *Milestones {
	return &Milestones{
		thresholds: append([]int(nil), thresholds...),
		notified:   make(map[int]bool),
	}
}

// Check returns the thresholds equal to streak that were not returned
// before. A streak past a threshold does not trigger it.
func (m *Milestones) Check(streak int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reached []int
	for _, t := range m.thresholds {
		if streak == t && !m.notified[t] {
			m.notified[t] = true
			reached = append(reached, t)
		}
	}
	return reached
}
