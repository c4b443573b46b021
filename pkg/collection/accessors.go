package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/0xmhha/calmspace/pkg/kvstore"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/google/uuid"
)

// Accessors reads and writes the calmspace entities.
type Accessors struct {
	store  kvstore.Store
	logger logger.Logger
	clock  func() time.Time
	loc    *time.Location
	newID  func() string
}

// Option configures Accessors.
type Option func(*Accessors)

// WithClock overrides the time source used for day keys and timestamps.
func WithClock(clock func() time.Time) Option {
	return func(a *Accessors) { a.clock = clock }
}

// WithLocation sets the time zone that decides where one day ends.
// Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(a *Accessors) { a.loc = loc }
}

// WithLogger sets the logger used to report corrupt values.
func WithLogger(log logger.Logger) Option {
	return func(a *Accessors) { a.logger = log }
}

// WithIDGenerator overrides how session entry IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(a *Accessors) { a.newID = newID }
}

// New creates accessors over store.
func New(store kvstore.Store, opts ...Option) *Accessors {
	a := &Accessors{
		store:  store,
		logger: logger.Noop(),
		clock:  time.Now,
		loc:    time.UTC,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying store.
func (a *Accessors) Store() kvstore.Store {
	return a.store
}

// Today returns the canonical day key for the current time.
func (a *Accessors) Today() string {
	return DayOf(a.clock(), a.loc)
}

// Profile returns the saved profile, or nil if none was saved yet.
func (a *Accessors) Profile() (*Profile, error) {
	return readJSON[*Profile](a, KeyProfile, nil)
}

// SaveProfile replaces the stored profile with p.
func (a *Accessors) SaveProfile(p Profile) error {
	return a.writeJSON(KeyProfile, p)
}

// Theme returns the stored theme, light when absent or unrecognized.
func (a *Accessors) Theme() (Theme, error) {
	v, err := a.getRaw(KeyTheme)
	if err != nil {
		return ThemeLight, err
	}
	if Theme(v) == ThemeDark {
		return ThemeDark, nil
	}
	return ThemeLight, nil
}

// SetTheme stores the theme.
func (a *Accessors) SetTheme(t Theme) error {
	if t != ThemeLight && t != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	return a.store.Set(KeyTheme, string(t))
}

// ToggleTheme flips between light and dark and returns the new theme.
func (a *Accessors) ToggleTheme() (Theme, error) {
	current, err := a.Theme()
	if err != nil {
		return current, err
	}

	next := ThemeDark
	if current == ThemeDark {
		next = ThemeLight
	}
	return next, a.SetTheme(next)
}

// Journal returns the journal text, empty when absent.
func (a *Accessors) Journal() (string, error) {
	return a.getRaw(KeyJournal)
}

// SaveJournal overwrites the journal.
func (a *Accessors) SaveJournal(text string) error {
	return a.store.Set(KeyJournal, text)
}

// UsageLog returns the days practiced in first-seen order.
func (a *Accessors) UsageLog() ([]string, error) {
	log, err := readJSON(a, KeyUsage, []string{})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = []string{}
	}
	return log, nil
}

// AppendUsageToday adds today's day key to the usage log unless today is
// already there, in either key layout. It reports whether the log grew.
func (a *Accessors) AppendUsageToday() (bool, error) {
	today := a.Today()

	log, err := a.UsageLog()
	if err != nil {
		return false, err
	}

	for _, day := range log {
		if SameDay(day, today) {
			return false, nil
		}
	}

	log = append(log, today)
	if err := a.writeJSON(KeyUsage, log); err != nil {
		return false, err
	}
	return true, nil
}

// Moods returns the mood map keyed by day.
func (a *Accessors) Moods() (map[string]int, error) {
	moods, err := readJSON(a, KeyMoods, map[string]int{})
	if err != nil {
		return nil, err
	}
	if moods == nil {
		moods = map[string]int{}
	}
	return moods, nil
}

// MoodEntries returns the mood map ordered by day.
func (a *Accessors) MoodEntries() ([]MoodEntry, error) {
	moods, err := a.Moods()
	if err != nil {
		return nil, err
	}

	entries := make([]MoodEntry, 0, len(moods))
	for day, score := range moods {
		entries = append(entries, MoodEntry{Day: day, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		return dayLess(entries[i].Day, entries[j].Day)
	})
	return entries, nil
}

// SetMood records today's mood, replacing an earlier score for today. A
// legacy key for today is rewritten to the canonical one.
func (a *Accessors) SetMood(score int) error {
	if score < MinMood || score > MaxMood {
		return fmt.Errorf("%w: %d", ErrInvalidMood, score)
	}

	moods, err := a.Moods()
	if err != nil {
		return err
	}

	today := a.Today()
	for day := range moods {
		if day != today && SameDay(day, today) {
			delete(moods, day)
		}
	}

	moods[today] = score
	return a.writeJSON(KeyMoods, moods)
}

// SessionLog returns every logged session of type t.
func (a *Accessors) SessionLog(t SessionType) ([]SessionEntry, error) {
	if _, err := ParseSessionType(string(t)); err != nil {
		return nil, err
	}

	entries, err := readJSON(a, t.Key(), []SessionEntry{})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []SessionEntry{}
	}
	return entries, nil
}

// AppendSession appends a new entry to the log of type t. Several entries
// on the same day are kept.
func (a *Accessors) AppendSession(t SessionType) (SessionEntry, error) {
	entries, err := a.SessionLog(t)
	if err != nil {
		return SessionEntry{}, err
	}

	now := a.clock()
	entry := SessionEntry{
		ID:        a.newID(),
		Date:      DayOf(now, a.loc),
		StartedAt: now.UTC(),
	}

	entries = append(entries, entry)
	if err := a.writeJSON(t.Key(), entries); err != nil {
		return SessionEntry{}, err
	}
	return entry, nil
}

// Logout erases every stored entity.
func (a *Accessors) Logout() error {
	return a.store.Clear()
}

// getRaw returns the raw value under key, empty when absent.
func (a *Accessors) getRaw(key string) (string, error) {
	v, err := a.store.Get(key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return "", nil
	}
	return v, err
}

// readJSON decodes the value under key, returning fallback when the key
// is absent or the value is corrupt.
func readJSON[T any](a *Accessors, key string, fallback T) (T, error) {
	raw, err := a.store.Get(key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var v T
	if unmarshalErr := json.Unmarshal([]byte(raw), &v); unmarshalErr != nil {
		a.logger.Warn("using default for unreadable value",
			"key", key,
			"error", fmt.Errorf("%w: %v", ErrCorruptValue, unmarshalErr))
		return fallback, nil
	}
	return v, nil
}

func (a *Accessors) writeJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := a.store.Set(key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
