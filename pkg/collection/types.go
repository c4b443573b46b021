// Package collection provides typed accessors over the calmspace store.
//
// Every persisted entity has exactly one encode and one decode path here.
// Structured values are JSON-encoded; theme and journal are stored raw.
// Readers never fail on a missing or corrupt key: they fall back to the
// entity's empty default and log the corruption.
//
// Each accessor is a read-decode-mutate-encode-write sequence against a
// store without compare-and-swap, so two writers racing on one key lose
// an update (last writer wins).
//
// Example usage:
//
//	acc := collection.New(st, collection.WithLogger(log))
//	if _, err := acc.AppendUsageToday(); err != nil {
//	    return err
//	}
//	if err := acc.SetMood(4); err != nil {
//	    return err
//	}
package collection

import (
	"fmt"
	"time"
)

// Persisted keys.
const (
	KeyProfile = "profile"
	KeyTheme   = "theme"
	KeyUsage   = "usage"
	KeyMoods   = "moods"
	KeyJournal = "journal"
)

// Profile is the single user profile. A save always replaces the whole
// object; fields are never merged with the previous profile.
type Profile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	DOB   string `json:"dob"`

	// Avatar is a self-contained data URL, or empty.
	Avatar string `json:"avatar"`
}

// Theme is the UI color scheme.
type Theme string

// Supported themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// SessionType names a guided session kind.
type SessionType string

// Session types.
const (
	SessionMeditation SessionType = "meditation"
	SessionFocus      SessionType = "focus"
	SessionSleep      SessionType = "sleep"
	SessionBreathing  SessionType = "breathing"
)

// SessionTypes lists every session type in display order.
var SessionTypes = []SessionType{
	SessionBreathing,
	SessionMeditation,
	SessionFocus,
	SessionSleep,
}

// ParseSessionType validates a session type name.
func ParseSessionType(s string) (SessionType, error) {
	for _, t := range SessionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSessionType, s)
}

// Key returns the store key of the session log, e.g. "focus-sessions".
func (t SessionType) Key() string {
	return string(t) + "-sessions"
}

// SessionEntry is one appended session log record.
type SessionEntry struct {
	ID        string    `json:"id,omitempty"`
	Date      string    `json:"date"`
	StartedAt time.Time `json:"started_at"`
}

// MoodEntry is one day of the mood map.
type MoodEntry struct {
	Day   string `json:"day"`
	Score int    `json:"score"`
}

// Mood score bounds.
const (
	MinMood = 1
	MaxMood = 5
)
