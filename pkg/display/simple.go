package display

import (
	"fmt"
	"io"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/progress"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatReport implements Formatter.FormatReport.
func (f *simpleFormatter) FormatReport(w io.Writer, report progress.Report) error {
	name := report.Name
	if name == "" {
		name = "Guest"
	}

	_, err := fmt.Fprintf(w, "%s | Streak: %s | Sessions: %d | Moods: %d | %s\n",
		name,
		plural(report.DaysPracticed, "day"),
		report.TotalSessions(),
		report.MoodEntries,
		report.GuidedMessage)
	return err
}

// FormatMoods implements Formatter.FormatMoods.
func (f *simpleFormatter) FormatMoods(w io.Writer, moods []collection.MoodEntry) error {
	for _, m := range moods {
		if _, err := fmt.Fprintf(w, "%s: %d\n", m.Day, m.Score); err != nil {
			return err
		}
	}

	return nil
}

// FormatSessions implements Formatter.FormatSessions.
func (f *simpleFormatter) FormatSessions(w io.Writer, t collection.SessionType, sessions []collection.SessionEntry) error {
	if _, err := fmt.Fprintf(w, "%s: %s\n", t, plural(len(sessions), "session")); err != nil {
		return err
	}

	for _, s := range sessions {
		line := s.Date
		if f.config.ShowTimestamps && !s.StartedAt.IsZero() {
			line = s.StartedAt.Format("2006-01-02 15:04:05")
		}
		if _, err := fmt.Fprintf(w, "  %s\n", line); err != nil {
			return err
		}
	}

	return nil
}
