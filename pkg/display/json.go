package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/progress"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// FormatReport implements Formatter.FormatReport.
func (f *jsonFormatter) FormatReport(w io.Writer, report progress.Report) error {
	return f.encode(w, report)
}

// FormatMoods implements Formatter.FormatMoods.
func (f *jsonFormatter) FormatMoods(w io.Writer, moods []collection.MoodEntry) error {
	if moods == nil {
		moods = []collection.MoodEntry{}
	}
	return f.encode(w, moods)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *jsonFormatter) FormatSessions(w io.Writer, t collection.SessionType, sessions []collection.SessionEntry) error {
	if sessions == nil {
		sessions = []collection.SessionEntry{}
	}
	return f.encode(w, struct {
		Type     collection.SessionType    `json:"type"`
		Count    int                       `json:"count"`
		Sessions []collection.SessionEntry `json:"sessions"`
	}{t, len(sessions), sessions})
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}
