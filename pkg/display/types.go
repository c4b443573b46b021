// Package display provides output formatting for progress data.
//
// It supports multiple output formats (table, JSON, simple text) for the
// progress report, the mood history and the session logs.
package display

import (
	"io"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/progress"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays data in a formatted table.
	FormatTable Format = "table"

	// FormatJSON displays data as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays data in simple text format.
	FormatSimple Format = "simple"
)

// ParseFormat returns the Format named s, or FormatTable for "".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatSimple:
		return Format(s), nil
	default:
		return "", ErrUnknownFormat
	}
}

// Formatter formats and displays progress data.
type Formatter interface {
	// FormatReport formats the progress summary.
	//
	// Parameters:
	//   - w: Output writer
	//   - report: Report to format
	//
	// Returns error if formatting fails.
	FormatReport(w io.Writer, report progress.Report) error

	// FormatMoods formats the mood history, oldest day first.
	//
	// Parameters:
	//   - w: Output writer
	//   - moods: Mood entries to format
	//
	// Returns error if formatting fails.
	FormatMoods(w io.Writer, moods []collection.MoodEntry) error

	// FormatSessions formats the session log of one type.
	//
	// Parameters:
	//   - w: Output writer
	//   - t: Session type
	//   - sessions: Log entries to format
	//
	// Returns error if formatting fails.
	FormatSessions(w io.Writer, t collection.SessionType, sessions []collection.SessionEntry) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ShowTimestamps enables start time display for session entries.
	// Default: false.
	ShowTimestamps bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}
