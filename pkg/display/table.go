package display

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/progress"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatReport implements Formatter.FormatReport.
func (f *tableFormatter) FormatReport(w io.Writer, report progress.Report) error {
	if err := writeHeader(w, "Progress Report", f.config.Compact); err != nil {
		return err
	}

	name := report.Name
	if name == "" {
		name = "Guest"
	}

	rows := [][]string{
		{"Name", name},
		{"Generated", report.GeneratedOn},
		{"Streak", plural(report.DaysPracticed, "day")},
	}

	for _, t := range collection.SessionTypes {
		rows = append(rows, []string{
			capitalize(string(t)) + " Sessions",
			formatNumber(report.SessionCounts[t]),
		})
	}

	rows = append(rows,
		[]string{"Total Sessions", formatNumber(report.TotalSessions())},
		[]string{"Mood Entries", formatNumber(report.MoodEntries)},
	)
	if report.LastMood > 0 {
		rows = append(rows, []string{"Last Mood", moodBar(report.LastMood)})
	}
	rows = append(rows, []string{"Guidance", report.GuidedMessage})

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatMoods implements Formatter.FormatMoods.
func (f *tableFormatter) FormatMoods(w io.Writer, moods []collection.MoodEntry) error {
	if err := writeHeader(w, "Mood History", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, len(moods))
	for i, m := range moods {
		rows[i] = []string{m.Day, fmt.Sprintf("%d", m.Score), moodBar(m.Score)}
	}

	return f.writeTable(w, []string{"Day", "Score", "Mood"}, rows)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *tableFormatter) FormatSessions(w io.Writer, t collection.SessionType, sessions []collection.SessionEntry) error {
	title := fmt.Sprintf("%s Sessions (%d)", capitalize(string(t)), len(sessions))
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	header := []string{"#", "Day"}
	if f.config.ShowTimestamps {
		header = append(header, "Started")
	}

	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		row := []string{fmt.Sprintf("%d", i+1), s.Date}
		if f.config.ShowTimestamps {
			started := "-"
			if !s.StartedAt.IsZero() {
				started = s.StartedAt.Format("15:04:05")
			}
			row = append(row, started)
		}
		rows[i] = row
	}

	return f.writeTable(w, header, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	// Write rows.
	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	gap := "  "
	if f.config.Compact {
		gap = " "
	}

	for i, cell := range cells {
		if i > 0 {
			if _, err := fmt.Fprint(w, gap); err != nil {
				return err
			}
		}

		pad := widths[i] - utf8.RuneCountInString(cell)
		if pad < 0 {
			pad = 0
		}
		if _, err := fmt.Fprint(w, cell, strings.Repeat(" ", pad)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
