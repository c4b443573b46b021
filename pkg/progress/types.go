// Package progress records practice and derives streaks and reports.
//
// RecordUsage is called once per session start of any type and is
// idempotent per day, so the usage log length is the number of distinct
// days practiced. LogSession keeps the full per-type history.
package progress

import "github.com/0xmhha/calmspace/pkg/collection"

// DefaultThresholds are the streak lengths that trigger a milestone.
var DefaultThresholds = []int{7, 30}

// Report summarizes stored progress.
type Report struct {
	Name          string                         `json:"name"`
	DaysPracticed int                            `json:"days_practiced"`
	SessionCounts map[collection.SessionType]int `json:"session_counts"`
	MoodEntries   int                            `json:"mood_entries"`
	LastMood      int                            `json:"last_mood,omitempty"`
	GuidedMessage string                         `json:"guided_message"`
	GeneratedOn   string                         `json:"generated_on"`
}

// TotalSessions sums the per-type session counts.
func (r Report) TotalSessions() int {
	total := 0
	for _, n := range r.SessionCounts {
		total += n
	}
	return total
}
