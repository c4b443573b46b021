package collection

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/0xmhha/calmspace/pkg/kvstore"
	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupAccessors(t *testing.T) (*Accessors, kvstore.Store, *fakeClock) {
	t.Helper()

	st := kvstore.NewMemory()
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	n := 0
	acc := New(st,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return acc, st, clock
}

func TestUsageIdempotentWithinDay(t *testing.T) {
	acc, _, clock := setupAccessors(t)

	for i := 0; i < 5; i++ {
		_, err := acc.AppendUsageToday()
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	log, err := acc.UsageLog()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-18"}, log)
}

func TestUsageNextDay(t *testing.T) {
	acc, _, clock := setupAccessors(t)

	added, err := acc.AppendUsageToday()
	require.NoError(t, err)
	assert.True(t, added)

	clock.Advance(24 * time.Hour)
	added, err = acc.AppendUsageToday()
	require.NoError(t, err)
	assert.True(t, added)

	added, err = acc.AppendUsageToday()
	require.NoError(t, err)
	assert.False(t, added)

	log, err := acc.UsageLog()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-18", "2026-10-19"}, log)
}

func TestUsageRecognisesLegacyToday(t *testing.T) {
	acc, st, _ := setupAccessors(t)
	require.NoError(t, st.Set(KeyUsage, `["Sat Oct 17 2026","Sun Oct 18 2026"]`))

	added, err := acc.AppendUsageToday()
	require.NoError(t, err)
	assert.False(t, added)

	log, err := acc.UsageLog()
	require.NoError(t, err)
	assert.Equal(t, []string{"Sat Oct 17 2026", "Sun Oct 18 2026"}, log)
}

func TestMoodReplacesLegacyToday(t *testing.T) {
	acc, st, _ := setupAccessors(t)
	require.NoError(t, st.Set(KeyMoods, `{"Sat Oct 17 2026":2,"Sun Oct 18 2026":3}`))

	require.NoError(t, acc.SetMood(5))

	moods, err := acc.Moods()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Sat Oct 17 2026": 2, "2026-10-18": 5}, moods)
}

func TestUsageDayFollowsLocation(t *testing.T) {
	st := kvstore.NewMemory()
	// 23:30 UTC is already the next day in UTC+2.
	now := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)
	acc := New(st,
		WithClock(func() time.Time { return now }),
		WithLocation(time.FixedZone("UTC+2", 2*60*60)),
	)

	_, err := acc.AppendUsageToday()
	require.NoError(t, err)

	log, err := acc.UsageLog()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-19"}, log)
}

func TestMoodUpsertByDay(t *testing.T) {
	acc, _, clock := setupAccessors(t)

	require.NoError(t, acc.SetMood(2))
	require.NoError(t, acc.SetMood(4))

	moods, err := acc.Moods()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2026-10-18": 4}, moods)

	clock.Advance(24 * time.Hour)
	require.NoError(t, acc.SetMood(1))

	entries, err := acc.MoodEntries()
	require.NoError(t, err)
	assert.Equal(t, []MoodEntry{
		{Day: "2026-10-18", Score: 4},
		{Day: "2026-10-19", Score: 1},
	}, entries)
}

func TestMoodOutOfRange(t *testing.T) {
	acc, _, _ := setupAccessors(t)

	for _, score := range []int{0, 6, -1} {
		assert.ErrorIs(t, acc.SetMood(score), ErrInvalidMood)
	}
}

func TestMoodEntriesOrdersLegacyKeys(t *testing.T) {
	acc, st, _ := setupAccessors(t)

	require.NoError(t, st.Set(KeyMoods, `{"Tue Oct 13 2026":3,"2026-10-01":5,"Sat Oct 10 2026":2}`))

	entries, err := acc.MoodEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2026-10-01", entries[0].Day)
	assert.Equal(t, "Sat Oct 10 2026", entries[1].Day)
	assert.Equal(t, "Tue Oct 13 2026", entries[2].Day)
}

func TestSessionLogAppendsDuplicates(t *testing.T) {
	acc, _, clock := setupAccessors(t)

	first, err := acc.AppendSession(SessionFocus)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := acc.AppendSession(SessionFocus)
	require.NoError(t, err)

	log, err := acc.SessionLog(SessionFocus)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, first, log[0])
	assert.Equal(t, second, log[1])
	assert.Equal(t, "2026-10-18", log[1].Date)
	assert.NotEqual(t, log[0].ID, log[1].ID)

	other, err := acc.SessionLog(SessionSleep)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSessionLogStoredUnderTypeKey(t *testing.T) {
	acc, st, _ := setupAccessors(t)

	_, err := acc.AppendSession(SessionMeditation)
	require.NoError(t, err)

	_, err = st.Get("meditation-sessions")
	assert.NoError(t, err)
}

func TestSessionLogReadsLegacyEntries(t *testing.T) {
	acc, st, _ := setupAccessors(t)

	require.NoError(t, st.Set("sleep-sessions", `[{"date":"Sun Oct 18 2026"}]`))

	_, err := acc.AppendSession(SessionSleep)
	require.NoError(t, err)

	log, err := acc.SessionLog(SessionSleep)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "Sun Oct 18 2026", log[0].Date)
}

func TestUnknownSessionType(t *testing.T) {
	acc, _, _ := setupAccessors(t)

	_, err := acc.SessionLog("yoga")
	assert.ErrorIs(t, err, ErrUnknownSessionType)

	_, err = ParseSessionType("yoga")
	assert.ErrorIs(t, err, ErrUnknownSessionType)

	st, err := ParseSessionType("breathing")
	require.NoError(t, err)
	assert.Equal(t, SessionBreathing, st)
}

func TestCorruptValuesFallBack(t *testing.T) {
	var buf bytes.Buffer
	st := kvstore.NewMemory()
	acc := New(st, WithLogger(logger.NewWithWriter(&buf, logger.Config{Level: "warn"})))

	require.NoError(t, st.Set(KeyUsage, `not json`))
	require.NoError(t, st.Set(KeyMoods, `{"2026-10-18":"great"}`))
	require.NoError(t, st.Set(KeyProfile, `{"name":`))
	require.NoError(t, st.Set("focus-sessions", `{}`))

	usage, err := acc.UsageLog()
	require.NoError(t, err)
	assert.Empty(t, usage)

	moods, err := acc.Moods()
	require.NoError(t, err)
	assert.Empty(t, moods)

	p, err := acc.Profile()
	require.NoError(t, err)
	assert.Nil(t, p)

	sessions, err := acc.SessionLog(SessionFocus)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.Contains(t, buf.String(), "key=usage")
	assert.Contains(t, buf.String(), "key=moods")
}

func TestProfileReplace(t *testing.T) {
	acc, _, _ := setupAccessors(t)

	p, err := acc.Profile()
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, acc.SaveProfile(Profile{
		Email:  "sam@example.com",
		Name:   "Sam",
		DOB:    "1990-01-01",
		Avatar: "data:image/png;base64,AAAA",
	}))
	require.NoError(t, acc.SaveProfile(Profile{Name: "Alex"}))

	p, err = acc.Profile()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, Profile{Name: "Alex"}, *p)
}

func TestThemeDefaultsAndToggle(t *testing.T) {
	acc, st, _ := setupAccessors(t)

	theme, err := acc.Theme()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	theme, err = acc.ToggleTheme()
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	raw, err := st.Get(KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "dark", raw)

	theme, err = acc.ToggleTheme()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	assert.ErrorIs(t, acc.SetTheme("sepia"), ErrInvalidTheme)

	require.NoError(t, st.Set(KeyTheme, "sepia"))
	theme, err = acc.Theme()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)
}

func TestJournalStoredRaw(t *testing.T) {
	acc, st, _ := setupAccessors(t)

	text, err := acc.Journal()
	require.NoError(t, err)
	assert.Empty(t, text)

	require.NoError(t, acc.SaveJournal("first line\nsecond line"))
	raw, err := st.Get(KeyJournal)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", raw)
}

func TestLogoutClearsEverything(t *testing.T) {
	acc, st, _ := setupAccessors(t)

	require.NoError(t, acc.SaveJournal("x"))
	require.NoError(t, acc.SetMood(3))
	_, err := acc.AppendUsageToday()
	require.NoError(t, err)

	require.NoError(t, acc.Logout())

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDayHelpers(t *testing.T) {
	d := DayOf(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), nil)
	assert.Equal(t, "2026-01-02", d)

	_, ok := ParseDay("Fri Jan 02 2026")
	assert.True(t, ok)
	_, ok = ParseDay("yesterday")
	assert.False(t, ok)

	assert.True(t, SameDay("Fri Jan 02 2026", "2026-01-02"))
	assert.False(t, SameDay("Thu Jan 01 2026", "2026-01-02"))
	assert.True(t, SameDay("garbage", "garbage"))
	assert.False(t, SameDay("garbage", "2026-01-02"))

	assert.True(t, dayLess("2026-01-01", "garbage"))
	assert.False(t, dayLess("garbage", "2026-01-01"))
}
