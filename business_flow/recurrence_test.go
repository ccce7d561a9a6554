package businessflow

import (
	"testing"
	"time"

	"github.com/amirphl/social-publisher/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	// Monday 2025-06-02 09:30 UTC
	anchor := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		from      time.Time
		frequency models.Frequency
		timezone  string
		endsAt    *time.Time
		want      *time.Time
	}{
		{
			name:      "OnceDoesNotRecur",
			from:      anchor,
			frequency: models.FrequencyOnce,
			timezone:  "UTC",
		},
		{
			name:      "DailyNextDay",
			from:      anchor,
			frequency: models.FrequencyDaily,
			timezone:  "UTC",
			want:      ptrTime(anchor.Add(24 * time.Hour)),
		},
		{
			name:      "DailySkipsMissedDays",
			from:      anchor.Add(72*time.Hour + time.Minute),
			frequency: models.FrequencyDaily,
			timezone:  "UTC",
			want:      ptrTime(anchor.Add(96 * time.Hour)),
		},
		{
			name:      "WeeklySameWeekday",
			from:      anchor,
			frequency: models.FrequencyWeekly,
			timezone:  "UTC",
			want:      ptrTime(anchor.Add(7 * 24 * time.Hour)),
		},
		{
			name:      "EndsAtStopsChain",
			from:      anchor,
			frequency: models.FrequencyDaily,
			timezone:  "UTC",
			endsAt:    ptrTime(anchor.Add(23 * time.Hour)),
		},
		{
			name:      "EndsAtInclusive",
			from:      anchor,
			frequency: models.FrequencyDaily,
			timezone:  "UTC",
			endsAt:    ptrTime(anchor.Add(24 * time.Hour)),
			want:      ptrTime(anchor.Add(24 * time.Hour)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.from, tt.frequency, tt.timezone, anchor, tt.endsAt)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestNextOccurrence_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 09:00 in New York the day before clocks spring forward
	anchor := time.Date(2025, 3, 8, 9, 0, 0, 0, loc)

	got, err := NextOccurrence(anchor, models.FrequencyDaily, "America/New_York", anchor, nil)
	require.NoError(t, err)
	require.NotNil(t, got)

	local := got.In(loc)
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, 9, local.Day())
	assert.Equal(t, 23*time.Hour, got.Sub(anchor))
}

func TestRecurrenceSchedule_Errors(t *testing.T) {
	anchor := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

	_, err := RecurrenceSchedule(models.FrequencyDaily, "Mars/Olympus", anchor)
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	_, err = RecurrenceSchedule(models.FrequencyOnce, "UTC", anchor)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
