package businessflow

import (
	"fmt"
	"time"

	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/utils"
	"github.com/robfig/cron/v3"
)

// RecurrenceSchedule builds the cron schedule of a recurring record. The anchor's wall clock
// in timezone fixes the minute and hour, and the weekday for weekly recurrences.
func RecurrenceSchedule(frequency models.Frequency, timezone string, anchor time.Time) (cron.Schedule, error) {
	loc, err := utils.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
	}
	local := anchor.In(loc)

	var spec string
	switch frequency {
	case models.FrequencyDaily:
		spec = fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), local.Minute(), local.Hour())
	case models.FrequencyWeekly:
		spec = fmt.Sprintf("CRON_TZ=%s %d %d * * %d", loc.String(), local.Minute(), local.Hour(), int(local.Weekday()))
	default:
		return nil, fmt.Errorf("%w: %q does not recur", ErrInvalidFrequency, frequency)
	}

	return cron.ParseStandard(spec)
}

// NextOccurrence returns the first occurrence strictly after from, or nil when the record
// does not recur or the occurrence would fall after endsAt.
func NextOccurrence(from time.Time, frequency models.Frequency, timezone string, anchor time.Time, endsAt *time.Time) (*time.Time, error) {
	if !frequency.IsRecurring() {
		return nil, nil
	}
	schedule, err := RecurrenceSchedule(frequency, timezone, anchor)
	if err != nil {
		return nil, err
	}

	next := schedule.Next(from).UTC()
	if next.IsZero() {
		return nil, nil
	}
	if endsAt != nil && next.After(*endsAt) {
		return nil, nil
	}
	return &next, nil
}
