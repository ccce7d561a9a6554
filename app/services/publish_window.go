package services

import (
	"fmt"
	"time"
)

// Platforms reject deferred publishes outside [MinScheduleLead, MaxScheduleHorizon] from now
const (
	MinScheduleLead    = 10 * time.Minute
	MaxScheduleHorizon = 15552000 * time.Second
)

// ValidatePublishWindow checks a deferred publish time against the accepted window. Both bounds are inclusive.
func ValidatePublishWindow(now, at time.Time) error {
	lead := at.Sub(now)
	if lead < MinScheduleLead {
		return fmt.Errorf("%w: %s is %s ahead, minimum is %s", ErrInvalidWindow, at.UTC().Format(time.RFC3339), lead, MinScheduleLead)
	}
	if lead > MaxScheduleHorizon {
		return fmt.Errorf("%w: %s is %s ahead, maximum is %s", ErrInvalidWindow, at.UTC().Format(time.RFC3339), lead, MaxScheduleHorizon)
	}
	return nil
}
