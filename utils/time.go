// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// IsExpiredAt reports whether t is not after now
func IsExpiredAt(t *time.Time, now time.Time) bool {
	if t == nil {
		return false
	}
	return !t.After(now)
}

// LoadLocation resolves an IANA zone name, treating an empty name as UTC
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
