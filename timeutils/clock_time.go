package timeutils

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClockTime represents a time of day in the given locale, without a date.
type ClockTime struct {
	Hour     int
	Minute   int
	Second   int
	Location *time.Location
}

// OnDate returns a time with the given clock time on the given date
func (c *ClockTime) OnDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, c.Hour, c.Minute, c.Second, 0, c.Location)
}

// UnmarshalJSON parses a ClockTime from a "HH:MM" or "HH:MM:SS" string, in UTC.
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshalling clock time: %w", err)
	}

	var hour, minute, second int
	n, err := fmt.Sscanf(s, "%d:%d:%d", &hour, &minute, &second)
	if err != nil && n < 2 {
		n, err = fmt.Sscanf(s, "%d:%d", &hour, &minute)
	}
	if err != nil && n < 2 {
		return fmt.Errorf("parsing clock time %q: %w", s, err)
	}

	c.Hour = hour
	c.Minute = minute
	c.Second = second
	c.Location = time.UTC
	return nil
}

// MarshalJSON renders the ClockTime as a "HH:MM" string.
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%02d:%02d", c.Hour, c.Minute))
}
