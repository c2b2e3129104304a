package timeutils

import "time"

// ClockTimePeriod is a period of the day bounded by two ClockTimes, e.g. "10:00 to 15:00" for a
// charge window, or "21:00 to 06:00" for a period that wraps past midnight.
type ClockTimePeriod struct {
	Start ClockTime
	End   ClockTime
}

// Contains returns true if t falls within the ClockTimePeriod on its own day, inclusive of both
// endpoints. If End is earlier in the day than Start the period is treated as spanning midnight.
func (p *ClockTimePeriod) Contains(t time.Time) bool {
	tSeconds := t.Hour()*3600 + t.Minute()*60 + t.Second()
	startSeconds := p.Start.Hour*3600 + p.Start.Minute*60 + p.Start.Second
	endSeconds := p.End.Hour*3600 + p.End.Minute*60 + p.End.Second

	if startSeconds <= endSeconds {
		return tSeconds >= startSeconds && tSeconds <= endSeconds
	}
	// The window wraps past midnight, e.g. 21:00-06:00.
	return tSeconds >= startSeconds || tSeconds <= endSeconds
}
