// Package vehicle models an EV's daily driving behaviour: when it is away from home, and how much
// range it consumes per simulation step while away.
package vehicle

import (
	"time"

	"github.com/cepro/cersim/timeutils"
)

// Config holds the immutable parameters of a Vehicle.
type Config struct {
	DailyDistanceKM float64
	AwayIntervals   []timeutils.ClockTimePeriod
	BatteryRangeKM  float64
}

// DefaultConfig returns the CER parameter schema defaults, per the external interface.
func DefaultConfig() Config {
	return Config{
		DailyDistanceKM: 30.0,
		BatteryRangeKM:  350.0,
	}
}

// Vehicle computes away/home status and distance driven per simulation step.
type Vehicle struct {
	Label  string
	Config Config

	distancePerStep float64
}

// New constructs a Vehicle, pre-computing distance-per-step for the given timestep duration. A
// vehicle with no away-intervals never drives, so its distance-per-step is zero.
func New(label string, cfg Config, dtMinutes int) *Vehicle {
	v := &Vehicle{Label: label, Config: cfg}
	if away := awayMinutes(cfg.AwayIntervals); away > 0 {
		v.distancePerStep = cfg.DailyDistanceKM * float64(dtMinutes) / away
	}
	return v
}

// awayMinutes sums the duration of all away-intervals, in minutes.
func awayMinutes(intervals []timeutils.ClockTimePeriod) float64 {
	total := 0.0
	for _, interval := range intervals {
		startSeconds := interval.Start.Hour*3600 + interval.Start.Minute*60 + interval.Start.Second
		endSeconds := interval.End.Hour*3600 + interval.End.Minute*60 + interval.End.Second
		duration := endSeconds - startSeconds
		if duration < 0 {
			duration += 24 * 3600
		}
		total += float64(duration) / 60.0
	}
	return total
}

// DistancePerStep returns the distance driven in one simulation step, in km.
func (v *Vehicle) DistancePerStep() float64 {
	return v.distancePerStep
}

// AtHome reports whether the vehicle is at home (i.e. not within any away-interval) at t.
func (v *Vehicle) AtHome(t time.Time) bool {
	for i := range v.Config.AwayIntervals {
		if v.Config.AwayIntervals[i].Contains(t) {
			return false
		}
	}
	return true
}
