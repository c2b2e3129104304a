package vehicle

import (
	"testing"
	"time"

	"github.com/cepro/cersim/timeutils"
)

func TestDistancePerStep(t *testing.T) {
	cfg := Config{
		DailyDistanceKM: 30.0,
		AwayIntervals: []timeutils.ClockTimePeriod{
			{Start: timeutils.ClockTime{Hour: 9}, End: timeutils.ClockTime{Hour: 17}},
		},
		BatteryRangeKM: 350.0,
	}
	v := New("ev1", cfg, 60)

	// Away interval is 8 hours = 480 minutes; one 60-minute step drives 30*60/480 = 3.75km.
	want := 3.75
	if got := v.DistancePerStep(); got != want {
		t.Errorf("DistancePerStep() = %v, want %v", got, want)
	}
}

func TestAtHome(t *testing.T) {
	cfg := Config{
		AwayIntervals: []timeutils.ClockTimePeriod{
			{Start: timeutils.ClockTime{Hour: 9}, End: timeutils.ClockTime{Hour: 17}},
		},
	}
	v := New("ev1", cfg, 30)

	atNoon := time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC)
	atNight := time.Date(2024, time.March, 3, 22, 0, 0, 0, time.UTC)

	if v.AtHome(atNoon) {
		t.Error("expected vehicle to be away at noon")
	}
	if !v.AtHome(atNight) {
		t.Error("expected vehicle to be at home at night")
	}
}
