package domain

import "fmt"

// DurationUnit is a whitelist duration unit as configured by operators.
type DurationUnit string

const (
	UnitHours  DurationUnit = "hours"
	UnitDays   DurationUnit = "days"
	UnitMonths DurationUnit = "months"
)

// Minutes per unit. All internal accounting is in minutes; a month is a
// fixed 30 days so preview and grant never drift.
const (
	MinutesPerHour  = 60
	MinutesPerDay   = 24 * MinutesPerHour
	MinutesPerMonth = 30 * MinutesPerDay
)

// ValidUnit reports whether u is a recognized duration unit.
func ValidUnit(u DurationUnit) bool {
	switch u {
	case UnitHours, UnitDays, UnitMonths:
		return true
	}
	return false
}

// ToMinutes converts a {value, unit} pair to canonical minutes.
// Value ranges are enforced by the rewards config validator, not here.
func ToMinutes(value int, unit DurationUnit) int64 {
	switch unit {
	case UnitHours:
		return int64(value) * MinutesPerHour
	case UnitDays:
		return int64(value) * MinutesPerDay
	case UnitMonths:
		return int64(value) * MinutesPerMonth
	}
	return 0
}

// FromMinutes renders canonical minutes as a human-readable string for
// display. Never used for accounting decisions.
func FromMinutes(minutes int64) string {
	switch {
	case minutes >= MinutesPerMonth && minutes%MinutesPerMonth == 0:
		return fmt.Sprintf("%d months", minutes/MinutesPerMonth)
	case minutes >= MinutesPerDay && minutes%MinutesPerDay == 0:
		return fmt.Sprintf("%d days", minutes/MinutesPerDay)
	case minutes >= MinutesPerHour && minutes%MinutesPerHour == 0:
		return fmt.Sprintf("%d hours", minutes/MinutesPerHour)
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}
