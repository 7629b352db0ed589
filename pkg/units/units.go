// Package units converts trace nanoseconds into reported units.
package units

import "math"

// Nanosecond multipliers.
const (
	Microsecond int64 = 1_000
	Millisecond       = 1_000 * Microsecond
	Second            = 1_000 * Millisecond
)

// Milliseconds converts nanoseconds to milliseconds rounded to three decimals.
func Milliseconds(ns int64) float64 {
	return math.Round(float64(ns)/float64(Microsecond)) / 1_000
}

// Percent returns part/whole*100 rounded to two decimals, or 0 when whole is
// not positive.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}

	return math.Round(float64(part)/float64(whole)*10_000) / 100
}
