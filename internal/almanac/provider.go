// Package almanac defines the AlmanacProvider contract
// and a self-contained default implementation of it. The scheduling core
// only ever consumes this interface; nothing outside this package and its
// tests may depend on the specific formulas used to satisfy it.
package almanac

import "time"

// NightTimes carries the JD/UT/LST of the night's boundary events plus the
// moon's position and illumination for one calendar date. It is immutable
// after construction.
type NightTimes struct {
	Date time.Time // the calendar date this NightTimes was computed for

	SunsetJD float64
	SunsetUT time.Time

	EveningTwilight12JD float64
	EveningTwilight12UT time.Time
	EveningTwilight18JD float64
	EveningTwilight18UT time.Time

	MorningTwilight18JD float64
	MorningTwilight18UT time.Time
	MorningTwilight12JD float64
	MorningTwilight12UT time.Time

	SunriseJD float64
	SunriseUT time.Time

	LSTAtSunset float64 // hours

	MoonRAHr   float64 // hours
	MoonDecDeg float64
	MoonIllum  float64 // 0..1 fraction illuminated
}

// DarkStart is the start of the usable dark-observing window, the evening
// 18-degree twilight boundary: the admission window start for Dark
// dec=0, Focus, and PointingOffset fields.
func (n NightTimes) DarkStart() float64 { return n.EveningTwilight18JD }

// DarkEnd is the end of the usable dark-observing window, the morning
// 18-degree twilight boundary: the corresponding admission window end.
func (n NightTimes) DarkEnd() float64 { return n.MorningTwilight18JD }

// Provider is the AlmanacProvider contract: it maps a calendar date to a
// NightTimes value, and given RA/Dec relations returns airmass and hour
// angle. No component outside this package may assume a particular
// ephemeris formula; Provider is the entire surface the scheduling core
// depends on.
type Provider interface {
	// NightTimes returns the night boundaries and moon geometry for the
	// night that follows 12:00 UT on date's year/month/day; the time of
	// day carried by date is ignored.
	NightTimes(date time.Time) (NightTimes, error)

	// Airmass returns the airmass (secant of zenith angle) for an object
	// at the given declination and hour angle, both in their natural
	// units (degrees, hours). Returns a very large number if the object
	// is below the horizon.
	Airmass(decDeg, haHr float64) float64

	// HourAngle returns LST - RA, in hours, normalized to [-12, 12).
	HourAngle(raHr, lstHr float64) float64

	// GalacticLatitude returns the galactic latitude in degrees for an
	// equatorial (RA hours, Dec degrees) position, used by the SNE
	// galactic-latitude gate.
	GalacticLatitude(raHr, decDeg float64) float64

	// MoonSeparation returns the angular separation in degrees between
	// the moon (as given in NightTimes) and a target position.
	MoonSeparation(n NightTimes, raHr, decDeg float64) float64
}
