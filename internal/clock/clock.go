// Package clock provides wall UT, Julian Date, and Local Sidereal Time
// conversions. Every scheduling decision in the scheduler is timestamped
// through a Clock so that the Supervisor's notion of "now" can be replaced
// with a simulated time source in tests.
package clock

import (
	"math"
	"time"
)

// JulianDateUnixEpoch is the Julian Date of 1970-01-01T00:00:00Z.
const JulianDateUnixEpoch = 2440587.5

// Clock converts between UT (time.Time), Julian Date, and Local Sidereal
// Time for a fixed observing-site longitude. Implementations must be safe
// for concurrent use by the Supervisor and the camera worker goroutine,
// though in practice only the Supervisor calls it.
type Clock interface {
	// Now returns the current UT.
	Now() time.Time
	// JD returns the Julian Date for the given UT.
	JD(t time.Time) float64
	// LST returns the Local Sidereal Time in hours [0,24) at the given UT,
	// for the clock's configured site longitude.
	LST(t time.Time) float64
}

// SiteClock is the default Clock, grounded on the observer's geodetic
// longitude. It performs no I/O and carries no mutable state.
type SiteClock struct {
	LonDeg float64 // site longitude, east-positive degrees
}

// NewSiteClock returns a Clock for a site at the given east longitude.
func NewSiteClock(lonDeg float64) SiteClock {
	return SiteClock{LonDeg: lonDeg}
}

// Now returns the current UT.
func (SiteClock) Now() time.Time {
	return time.Now().UTC()
}

// JD converts a UT time to Julian Date.
func (SiteClock) JD(t time.Time) float64 {
	unixSeconds := float64(t.UTC().UnixNano()) / 1e9
	return JulianDateUnixEpoch + unixSeconds/86400.0
}

// LST computes Local Sidereal Time in hours from the Greenwich sidereal
// angle plus the site's longitude, normalized to [0,24).
func (c SiteClock) LST(t time.Time) float64 {
	lstHours := math.Mod((SiderealAngleDeg(c.JD(t))+c.LonDeg)/15.0, 24.0)
	if lstHours < 0 {
		lstHours += 24.0
	}
	return lstHours
}

// SiderealAngleDeg returns the Greenwich mean sidereal angle in degrees
// for a Julian Date, from the IAU 1982 series. This is the one sidereal
// conversion in the repository; the almanac's rise/set and sun-altitude
// computations call it through here rather than carrying their own copy.
func SiderealAngleDeg(jd float64) float64 {
	d := jd - 2451545.0 // days since J2000.0
	T := d / 36525.0    // Julian centuries

	theta := 280.46061837 + 360.98564736629*d + T*T*(0.000387933-T/38710000.0)

	theta = math.Mod(theta, 360.0)
	if theta < 0 {
		theta += 360.0
	}
	return theta
}

// HoursToDuration converts a quantity of hours to a time.Duration.
func HoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

// JDToUT converts a Julian Date back to a UT time.Time.
func JDToUT(jd float64) time.Time {
	unixSeconds := (jd - JulianDateUnixEpoch) * 86400.0
	sec := math.Floor(unixSeconds)
	nsec := (unixSeconds - sec) * 1e9
	return time.Unix(int64(sec), int64(nsec)).UTC()
}
