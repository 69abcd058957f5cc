package almanac

import (
	"math"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
)

// SimpleProvider is the default Provider: a cgo-free, data-file-free
// implementation using low-precision solar and lunar formulas in the style
// of the Astronomical Almanac (the same family of approximation the
// teacher repo used for its own Sun position, accurate to roughly 0.01
// degrees — plenty for the separation and airmass screens this scheduler
// needs; see DESIGN.md for why the corpus's higher-precision ephemeris
// engines could not be wired here instead).
type SimpleProvider struct {
	Clock  clock.SiteClock
	LatDeg float64
}

// NewSimpleProvider returns a SimpleProvider for the given site latitude
// and east longitude in degrees.
func NewSimpleProvider(latDeg, lonDeg float64) SimpleProvider {
	return SimpleProvider{Clock: clock.NewSiteClock(lonDeg), LatDeg: latDeg}
}

// sunsetAltitudeDeg is the standard altitude for sunrise/sunset: -50
// arcminutes (solar radius plus atmospheric refraction).
const sunsetAltitudeDeg = -0.8333

// sunEvent names one of the six altitude boundaries scanned per night.
type sunEvent struct {
	thresholdDeg float64
	falling      bool // true = sun descending through threshold (evening), false = rising (morning)
}

// NightTimes computes sunset/sunrise and 12/18-degree twilight boundaries
// by scanning the Sun's altitude minute-by-minute across a 30-hour window
// starting at 12:00 UT on the given date, recording each threshold the first time it
// is crossed in the expected direction. This mirrors the teacher's
// linear-interpolation horizon-crossing search in astro/visibility.go,
// adapted from a fixed elevation-sample slice to a direct scan since the
// Sun's position is cheap to evaluate at any instant.
func (p SimpleProvider) NightTimes(date time.Time) (NightTimes, error) {
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)

	events := []sunEvent{
		{sunsetAltitudeDeg, true},
		{-12.0, true},
		{-18.0, true},
		{-18.0, false},
		{-12.0, false},
		{sunsetAltitudeDeg, false},
	}
	found := make([]time.Time, len(events))
	done := make([]bool, len(events))

	const step = time.Minute
	const window = 30 * time.Hour

	prevT := noon
	prevAlt := sunAltitude(p.LatDeg, p.Clock.LonDeg, noon)

	for d := step; d <= window; d += step {
		t := noon.Add(d)
		alt := sunAltitude(p.LatDeg, p.Clock.LonDeg, t)

		for i, ev := range events {
			if done[i] {
				continue
			}
			var crossed bool
			if ev.falling {
				crossed = prevAlt >= ev.thresholdDeg && alt < ev.thresholdDeg
			} else {
				crossed = prevAlt < ev.thresholdDeg && alt >= ev.thresholdDeg
			}
			if crossed {
				found[i] = interpolateCrossing(prevT, t, prevAlt, alt, ev.thresholdDeg)
				done[i] = true
			}
		}

		prevT, prevAlt = t, alt
	}
	for i := range found {
		if !done[i] {
			found[i] = noon.Add(window) // never crossed within the window; clamp
		}
	}

	midnight := noon.Add(12 * time.Hour)
	moonRA, moonDec, moonIllum := moonPosition(midnight)

	return NightTimes{
		Date: date,

		SunsetJD: p.Clock.JD(found[0]),
		SunsetUT: found[0],

		EveningTwilight12JD: p.Clock.JD(found[1]),
		EveningTwilight12UT: found[1],
		EveningTwilight18JD: p.Clock.JD(found[2]),
		EveningTwilight18UT: found[2],

		MorningTwilight18JD: p.Clock.JD(found[3]),
		MorningTwilight18UT: found[3],
		MorningTwilight12JD: p.Clock.JD(found[4]),
		MorningTwilight12UT: found[4],

		SunriseJD: p.Clock.JD(found[5]),
		SunriseUT: found[5],

		LSTAtSunset: p.Clock.LST(found[0]),

		MoonRAHr:   moonRA,
		MoonDecDeg: moonDec,
		MoonIllum:  moonIllum,
	}, nil
}

func interpolateCrossing(t1, t2 time.Time, v1, v2, threshold float64) time.Time {
	if math.Abs(v2-v1) < 1e-9 {
		return t1
	}
	frac := (threshold - v1) / (v2 - v1)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	dt := t2.Sub(t1)
	return t1.Add(time.Duration(float64(dt) * frac))
}

// Airmass returns the secant of the zenith angle for an object at the
// given declination and hour angle, using the site latitude the provider
// was constructed with.
func (p SimpleProvider) Airmass(decDeg, haHr float64) float64 {
	return airmassAt(p.LatDeg, decDeg, haHr)
}

// HourAngle returns LST - RA normalized into [-12, 12) hours.
func (SimpleProvider) HourAngle(raHr, lstHr float64) float64 {
	ha := lstHr - raHr
	for ha < -12 {
		ha += 24
	}
	for ha >= 12 {
		ha -= 24
	}
	return ha
}

// GalacticLatitude converts equatorial (J2000) RA/Dec to galactic latitude
// in degrees using the standard IAU galactic pole and node constants.
func (SimpleProvider) GalacticLatitude(raHr, decDeg float64) float64 {
	return galacticLatitude(raHr, decDeg)
}

// MoonSeparation returns the angular separation in degrees between the
// moon position recorded in n and the given target.
func (SimpleProvider) MoonSeparation(n NightTimes, raHr, decDeg float64) float64 {
	return angularSeparationDeg(n.MoonRAHr*15.0, n.MoonDecDeg, raHr*15.0, decDeg)
}
