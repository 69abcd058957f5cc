package almanac

import (
	"math"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
)

// Low-precision solar and lunar geometry for the admission screens. Both
// bodies are computed the same way: an abbreviated ecliptic position
// (longitude, latitude, obliquity of date), then one shared
// ecliptic-to-equatorial rotation. Nothing here needs an ephemeris
// kernel or data file; the worst case is a few tenths of a degree, well
// inside what the >=30-degree moon screen and the twilight scan can
// tolerate.

func julianDate(t time.Time) float64 {
	return clock.JulianDateUnixEpoch + float64(t.UTC().UnixNano())/1e9/86400.0
}

func degToRad(d float64) float64 { return d * math.Pi / 180.0 }
func radToDeg(r float64) float64 { return r * 180.0 / math.Pi }

func normalizeAngle360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// centuriesSinceJ2000 is the time argument every series below runs on.
func centuriesSinceJ2000(t time.Time) float64 {
	return (julianDate(t) - 2451545.0) / 36525.0
}

// solarEcliptic returns the Sun's apparent ecliptic longitude and the
// obliquity of date, both in degrees, at T Julian centuries from J2000.
// Mean longitude plus equation of center, with the nutation/aberration
// terms folded in through the lunar node.
func solarEcliptic(T float64) (lonDeg, oblDeg float64) {
	meanLon := normalizeAngle360(280.46646 + T*(36000.76983+T*0.0003032))
	anomaly := degToRad(normalizeAngle360(357.52911 + T*(35999.05029-T*0.0001537)))

	center := (1.914602-T*(0.004817+T*0.000014))*math.Sin(anomaly) +
		(0.019993-T*0.000101)*math.Sin(2*anomaly) +
		0.000289*math.Sin(3*anomaly)

	node := degToRad(125.04 - 1934.136*T)
	lonDeg = meanLon + center - 0.00569 - 0.00478*math.Sin(node)
	oblDeg = 23.439291 - T*(0.0130042+T*(0.00000016-T*0.000000504)) +
		0.00256*math.Cos(node)
	return lonDeg, oblDeg
}

// eclipticToEquatorial rotates an ecliptic position into equatorial
// RA/Dec, all in degrees. The Sun passes latitude zero; the Moon passes
// its own.
func eclipticToEquatorial(lonDeg, latDeg, oblDeg float64) (raDeg, decDeg float64) {
	lon, lat, obl := degToRad(lonDeg), degToRad(latDeg), degToRad(oblDeg)

	sinDec := math.Sin(lat)*math.Cos(obl) + math.Cos(lat)*math.Sin(obl)*math.Sin(lon)
	decDeg = radToDeg(math.Asin(sinDec))

	raDeg = radToDeg(math.Atan2(
		math.Sin(lon)*math.Cos(obl)-math.Tan(lat)*math.Sin(obl),
		math.Cos(lon)))
	return normalizeAngle360(raDeg), decDeg
}

// sunEquatorial returns the Sun's apparent RA/Dec in degrees.
func sunEquatorial(t time.Time) (raDeg, decDeg float64) {
	lon, obl := solarEcliptic(centuriesSinceJ2000(t))
	return eclipticToEquatorial(lon, 0, obl)
}

// sunAltitude returns the Sun's altitude in degrees at the given site
// latitude, longitude, and UT, for the twilight-boundary scan.
func sunAltitude(latDeg, lonDeg float64, t time.Time) float64 {
	raDeg, decDeg := sunEquatorial(t)
	lstDeg := normalizeAngle360(clock.SiderealAngleDeg(julianDate(t)) + lonDeg)
	haRad := degToRad(lstDeg - raDeg)
	decRad := degToRad(decDeg)
	latRad := degToRad(latDeg)

	sinAlt := math.Sin(decRad)*math.Sin(latRad) + math.Cos(decRad)*math.Cos(latRad)*math.Cos(haRad)
	return radToDeg(math.Asin(sinAlt))
}

// airmassAt returns the secant of the zenith angle for an object at
// latDeg, decDeg, haHr. Returns a sentinel large value below the horizon.
func airmassAt(latDeg, decDeg, haHr float64) float64 {
	latRad := degToRad(latDeg)
	decRad := degToRad(decDeg)
	haRad := degToRad(haHr * 15.0)

	sinAlt := math.Sin(decRad)*math.Sin(latRad) + math.Cos(decRad)*math.Cos(latRad)*math.Cos(haRad)
	if sinAlt <= 0.001 {
		return 1e6
	}
	return 1.0 / sinAlt
}

// angularSeparationDeg computes the great-circle separation between two
// RA/Dec positions, both in degrees, by comparing unit vectors: the
// atan2 form stays well-conditioned at both tiny and near-180
// separations, where a plain acos of the dot product degrades.
func angularSeparationDeg(ra1, dec1, ra2, dec2 float64) float64 {
	ax, ay, az := unitVector(ra1, dec1)
	bx, by, bz := unitVector(ra2, dec2)

	cx, cy, cz := ay*bz-az*by, az*bx-ax*bz, ax*by-ay*bx
	cross := math.Sqrt(cx*cx + cy*cy + cz*cz)
	dot := ax*bx + ay*by + az*bz
	return radToDeg(math.Atan2(cross, dot))
}

func unitVector(raDeg, decDeg float64) (x, y, z float64) {
	ra, dec := degToRad(raDeg), degToRad(decDeg)
	return math.Cos(dec) * math.Cos(ra), math.Cos(dec) * math.Sin(ra), math.Sin(dec)
}

// Galactic pole and ascending node, J2000 (IAU 1958 system), in degrees.
const (
	galacticPoleRADeg  = 192.85948
	galacticPoleDecDeg = 27.12825
	galacticNodeLonDeg = 32.93192
)

// galacticLatitude converts J2000 equatorial RA(hours)/Dec(deg) to
// galactic latitude in degrees.
func galacticLatitude(raHr, decDeg float64) float64 {
	raRad := degToRad(raHr * 15.0)
	decRad := degToRad(decDeg)
	poleRARad := degToRad(galacticPoleRADeg)
	poleDecRad := degToRad(galacticPoleDecDeg)

	sinB := math.Sin(decRad)*math.Sin(poleDecRad) +
		math.Cos(decRad)*math.Cos(poleDecRad)*math.Cos(raRad-poleRARad)

	if sinB > 1 {
		sinB = 1
	} else if sinB < -1 {
		sinB = -1
	}
	return radToDeg(math.Asin(sinB))
}

// moonPosition returns a low-precision geocentric lunar RA (hours), Dec
// (degrees), and illuminated fraction (0..1) at time t, from the
// abbreviated lunar theory: the five fundamental arguments, the largest
// longitude/latitude terms, then the same ecliptic-to-equatorial
// rotation the Sun uses.
func moonPosition(t time.Time) (raHr, decDeg, illum float64) {
	T := centuriesSinceJ2000(t)

	meanLon := normalizeAngle360(218.3164477 + 481267.88123421*T)
	elongation := degToRad(normalizeAngle360(297.8501921 + 445267.1114034*T))
	sunAnomaly := degToRad(normalizeAngle360(357.5291092 + 35999.0502909*T))
	moonAnomaly := degToRad(normalizeAngle360(134.9633964 + 477198.8675055*T))
	latArgument := degToRad(normalizeAngle360(93.2720950 + 483202.0175233*T))

	lonDeg := meanLon +
		6.289*math.Sin(moonAnomaly) -
		1.274*math.Sin(moonAnomaly-2*elongation) +
		0.658*math.Sin(2*elongation) -
		0.186*math.Sin(sunAnomaly) -
		0.059*math.Sin(2*moonAnomaly-2*elongation) -
		0.057*math.Sin(moonAnomaly-2*elongation+sunAnomaly)
	latDeg := 5.128 * math.Sin(latArgument)

	sunLonDeg, oblDeg := solarEcliptic(T)
	raDeg, dec := eclipticToEquatorial(normalizeAngle360(lonDeg), latDeg, oblDeg)

	// Illuminated fraction from the Moon-Sun elongation in ecliptic
	// longitude: (1 - cos e)/2 runs 0 at new moon to 1 at full.
	phase := degToRad(normalizeAngle360(lonDeg - sunLonDeg))
	illum = (1 - math.Cos(phase)) / 2

	return raDeg / 15.0, dec, illum
}
