// Package admission implements AdmissionFilter: given a
// Field, the current JD, and the night's almanac geometry, it sets
// doable, the rise/set window, and the derived time bookkeeping the
// Selector depends on. It performs no device I/O.
package admission

import (
	"math"

	"github.com/nugent68/ls4-scheduler-sub000/internal/almanac"
	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
)

// siderealMinuteJD is one sidereal minute expressed as a fraction of a JD
// day (a sidereal day is 1436.068 minutes, so a sidereal minute is
// 1436.068/1440 minutes), the step size for the
// rise/set LST scan (spec.md §4.1: "step LST from window start by a
// small increment (≈1 sidereal minute)").
const siderealMinuteJD = 1436.068 / (1440.0 * 1440.0)

// Nights bundles the four NightTimes an admission decision needs: tonight
// plus the three lookahead nights used by the SNE multi-night moon check.
type Nights struct {
	Tonight almanac.NightTimes
	Plus5   almanac.NightTimes
	Plus10  almanac.NightTimes
	Plus15  almanac.NightTimes
}

// Filter is the AdmissionFilter. It is stateless aside from its
// dependencies and safe for concurrent use.
type Filter struct {
	Provider almanac.Provider
	Clock    clock.Clock
	Cfg      config.AdmissionConfig
	Sched    config.SchedulingConfig
}

// New builds a Filter from the process configuration.
func New(p almanac.Provider, c clock.Clock, cfg config.AdmissionConfig, sched config.SchedulingConfig) *Filter {
	return &Filter{Provider: p, Clock: c, Cfg: cfg, Sched: sched}
}

// reject marks f not-doable and reports the rejection upward so Apply
// skips the derived-time pass that would otherwise run unconditionally.
func reject(f *field.Field) bool {
	f.Doable = false
	f.Status = field.StatusNotDoable
	return true
}

// Apply evaluates f against nowJD and nights, setting f.Doable, the
// rise/set window, and the derived time fields in place.
func (a *Filter) Apply(f *field.Field, nowJD float64, nights Nights) {
	if f.Excluded() {
		reject(f)
		return
	}

	f.GalacticLatDeg = a.Provider.GalacticLatitude(f.RAHr, f.DecDeg)

	var rejected bool
	switch f.Kind {
	case field.KindSky:
		rejected = a.applySky(f, nights)
	case field.KindDark:
		a.applyDark(f, nowJD, nights)
	case field.KindDomeFlat:
		a.setWindow(f, nowJD, nights.Tonight.SunriseJD)
	case field.KindFocus, field.KindPointingOffset:
		a.setWindow(f, nights.Tonight.DarkStart(), nights.Tonight.DarkEnd())
	case field.KindEveningFlat:
		a.setWindow(f, nights.Tonight.SunsetJD+a.Cfg.FlatWaitHr/24.0, nights.Tonight.DarkStart())
	case field.KindMorningFlat:
		a.setWindow(f, nights.Tonight.DarkEnd(), nights.Tonight.SunriseJD-a.Cfg.FlatWaitHr/24.0)
	default:
		rejected = reject(f)
	}
	if rejected {
		return
	}

	a.finishDerived(f)
}

// applyDark implements the three Dark sub-policies, keyed off f.DecDeg
// exactly as spec.md §4.1's table specifies (a Dark record carries a
// policy selector in Dec rather than a real declination, since a Dark
// exposure has no sky position).
func (a *Filter) applyDark(f *field.Field, nowJD float64, nights Nights) {
	switch {
	case f.DecDeg == 0:
		a.setWindow(f, nights.Tonight.DarkStart(), nights.Tonight.DarkEnd())
	case f.DecDeg < 0:
		a.setWindow(f, nights.Tonight.SunsetJD+a.Cfg.DarkWaitHr/24.0, nights.Tonight.DarkStart())
	case f.DecDeg > 0:
		start := math.Max(nights.Tonight.DarkEnd(), nowJD)
		a.setWindow(f, start, nights.Tonight.SunriseJD-a.Cfg.DarkWaitHr/24.0)
	}
}

// setWindow stores a kind-specific [start,end] window as jd_rise/jd_set.
func (a *Filter) setWindow(f *field.Field, start, end float64) {
	f.JDRise = start
	f.JDSet = end
}

// applySky implements the Sky row of the permitted-window table: a
// geometric rise/set search intersected with the airmass/hour-angle
// constraints, followed by every Sky-specific rejection rule. It returns
// true if f was rejected.
func (a *Filter) applySky(f *field.Field, nights Nights) bool {
	jdRise, jdSet, ok := a.skyRiseSet(f.RAHr, f.DecDeg, nights.Tonight)
	if !ok {
		return reject(f)
	}
	f.JDRise = jdRise
	f.JDSet = jdSet

	if f.DecDeg > a.Cfg.MaxDecDeg || f.DecDeg < a.Cfg.MinDecDeg {
		return reject(f)
	}

	illum := nights.Tonight.MoonIllum
	if illum > 0.5 {
		sep := a.Provider.MoonSeparation(nights.Tonight, f.RAHr, f.DecDeg)
		if sep < a.Cfg.MinMoonSepDeg {
			if !f.IsSNE() {
				return reject(f)
			}
			// SNE fields tolerate a single bad night; two or more fails
			// the screen.
			failures := 1
			for _, n := range []almanac.NightTimes{nights.Plus5, nights.Plus10, nights.Plus15} {
				if n.MoonIllum <= 0.5 {
					continue
				}
				if a.Provider.MoonSeparation(n, f.RAHr, f.DecDeg) < a.Cfg.MinMoonSepDeg {
					failures++
				}
			}
			if failures > 1 {
				return reject(f)
			}
		}
	}

	if f.IsSNE() && math.Abs(f.GalacticLatDeg) < a.Cfg.MinGalLatDeg {
		return reject(f)
	}

	return false
}

// skyRiseSet searches the night's dark window for the first and last JD
// at which the target satisfies both the airmass and hour-angle
// admission bounds, stepping LST forward (then backward) in
// sidereal-minute increments. It returns ok=false if the
// target never satisfies both bounds within the window ("never rises").
func (a *Filter) skyRiseSet(raHr, decDeg float64, night almanac.NightTimes) (jdRise, jdSet float64, ok bool) {
	start := night.DarkStart()
	end := night.DarkEnd()
	if end <= start {
		return 0, 0, false
	}

	within := func(jd float64) bool {
		t := clock.JDToUT(jd)
		lst := a.Clock.LST(t)
		ha := a.Provider.HourAngle(raHr, lst)
		am := a.Provider.Airmass(decDeg, ha)
		return am <= a.Cfg.MaxAirmass && math.Abs(ha) <= a.Cfg.MaxHourAngleHr
	}

	foundRise := false
	for jd := start; jd <= end; jd += siderealMinuteJD {
		if within(jd) {
			jdRise = jd
			foundRise = true
			break
		}
	}
	if !foundRise {
		return 0, 0, false
	}

	for jd := end; jd >= start; jd -= siderealMinuteJD {
		if within(jd) {
			return jdRise, jd, true
		}
	}
	// within(jdRise) was already true, so the backward scan always finds
	// at least that point; this line is unreachable.
	return jdRise, jdRise, true
}

// finishDerived fills time_up/time_required/time_left and the UT mirror
// of jd_rise/jd_set. The Sky-specific "enough time" rejection for
// non-MustDo fields is applied here too since it shares the same
// time_left computation as every other kind.
func (a *Filter) finishDerived(f *field.Field) {
	if f.JDSet <= f.JDRise {
		reject(f)
		return
	}

	f.UTRise = clock.JDToUT(f.JDRise)
	f.UTSet = clock.JDToUT(f.JDSet)
	f.TimeUpHr = (f.JDSet - f.JDRise) * 24.0
	f.TimeRequiredHr = float64(f.N) * f.ExptHr
	f.TimeLeftHr = f.TimeUpHr - float64(f.N-1)*f.IntervalHr

	if f.IsSky() && !f.IsMustDo() && f.TimeLeftHr < 0 {
		reject(f)
		return
	}

	f.Doable = true
}
