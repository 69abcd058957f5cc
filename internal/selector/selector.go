// Package selector implements the Selector decision procedure: a pure function of the current Field slice, the previously
// observed field, the current JD, and a bad-weather flag, choosing the
// next field to observe or reporting that none qualifies.
package selector

import (
	"math"

	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
)

// Selector evaluates the priority order of spec.md §4.2 against a Field
// slice. It holds only configuration and is safe for concurrent use;
// Select itself never mutates a Field except through UpdateFieldStatus
// and ShortenInterval.
type Selector struct {
	Cfg config.SchedulingConfig
}

// New builds a Selector from the scheduling configuration.
func New(cfg config.SchedulingConfig) Selector {
	return Selector{Cfg: cfg}
}

// Result names which priority step produced the pick, for operator
// logging only; it plays no part in scheduling logic.
type Result struct {
	Index  int
	Reason field.SelectionReason
	Found  bool
}

// Select runs the seven-step priority order of spec.md §4.2 against
// fields, given the index of the previously observed field (prevOK=false
// if there was none), the current JD, and whether the weather is
// currently bad.
func (s Selector) Select(fields []*field.Field, prevIndex int, prevOK bool, nowJD float64, badWeather bool) Result {
	for _, f := range fields {
		s.UpdateFieldStatus(f, nowJD, badWeather)
	}

	if idx, ok := s.readyMustDo(fields); ok {
		return Result{Index: idx, Reason: field.ReasonReadyMustDo, Found: true}
	}
	if idx, ok := s.tooLateMustDo(fields, nowJD, badWeather); ok {
		return Result{Index: idx, Reason: field.ReasonTooLateMustDo, Found: true}
	}
	if idx, reason, ok := s.doNow(fields); ok {
		return Result{Index: idx, Reason: reason, Found: true}
	}
	if idx, ok := s.pairedContinuation(fields, prevIndex, prevOK, nowJD, badWeather); ok {
		return Result{Index: idx, Reason: field.ReasonPairedContinuation, Found: true}
	}
	if idx, ok := s.readyNormal(fields); ok {
		return Result{Index: idx, Reason: field.ReasonReadyNormal, Found: true}
	}
	if idx, ok := s.tooLateFallback(fields, nowJD, badWeather); ok {
		return Result{Index: idx, Reason: field.ReasonTooLateFallback, Found: true}
	}
	return Result{Found: false}
}

// readyMustDo is priority step 1: the Ready MustDo field with the
// smallest time_left.
func (s Selector) readyMustDo(fields []*field.Field) (int, bool) {
	best := -1
	for i, f := range fields {
		if f.Status != field.StatusReady || !f.IsMustDo() {
			continue
		}
		if best == -1 || f.TimeLeftHr < fields[best].TimeLeftHr {
			best = i
		}
	}
	return best, best != -1
}

// tooLateMustDo is priority step 2: if no Ready MustDo exists, the
// TooLate MustDo with the smallest (most negative) time_left is shortened
// and picked unconditionally.
func (s Selector) tooLateMustDo(fields []*field.Field, nowJD float64, badWeather bool) (int, bool) {
	best := -1
	for i, f := range fields {
		if f.Status != field.StatusTooLate || !f.IsMustDo() {
			continue
		}
		if best == -1 || f.TimeLeftHr < fields[best].TimeLeftHr {
			best = i
		}
	}
	if best == -1 {
		return -1, false
	}
	s.ShortenInterval(fields[best])
	s.UpdateFieldStatus(fields[best], nowJD, badWeather)
	return best, true
}

// doNow is priority step 3: prefer a Flat (sky or dome), else a Dark,
// else the first DoNow field encountered.
func (s Selector) doNow(fields []*field.Field) (int, field.SelectionReason, bool) {
	flat, dark, first := -1, -1, -1
	for i, f := range fields {
		if f.Status != field.StatusDoNow {
			continue
		}
		if first == -1 {
			first = i
		}
		if flat == -1 && (f.IsEveningFlat() || f.IsMorningFlat() || f.IsDomeFlat()) {
			flat = i
		}
		if dark == -1 && f.IsDark() {
			dark = i
		}
	}
	switch {
	case flat != -1:
		return flat, field.ReasonDoNowFlat, true
	case dark != -1:
		return dark, field.ReasonDoNowDark, true
	case first != -1:
		return first, field.ReasonDoNowOther, true
	default:
		return -1, field.ReasonNone, false
	}
}

// pairedContinuation is priority step 4. See spec.md §9 for the resolved
// fallthrough policy: the pair is picked only when Ready or TooLate; a
// NotDoable pair falls through to step 5 rather than being picked anyway.
func (s Selector) pairedContinuation(fields []*field.Field, prevIndex int, prevOK bool, nowJD float64, badWeather bool) (int, bool) {
	if !prevOK || prevIndex < 0 || prevIndex >= len(fields) {
		return -1, false
	}
	prev := fields[prevIndex]
	if !prev.IsSky() {
		return -1, false
	}
	nextIndex := prevIndex + 1
	if nextIndex >= len(fields) {
		return -1, false
	}
	next := fields[nextIndex]
	if !IsPair(prev, next, s.Cfg.RAStep0Hr) {
		return -1, false
	}

	switch next.Status {
	case field.StatusReady:
		return nextIndex, true
	case field.StatusTooLate:
		s.ShortenInterval(next)
		s.UpdateFieldStatus(next, nowJD, badWeather)
		return nextIndex, true
	default:
		return -1, false
	}
}

// readyNormal is priority step 5: the Ready field with the smallest
// completed-remaining count, ties broken by smallest time_left.
func (s Selector) readyNormal(fields []*field.Field) (int, bool) {
	best := -1
	for i, f := range fields {
		if f.Status != field.StatusReady {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bf := fields[best]
		if f.RemainingCount() < bf.RemainingCount() {
			best = i
		} else if f.RemainingCount() == bf.RemainingCount() && f.TimeLeftHr < bf.TimeLeftHr {
			best = i
		}
	}
	return best, best != -1
}

// tooLateFallback is priority step 6: the TooLate field with the largest
// (least negative) time_left is shortened; if that makes it Ready, it is
// picked.
func (s Selector) tooLateFallback(fields []*field.Field, nowJD float64, badWeather bool) (int, bool) {
	best := -1
	for i, f := range fields {
		if f.Status != field.StatusTooLate {
			continue
		}
		if best == -1 || f.TimeLeftHr > fields[best].TimeLeftHr {
			best = i
		}
	}
	if best == -1 {
		return -1, false
	}
	s.ShortenInterval(fields[best])
	s.UpdateFieldStatus(fields[best], nowJD, badWeather)
	if fields[best].Status == field.StatusReady {
		return best, true
	}
	return -1, false
}

// ShortenInterval implements spec.md §4.2's shorten_interval: the new
// interval is time_up/(N-completed); if that would fall below
// MIN_INTERVAL, the field is marked not-doable instead.
func (s Selector) ShortenInterval(f *field.Field) {
	remaining := f.RemainingCount()
	if remaining <= 0 {
		return
	}
	newInterval := f.TimeUpHr / float64(remaining)
	if newInterval < s.Cfg.MinIntervalHr {
		f.Doable = false
		f.Status = field.StatusNotDoable
		return
	}
	f.IntervalHr = newInterval
	f.TimeRequiredHr = float64(remaining) * newInterval
	f.TimeLeftHr = 0
}

// UpdateFieldStatus implements spec.md §4.2's update_field_status,
// refreshing status in line with the invariants of spec.md §3. Apart from
// ShortenInterval on a TooLate pick, it is the only way Select mutates a
// Field.
func (s Selector) UpdateFieldStatus(f *field.Field, jd float64, badWeather bool) {
	if !f.Doable {
		f.Status = field.StatusNotDoable
		return
	}
	if f.IsCompleted() {
		f.Doable = false
		f.Status = field.StatusNotDoable
		return
	}
	if jd < f.JDRise {
		f.Status = field.StatusNotDoable
		return
	}
	if jd > f.JDSet {
		f.Doable = false
		f.Status = field.StatusNotDoable
		return
	}
	if f.NextAttemptJD-jd > s.Cfg.MinExecutionTimeHr/24.0 {
		f.Status = field.StatusNotDoable
		return
	}

	switch {
	case f.IsDark() || f.IsDomeFlat():
		f.Status = field.StatusDoNow
		return
	case f.IsEveningFlat() || f.IsMorningFlat() || f.IsFocus() || f.IsPointingOffset():
		if badWeather {
			f.Status = field.StatusNotDoable
		} else {
			f.Status = field.StatusDoNow
		}
		return
	}

	remaining := f.N - f.Completed
	f.TimeRequiredHr = float64(remaining) * f.IntervalHr
	f.TimeUpHr = (f.JDSet - jd) * 24.0
	f.TimeLeftHr = f.TimeUpHr - f.TimeRequiredHr
	if f.TimeLeftHr < 0 {
		f.Status = field.StatusTooLate
	} else {
		f.Status = field.StatusReady
	}
}

// IsPair reports whether two Sky fields are a paired continuation: same
// Dec and an RA separation under RA_STEP0/cos(Dec).
func IsPair(a, b *field.Field, raStep0Hr float64) bool {
	if !a.IsSky() || !b.IsSky() {
		return false
	}
	if a.DecDeg != b.DecDeg {
		return false
	}
	cosDec := math.Cos(a.DecDeg * math.Pi / 180.0)
	if cosDec == 0 {
		return false
	}
	tolerance := raStep0Hr / cosDec
	return math.Abs(clockDifference(a.RAHr, b.RAHr)) < tolerance
}

// clockDifference is the signed difference between two RA values in
// hours, normalized to (-12, 12] so that wraparound near 0h/24h is
// handled the same way HourAngle normalization is.
func clockDifference(ra1, ra2 float64) float64 {
	d := ra2 - ra1
	for d <= -12 {
		d += 24
	}
	for d > 12 {
		d -= 24
	}
	return d
}
