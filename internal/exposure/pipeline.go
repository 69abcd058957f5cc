// Package exposure implements the ExposurePipeline: the
// per-attempt sequence of pointing, dithering, device commands, and
// progress bookkeeping that turns one Selector pick into a completed (or
// failed) observation. Grounded on the teacher's device-polling loop
// shape (litescript/ls-horizons fetches DSN telemetry on a fixed cadence
// and folds it into cached state); here the same cadence-and-cache idiom
// drives telescope/camera commands instead, with a single
// readout-pending invariant layered on top: at most one outstanding
// camera readout at a time.
package exposure

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/almanac"
	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/device"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
	"github.com/nugent68/ls4-scheduler-sub000/internal/logging"
	"github.com/nugent68/ls4-scheduler-sub000/internal/schederr"
	"github.com/nugent68/ls4-scheduler-sub000/internal/status"
)

// pendingExposure is the single outstanding camera readout the Supervisor
// thread may need to wait on before issuing the next expose. It is created when the no-wait hot
// path spawns its background worker, which reports on done, and is consumed by the next call into the
// pipeline, whichever field that turns out to be.
type pendingExposure struct {
	fieldIndex int
	done       chan error
}

// Pipeline implements the ExposurePipeline contract. It is driven
// exclusively by the Supervisor's single control thread; the only
// concurrency it owns is the per-exposure worker goroutine the no-wait
// policy spawns.
type Pipeline struct {
	Cfg       config.ExposureConfig
	FocusCfg  config.FocusConfig
	OffsetCfg config.OffsetConfig
	DitherCfg config.DitherConfig
	DeviceCfg config.DeviceConfig

	Telescope *device.TelescopeAdapter
	Camera    *device.CameraAdapter
	Almanac   almanac.Provider
	Clock     clock.Clock
	Status    *status.Manager
	Focus     FocusAnalyzer
	Offset    OffsetAnalyzer
	Log       *logging.Logger

	pending       *pendingExposure
	lastExposeEnd time.Time
	badReadouts   int
	seq           int
}

// New builds a Pipeline from its collaborators.
func New(
	cfg config.ExposureConfig, focusCfg config.FocusConfig, offsetCfg config.OffsetConfig,
	ditherCfg config.DitherConfig, deviceCfg config.DeviceConfig,
	tele *device.TelescopeAdapter, cam *device.CameraAdapter, alm almanac.Provider, clk clock.Clock,
	st *status.Manager, focus FocusAnalyzer, offset OffsetAnalyzer, log *logging.Logger,
) *Pipeline {
	return &Pipeline{
		Cfg: cfg, FocusCfg: focusCfg, OffsetCfg: offsetCfg, DitherCfg: ditherCfg, DeviceCfg: deviceCfg,
		Telescope: tele, Camera: cam, Almanac: alm, Clock: clk, Status: st, Focus: focus, Offset: offset, Log: log,
	}
}

// Execute runs exactly one scheduled attempt (or, when a long Sky
// exposure splits, a burst of sub-attempts) for fields[idx], following
// the fixed per-attempt ordering (pointing, dithering, device commands,
// bookkeeping), and returns the elapsed wall-clock duration for the
// Supervisor's time advance. It must be safe to invoke immediately after
// a bad readout on some other field.
func (p *Pipeline) Execute(ctx context.Context, fields []*field.Field, idx int, now time.Time) (time.Duration, error) {
	f := fields[idx]
	lstHr := p.Clock.LST(now)
	nowJD := p.Clock.JD(now)

	pointed := !(f.IsDark() || f.IsDomeFlat())

	var raHr, decDeg, haHr float64
	if pointed {
		var err error
		raHr, decDeg, haHr, err = p.resolvePointing(f, lstHr)
		if err != nil {
			return 0, err
		}

		trackDeadline := time.Duration(p.Cfg.TrackDeadlineSec * float64(time.Second))
		if err := p.Telescope.Track(ctx, raHr, decDeg, trackDeadline); err != nil {
			p.Telescope.Stop(ctx)
			return 0, fmt.Errorf("track field %d: %w", f.Number, err)
		}
		if p.OffsetCfg.EnableTrackingCorrection {
			rateRA, rateDec := p.trackingRates(haHr, decDeg)
			if err := p.Telescope.SetTracking(ctx, rateRA, rateDec, trackDeadline); err != nil {
				return 0, fmt.Errorf("settracking field %d: %w", f.Number, err)
			}
		}
	}

	n := p.splitCount(f, haHr)
	if n > 1 {
		growN(f, n-1, p.Cfg.MaxObsPerField)
	}
	subExptHr := f.ExptHr
	if n > 1 {
		subExptHr = f.ExptHr / float64(n)
	}

	// A bad previous readout rescinds the previous field's attempt but
	// never stops this one.
	p.waitPreviousReadout(fields, nowJD)

	if _, err := p.Status.RefreshCamera(ctx, p.Camera, now); err != nil && p.Log != nil {
		p.Log.Warn("camera status refresh failed: %v", err)
	}

	shutter := shutterOpen(f)
	var elapsed time.Duration

	for sub := 0; sub < n; sub++ {
		mode := device.ExposeSingle
		if n > 1 {
			switch {
			case sub == 0:
				mode = device.ExposeFirst
			case sub == n-1:
				mode = device.ExposeLast
			default:
				mode = device.ExposeNext
			}
		}

		// No two expose commands may be concurrently in flight: a
		// sub-exposure must wait out its predecessor's readout before
		// the next expose is issued.
		if sub > 0 {
			if p.waitPreviousReadout(fields, nowJD) {
				p.badReadouts = 0
			} else {
				p.badReadouts++
				if p.badReadouts > p.Cfg.MaxBadReadouts {
					return elapsed, fmt.Errorf("%w: field %d split burst", schederr.ErrBadReadout, f.Number)
				}
			}
		}

		if err := p.fillHeader(ctx, f, raHr, decDeg, lstHr, haHr, f.Completed+1); err != nil {
			return elapsed, fmt.Errorf("fill header field %d: %w", f.Number, err)
		}
		if err := p.clearIfNeeded(ctx, now); err != nil {
			return elapsed, fmt.Errorf("clear field %d: %w", f.Number, err)
		}

		exptSec := subExptHr * 3600.0
		exptDur := time.Duration(exptSec * float64(time.Second))
		prefix := p.nextFilenamePrefix(now, f.Kind)
		deadline := device.ExposeBudget(
			mode, exptDur,
			time.Duration(p.Cfg.ReadoutSec*float64(time.Second)),
			time.Duration(p.Cfg.TransferSec*float64(time.Second)),
			time.Duration(p.Cfg.ExposeSlackSec*float64(time.Second)),
		)

		if p.Cfg.NoWaitPolicy {
			pend := &pendingExposure{fieldIndex: idx, done: make(chan error, 1)}
			go func(exptSec float64, prefix string, mode device.ExposeMode, deadline time.Duration) {
				pend.done <- p.Camera.Expose(ctx, shutter, exptSec, prefix, mode, deadline)
			}(exptSec, prefix, mode, deadline)
			p.pending = pend

			sleepDur := exptDur + time.Duration(p.Cfg.NoWaitEpsilonSec*float64(time.Second))
			select {
			case <-time.After(sleepDur):
			case <-ctx.Done():
				return elapsed, ctx.Err()
			}
		} else {
			if err := p.Camera.Expose(ctx, shutter, exptSec, prefix, mode, deadline); err != nil {
				return elapsed, fmt.Errorf("expose field %d: %w", f.Number, err)
			}
			p.pending = nil
		}

		f.AppendAttempt(field.Attempt{
			UT:             now,
			JD:             nowJD,
			LSTHr:          lstHr,
			HAHr:           haHr,
			Airmass:        p.Almanac.Airmass(decDeg, haHr),
			ActualExptHr:   subExptHr,
			FilenamePrefix: prefix,
		})

		p.lastExposeEnd = now.Add(exptDur)
		elapsed += exptDur
	}

	return elapsed, nil
}

// waitPreviousReadout blocks on whatever exposure is currently pending —
// the previous field's last sub-exposure, or nothing — and rescinds that
// field's most recent attempt if the readout reports failure. A bad
// readout never halts the caller's own attempt; it only rescinds the one that just failed. The boolean
// result reports whether the pending readout (if any) succeeded, for
// callers such as focus/offset post-processing that branch on it.
func (p *Pipeline) waitPreviousReadout(fields []*field.Field, nowJD float64) bool {
	if p.pending == nil {
		return true
	}
	pend := p.pending
	p.pending = nil

	err := <-pend.done
	if err == nil {
		return true
	}
	if pend.fieldIndex >= 0 && pend.fieldIndex < len(fields) {
		fields[pend.fieldIndex].UndoLastAttempt(nowJD)
	}
	if p.Log != nil {
		p.Log.Warn("bad readout on field %d: %v", pend.fieldIndex, err)
	}
	return false
}

// resolvePointing derives the commanded RA/Dec and the hour angle at
// which it is being observed, applying the kind-specific first-attempt
// overrides, the stored pointing offset (for Sky fields), the optional
// linear pointing correction, and any lattice dither.
func (p *Pipeline) resolvePointing(f *field.Field, lstHr float64) (raHr, decDeg, haHr float64, err error) {
	if !f.PointingInitialized {
		raHr, decDeg = kindFirstAttemptPointing(f, lstHr)
		f.CommandedRAHr, f.CommandedDecDeg = raHr, decDeg
		f.FirstAttemptHAHr = p.Almanac.HourAngle(raHr, lstHr)
		f.PointingInitialized = true
	} else {
		raHr, decDeg = f.CommandedRAHr, f.CommandedDecDeg
	}

	haHr = p.Almanac.HourAngle(raHr, lstHr)

	if f.IsSky() {
		off := p.Status.Telescope()
		raHr -= off.OffsetRADeg / 15.0
		decDeg -= off.OffsetDecDeg

		if p.OffsetCfg.EnablePointingCorrection {
			draDeg, ddecDeg := p.pointingCorrection(f.FirstAttemptHAHr, haHr)
			raHr -= draDeg / 15.0
			decDeg -= ddecDeg
		}
	}

	if draDeg, ddecDeg := p.ditherOffset(f); draDeg != 0 || ddecDeg != 0 {
		raHr += draDeg / 15.0
		decDeg += ddecDeg
	}

	return raHr, decDeg, haHr, nil
}

// kindFirstAttemptPointing applies each kind's first-attempt pointing
// override.
func kindFirstAttemptPointing(f *field.Field, lstHr float64) (raHr, decDeg float64) {
	switch f.Kind {
	case field.KindFocus, field.KindPointingOffset:
		return wrapHours(lstHr + 1), 0
	case field.KindEveningFlat:
		return wrapHours(lstHr + 3), 0
	case field.KindMorningFlat:
		return wrapHours(lstHr - 4), 0
	default:
		return f.RAHr, f.DecDeg
	}
}

func wrapHours(h float64) float64 {
	for h < 0 {
		h += 24
	}
	for h >= 24 {
		h -= 24
	}
	return h
}

// pointingCorrection is the optional per-attempt RA/Dec correction term
// derived from the drift between the sequence's first-attempt hour angle
// and the current one; disabled (zero gain) unless explicitly configured.
func (p *Pipeline) pointingCorrection(ha0, ha float64) (draDeg, ddecDeg float64) {
	delta := ha - ha0
	gain := p.OffsetCfg.PointingGainDegPerHr
	return gain * delta, gain * delta
}

// trackingRates is the optional non-sidereal tracking-rate correction
// computed from the current hour angle and declination; disabled (zero
// gain) unless explicitly configured.
func (p *Pipeline) trackingRates(haHr, decDeg float64) (rateRA, rateDec float64) {
	gain := p.OffsetCfg.TrackingGainDegPerHr
	return gain * haHr, gain * math.Tan(decDeg*math.Pi/180.0)
}

// ditherOffset applies the concentric-ring dither lattice for Flats and
// for 6-required Sky coadds, when each is enabled.
func (p *Pipeline) ditherOffset(f *field.Field) (draDeg, ddecDeg float64) {
	stepDeg := p.DitherCfg.StepArcsec / 3600.0
	switch {
	case (f.IsEveningFlat() || f.IsMorningFlat() || f.IsDomeFlat()) && p.DitherCfg.EnabledForFlats:
		return DitherOffset(f.Completed+1, stepDeg, f.DecDeg)
	case f.IsSky() && f.N == 6 && p.DitherCfg.EnabledForCoadds:
		return DitherOffset(f.Completed+1, stepDeg, f.DecDeg)
	default:
		return 0, 0
	}
}

// splitCount: a Sky field west of the meridian (HA > 0) whose planned
// exposure exceeds LONG_EXPTIME splits into ceil(expt/LONG_EXPTIME)+1
// equal sub-exposures.
func (p *Pipeline) splitCount(f *field.Field, haHr float64) int {
	if !f.IsSky() || haHr <= 0 || f.ExptHr <= p.Cfg.LongExptimeHr {
		return 1
	}
	n := int(math.Ceil(f.ExptHr/p.Cfg.LongExptimeHr)) + 1
	if n < 1 {
		n = 1
	}
	return n
}

// growN raises a field's required count by extra, capped at maxObs.
func growN(f *field.Field, extra int, maxObs int) {
	newN := f.N + extra
	if newN > maxObs {
		newN = maxObs
	}
	f.N = newN
}

func shutterOpen(f *field.Field) bool {
	return !f.IsDark()
}

// fillHeader imprints the field's FITS header slots.
func (p *Pipeline) fillHeader(ctx context.Context, f *field.Field, raHr, decDeg, lstHr, haHr float64, seq int) error {
	tele := p.Status.Telescope()
	entries := []struct{ key, value string }{
		{"RA", fmt.Sprintf("%.6f", raHr)},
		{"DEC", fmt.Sprintf("%.6f", decDeg)},
		{"LST", fmt.Sprintf("%.6f", lstHr)},
		{"HA", fmt.Sprintf("%.6f", haHr)},
		{"FILTER", tele.Filter},
		{"FILTERID", tele.Filter},
		{"FOCUS", fmt.Sprintf("%.4f", tele.FocusMM)},
		{"SEQUENCE", fmt.Sprintf("%d", seq)},
		{"IMAGETYPE", f.Kind.String()},
		{"FLATFILE", flatFileFlag(f)},
		{"COMMENT", f.Comment},
	}
	for _, e := range entries {
		if err := p.Camera.Header(ctx, e.key, e.value); err != nil {
			return fmt.Errorf("header %s: %w", e.key, err)
		}
	}
	return nil
}

func flatFileFlag(f *field.Field) string {
	if f.IsEveningFlat() || f.IsMorningFlat() || f.IsDomeFlat() {
		return "T"
	}
	return "F"
}

// clearIfNeeded issues a camera clear when the gap since the last
// exposure exceeded CLEAR_INTERVAL.
func (p *Pipeline) clearIfNeeded(ctx context.Context, now time.Time) error {
	if p.lastExposeEnd.IsZero() {
		return nil
	}
	if now.Sub(p.lastExposeEnd).Hours() <= p.Cfg.ClearIntervalHr {
		return nil
	}
	return p.Camera.Clear(ctx, p.Cfg.ClearDurationSec)
}

// nextFilenamePrefix derives the 16-character filename prefix: an 8-digit
// UT date, underscore, 6-digit monotonic sequence, and kind letter.
func (p *Pipeline) nextFilenamePrefix(now time.Time, kind field.Kind) string {
	p.seq++
	return fmt.Sprintf("%s_%06d%c", now.UTC().Format("20060102"), p.seq%1000000, kind.LetterCode())
}

// PostProcessFocus runs the Focus subsequence's
// post-processing: once a Focus field reaches its required count, wait
// for the final readout, run the external focus analyzer over the
// sequence's filename prefixes, clamp the result, and command the new
// focus position with a backlash overshoot and settling repeats.
func (p *Pipeline) PostProcessFocus(ctx context.Context, fields []*field.Field, idx int, nowJD float64) error {
	f := fields[idx]
	if !f.IsFocus() || !f.IsCompleted() || f.FocusPostProcessed {
		return nil
	}

	if ok := p.waitPreviousReadout(fields, nowJD); !ok {
		// The bad readout already decremented completed; the field will be
		// reattempted on a later tick instead of post-processed now.
		return nil
	}

	prefixes := make([]string, len(f.Attempts))
	for i, a := range f.Attempts {
		prefixes[i] = a.FilenamePrefix
	}

	best, err := p.Focus.AnalyzeFocus(ctx, prefixes)
	if err != nil {
		f.FocusPostProcessed = true
		return fmt.Errorf("%w: focus analyzer field %d: %v", schederr.ErrOutOfRange, f.Number, err)
	}

	if best < p.FocusCfg.MinFocusMM || best > p.FocusCfg.MaxFocusMM {
		best = f.FocusDefaultMM
	}
	if math.Abs(best-f.FocusDefaultMM) > p.FocusCfg.MaxFocusChangeMM {
		if best > f.FocusDefaultMM {
			best = f.FocusDefaultMM + p.FocusCfg.MaxFocusChangeMM
		} else {
			best = f.FocusDefaultMM - p.FocusCfg.MaxFocusChangeMM
		}
	}

	current := p.Status.Telescope().FocusMM
	if best < current {
		overshoot := best - p.FocusCfg.MaxFocusChangeMM
		if err := p.Telescope.SetFocus(ctx, overshoot); err != nil {
			return fmt.Errorf("focus overshoot field %d: %w", f.Number, err)
		}
	}
	for i := 0; i < p.FocusCfg.SettlingIterations; i++ {
		if err := p.Telescope.SetFocus(ctx, best); err != nil {
			return fmt.Errorf("setfocus field %d: %w", f.Number, err)
		}
	}

	f.FocusPostProcessed = true
	return nil
}

// PostProcessOffset runs the PointingOffset subsequence's
// post-processing: once a PointingOffset field reaches its required
// count, wait for the final readout, run the external offset analyzer,
// clamp the result, and store it for Sky fields to subtract.
func (p *Pipeline) PostProcessOffset(ctx context.Context, fields []*field.Field, idx int, nowJD float64) error {
	f := fields[idx]
	if !f.IsPointingOffset() || !f.IsCompleted() || f.OffsetPostProcessed {
		return nil
	}

	if ok := p.waitPreviousReadout(fields, nowJD); !ok {
		return nil
	}
	if len(f.Attempts) == 0 {
		f.OffsetPostProcessed = true
		return nil
	}

	last := f.Attempts[len(f.Attempts)-1]
	draDeg, ddecDeg, err := p.Offset.AnalyzeOffset(ctx, last.FilenamePrefix)
	if err != nil {
		f.OffsetPostProcessed = true
		return fmt.Errorf("%w: offset analyzer field %d: %v", schederr.ErrOutOfRange, f.Number, err)
	}

	draDeg = clampDeg(draDeg, p.OffsetCfg.MaxOffsetDeg)
	ddecDeg = clampDeg(ddecDeg, p.OffsetCfg.MaxOffsetDeg)
	p.Status.SetOffset(draDeg, ddecDeg)

	f.OffsetPostProcessed = true
	return nil
}

func clampDeg(v, bound float64) float64 {
	if v < -bound {
		return -bound
	}
	if v > bound {
		return bound
	}
	return v
}
