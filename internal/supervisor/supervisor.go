// Package supervisor implements the main loop: it owns
// wall-clock ticks, pause/resume/terminate signals, dome/weather gating,
// calls the Selector and ExposurePipeline, and drains incremental plan
// additions. Grounded on the teacher's ticked fetch loop
// (cmd/ls-horizons/main.go in litescript/ls-horizons): a context-driven
// select loop between a timer channel and a cancellation channel, here
// carrying the scheduling tick instead of a DSN telemetry refresh.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/admission"
	"github.com/nugent68/ls4-scheduler-sub000/internal/almanac"
	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/device"
	"github.com/nugent68/ls4-scheduler-sub000/internal/exposure"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
	"github.com/nugent68/ls4-scheduler-sub000/internal/logging"
	"github.com/nugent68/ls4-scheduler-sub000/internal/planfile"
	"github.com/nugent68/ls4-scheduler-sub000/internal/recorder"
	"github.com/nugent68/ls4-scheduler-sub000/internal/selector"
	"github.com/nugent68/ls4-scheduler-sub000/internal/status"
)

// Phase is the Supervisor's own coarse state.
type Phase int

const (
	PhaseWaitingForSunset Phase = iota
	PhaseObserving
	PhaseEnding
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForSunset:
		return "waiting_for_sunset"
	case PhaseObserving:
		return "observing"
	case PhaseEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Supervisor owns every scheduling decision for one night. A single
// control thread calls Run; the only other concurrency is the
// ExposurePipeline's per-exposure worker goroutine.
type Supervisor struct {
	Cfg config.Config

	Clock    clock.Clock
	Almanac  almanac.Provider
	Admit    *admission.Filter
	Selector selector.Selector
	Pipeline *exposure.Pipeline
	Recorder *recorder.Recorder
	Status   *status.Manager
	Tele     *device.TelescopeAdapter
	Flags    *config.RuntimeFlags
	Log      *logging.Logger

	PlanPath string

	Fields      []*field.Field
	NextNumber  int
	AddConsumed int // lines already read from PlanPath+".add"

	nights almanac.NightTimes
	plus5  almanac.NightTimes
	plus10 almanac.NightTimes
	plus15 almanac.NightTimes

	Phase Phase

	prevIndex int
	prevOK    bool
	telescopeRunning bool
	stowed           bool
}

// New builds a Supervisor. Callers are expected to have already loaded or
// restored Fields (via planfile.Load or recorder.LoadProgress) and to
// have computed the four admission NightTimes for the observing date.
func New(cfg config.Config, night, plus5, plus10, plus15 almanac.NightTimes) *Supervisor {
	return &Supervisor{
		Cfg: cfg,
		nights: night, plus5: plus5, plus10: plus10, plus15: plus15,
		Phase: PhaseWaitingForSunset,
	}
}

// AdmitAll applies the AdmissionFilter to every field not yet admitted
// (JDRise and JDSet both still zero), called once after an initial load
// and again after each incremental-add batch. A field rejected before any
// window was set is evaluated again and rejected again.
func (s *Supervisor) AdmitAll(nowJD float64) {
	nights := admission.Nights{Tonight: s.nights, Plus5: s.plus5, Plus10: s.plus10, Plus15: s.plus15}
	for _, f := range s.Fields {
		if f.JDRise != 0 || f.JDSet != 0 {
			continue
		}
		s.Admit.Apply(f, nowJD, nights)
	}
}

// ReloadAdditions implements spec.md §4.4 step 1: new fields are read
// from "<plan>.add", admitted, and appended. The whole file is parsed on
// each call, but fields from lines within the previously-consumed prefix
// are not appended again.
func (s *Supervisor) ReloadAdditions(nowJD float64) error {
	addPath := s.PlanPath + s.Cfg.Paths.PlanAddSuffix
	fh, err := os.Open(addPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open incremental additions %s: %w", addPath, err)
	}
	defer fh.Close()

	bounds := planfile.Bounds{
		MaxExptHr:      s.Cfg.Scheduling.MaxExptHr,
		MinIntervalHr:  s.Cfg.Scheduling.MinIntervalHr,
		MaxIntervalHr:  s.Cfg.Scheduling.MaxIntervalHr,
		MaxObsPerField: s.Cfg.Exposure.MaxObsPerField,
	}
	res, err := planfile.Load(fh, s.NextNumber, bounds)
	if err != nil {
		return fmt.Errorf("read incremental additions: %w", err)
	}

	newLines := res.LinesRead - s.AddConsumed
	if newLines <= 0 {
		return nil
	}
	s.AddConsumed = res.LinesRead

	for _, pe := range res.Errors {
		if pe.LineNumber <= 0 {
			continue
		}
		if s.Log != nil {
			s.Log.Warn("incremental add: %v", pe)
		}
	}

	added := 0
	for _, f := range res.Fields {
		if f.SourceLine <= s.AddConsumed-newLines {
			continue // already consumed in an earlier call
		}
		s.Fields = append(s.Fields, f)
		s.NextNumber = f.Number + 1
		added++
	}
	if added > 0 {
		s.AdmitAll(nowJD)
		if s.Log != nil {
			s.Log.Info("admitted %d incrementally added field(s)", added)
		}
	}
	return nil
}

// Tick runs exactly one iteration of the per-tick policy
// and returns the wall-clock duration to advance before the next tick,
// and whether the night is over.
func (s *Supervisor) Tick(ctx context.Context, now time.Time) (time.Duration, bool, error) {
	if s.Flags.Terminating() {
		return 0, true, nil
	}

	nowJD := s.Clock.JD(now)

	if err := s.ReloadAdditions(nowJD); err != nil && s.Log != nil {
		s.Log.Warn("reload additions: %v", err)
	}

	if err := s.Status.RefreshTelescope(ctx, s.Tele, now); err != nil {
		if s.Log != nil {
			s.Log.WarnAt(now, "telescope status refresh failed: %v", err)
		}
	}

	badWeather := s.Status.BadWeather()

	// spec.md §4.4 step 3: "If bad weather and telescope running -> stop
	// it." Step 2's stow-flag clearing happens here too: once weather
	// clears after a stop, the next successful tick is free to resume
	// issuing mount commands.
	if badWeather && s.telescopeRunning {
		_ = s.Tele.Stop(ctx)
		s.telescopeRunning = false
	}
	if !badWeather {
		s.stowed = false
	}

	loopWait := time.Duration(s.Cfg.Scheduling.LoopWaitSec * float64(time.Second))

	// Pause/Resume are orthogonal to the weather gate:
	// while paused, no exposures are issued and the telescope is stopped,
	// stowed instead if the weather is currently bad.
	if s.Flags.Paused() {
		if s.telescopeRunning {
			if badWeather {
				_ = s.Tele.Stow(ctx)
				s.stowed = true
			} else {
				_ = s.Tele.Stop(ctx)
			}
			s.telescopeRunning = false
		}
		return loopWait, false, nil
	}

	if s.prevOK && s.prevIndex >= 0 && s.prevIndex < len(s.Fields) {
		prev := s.Fields[s.prevIndex]
		if prev.IsFocus() && prev.IsCompleted() && !prev.FocusPostProcessed {
			if err := s.Pipeline.PostProcessFocus(ctx, s.Fields, s.prevIndex, nowJD); err != nil && s.Log != nil {
				s.Log.WarnAt(now, "focus post-processing field %d: %v", prev.Number, err)
			}
			return loopWait, false, nil
		}
		if prev.IsPointingOffset() && prev.IsCompleted() && !prev.OffsetPostProcessed {
			if err := s.Pipeline.PostProcessOffset(ctx, s.Fields, s.prevIndex, nowJD); err != nil && s.Log != nil {
				s.Log.WarnAt(now, "offset post-processing field %d: %v", prev.Number, err)
			}
			return loopWait, false, nil
		}
	}

	result := s.Selector.Select(s.Fields, s.prevIndex, s.prevOK, nowJD, badWeather)
	if !result.Found {
		if nowJD > s.nights.SunriseJD {
			s.Phase = PhaseEnding
			return 0, true, nil
		}
		return loopWait, false, nil
	}

	chosen := s.Fields[result.Index]
	runNow := chosen.IsDark() || chosen.IsDomeFlat() || (!badWeather && s.Status.Telescope().Ready)
	if !runNow {
		return loopWait, false, nil
	}

	s.telescopeRunning = true
	attemptsBefore := len(chosen.Attempts)
	elapsed, err := s.Pipeline.Execute(ctx, s.Fields, result.Index, now)
	if err != nil {
		if s.Log != nil {
			s.Log.ErrorAt(now, "execute field %d: %v", chosen.Number, err)
		}
		s.prevIndex, s.prevOK = result.Index, true
		return loopWait, false, nil
	}

	if err := s.Recorder.SaveProgress(s.Fields, now); err != nil && s.Log != nil {
		s.Log.WarnAt(now, "save progress: %v", err)
	}
	// One observation-log line per attempt: a split burst appends
	// several attempts in one Execute call.
	for i := attemptsBefore; i < len(chosen.Attempts); i++ {
		if err := s.Recorder.LogAttempt(chosen, i+1, chosen.Attempts[i]); err != nil && s.Log != nil {
			s.Log.WarnAt(now, "log attempt: %v", err)
		}
	}
	if err := s.Recorder.WriteHistoryLine(nowJD, s.Fields); err != nil && s.Log != nil {
		s.Log.WarnAt(now, "write history: %v", err)
	}
	if chosen.IsCompleted() {
		if err := s.Recorder.AppendCompletedLine(chosen); err != nil && s.Log != nil {
			s.Log.WarnAt(now, "append completed line: %v", err)
		}
	}

	s.prevIndex, s.prevOK = result.Index, true

	// Execute already blocked the real clock for elapsed (the no-wait
	// policy's foreground sleep, or the wait policy's expose round
	// trip); Run must not sleep again on top of it.
	_ = elapsed
	return 0, false, nil
}

// Run drives Tick against the real wall clock until the night ends, ctx
// is cancelled, or Terminate is requested. ExposurePipeline.Execute
// already blocks for the real exposure duration, so Run only needs to
// sleep explicitly for the LOOP_WAIT "nothing to do" case before reading
// the clock again; tests drive Tick directly against a simulated time
// instead of calling Run.
func (s *Supervisor) Run(ctx context.Context) error {
	s.Phase = PhaseObserving
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := s.Clock.Now()
		wait, done, err := s.Tick(ctx, now)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Shutdown implements spec.md §4.4's Terminate transition: stop the
// mount and close the Recorder's files.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s.Tele != nil {
		_ = s.Tele.Stop(ctx)
	}
	if s.Recorder != nil {
		return s.Recorder.Close()
	}
	return nil
}
