package admission

import (
	"testing"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/almanac"
	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
)

func testFilter(t *testing.T) (*Filter, almanac.NightTimes) {
	t.Helper()
	p := almanac.NewSimpleProvider(32.9, -105.5)
	c := clock.NewSiteClock(-105.5)
	cfg := config.Default()
	night, err := p.NightTimes(time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NightTimes: %v", err)
	}
	f := New(p, c, cfg.Admission, cfg.Scheduling)
	return f, night
}

func TestExcludedFieldIsNotDoable(t *testing.T) {
	filt, night := testFilter(t)
	f := &field.Field{Number: -1, Kind: field.KindSky}
	filt.Apply(f, night.DarkStart(), Nights{Tonight: night, Plus5: night, Plus10: night, Plus15: night})
	if f.Doable {
		t.Error("excluded field should not be doable")
	}
	if f.Status != field.StatusNotDoable {
		t.Errorf("status = %v, want NotDoable", f.Status)
	}
}

func TestDarkDecZeroGetsFullDarkWindow(t *testing.T) {
	filt, night := testFilter(t)
	f := &field.Field{Number: 1, Kind: field.KindDark, DecDeg: 0, ExptHr: 1, IntervalHr: 1, N: 1}
	filt.Apply(f, night.DarkStart(), Nights{Tonight: night})
	if f.JDRise != night.DarkStart() || f.JDSet != night.DarkEnd() {
		t.Errorf("dark dec=0 window = [%v,%v], want [%v,%v]", f.JDRise, f.JDSet, night.DarkStart(), night.DarkEnd())
	}
	if !f.Doable {
		t.Error("dark dec=0 field should be doable")
	}
}

func TestSkyFieldBeyondDecBoundsRejected(t *testing.T) {
	filt, night := testFilter(t)
	f := &field.Field{Number: 1, Kind: field.KindSky, RAHr: 12, DecDeg: 80, ExptHr: 0.01, IntervalHr: 0.5, N: 1}
	filt.Apply(f, night.DarkStart(), Nights{Tonight: night, Plus5: night, Plus10: night, Plus15: night})
	if f.Doable {
		t.Error("field beyond max dec should be rejected")
	}
}

func TestSkyFieldWithinBoundsIsDoable(t *testing.T) {
	filt, night := testFilter(t)
	// pick an RA near the LST at local midnight so the field transits during the dark window
	midLST := filt.Clock.LST(clock.JDToUT((night.DarkStart() + night.DarkEnd()) / 2))
	f := &field.Field{Number: 1, Kind: field.KindSky, RAHr: midLST, DecDeg: 10, ExptHr: 0.01, IntervalHr: 0.1, N: 2}
	filt.Apply(f, night.DarkStart(), Nights{Tonight: night, Plus5: night, Plus10: night, Plus15: night})
	if !f.Doable {
		t.Errorf("field near meridian at midnight should be doable, got rejected (rise=%v set=%v)", f.JDRise, f.JDSet)
	}
	if f.TimeUpHr <= 0 {
		t.Errorf("TimeUpHr = %v, want > 0", f.TimeUpHr)
	}
}

func TestMustDoBypassesEnoughTimeCheck(t *testing.T) {
	filt, night := testFilter(t)
	midLST := filt.Clock.LST(clock.JDToUT((night.DarkStart() + night.DarkEnd()) / 2))
	f := &field.Field{
		Number: 1, Kind: field.KindSky, RAHr: midLST, DecDeg: 10,
		ExptHr: 0.01, IntervalHr: 5, N: 50, Survey: field.SurveyMustDo,
	}
	filt.Apply(f, night.DarkStart(), Nights{Tonight: night, Plus5: night, Plus10: night, Plus15: night})
	if f.TimeLeftHr >= 0 {
		t.Skip("test setup did not produce a negative time_left; adjust N/interval")
	}
	if !f.Doable {
		t.Error("MustDo field should bypass the enough-time rejection")
	}
}

func TestNonMustDoRejectedWhenNotEnoughTime(t *testing.T) {
	filt, night := testFilter(t)
	midLST := filt.Clock.LST(clock.JDToUT((night.DarkStart() + night.DarkEnd()) / 2))
	f := &field.Field{
		Number: 1, Kind: field.KindSky, RAHr: midLST, DecDeg: 10,
		ExptHr: 0.01, IntervalHr: 5, N: 50, Survey: field.SurveyNone,
	}
	filt.Apply(f, night.DarkStart(), Nights{Tonight: night, Plus5: night, Plus10: night, Plus15: night})
	if f.Doable {
		t.Error("non-MustDo field with insufficient time should be rejected")
	}
}
