package selector

import (
	"testing"

	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
)

func testSelector() Selector {
	cfg := config.Default().Scheduling
	return New(cfg)
}

func skyField(n int, ra, dec float64) *field.Field {
	return &field.Field{
		Number: n, Kind: field.KindSky, RAHr: ra, DecDeg: dec,
		Doable: true, ExptHr: 60.0 / 3600.0, IntervalHr: 0.5, N: 3,
	}
}

func TestIsPairWithinTolerance(t *testing.T) {
	a := skyField(0, 5.000, 10)
	b := skyField(1, 5.033, 10)
	if !IsPair(a, b, 0.05) {
		t.Error("fields 0.033h apart at dec=10 should pair under RA_STEP0=0.05h")
	}
}

func TestIsPairDifferentDecNeverPairs(t *testing.T) {
	a := skyField(0, 5.0, 10)
	b := skyField(1, 5.01, 20)
	if IsPair(a, b, 0.05) {
		t.Error("fields at different Dec should never pair")
	}
}

func TestPairedContinuationReadyIsPicked(t *testing.T) {
	s := testSelector()
	a := skyField(0, 5.0, 10)
	b := skyField(1, 5.02, 10)
	a.JDRise, a.JDSet = 0, 10
	b.JDRise, b.JDSet = 0, 10
	b.NextAttemptJD = 1.0 // already past, so jd=1 satisfies the wait check
	fields := []*field.Field{a, b}

	res := s.Select(fields, 0, true, 1.0, false)
	if !res.Found || res.Index != 1 {
		t.Fatalf("expected paired field 1 to be picked, got index=%d found=%v", res.Index, res.Found)
	}
	if res.Reason != field.ReasonPairedContinuation {
		t.Errorf("reason = %v, want ReasonPairedContinuation", res.Reason)
	}
}

func TestPairedContinuationTooLateIsShortenedAndPicked(t *testing.T) {
	s := testSelector()
	a := skyField(0, 5.0, 10)
	b := skyField(1, 5.02, 10)
	a.JDRise, a.JDSet = 0, 10
	b.JDRise, b.JDSet = 0, 2.0 / 24.0 // set very soon, forcing TooLate at jd=1/24
	b.IntervalHr = 1.0
	b.N = 3
	b.NextAttemptJD = 0

	fields := []*field.Field{a, b}
	res := s.Select(fields, 0, true, 1.0/24.0, false)
	if !res.Found || res.Index != 1 {
		t.Fatalf("expected paired field 1 to be shortened and picked, got index=%d found=%v", res.Index, res.Found)
	}
}

func TestReadyMustDoBeatsReadyNormal(t *testing.T) {
	s := testSelector()
	normal := skyField(0, 1.0, 0)
	normal.JDRise, normal.JDSet = 0, 10
	normal.IntervalHr = 0.1

	mustDo := skyField(1, 10.0, 0)
	mustDo.Survey = field.SurveyMustDo
	mustDo.JDRise, mustDo.JDSet = 0, 10
	mustDo.IntervalHr = 0.1

	fields := []*field.Field{normal, mustDo}
	res := s.Select(fields, -1, false, 1.0, false)
	if !res.Found || res.Index != 1 {
		t.Fatalf("expected MustDo field to win, got index=%d found=%v", res.Index, res.Found)
	}
	if res.Reason != field.ReasonReadyMustDo {
		t.Errorf("reason = %v, want ReasonReadyMustDo", res.Reason)
	}
}

func TestDoNowPrefersFlatOverDark(t *testing.T) {
	s := testSelector()
	dark := &field.Field{Number: 0, Kind: field.KindDark, Doable: true, N: 5, JDRise: 0, JDSet: 10}
	flat := &field.Field{Number: 1, Kind: field.KindDomeFlat, Doable: true, N: 5, JDRise: 0, JDSet: 10}

	fields := []*field.Field{dark, flat}
	res := s.Select(fields, -1, false, 1.0, false)
	if !res.Found || res.Index != 1 {
		t.Fatalf("expected flat to win over dark, got index=%d found=%v", res.Index, res.Found)
	}
}

func TestShorteningFallbackMatchesWorkedExample(t *testing.T) {
	// spec.md §8 scenario 3: three Sky fields, interval=1h, N=3, rise=JD0,
	// set=JD0+2h. Advance to JD0+45min so all three go TooLate; the
	// field with the largest time_left is shortened and, if that makes
	// it Ready, picked.
	s := testSelector()
	mk := func(n int) *field.Field {
		f := skyField(n, float64(n), 0)
		f.JDRise, f.JDSet = 0, 2.0/24.0
		f.IntervalHr = 1.0
		f.N = 3
		return f
	}
	fields := []*field.Field{mk(0), mk(1), mk(2)}
	nowJD := 0.75 / 24.0 // 45 minutes in

	res := s.Select(fields, -1, false, nowJD, false)
	if !res.Found {
		t.Fatal("expected a field to be picked after shortening")
	}
	picked := fields[res.Index]
	if picked.Status != field.StatusReady {
		t.Errorf("picked field status = %v, want Ready after shortening", picked.Status)
	}
}

func TestSelectorPurity(t *testing.T) {
	s := testSelector()
	mk := func() []*field.Field {
		a := skyField(0, 5.0, 10)
		a.JDRise, a.JDSet = 0, 10
		a.IntervalHr = 0.1
		return []*field.Field{a}
	}
	f1 := mk()
	f2 := mk()

	r1 := s.Select(f1, -1, false, 1.0, false)
	r2 := s.Select(f2, -1, false, 1.0, false)
	if r1 != r2 {
		t.Errorf("Select is not pure: %+v != %+v", r1, r2)
	}
}

func TestNoneWhenNothingQualifies(t *testing.T) {
	s := testSelector()
	f := skyField(0, 5.0, 10)
	f.Doable = false
	fields := []*field.Field{f}
	res := s.Select(fields, -1, false, 1.0, false)
	if res.Found {
		t.Errorf("expected no selection, got index=%d", res.Index)
	}
}
