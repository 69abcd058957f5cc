package field

import "testing"

func TestSurveyTagNormalize(t *testing.T) {
	if got := SurveyLIGO.Normalize(); got != SurveyMustDo {
		t.Errorf("SurveyLIGO.Normalize() = %v, want SurveyMustDo", got)
	}
	if got := SurveyTNO.Normalize(); got != SurveyTNO {
		t.Errorf("SurveyTNO.Normalize() = %v, want SurveyTNO (unchanged)", got)
	}
}

func TestAppendAndUndoAttempt(t *testing.T) {
	f := &Field{N: 3, IntervalHr: 2}

	f.AppendAttempt(Attempt{JD: 100.0})
	if f.Completed != 1 {
		t.Fatalf("Completed = %d, want 1", f.Completed)
	}
	if f.NextAttemptJD != 100.0+2.0/24.0 {
		t.Errorf("NextAttemptJD = %v, want %v", f.NextAttemptJD, 100.0+2.0/24.0)
	}

	f.UndoLastAttempt(100.5)
	if f.Completed != 0 {
		t.Errorf("Completed after undo = %d, want 0", f.Completed)
	}
	if len(f.Attempts) != 0 {
		t.Errorf("Attempts after undo = %d, want 0", len(f.Attempts))
	}
	if f.NextAttemptJD != 100.5 {
		t.Errorf("NextAttemptJD after undo = %v, want 100.5", f.NextAttemptJD)
	}
}

func TestUndoOnEmptyIsNoop(t *testing.T) {
	f := &Field{N: 3}
	f.UndoLastAttempt(5.0)
	if f.Completed != 0 || f.NextAttemptJD != 0 {
		t.Errorf("undo on empty field should be a no-op, got completed=%d nextJD=%v", f.Completed, f.NextAttemptJD)
	}
}

func TestIsCompleted(t *testing.T) {
	f := &Field{N: 2}
	if f.IsCompleted() {
		t.Error("fresh field should not be completed")
	}
	f.Completed = 2
	if !f.IsCompleted() {
		t.Error("field with completed==N should be completed")
	}
}

func TestCheckInvariants(t *testing.T) {
	f := &Field{N: 5, Completed: 3, Doable: true, Status: StatusReady}
	if err := f.CheckInvariants(); err != nil {
		t.Errorf("valid field flagged invalid: %v", err)
	}

	bad := &Field{N: 5, Completed: 6}
	if err := bad.CheckInvariants(); err == nil {
		t.Error("expected error for completed > N")
	}

	inconsistent := &Field{N: 5, Doable: false, Status: StatusReady}
	if err := inconsistent.CheckInvariants(); err == nil {
		t.Error("expected error for doable=false with status != NotDoable")
	}
}

func TestKindLetterCode(t *testing.T) {
	cases := map[Kind]byte{
		KindSky: 'y', KindDark: 'n', KindFocus: 'f', KindPointingOffset: 'p',
		KindEveningFlat: 'e', KindMorningFlat: 'm', KindDomeFlat: 'l',
	}
	for k, want := range cases {
		if got := k.LetterCode(); got != want {
			t.Errorf("%v.LetterCode() = %q, want %q", k, got, want)
		}
	}
}
