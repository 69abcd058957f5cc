package logging

import (
	"strings"
	"testing"
	"time"
)

func TestEmitIsUTStamped(t *testing.T) {
	var buf strings.Builder
	l := NewWithWriter(LevelInfo, &buf)

	ut := time.Date(2026, 6, 21, 8, 30, 0, 0, time.UTC)
	l.InfoAt(ut, "field %d selected", 7)

	got := buf.String()
	if !strings.HasPrefix(got, "2026-06-21T08:30:00Z [INFO] field 7 selected") {
		t.Errorf("line = %q, want UT-stamped INFO prefix", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf strings.Builder
	l := NewWithWriter(LevelWarn, &buf)

	l.Info("suppressed")
	l.Warn("emitted")

	got := buf.String()
	if strings.Contains(got, "suppressed") {
		t.Error("info line should be filtered below LevelWarn")
	}
	if !strings.Contains(got, "emitted") {
		t.Error("warn line should pass the level filter")
	}
}

func TestWithAppendsContext(t *testing.T) {
	var buf strings.Builder
	l := NewWithWriter(LevelInfo, &buf).With("component", "exposure")

	l.InfoAt(time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC), "expose issued")

	if !strings.Contains(buf.String(), "expose issued component=exposure") {
		t.Errorf("line = %q, want component=exposure context suffix", buf.String())
	}
}

func TestDiscardEmitsNothing(t *testing.T) {
	l := Discard()
	l.Error("should vanish")
}

func TestSetClockDrivesUnstampedLines(t *testing.T) {
	var buf strings.Builder
	l := NewWithWriter(LevelInfo, &buf)
	l.SetClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) })

	l.Info("tick")

	if !strings.HasPrefix(buf.String(), "2026-01-02T03:04:05Z") {
		t.Errorf("line = %q, want simulated-clock stamp", buf.String())
	}
}
