// Package recorder implements the Recorder: three
// append-only text artifacts (observation log, history file, completed
// script) and one binary progress record that is truncated and rewritten
// on every successful attempt, restored at startup for crash recovery.
// Grounded on the teacher's structured file writers (internal/dsn/export.go
// in litescript/ls-horizons): a JSON snapshot exporter plus plain-text
// table writer, both taking an io.Writer. The progress record here reuses
// that same JSON-encoding idiom instead of writing raw struct
// bytes, so it survives field-layout changes across builds.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
	"github.com/nugent68/ls4-scheduler-sub000/internal/schederr"
)

// Recorder owns the four output artifacts: the observation log, the
// per-field history, the completed-field script, and the binary
// progress record.
type Recorder struct {
	obsLogPath    string
	historyPath   string
	completedPath string
	progressPath  string

	obsLog    io.WriteCloser
	history   io.WriteCloser
	completed io.WriteCloser
}

// Open opens (creating if necessary, appending to existing content) the
// three append-only artifacts. The binary progress record is handled
// separately by SaveProgress/LoadProgress since it is truncated-and-
// rewritten rather than appended.
func Open(obsLogPath, historyPath, completedPath, progressPath string) (*Recorder, error) {
	obsLog, err := os.OpenFile(obsLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open observation log: %v", schederr.ErrFatal, err)
	}
	history, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		obsLog.Close()
		return nil, fmt.Errorf("%w: open history file: %v", schederr.ErrFatal, err)
	}
	completed, err := os.OpenFile(completedPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		obsLog.Close()
		history.Close()
		return nil, fmt.Errorf("%w: open completed script: %v", schederr.ErrFatal, err)
	}
	return &Recorder{
		obsLogPath: obsLogPath, historyPath: historyPath,
		completedPath: completedPath, progressPath: progressPath,
		obsLog: obsLog, history: history, completed: completed,
	}, nil
}

// Close closes the three append-only artifacts.
func (r *Recorder) Close() error {
	var firstErr error
	for _, c := range []io.Closer{r.obsLog, r.history, r.completed} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogAttempt appends one observation-log line for a just-completed
// attempt: "RA Dec kind_lc seq exptime_sec ha jd actual_expt
// filename # description field_number [plan_comment]". seq is the
// 1-based attempt index within this field's progress array.
func (r *Recorder) LogAttempt(f *field.Field, seq int, a field.Attempt) error {
	line := fmt.Sprintf("%.6f %.4f %c %d %.3f %.4f %.6f %.6f %s # %s %d\n",
		f.RAHr, f.DecDeg, f.Kind.LetterCode(), seq,
		a.ActualExptHr*3600.0, a.HAHr, a.JD, a.ActualExptHr*3600.0,
		a.FilenamePrefix, f.Kind.String(), f.Number)
	if f.Comment != "" {
		line = line[:len(line)-1] + " " + f.Comment + "\n"
	}
	_, err := io.WriteString(r.obsLog, line)
	return err
}

// WriteHistoryLine appends one history-file line for the current tick
//: "jd_minus_2.45e6  <per-field chars>", each field
// contributing '.' if completed else the last decimal digit of its
// current completed count (count mod 10).
func (r *Recorder) WriteHistoryLine(jd float64, fields []*field.Field) error {
	line := fmt.Sprintf("%.6f  ", jd-2.45e6)
	for _, f := range fields {
		if f.IsCompleted() {
			line += "."
		} else {
			line += fmt.Sprintf("%d", f.Completed%10)
		}
	}
	line += "\n"
	_, err := io.WriteString(r.history, line)
	return err
}

// AppendCompletedLine appends a re-completed script line: the field's raw
// plan-file text, re-emitted verbatim once it reaches N attempts, so the
// completed script can be diffed against the original plan.
func (r *Recorder) AppendCompletedLine(f *field.Field) error {
	_, err := io.WriteString(r.completed, f.RawLine+"\n")
	return err
}

// progressRecord is the JSON-serializable progress snapshot.
type progressRecord struct {
	Count   int          `json:"count"`
	SavedAt time.Time    `json:"saved_at"`
	Fields  []field.Field `json:"fields"`
}

// SaveProgress truncates and rewrites the binary progress record with the
// live field array, exactly as spec.md §4.5 requires ("rewritten in place
// at each save"). It is called after every successful ExposurePipeline
// attempt.
func (r *Recorder) SaveProgress(fields []*field.Field, savedAt time.Time) error {
	tmp := r.progressPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create progress temp file: %w", err)
	}

	rec := progressRecord{Count: len(fields), SavedAt: savedAt}
	rec.Fields = make([]field.Field, len(fields))
	for i, fld := range fields {
		rec.Fields[i] = *fld
	}

	w := bufio.NewWriter(f)
	header := fmt.Sprintf("%d %s\n", rec.Count, savedAt.UTC().Format("2006 01 02 15 04 05"))
	if _, err := w.WriteString(header); err != nil {
		f.Close()
		return fmt.Errorf("write progress header: %w", err)
	}
	enc := json.NewEncoder(w)
	for _, fr := range rec.Fields {
		if err := enc.Encode(fr); err != nil {
			f.Close()
			return fmt.Errorf("encode field record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush progress record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close progress temp file: %w", err)
	}
	return os.Rename(tmp, r.progressPath)
}

// maxFields bounds RecoveryCorrupt detection: a header
// claiming more fields than any real plan could hold is treated as
// corrupt rather than trusted.
const maxFields = 100000

// LoadProgress restores the live field array from the binary progress
// record, per spec.md §4.5: "if present and its header parses and N is
// within bounds, the live array is restored from it and plan load is
// skipped." A missing file is not an error (the caller falls back to a
// fresh plan load); a present-but-unparseable file is
// schederr.ErrRecoveryCorrupt, which is fatal at startup.
func LoadProgress(path string) ([]*field.Field, time.Time, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("%w: open progress record: %v", schederr.ErrRecoveryCorrupt, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	headerLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("%w: read header: %v", schederr.ErrRecoveryCorrupt, err)
	}

	var n, y, mo, d, hh, mm, ss int
	if _, err := fmt.Sscanf(headerLine, "%d %d %d %d %d %d %d", &n, &y, &mo, &d, &hh, &mm, &ss); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("%w: parse header %q: %v", schederr.ErrRecoveryCorrupt, headerLine, err)
	}
	if n < 0 || n > maxFields {
		return nil, time.Time{}, false, fmt.Errorf("%w: field count %d out of bounds", schederr.ErrRecoveryCorrupt, n)
	}
	savedAt := time.Date(y, time.Month(mo), d, hh, mm, ss, 0, time.UTC)

	dec := json.NewDecoder(reader)
	fields := make([]*field.Field, 0, n)
	for i := 0; i < n; i++ {
		var fr field.Field
		if err := dec.Decode(&fr); err != nil {
			return nil, time.Time{}, false, fmt.Errorf("%w: decode field %d: %v", schederr.ErrRecoveryCorrupt, i, err)
		}
		fields = append(fields, &fr)
	}
	return fields, savedAt, true, nil
}
