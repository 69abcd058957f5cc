// Package planfile loads the line-oriented sequence file format into Field records, and tracks the incremental-add counter so a
// "<script>.add" file can be re-read without re-admitting lines already
// consumed.
package planfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
	"github.com/nugent68/ls4-scheduler-sub000/internal/schederr"
)

// Bounds mirrors the hard per-field bounds enforced on load.
type Bounds struct {
	MaxExptHr     float64
	MinIntervalHr float64
	MaxIntervalHr float64
	MaxObsPerField int
}

// ParseError describes one malformed line; it is never fatal.
type ParseError struct {
	LineNumber int
	Line       string
	Reason     string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("plan line %d malformed: %s: %q", e.LineNumber, e.Reason, e.Line)
}

func (e ParseError) Unwrap() error { return schederr.ErrPlanMalformed }

// Result is the outcome of parsing a plan (or incremental-add) stream.
type Result struct {
	Fields     []*field.Field
	Errors     []ParseError
	LinesRead  int // total lines consumed, including blanks/comments/FILTER
	NextNumber int // next field number to assign
}

// Load parses a full sequence file from r, starting field numbering at
// startNumber and validating against bounds. Malformed lines are recorded
// in Result.Errors and skipped; Load itself never returns an error for
// malformed content (only for an I/O failure reading r).
func Load(r io.Reader, startNumber int, bounds Bounds) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	res := Result{NextNumber: startNumber}
	activeFilter := ""
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		res.LinesRead++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "FILTER ") || strings.HasPrefix(line, "FILTER\t") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				activeFilter = parts[1]
			}
			continue
		}

		f, err := parseLine(line, res.NextNumber, bounds)
		if err != nil {
			res.Errors = append(res.Errors, ParseError{LineNumber: lineNo, Line: raw, Reason: err.Error()})
			continue
		}
		f.SourceLine = lineNo
		f.RawLine = raw
		_ = activeFilter // the FILTER name is parsed but neither stored per-Field nor returned in Result, so it does not reach the filter wheel
		res.Fields = append(res.Fields, f)
		res.NextNumber++
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read plan: %w", err)
	}
	return res, nil
}

// kindCodes maps the plan file's single-letter kind codes to field.Kind.
var kindCodes = map[byte]field.Kind{
	'Y': field.KindSky, 'y': field.KindSky,
	'N': field.KindDark, 'n': field.KindDark,
	'F': field.KindFocus, 'f': field.KindFocus,
	'P': field.KindPointingOffset, 'p': field.KindPointingOffset,
	'E': field.KindEveningFlat,
	'M': field.KindMorningFlat,
	'L': field.KindDomeFlat, 'l': field.KindDomeFlat,
}

func parseLine(line string, number int, bounds Bounds) (*field.Field, error) {
	// Split off a trailing "# comment" before field-splitting on
	// whitespace, so comments may contain arbitrary text.
	body := line
	comment := ""
	if idx := strings.Index(line, "#"); idx >= 0 {
		body = strings.TrimSpace(line[:idx])
		comment = strings.TrimSpace(line[idx+1:])
	}

	parts := strings.Fields(body)
	if len(parts) < 7 {
		return nil, fmt.Errorf("need at least 7 fields, found %d", len(parts))
	}

	raHr, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("RA: %w", err)
	}
	if raHr < 0 || raHr >= 24 {
		return nil, fmt.Errorf("RA %v out of [0,24)", raHr)
	}

	decDeg, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("Dec: %w", err)
	}
	if decDeg < -90 || decDeg > 90 {
		return nil, fmt.Errorf("Dec %v out of [-90,90]", decDeg)
	}

	if len(parts[2]) == 0 {
		return nil, fmt.Errorf("empty kind code")
	}
	kind, ok := kindCodes[parts[2][0]]
	if !ok {
		return nil, fmt.Errorf("unknown kind code %q", parts[2])
	}

	exptSec, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return nil, fmt.Errorf("expt: %w", err)
	}
	exptHr := exptSec / 3600.0
	if exptHr <= 0 || exptHr > bounds.MaxExptHr {
		return nil, fmt.Errorf("expt %v sec out of (0,%v hr]", exptSec, bounds.MaxExptHr)
	}

	intervalSec, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return nil, fmt.Errorf("interval: %w", err)
	}
	intervalHr := intervalSec / 3600.0
	if intervalHr < bounds.MinIntervalHr || intervalHr > bounds.MaxIntervalHr {
		return nil, fmt.Errorf("interval %v sec out of [%v,%v] hr", intervalSec, bounds.MinIntervalHr, bounds.MaxIntervalHr)
	}

	n, err := strconv.Atoi(parts[5])
	if err != nil {
		return nil, fmt.Errorf("N: %w", err)
	}
	if n < 1 || n > bounds.MaxObsPerField {
		return nil, fmt.Errorf("N %d out of [1,%d]", n, bounds.MaxObsPerField)
	}

	surveyRaw, err := strconv.Atoi(parts[6])
	if err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}
	if surveyRaw < 0 || surveyRaw > 4 {
		return nil, fmt.Errorf("survey %d out of [0,4]", surveyRaw)
	}
	survey := field.SurveyTag(surveyRaw).Normalize()

	f := &field.Field{
		Number:     number,
		RAHr:       raHr,
		DecDeg:     decDeg,
		Kind:       kind,
		Survey:     survey,
		ExptHr:     exptHr,
		IntervalHr: intervalHr,
		N:          n,
		Comment:    comment,
	}

	if kind == field.KindFocus {
		if len(parts) < 9 {
			return nil, fmt.Errorf("focus record needs focus_increment and focus_default trailing numbers")
		}
		inc, err := strconv.ParseFloat(parts[7], 64)
		if err != nil {
			return nil, fmt.Errorf("focus_increment: %w", err)
		}
		def, err := strconv.ParseFloat(parts[8], 64)
		if err != nil {
			return nil, fmt.Errorf("focus_default: %w", err)
		}
		f.FocusIncrementMM = inc
		f.FocusDefaultMM = def
	}

	return f, nil
}
