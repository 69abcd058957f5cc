package exposure

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/almanac"
	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/device"
	"github.com/nugent68/ls4-scheduler-sub000/internal/field"
	"github.com/nugent68/ls4-scheduler-sub000/internal/logging"
	"github.com/nugent68/ls4-scheduler-sub000/internal/status"
)

// fakeDialer answers every telescope/camera command over an in-memory
// net.Pipe, recording each command it saw so tests can assert on which
// device calls the pipeline issued.
type fakeDialer struct {
	mu        sync.Mutex
	commands  []string
	exposeErr bool
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	go d.serve(server)
	return client, nil
}

func (d *fakeDialer) serve(conn net.Conn) {
	defer conn.Close()
	line, _ := bufio.NewReader(conn).ReadString('\n')

	d.mu.Lock()
	d.commands = append(d.commands, strings.TrimSpace(line))
	exposeErr := d.exposeErr
	d.mu.Unlock()

	var cmd string
	if fields := strings.Fields(line); len(fields) > 0 {
		cmd = fields[0]
	}

	var reply string
	switch cmd {
	case "lst":
		reply = "DONE 'lst': 3.0\n"
	case "domestatus":
		reply = "DONE 'open': True\n"
	case "posrd":
		reply = "DONE 'ra': 5.0, 'dec': 10.0\n"
	case "getfocus":
		reply = "DONE 'focus': 10.0\n"
	case "filter":
		reply = "DONE 'filter': 'clear'\n"
	case "weather":
		reply = "DONE 'temp': 10.0, 'humidity': 20.0, 'wind_speed': 5.0, 'wind_dir': 0.0, 'dew_point': 0.0\n"
	case "status":
		reply = "DONE 'ready': True, 'error': False, 'state': 'idle', 'comment': 'ok', 'date': '2026-06-21'\n"
	case "expose":
		if exposeErr {
			reply = "ERROR 'reason': 'ccd fault'\n"
		} else {
			reply = "DONE\n"
		}
	default:
		reply = "DONE\n"
	}
	conn.Write([]byte(reply))
}

func (d *fakeDialer) commandCount(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type fakeFocusAnalyzer struct {
	best float64
	err  error
}

func (f fakeFocusAnalyzer) AnalyzeFocus(ctx context.Context, prefixes []string) (float64, error) {
	return f.best, f.err
}

type fakeOffsetAnalyzer struct {
	dra, ddec float64
	err       error
}

func (f fakeOffsetAnalyzer) AnalyzeOffset(ctx context.Context, prefix string) (float64, float64, error) {
	return f.dra, f.ddec, f.err
}

func newTestPipeline(dialer device.Dialer, noWait bool) (*Pipeline, *status.Manager) {
	tr := &device.Transport{Dialer: dialer, MaxBufSize: 4096}
	tele := device.NewTelescopeAdapter(tr, "tele", 6000, time.Second)
	cam := device.NewCameraAdapter(tr, "cam", 6001, 6002, time.Second)

	cfg := config.Default()
	cfg.Exposure.NoWaitPolicy = noWait
	cfg.Exposure.NoWaitEpsilonSec = 0
	cfg.Exposure.ReadoutSec = 0
	cfg.Exposure.TransferSec = 0
	cfg.Exposure.ExposeSlackSec = 1

	alm := almanac.NewSimpleProvider(32.9, -105.5)
	clk := clock.NewSiteClock(-105.5)
	stMgr := status.NewManager(cfg.Weather)

	p := New(cfg.Exposure, cfg.Focus, cfg.Offset, cfg.Dither, cfg.Device,
		tele, cam, alm, clk, stMgr, fakeFocusAnalyzer{best: 5}, fakeOffsetAnalyzer{}, logging.Discard())
	return p, stMgr
}

func TestExecuteDarkFieldSkipsTelescopeCommands(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPipeline(dialer, false)

	f := &field.Field{Number: 0, Kind: field.KindDark, RAHr: 0, DecDeg: 0, ExptHr: 60.0 / 3600.0, IntervalHr: 1, N: 1}
	fields := []*field.Field{f}
	now := time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC)

	if _, err := p.Execute(context.Background(), fields, 0, now); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.Completed != 1 {
		t.Errorf("Completed = %d, want 1", f.Completed)
	}
	if len(f.Attempts) != 1 {
		t.Fatalf("Attempts = %d, want 1", len(f.Attempts))
	}
	prefix := f.Attempts[0].FilenamePrefix
	if prefix[len(prefix)-1] != 'n' {
		t.Errorf("filename prefix %q should end in 'n' for Dark", prefix)
	}
	if dialer.commandCount("track") != 0 {
		t.Error("Dark field should never issue a track command")
	}
}

func TestExecuteSkyFieldIssuesTrackAndExpose(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPipeline(dialer, false)

	f := &field.Field{Number: 1, Kind: field.KindSky, RAHr: 5.0, DecDeg: 10.0, ExptHr: 60.0 / 3600.0, IntervalHr: 1, N: 3}
	fields := []*field.Field{f}
	now := time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC)

	if _, err := p.Execute(context.Background(), fields, 0, now); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if dialer.commandCount("track") != 1 {
		t.Errorf("track issued %d times, want 1", dialer.commandCount("track"))
	}
	if dialer.commandCount("expose") != 1 {
		t.Errorf("expose issued %d times, want 1", dialer.commandCount("expose"))
	}
	if !f.PointingInitialized {
		t.Error("PointingInitialized should be set after the first attempt")
	}
}

func TestSkyFieldReusesFirstAttemptPointing(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPipeline(dialer, false)

	f := &field.Field{Number: 4, Kind: field.KindSky, RAHr: 5.0, DecDeg: 10.0, ExptHr: 0.0001, IntervalHr: 1, N: 3}
	fields := []*field.Field{f}
	now1 := time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC)

	if _, err := p.Execute(context.Background(), fields, 0, now1); err != nil {
		t.Fatalf("Execute 1: %v", err)
	}
	ra1, dec1 := f.CommandedRAHr, f.CommandedDecDeg

	now2 := now1.Add(2 * time.Hour)
	if _, err := p.Execute(context.Background(), fields, 0, now2); err != nil {
		t.Fatalf("Execute 2: %v", err)
	}
	if f.CommandedRAHr != ra1 || f.CommandedDecDeg != dec1 {
		t.Errorf("commanded pointing changed across attempts of the same sequence: (%v,%v) -> (%v,%v)",
			ra1, dec1, f.CommandedRAHr, f.CommandedDecDeg)
	}
}

func TestBadReadoutRescindsPreviousFieldAndContinues(t *testing.T) {
	dialer := &fakeDialer{exposeErr: true}
	p, _ := newTestPipeline(dialer, true)

	fieldA := &field.Field{Number: 0, Kind: field.KindDark, ExptHr: 0.001 / 3600.0, IntervalHr: 1, N: 5}
	fieldB := &field.Field{Number: 1, Kind: field.KindDark, ExptHr: 0.001 / 3600.0, IntervalHr: 1, N: 5}
	fields := []*field.Field{fieldA, fieldB}
	now := time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC)

	if _, err := p.Execute(context.Background(), fields, 0, now); err != nil {
		t.Fatalf("Execute field A: %v", err)
	}
	if fieldA.Completed != 1 {
		t.Fatalf("fieldA.Completed = %d immediately after its own exposure, want 1", fieldA.Completed)
	}

	if _, err := p.Execute(context.Background(), fields, 1, now.Add(time.Second)); err != nil {
		t.Fatalf("Execute field B: %v", err)
	}
	if fieldA.Completed != 0 {
		t.Errorf("fieldA.Completed = %d after its bad readout was discovered, want 0", fieldA.Completed)
	}
	if fieldB.Completed != 1 {
		t.Errorf("fieldB.Completed = %d, want 1 (a bad readout on A must not block B)", fieldB.Completed)
	}
}

func TestLongExposureWestOfMeridianSplits(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPipeline(dialer, false)

	now := time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC)
	clk := clock.NewSiteClock(-105.5)
	lst := clk.LST(now)

	// One hour west of the meridian, planned exposure 1.5x the split
	// threshold: Execute must burst into ceil(1.5)+1 = 3 equal
	// sub-exposures and raise N by 2.
	ra := lst - 1.0
	if ra < 0 {
		ra += 24
	}
	exptHr := 1.5 * p.Cfg.LongExptimeHr
	f := &field.Field{Number: 5, Kind: field.KindSky, RAHr: ra, DecDeg: 0, ExptHr: exptHr, IntervalHr: 1, N: 1}
	fields := []*field.Field{f}

	if _, err := p.Execute(context.Background(), fields, 0, now); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.N != 3 {
		t.Errorf("N = %d after split, want 3", f.N)
	}
	if len(f.Attempts) != 3 {
		t.Fatalf("Attempts = %d, want 3", len(f.Attempts))
	}
	want := exptHr / 3.0
	for i, a := range f.Attempts {
		if a.ActualExptHr != want {
			t.Errorf("attempt %d ActualExptHr = %v, want %v", i, a.ActualExptHr, want)
		}
	}
	if dialer.commandCount("expose") != 3 {
		t.Errorf("expose issued %d times, want 3", dialer.commandCount("expose"))
	}
}

func TestPostProcessFocusCommandsNewFocus(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPipeline(dialer, false)

	f := &field.Field{
		Number: 2, Kind: field.KindFocus, N: 2, Completed: 2,
		FocusDefaultMM: 10, FocusIncrementMM: 1,
		Attempts: []field.Attempt{{FilenamePrefix: "a"}, {FilenamePrefix: "b"}},
	}
	fields := []*field.Field{f}

	if err := p.PostProcessFocus(context.Background(), fields, 0, 2460000.5); err != nil {
		t.Fatalf("PostProcessFocus: %v", err)
	}
	if !f.FocusPostProcessed {
		t.Error("FocusPostProcessed should be true after a successful run")
	}
	if dialer.commandCount("setfocus") == 0 {
		t.Error("expected at least one setfocus command")
	}
}

func TestPostProcessOffsetClampsAndStores(t *testing.T) {
	dialer := &fakeDialer{}
	p, stMgr := newTestPipeline(dialer, false)
	p.Offset = fakeOffsetAnalyzer{dra: 5.0, ddec: -5.0}

	f := &field.Field{
		Number: 3, Kind: field.KindPointingOffset, N: 1, Completed: 1,
		Attempts: []field.Attempt{{FilenamePrefix: "c"}},
	}
	fields := []*field.Field{f}

	if err := p.PostProcessOffset(context.Background(), fields, 0, 2460000.5); err != nil {
		t.Fatalf("PostProcessOffset: %v", err)
	}
	got := stMgr.Telescope()
	if got.OffsetRADeg != 0.25 || got.OffsetDecDeg != -0.25 {
		t.Errorf("offset = (%v,%v), want clamped to (0.25,-0.25)", got.OffsetRADeg, got.OffsetDecDeg)
	}
	if !f.OffsetPostProcessed {
		t.Error("OffsetPostProcessed should be true")
	}
}
