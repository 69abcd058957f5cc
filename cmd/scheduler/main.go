// Command scheduler is the runtime scheduler of a wide-field survey
// telescope: it loads a night's candidate observation plan, drives the
// telescope/camera controllers, and records progress for crash recovery.
// Grounded on the teacher's entrypoint
// (cmd/ls-horizons/main.go in litescript/ls-horizons): flag parsing,
// context-with-cancel, and a signal-handling goroutine, repointed from a
// bubbletea TUI to the headless Supervisor loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/nugent68/ls4-scheduler-sub000/internal/admission"
	"github.com/nugent68/ls4-scheduler-sub000/internal/almanac"
	"github.com/nugent68/ls4-scheduler-sub000/internal/clock"
	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/device"
	"github.com/nugent68/ls4-scheduler-sub000/internal/exposure"
	"github.com/nugent68/ls4-scheduler-sub000/internal/logging"
	"github.com/nugent68/ls4-scheduler-sub000/internal/planfile"
	"github.com/nugent68/ls4-scheduler-sub000/internal/recorder"
	"github.com/nugent68/ls4-scheduler-sub000/internal/schederr"
	"github.com/nugent68/ls4-scheduler-sub000/internal/selector"
	"github.com/nugent68/ls4-scheduler-sub000/internal/status"
	"github.com/nugent68/ls4-scheduler-sub000/internal/supervisor"
	"github.com/nugent68/ls4-scheduler-sub000/internal/version"
)

// usage documents the CLI surface of spec.md §6:
// "scheduler <plan> <year> <month> <day> <verbose> [<weather_file>]".
const usage = "usage: scheduler <plan> <year> <month> <day> <verbose> [<weather_file>]"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 5 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	planPath := args[0]
	year, err1 := parseInt(args[1])
	month, err2 := parseInt(args[2])
	day, err3 := parseInt(args[3])
	verbose, err4 := parseInt(args[4])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	var weatherFile string
	if len(args) >= 6 {
		weatherFile = args[5]
	}
	_ = weatherFile // consumed only by the fake/simulation build; production reads live weather from the telescope controller

	logLevel := logging.LevelInfo
	if verbose != 0 {
		logLevel = logging.LevelDebug
	}
	logger := logging.New(logLevel)

	siteName, usedDefault := config.SiteNameFromEnv()
	if usedDefault {
		logger.Warn("SITE_NAME not set, defaulting to %q", siteName)
	}

	cfgPath := os.Getenv("SCHEDULER_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", schederr.ErrFatal, err)
		return 1
	}
	cfg.Site.Name = siteName

	night := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flags := config.NewRuntimeFlags(verbose != 0)
	installSignalHandlers(flags, cancel)

	sup, err := buildSupervisor(cfg, planPath, night, flags, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", schederr.ErrFatal, err)
		return 1
	}
	defer sup.Shutdown(context.Background())

	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	if isTTY {
		logger.Info("scheduler %s starting for %s, site=%s, plan=%s", version.Version, night.Format("2006-01-02"), cfg.Site.Name, planPath)
	} else {
		logger.Info("scheduler %s starting: site=%s plan=%s", version.Version, cfg.Site.Name, planPath)
	}

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("scheduler exited: %v", err)
		return 1
	}
	return 0
}

// installSignalHandlers wires SIGTERM to a clean Terminate transition and
// SIGUSR1/SIGUSR2 to pause/resume.
func installSignalHandlers(flags *config.RuntimeFlags, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGTERM:
				flags.Terminate()
				cancel()
				return
			case syscall.SIGUSR1:
				flags.Pause()
			case syscall.SIGUSR2:
				flags.Resume()
			}
		}
	}()
}

// buildSupervisor wires every collaborator named in spec.md §2 into one
// Supervisor: the almanac provider, device adapters, admission filter,
// selector, exposure pipeline, recorder, and status cache. It restores
// the live field array from the binary progress record if present;
// otherwise it loads the plan file fresh.
func buildSupervisor(cfg config.Config, planPath string, night time.Time, flags *config.RuntimeFlags, logger *logging.Logger) (*supervisor.Supervisor, error) {
	siteClock := clock.NewSiteClock(cfg.Site.LonDeg)
	provider := almanac.NewSimpleProvider(cfg.Site.LatDeg, cfg.Site.LonDeg)

	nightTimes, err := provider.NightTimes(night)
	if err != nil {
		return nil, fmt.Errorf("compute night times: %w", err)
	}
	plus5, err := provider.NightTimes(night.AddDate(0, 0, 5))
	if err != nil {
		return nil, fmt.Errorf("compute +5d night times: %w", err)
	}
	plus10, err := provider.NightTimes(night.AddDate(0, 0, 10))
	if err != nil {
		return nil, fmt.Errorf("compute +10d night times: %w", err)
	}
	plus15, err := provider.NightTimes(night.AddDate(0, 0, 15))
	if err != nil {
		return nil, fmt.Errorf("compute +15d night times: %w", err)
	}

	transport := device.NewTransport(cfg.Device.MaxBufSize, time.Duration(cfg.Device.PostCmdSleepMs)*time.Millisecond)
	safety := time.Duration(cfg.Device.SafetySlackSec * float64(time.Second))
	teleAdapter := device.NewTelescopeAdapter(transport, cfg.Device.TelescopeHost, cfg.Device.TelescopePort, safety)
	camAdapter := device.NewCameraAdapter(transport, cfg.Device.TelescopeHost, cfg.Device.CameraCmdPort, cfg.Device.CameraStatPort, safety)

	admit := admission.New(provider, siteClock, cfg.Admission, cfg.Scheduling)
	sel := selector.New(cfg.Scheduling)
	statusMgr := status.NewManager(cfg.Weather)

	rec, err := recorder.Open(cfg.Paths.ObservationLog, cfg.Paths.HistoryFile, cfg.Paths.CompletedScript, cfg.Paths.ProgressRecord)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(cfg, nightTimes, plus5, plus10, plus15)
	sup.Clock = siteClock
	sup.Almanac = provider
	sup.Admit = admit
	sup.Selector = sel
	sup.Recorder = rec
	sup.Status = statusMgr
	sup.Tele = teleAdapter
	sup.Flags = flags
	sup.Log = logger
	sup.PlanPath = planPath

	sup.Pipeline = exposure.New(
		cfg.Exposure, cfg.Focus, cfg.Offset, cfg.Dither, cfg.Device,
		teleAdapter, camAdapter, provider, siteClock, statusMgr,
		exposure.ExternalFocusAnalyzer{Command: "focus-analyzer"},
		exposure.ExternalOffsetAnalyzer{Command: "offset-analyzer"},
		logger.With("component", "exposure"),
	)

	fields, savedAt, restored, err := recorder.LoadProgress(cfg.Paths.ProgressRecord)
	if err != nil {
		rec.Close()
		return nil, err
	}
	if restored {
		logger.Info("restored %d field(s) from progress record saved at %s", len(fields), savedAt.Format(time.RFC3339))
		sup.Fields = fields
		maxNum := -1
		for _, f := range fields {
			if f.Number > maxNum {
				maxNum = f.Number
			}
		}
		sup.NextNumber = maxNum + 1
	} else {
		fh, err := os.Open(planPath)
		if err != nil {
			rec.Close()
			return nil, fmt.Errorf("%w: open plan %s: %v", schederr.ErrFatal, planPath, err)
		}
		defer fh.Close()

		bounds := planfile.Bounds{
			MaxExptHr:      cfg.Scheduling.MaxExptHr,
			MinIntervalHr:  cfg.Scheduling.MinIntervalHr,
			MaxIntervalHr:  cfg.Scheduling.MaxIntervalHr,
			MaxObsPerField: cfg.Exposure.MaxObsPerField,
		}
		res, err := planfile.Load(fh, 0, bounds)
		if err != nil {
			rec.Close()
			return nil, fmt.Errorf("%w: load plan %s: %v", schederr.ErrFatal, planPath, err)
		}
		for _, pe := range res.Errors {
			logger.Warn("%v", pe)
		}
		sup.Fields = res.Fields
		sup.NextNumber = res.NextNumber

		startJD := siteClock.JD(night)
		sup.AdmitAll(startJD)
	}

	return sup, nil
}

func parseInt(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
