// Package config holds the process-scope configuration value that is
// passed by reference to every scheduler subsystem, replacing the global
// program state (verbosity, flags, filter name, focus defaults) that the
// original scheduler kept as package-level variables.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config carries every tunable named in the scheduling specification. It
// is loaded once at startup and never mutated; runtime flags that do
// change (pause/resume/terminate, verbosity) live in RuntimeFlags instead.
type Config struct {
	Site SiteConfig `toml:"site"`

	Admission  AdmissionConfig  `toml:"admission"`
	Exposure   ExposureConfig   `toml:"exposure"`
	Scheduling SchedulingConfig `toml:"scheduling"`
	Device     DeviceConfig     `toml:"device"`
	Focus      FocusConfig      `toml:"focus"`
	Paths      PathsConfig      `toml:"paths"`
	Weather    WeatherConfig    `toml:"weather"`
	Offset     OffsetConfig     `toml:"offset"`
	Dither     DitherConfig     `toml:"dither"`
}

// WeatherConfig holds the thresholds the Supervisor uses to decide
// whether conditions are safe to observe.
type WeatherConfig struct {
	MaxWindKPH     float64 `toml:"max_wind_kph"`
	MinDewGapC     float64 `toml:"min_dew_point_gap_c"`
	MaxHumidityPct float64 `toml:"max_humidity_pct"`
}

// OffsetConfig bounds the pointing-offset analyzer's output before it is
// stored into TelescopeStatus,
// and tunes the optional per-attempt pointing/tracking correction terms.
type OffsetConfig struct {
	MaxOffsetDeg             float64 `toml:"max_offset_deg"`
	EnablePointingCorrection bool    `toml:"enable_pointing_correction"`
	EnableTrackingCorrection bool    `toml:"enable_tracking_correction"`
	PointingGainDegPerHr     float64 `toml:"pointing_gain_deg_per_hour"`
	TrackingGainDegPerHr     float64 `toml:"tracking_gain_deg_per_hour"`
}

// DitherConfig controls the concentric-ring dither lattice.
type DitherConfig struct {
	EnabledForFlats   bool    `toml:"enabled_for_flats"`
	EnabledForCoadds  bool    `toml:"enabled_for_coadds"`
	StepArcsec        float64 `toml:"step_arcsec"`
}

// SiteConfig identifies the observing site. SITE_NAME is read from the
// environment per spec.md §6; an empty value defaults to "DEFAULT" with a
// warning logged by the caller.
type SiteConfig struct {
	Name      string  `toml:"name"`
	LatDeg    float64 `toml:"lat_deg"`
	LonDeg    float64 `toml:"lon_deg"`
	ElevM     float64 `toml:"elevation_m"`
}

// AdmissionConfig holds AdmissionFilter thresholds.
type AdmissionConfig struct {
	MaxAirmass     float64 `toml:"max_airmass"`
	MaxHourAngleHr float64 `toml:"max_hour_angle_hours"`
	MaxDecDeg      float64 `toml:"max_dec_deg"`
	MinDecDeg      float64 `toml:"min_dec_deg"`
	MinMoonSepDeg  float64 `toml:"min_moon_sep_deg"`
	MinGalLatDeg   float64 `toml:"min_galactic_lat_deg"`
	DarkWaitHr     float64 `toml:"dark_wait_hours"`
	FlatWaitHr     float64 `toml:"flat_wait_hours"`
}

// ExposureConfig holds ExposurePipeline thresholds.
type ExposureConfig struct {
	LongExptimeHr     float64 `toml:"long_exptime_hours"`
	MaxObsPerField    int     `toml:"max_obs_per_field"`
	ClearIntervalHr   float64 `toml:"clear_interval_hours"`
	MaxBadReadouts    int     `toml:"max_bad_readouts"`
	ExposeSlackSec    float64 `toml:"expose_slack_seconds"`
	NoWaitEpsilonSec  float64 `toml:"no_wait_epsilon_seconds"`
	ReadoutSec        float64 `toml:"readout_seconds"`
	TransferSec       float64 `toml:"transfer_seconds"`
	NoWaitPolicy      bool    `toml:"no_wait_policy"`
	TrackDeadlineSec  float64 `toml:"track_deadline_seconds"`
	ClearDurationSec  float64 `toml:"clear_duration_seconds"`
}

// SchedulingConfig holds Selector/field-timing thresholds.
type SchedulingConfig struct {
	MinIntervalHr      float64 `toml:"min_interval_hours"`
	MaxIntervalHr      float64 `toml:"max_interval_hours"`
	MaxExptHr          float64 `toml:"max_expt_hours"`
	MinExecutionTimeHr float64 `toml:"min_execution_time_hours"`
	RAStep0Hr          float64 `toml:"ra_step0_hours"`
	LoopWaitSec        float64 `toml:"loop_wait_seconds"`
}

// FocusConfig holds focus post-processing thresholds.
type FocusConfig struct {
	MinFocusMM        float64 `toml:"min_focus_mm"`
	MaxFocusMM        float64 `toml:"max_focus_mm"`
	MaxFocusChangeMM  float64 `toml:"max_focus_change_mm"`
	DefaultFocusMM    float64 `toml:"default_focus_mm"`
	SettlingIterations int    `toml:"settling_iterations"`
}

// DeviceConfig holds the DeviceAdapter's network parameters.
type DeviceConfig struct {
	TelescopeHost  string  `toml:"telescope_host"`
	TelescopePort  int     `toml:"telescope_port"`
	CameraCmdPort  int     `toml:"camera_command_port"`
	CameraStatPort int     `toml:"camera_status_port"`
	MaxBufSize     int     `toml:"max_buf_size"`
	PostCmdSleepMs int     `toml:"post_command_sleep_ms"`
	SafetySlackSec float64 `toml:"safety_slack_seconds"`
}

// PathsConfig holds the Recorder's output file locations.
type PathsConfig struct {
	ObservationLog   string `toml:"observation_log"`
	HistoryFile      string `toml:"history_file"`
	CompletedScript  string `toml:"completed_script"`
	ProgressRecord   string `toml:"progress_record"`
	PlanAddSuffix    string `toml:"plan_add_suffix"`
}

// Default returns the compiled-in configuration matching the literal
// values used throughout spec.md's worked examples (§8).
func Default() Config {
	return Config{
		Site: SiteConfig{
			Name:   "DEFAULT",
			LatDeg: 32.9,
			LonDeg: -105.5,
			ElevM:  2788,
		},
		Admission: AdmissionConfig{
			MaxAirmass:     3.0,
			MaxHourAngleHr: 5.5,
			MaxDecDeg:      65.0,
			MinDecDeg:      -40.0,
			MinMoonSepDeg:  30.0,
			MinGalLatDeg:   15.0,
			DarkWaitHr:     0.5,
			FlatWaitHr:     0.25,
		},
		Exposure: ExposureConfig{
			LongExptimeHr:    300.0 / 3600.0,
			MaxObsPerField:   100,
			ClearIntervalHr:  0.25,
			MaxBadReadouts:   3,
			ExposeSlackSec:   10,
			NoWaitEpsilonSec: 2,
			ReadoutSec:       15,
			TransferSec:      5,
			NoWaitPolicy:     true,
			TrackDeadlineSec: 30,
			ClearDurationSec: 0,
		},
		Scheduling: SchedulingConfig{
			MinIntervalHr:      0.05,
			MaxIntervalHr:      24.0,
			MaxExptHr:          1.0,
			MinExecutionTimeHr: 10.0 / 3600.0,
			RAStep0Hr:          0.05,
			LoopWaitSec:        5,
		},
		Focus: FocusConfig{
			MinFocusMM:         0,
			MaxFocusMM:         20,
			MaxFocusChangeMM:   2,
			DefaultFocusMM:     10,
			SettlingIterations: 2,
		},
		Device: DeviceConfig{
			TelescopeHost:  "localhost",
			TelescopePort:  6000,
			CameraCmdPort:  6001,
			CameraStatPort: 6002,
			MaxBufSize:     4096,
			PostCmdSleepMs: 100,
			SafetySlackSec: 15,
		},
		Paths: PathsConfig{
			ObservationLog:  "scheduler.log",
			HistoryFile:     "scheduler.history",
			CompletedScript: "fields.completed",
			ProgressRecord:  "scheduler.progress",
			PlanAddSuffix:   ".add",
		},
		Weather: WeatherConfig{
			MaxWindKPH:     40.0,
			MinDewGapC:     2.0,
			MaxHumidityPct: 90.0,
		},
		Offset: OffsetConfig{
			MaxOffsetDeg:             0.25,
			EnablePointingCorrection: false,
			EnableTrackingCorrection: false,
			PointingGainDegPerHr:     0,
			TrackingGainDegPerHr:     0,
		},
		Dither: DitherConfig{
			EnabledForFlats:  true,
			EnabledForCoadds: true,
			StepArcsec:       10.0,
		},
	}
}

// Load reads a TOML configuration file and merges it over the compiled-in
// defaults: any field absent from the file keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// SiteNameFromEnv reads SITE_NAME, defaulting to "DEFAULT" and reporting
// whether the fallback was used.
func SiteNameFromEnv() (name string, usedDefault bool) {
	name = os.Getenv("SITE_NAME")
	if name == "" {
		return "DEFAULT", true
	}
	return name, false
}
