// Package status owns TelescopeStatus and CameraStatus: the
// Supervisor's cached view of the last-observed controller state,
// refreshed once per tick and read by everything else. No other component
// caches these values across ticks. Grounded on the teacher's state
// manager (internal/state/state.go in litescript/ls-horizons), a
// sync.RWMutex-guarded cache updated from a single producer and read by
// many consumers — the same shape, repointed from DSN telemetry to
// telescope/camera controller replies.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/config"
	"github.com/nugent68/ls4-scheduler-sub000/internal/device"
)

// TelescopeStatus is the last-observed telescope state.
type TelescopeStatus struct {
	Ready          bool // false if the last refresh failed
	DomeOpen       bool
	FocusMM        float64
	Filter         string
	LSTHr          float64
	UT             time.Time
	PointingRAHr   float64
	PointingDecDeg float64
	OffsetRADeg    float64
	OffsetDecDeg   float64
	Weather        device.WeatherReading
	UpdatedAt      time.Time
}

// cameraSubStateNames are the camera controller's 19 named sub-states.
// The protocol gives each a 4-bit mask so individual
// controllers in the multi-controller camera can disagree transiently;
// ALL_POSITIVE/ALL_NEGATIVE mark fleet-wide agreement.
var cameraSubStateNames = [19]string{
	"power", "comm_link", "exposing", "reading", "erasing",
	"purging", "fpga_ready", "nvram_ok", "cooler_locked", "shutter_open",
	"shutter_closed", "filter_moving", "fans_ok", "vacuum_ok", "bias_settled",
	"adc_ready", "header_written", "disk_ok", "watchdog_ok",
}

const (
	// AllPositive marks fleet-wide agreement that a sub-state holds.
	AllPositive uint8 = 0xF
	// AllNegative marks fleet-wide agreement that a sub-state does not hold.
	AllNegative uint8 = 0x0
)

// CameraStatus is the last-observed camera controller state.
type CameraStatus struct {
	Ready     bool
	Error     bool
	State     string
	Comment   string
	ISODate   string
	SubStates [19]uint8 // indexed by cameraSubStateNames
	UpdatedAt time.Time
}

// SubStateMask returns the 4-bit mask for a named sub-state, or false if
// the name is not recognized.
func (c CameraStatus) SubStateMask(name string) (uint8, bool) {
	for i, n := range cameraSubStateNames {
		if n == name {
			return c.SubStates[i], true
		}
	}
	return 0, false
}

// Agrees reports whether every controller agrees the named sub-state
// holds (ALL_POSITIVE) or does not hold (ALL_NEGATIVE).
func (c CameraStatus) Agrees(name string) (agree bool, value bool) {
	mask, ok := c.SubStateMask(name)
	if !ok {
		return false, false
	}
	switch mask {
	case AllPositive:
		return true, true
	case AllNegative:
		return true, false
	default:
		return false, false
	}
}

// Manager caches TelescopeStatus and CameraStatus for the Supervisor,
// refreshed once per tick, read by the Selector's bad-weather gate and
// the ExposurePipeline's header imprint.
type Manager struct {
	mu    sync.RWMutex
	tele  TelescopeStatus
	cam   CameraStatus
	cfg   config.WeatherConfig
}

// NewManager returns an empty Manager; Ready is false on both statuses
// until the first successful refresh.
func NewManager(cfg config.WeatherConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Telescope returns a copy of the cached telescope status.
func (m *Manager) Telescope() TelescopeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tele
}

// Camera returns a copy of the cached camera status.
func (m *Manager) Camera() CameraStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cam
}

// RefreshTelescope queries the telescope controller and updates the
// cache. On any device error, Ready is cleared and the stale fields are
// otherwise left untouched: a failed refresh is treated the same as bad
// weather, marking the telescope not ready.
func (m *Manager) RefreshTelescope(ctx context.Context, adapter *device.TelescopeAdapter, now time.Time) error {
	lst, err := adapter.LST(ctx)
	if err != nil {
		m.markTelescopeNotReady()
		return err
	}
	domeOpen, err := adapter.DomeStatus(ctx)
	if err != nil {
		m.markTelescopeNotReady()
		return err
	}
	raHr, decDeg, err := adapter.PosRD(ctx)
	if err != nil {
		m.markTelescopeNotReady()
		return err
	}
	focus, err := adapter.GetFocus(ctx)
	if err != nil {
		m.markTelescopeNotReady()
		return err
	}
	filter, err := adapter.Filter(ctx)
	if err != nil {
		m.markTelescopeNotReady()
		return err
	}
	weather, err := adapter.Weather(ctx)
	if err != nil {
		m.markTelescopeNotReady()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tele.Ready = true
	m.tele.DomeOpen = domeOpen
	m.tele.FocusMM = focus
	m.tele.Filter = filter
	m.tele.LSTHr = lst
	m.tele.UT = now
	m.tele.PointingRAHr = raHr
	m.tele.PointingDecDeg = decDeg
	m.tele.Weather = weather
	m.tele.UpdatedAt = now
	return nil
}

func (m *Manager) markTelescopeNotReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tele.Ready = false
}

// SetOffset stores a newly computed pointing offset, clamped by the caller before storage.
func (m *Manager) SetOffset(raDeg, decDeg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tele.OffsetRADeg = raDeg
	m.tele.OffsetDecDeg = decDeg
}

// BadWeather reports whether the cached weather reading (or an unready
// telescope) should gate flats/focus/offset observing. Darks and dome flats are weather-independent and are never
// gated by this check.
func (m *Manager) BadWeather() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.tele.Ready {
		return true
	}
	if !m.tele.DomeOpen {
		return true
	}
	w := m.tele.Weather
	if w.WindSpeedKPH > m.cfg.MaxWindKPH {
		return true
	}
	if w.HumidityPct > m.cfg.MaxHumidityPct {
		return true
	}
	if w.TempC-w.DewPointC < m.cfg.MinDewGapC {
		return true
	}
	return false
}

// RefreshCamera queries the camera controller's status reply and parses
// it into CameraStatus. The 19 sub-state masks are not produced by the
// controller's simple key/value reply grammar (that grammar carries only
// scalar fields); CameraStatus.SubStates is populated from a reserved
// "substates" field holding 19 comma-free hex nibbles when present, and
// left zero otherwise — callers that need per-controller detail consult
// the raw Reply returned alongside.
func (m *Manager) RefreshCamera(ctx context.Context, adapter *device.CameraAdapter, now time.Time) (device.Reply, error) {
	r, err := adapter.Status(ctx)
	if err != nil {
		m.markCameraError()
		return r, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cam.Ready, _ = r.Fields["ready"].(bool)
	m.cam.Error, _ = r.Fields["error"].(bool)
	m.cam.State, _ = r.Fields["state"].(string)
	m.cam.Comment, _ = r.Fields["comment"].(string)
	m.cam.ISODate, _ = r.Fields["date"].(string)
	m.cam.UpdatedAt = now
	if sub, ok := r.Fields["substates"].(string); ok {
		parseSubStates(&m.cam, sub)
	}
	return r, nil
}

func (m *Manager) markCameraError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cam.Ready = false
	m.cam.Error = true
}

// parseSubStates decodes a 19-character hex-nibble string into
// cam.SubStates, skipping any position it cannot decode.
func parseSubStates(cam *CameraStatus, s string) {
	for i := 0; i < len(cameraSubStateNames) && i < len(s); i++ {
		c := s[i]
		var v uint8
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			continue
		}
		cam.SubStates[i] = v
	}
}
