package device

import (
	"context"
	"fmt"
	"time"
)

// TelescopeAdapter issues the telescope controller's command surface
//: lst, domestatus, posrd, weather, getfocus, setfocus,
// track, settracking, stow, stop, filter.
type TelescopeAdapter struct {
	Transport *Transport
	Address   string
	Timeout   time.Duration
}

// NewTelescopeAdapter returns an adapter for the telescope controller at
// host:port, using timeout as the per-call deadline for every command
// except those the caller overrides explicitly (e.g. track, whose
// deadline the ExposurePipeline passes as a fixed slew budget).
func NewTelescopeAdapter(t *Transport, host string, port int, timeout time.Duration) *TelescopeAdapter {
	return &TelescopeAdapter{Transport: t, Address: fmt.Sprintf("%s:%d", host, port), Timeout: timeout}
}

func (a *TelescopeAdapter) send(ctx context.Context, cmd string) (Reply, error) {
	return a.sendWithDeadline(ctx, cmd, a.Timeout)
}

func (a *TelescopeAdapter) sendWithDeadline(ctx context.Context, cmd string, deadline time.Duration) (Reply, error) {
	r, err := a.Transport.Send(ctx, a.Address, cmd, deadline)
	if err != nil {
		return Reply{}, err
	}
	if !r.OK {
		return r, fmt.Errorf("telescope %q: %s", cmd, r.Raw)
	}
	return r, nil
}

func floatField(r Reply, key string) (float64, error) {
	v, ok := r.Fields[key]
	if !ok {
		return 0, fmt.Errorf("reply missing field %q: %s", key, r.Raw)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is not numeric: %v", key, v)
	}
	return f, nil
}

func boolField(r Reply, key string) (bool, error) {
	v, ok := r.Fields[key]
	if !ok {
		return false, fmt.Errorf("reply missing field %q: %s", key, r.Raw)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is not boolean: %v", key, v)
	}
	return b, nil
}

func stringField(r Reply, key string) (string, error) {
	v, ok := r.Fields[key]
	if !ok {
		return "", fmt.Errorf("reply missing field %q: %s", key, r.Raw)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string: %v", key, v)
	}
	return s, nil
}

// LST queries the current Local Sidereal Time in hours.
func (a *TelescopeAdapter) LST(ctx context.Context) (float64, error) {
	r, err := a.send(ctx, "lst")
	if err != nil {
		return 0, err
	}
	return floatField(r, "lst")
}

// DomeStatus reports whether the dome is open.
func (a *TelescopeAdapter) DomeStatus(ctx context.Context) (open bool, err error) {
	r, err := a.send(ctx, "domestatus")
	if err != nil {
		return false, err
	}
	return boolField(r, "open")
}

// PosRD returns the telescope's currently commanded RA (hours) and Dec
// (degrees).
func (a *TelescopeAdapter) PosRD(ctx context.Context) (raHr, decDeg float64, err error) {
	r, err := a.send(ctx, "posrd")
	if err != nil {
		return 0, 0, err
	}
	raHr, err = floatField(r, "ra")
	if err != nil {
		return 0, 0, err
	}
	decDeg, err = floatField(r, "dec")
	return raHr, decDeg, err
}

// WeatherReading is the raw weather reply, parsed into typed fields.
type WeatherReading struct {
	TempC        float64
	HumidityPct  float64
	WindSpeedKPH float64
	WindDirDeg   float64
	DewPointC    float64
}

// Weather queries the current weather reading.
func (a *TelescopeAdapter) Weather(ctx context.Context) (WeatherReading, error) {
	r, err := a.send(ctx, "weather")
	if err != nil {
		return WeatherReading{}, err
	}
	var w WeatherReading
	if w.TempC, err = floatField(r, "temp"); err != nil {
		return WeatherReading{}, err
	}
	if w.HumidityPct, err = floatField(r, "humidity"); err != nil {
		return WeatherReading{}, err
	}
	if w.WindSpeedKPH, err = floatField(r, "wind_speed"); err != nil {
		return WeatherReading{}, err
	}
	if w.WindDirDeg, err = floatField(r, "wind_dir"); err != nil {
		return WeatherReading{}, err
	}
	if w.DewPointC, err = floatField(r, "dew_point"); err != nil {
		return WeatherReading{}, err
	}
	return w, nil
}

// GetFocus queries the current focus position in mm.
func (a *TelescopeAdapter) GetFocus(ctx context.Context) (float64, error) {
	r, err := a.send(ctx, "getfocus")
	if err != nil {
		return 0, err
	}
	return floatField(r, "focus")
}

// SetFocus commands a new focus position in mm.
func (a *TelescopeAdapter) SetFocus(ctx context.Context, mm float64) error {
	_, err := a.send(ctx, fmt.Sprintf("setfocus %.4f", mm))
	return err
}

// Track commands the mount to a corrected RA/Dec, with deadline sized by
// the caller (the ExposurePipeline uses a short fixed slew budget, not
// the exposure-length default).
func (a *TelescopeAdapter) Track(ctx context.Context, raHr, decDeg float64, deadline time.Duration) error {
	_, err := a.sendWithDeadline(ctx, fmt.Sprintf("track %.6f %.6f", raHr, decDeg), deadline)
	return err
}

// SetTracking commands non-sidereal tracking rates (RA, Dec, deg/hour).
func (a *TelescopeAdapter) SetTracking(ctx context.Context, rateRA, rateDec float64, deadline time.Duration) error {
	_, err := a.sendWithDeadline(ctx, fmt.Sprintf("settracking %.6f %.6f", rateRA, rateDec), deadline)
	return err
}

// Stow parks the telescope, issued when bad weather forces a stop.
func (a *TelescopeAdapter) Stow(ctx context.Context) error {
	_, err := a.send(ctx, "stow")
	return err
}

// Stop halts mount motion, issued on a point/track error or when the Supervisor degrades to not-ready.
func (a *TelescopeAdapter) Stop(ctx context.Context) error {
	_, err := a.send(ctx, "stop")
	return err
}

// SetFilter commands the active filter wheel position.
func (a *TelescopeAdapter) SetFilter(ctx context.Context, name string) error {
	_, err := a.send(ctx, fmt.Sprintf("filter %s", name))
	return err
}

// Filter queries the current filter name.
func (a *TelescopeAdapter) Filter(ctx context.Context) (string, error) {
	r, err := a.send(ctx, "filter")
	if err != nil {
		return "", err
	}
	return stringField(r, "filter")
}
