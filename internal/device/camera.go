package device

import (
	"context"
	"fmt"
	"time"
)

// ExposeMode names the camera controller's pipeline stage for one
// exposure command, allowing readout/transfer to overlap across
// successive commands.
type ExposeMode string

const (
	ExposeSingle ExposeMode = "single"
	ExposeFirst  ExposeMode = "first"
	ExposeNext   ExposeMode = "next"
	ExposeLast   ExposeMode = "last"
)

// CameraAdapter issues the camera controller's command surface: status, clear, header, expose. Status queries go to a separate
// port from commands (StatAddress) so status remains available during a
// long exposure.
type CameraAdapter struct {
	Transport   *Transport
	CmdAddress  string
	StatAddress string
	Timeout     time.Duration
}

// NewCameraAdapter returns an adapter for the camera controller.
func NewCameraAdapter(t *Transport, host string, cmdPort, statPort int, timeout time.Duration) *CameraAdapter {
	return &CameraAdapter{
		Transport:   t,
		CmdAddress:  fmt.Sprintf("%s:%d", host, cmdPort),
		StatAddress: fmt.Sprintf("%s:%d", host, statPort),
		Timeout:     timeout,
	}
}

// Status queries the camera controller's status reply on the dedicated
// status port.
func (a *CameraAdapter) Status(ctx context.Context) (Reply, error) {
	return a.Transport.Send(ctx, a.StatAddress, "status", a.Timeout)
}

// Clear issues a camera clear, used when the inter-exposure gap exceeds
// CLEAR_INTERVAL. t is the clear duration in
// seconds; policy may configure it to zero clears.
func (a *CameraAdapter) Clear(ctx context.Context, tSec float64) error {
	r, err := a.Transport.Send(ctx, a.CmdAddress, fmt.Sprintf("clear %.3f", tSec), a.Timeout)
	if err != nil {
		return err
	}
	if !r.OK {
		return fmt.Errorf("camera clear: %s", r.Raw)
	}
	return nil
}

// Header imprints one FITS header keyword/value pair.
func (a *CameraAdapter) Header(ctx context.Context, keyword, value string) error {
	r, err := a.Transport.Send(ctx, a.CmdAddress, fmt.Sprintf("header %s %s", keyword, value), a.Timeout)
	if err != nil {
		return err
	}
	if !r.OK {
		return fmt.Errorf("camera header %s: %s", keyword, r.Raw)
	}
	return nil
}

// ExposeBudget computes the command deadline for one expose call under
// the "wait" policy, using a mode-keyed timeout budget:
// Single = expt+readout+transfer, First = expt+readout, Next =
// max(expt+readout, transfer), Last = transfer; all plus a fixed slack.
func ExposeBudget(mode ExposeMode, expt, readout, transfer, slack time.Duration) time.Duration {
	var budget time.Duration
	switch mode {
	case ExposeSingle:
		budget = expt + readout + transfer
	case ExposeFirst:
		budget = expt + readout
	case ExposeNext:
		budget = expt + readout
		if transfer > budget {
			budget = transfer
		}
	case ExposeLast:
		budget = transfer
	default:
		budget = expt + readout + transfer
	}
	return budget + slack
}

// Expose issues the expose command and blocks for the full reply under
// the "wait" policy; shutter selects a light (true) vs dark (false)
// frame. The no-wait hot path does not call this method directly — see
// internal/exposure, which issues the same command text on a background
// worker and only waits the nominal exposure time in the foreground.
func (a *CameraAdapter) Expose(ctx context.Context, shutter bool, exptSec float64, fileroot string, mode ExposeMode, deadline time.Duration) error {
	shutterStr := "0"
	if shutter {
		shutterStr = "1"
	}
	cmd := fmt.Sprintf("expose %s %.4f %s %s", shutterStr, exptSec, fileroot, mode)
	r, err := a.Transport.Send(ctx, a.CmdAddress, cmd, deadline)
	if err != nil {
		return err
	}
	if !r.OK {
		return fmt.Errorf("camera expose: %s", r.Raw)
	}
	return nil
}
