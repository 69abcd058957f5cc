// Package schederr defines the scheduler's abstract error kinds as
// sentinel errors, so callers can classify a failure with errors.Is
// instead of inspecting message text. Each kind carries its own
// propagation policy, documented on the constant.
package schederr

import "errors"

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX) at
// the point of detection so errors.Is(err, schederr.ErrBadReadout) etc.
// keeps working after wrapping.
var (
	// ErrPlanMalformed marks a bad line in a plan file. Never fatal: the
	// line is logged and skipped.
	ErrPlanMalformed = errors.New("plan line malformed")

	// ErrAdmissionRejected marks a field that failed AdmissionFilter.
	// Recorded; the field is marked not-doable and the loop continues.
	ErrAdmissionRejected = errors.New("field rejected at admission")

	// ErrDeviceTimeout marks a device call that did not complete within
	// its deadline. Camera: the exposure contributes no attempt.
	// Telescope: next tick treats as bad weather.
	ErrDeviceTimeout = errors.New("device call timed out")

	// ErrDeviceProtocol marks a reply that did not begin with DONE or
	// ERROR, or was empty. Same propagation as ErrDeviceTimeout.
	ErrDeviceProtocol = errors.New("device reply protocol violation")

	// ErrBadReadout marks a readout wait that returned failure. The
	// previous attempt on the previous field is rescinded.
	ErrBadReadout = errors.New("bad readout")

	// ErrOutOfRange marks a focus or offset value outside configured
	// bounds; the caller clamps to default and logs.
	ErrOutOfRange = errors.New("value out of configured range")

	// ErrRecoveryCorrupt marks a binary progress record whose header
	// does not parse, or whose field count exceeds MAX_FIELDS. Startup
	// aborts with a non-zero exit.
	ErrRecoveryCorrupt = errors.New("progress record corrupt")

	// ErrFatal marks unrecoverable startup failures: signal handler
	// installation, progress record creation, FITS header init.
	ErrFatal = errors.New("fatal startup failure")
)
