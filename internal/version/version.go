// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.1.0"

// Milestones:
// 0.1.0 - Supervisor main loop, admission/selector/exposure pipeline, device
//         adapters, crash-recovery progress record
