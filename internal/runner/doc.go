// Package runner executes one Run of the configured task.
//
// A Run is a fixed, linear sequence:
//
//	checkout -> provision -> install -> diagnose -> invoke
//
// The first failing step ends the Run as failed; nothing is retried. The
// diagnose step only reports and never fails. The invoked process exit code
// is the Run's result.
package runner
