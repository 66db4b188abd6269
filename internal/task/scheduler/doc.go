// Package scheduler turns schedule strings into triggers.
//
// It never executes work itself. Each firing enqueues one task into the
// engine; execution, timeouts and overlap policy live there.
package scheduler
