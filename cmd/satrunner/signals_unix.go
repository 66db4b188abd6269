//go:build unix

package main

import (
	"os"
	"syscall"
)

// triggerSignals start a manual Run (kill -USR1 <pid>).
var triggerSignals = []os.Signal{syscall.SIGUSR1}
