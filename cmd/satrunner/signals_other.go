//go:build !unix

package main

import "os"

var triggerSignals []os.Signal
