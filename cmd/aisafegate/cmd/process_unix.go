//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// gracefulSignals lists the signals that trigger a clean gateway
// shutdown: SIGINT from the terminal and SIGTERM from process managers.
func gracefulSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processIsAlive probes a PID with signal 0, which delivers nothing
// but fails if the process is gone.
func processIsAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// sendGracefulStop asks a running gateway to shut down via SIGTERM.
func sendGracefulStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
