//go:build !windows

// internal/instance/alive_unix.go
package instance

import (
	"os"
	"syscall"
)

// processAlive sends a PID signal 0, which checks existence
// without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
