//go:build windows

// internal/instance/alive_windows.go
package instance

import "os"

// processAlive opens the process handle. Windows has no signal 0
// equivalent; FindProcess fails when the PID does not exist.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}
