//go:build windows

package watch

import (
	"os"
	"os/exec"
	"syscall"
)

// StartDaemon re-executes the binary as a detached foreground watcher for
// dir and returns its PID.
func StartDaemon(dir, configPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(exe, daemonArgs(dir, configPath)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
	if logFile, err := openDaemonLog(); err == nil {
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// StopDaemon terminates the process; Windows has no SIGTERM delivery.
func StopDaemon(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Kill(); err != nil {
		return err
	}
	return RemoveState(pid)
}

// isProcessRunning relies on FindProcess opening a handle, which fails for
// exited processes on Windows.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = process.Release()
	return true
}
