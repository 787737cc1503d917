// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"grimm.is/wirewall/internal/brand"
	"grimm.is/wirewall/internal/config"
)

// RunStart launches the daemon in the background after preflighting the
// configuration. With foreground set it runs the daemon in this process.
func RunStart(configFile string, foreground bool) error {
	if configFile == "" {
		configFile = config.DefaultPath()
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if foreground {
		return RunDaemon(configFile)
	}

	pidFile := cfg.Daemon.PidFile
	if pid, running := readPidFile(pidFile); running {
		return fmt.Errorf("%s already running (PID %d)", brand.Name, pid)
	}
	os.Remove(pidFile)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	child := exec.Command(exe, "run", "-config", configFile)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdout = nil
	child.Stderr = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for the control socket to appear so failures surface here.
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(cfg.Daemon.SocketPath); err == nil {
			fmt.Printf("%s started (PID %d)\n", brand.Name, child.Process.Pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not come up; check logs")
}

// RunStop signals the running daemon and waits for it to exit.
func RunStop(configFile string) error {
	cfg, err := loadOrDefault(configFile)
	if err != nil {
		return err
	}
	pidFile := cfg.Daemon.PidFile

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PID file at %s (is the daemon running?)", pidFile)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid PID file contents: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	fmt.Printf("Stopping %s (PID %d)...\n", brand.Name, pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(pidFile); os.IsNotExist(err) {
			fmt.Println("Stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon still shutting down; PID file remains at %s", pidFile)
}

// readPidFile returns the recorded pid and whether that process is alive.
func readPidFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	return pid, process.Signal(syscall.Signal(0)) == nil
}

// loadOrDefault loads the config file, falling back to built-in defaults
// when the default file is absent.
func loadOrDefault(configFile string) (*config.Config, error) {
	if configFile == "" {
		configFile = config.DefaultPath()
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return config.Decode(filepath.Base(configFile), nil)
		}
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}
