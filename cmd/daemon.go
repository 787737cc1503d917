// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"grimm.is/wirewall/internal/brand"
	"grimm.is/wirewall/internal/clock"
	"grimm.is/wirewall/internal/config"
	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/ctlplane"
	"grimm.is/wirewall/internal/dataplane"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/inspect"
	"grimm.is/wirewall/internal/logging"
	"grimm.is/wirewall/internal/metrics"
)

// RunDaemon runs the daemon in the foreground until SIGINT or SIGTERM.
func RunDaemon(configFile string) error {
	if configFile == "" {
		configFile = config.DefaultPath()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logging.SetDefault(logging.New(logging.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	}))
	log := logging.WithComponent("daemon")

	clk := &clock.RealClock{}
	store := engine.NewStore(cfg.Daemon.Workers, cfg.Daemon.MaxRules)
	redirects := engine.NewRedirectTable()
	cls := engine.NewClassifier(store, redirects, clk)
	ctrl := controller.New(store, redirects, cls, clk,
		controller.WithIntervals(cfg.Daemon.Harvest(), cfg.Daemon.Sweep()))

	link, err := dataplane.NewSystemLink()
	if err != nil {
		return fmt.Errorf("failed to open link layer: %w", err)
	}
	defer link.Close()

	mgr := dataplane.NewManager(link, cls, redirects, cfg.Daemon.Workers)
	defer mgr.Close()

	inspector := inspect.NewRegistry()
	mgr.SetInspector(inspector)

	// Interfaces first so redirect rules in the config can resolve.
	for _, a := range cfg.Attach {
		mode, _ := dataplane.ParseMode(a.Mode)
		if err := mgr.Attach(a.Interface, mode, a.Force); err != nil {
			return fmt.Errorf("failed to attach %s: %w", a.Interface, err)
		}
		log.Info("interface attached", "interface", a.Interface, "mode", mode.String())
	}

	for _, spec := range cfg.Rules {
		if _, err := ctrl.AddRule(spec); err != nil {
			return fmt.Errorf("failed to admit rule %q: %w", spec.Label, err)
		}
	}

	srv := ctlplane.NewServer(ctrl, mgr, inspector)
	if err := srv.Start(cfg.Daemon.SocketPath); err != nil {
		return err
	}
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	if addr := cfg.Daemon.MetricsListen; addr != "" {
		reg := metrics.NewRegistry(metrics.NewCollector(ctrl))
		go func() {
			if err := metrics.Serve(ctx, addr, reg); err != nil {
				log.Error("metrics listener failed", "addr", addr, "err", err)
			}
		}()
	}

	if err := writePidFile(cfg.Daemon.PidFile); err != nil {
		return err
	}
	defer os.Remove(cfg.Daemon.PidFile)

	log.Info("daemon started",
		"version", brand.Version,
		"pid", os.Getpid(),
		"workers", cfg.Daemon.Workers,
		"socket", cfg.Daemon.SocketPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", "signal", s.String())
	return nil
}

func writePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
