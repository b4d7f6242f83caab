// Command streammanager is the Stream Manager daemon: the policy engine
// for stream routing, volume, and priority described in spec.md.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/tizen-audio/stream-manager/internal/collab/fake"
	"github.com/tizen-audio/stream-manager/internal/manager"
	"github.com/tizen-audio/stream-manager/internal/persistentkv"
)

func main() {
	var (
		cfgDir     = flag.String("config-dir", "", "config directory (default: ~/.config/streammanager)")
		systemBus  = flag.Bool("system-bus", false, "export the Control Interface on the system bus instead of the session bus")
		noDBus     = flag.Bool("no-dbus", false, "run without exporting the Control Interface (for local testing)")
		watchINI   = flag.Bool("watch-volume-ini", true, "hot-reload volume INI tables on write")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if *cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*cfgDir = filepath.Join(home, ".config", "streammanager")
	}
	if err := os.MkdirAll(*cfgDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", *cfgDir, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var conn *dbus.Conn
	if !*noDBus {
		var err error
		if *systemBus {
			conn, err = dbus.ConnectSystemBus()
		} else {
			conn, err = dbus.ConnectSessionBus()
		}
		if err != nil {
			slog.Error("d-bus connection failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
	}

	// The real HAL, Device Manager, and server hook bus live out-of-process
	// in the audio server this daemon plugs into (spec.md §4.6); nothing in
	// this module owns that transport, so the in-memory collaborators stand
	// in for them here the same way the teacher's --mock hardware driver
	// stands in for the I2C bus.
	hal := fake.NewHAL()
	dm := fake.NewDeviceManager()
	events := fake.NewServerEvents()
	kv := persistentkv.NewJSONStore(filepath.Join(*cfgDir, "initial-levels.json"))

	cfg := manager.Config{
		StreamMapPath:        filepath.Join(*cfgDir, "stream-map.json"),
		VolumeTunedPathIn:    filepath.Join(*cfgDir, "volume-in-tuned.ini"),
		VolumeDefaultPathIn:  filepath.Join(*cfgDir, "volume-in-default.ini"),
		VolumeTunedPathOut:   filepath.Join(*cfgDir, "volume-out-tuned.ini"),
		VolumeDefaultPathOut: filepath.Join(*cfgDir, "volume-out-default.ini"),
		WatchVolumeINI:       *watchINI,
		HAL:                  hal,
		DeviceManager:        dm,
		ServerEvents:         events,
		KV:                   kv,
		DBusConn:             conn,
	}

	mgr, err := manager.New(cfg)
	if err != nil {
		slog.Error("manager initialization failed", "err", err)
		os.Exit(1)
	}

	slog.Info("stream manager ready",
		"config", *cfgDir,
		"dbus", !*noDBus,
		"system_bus", *systemBus,
	)

	<-ctx.Done()
	slog.Info("shutting down...")
	mgr.Shutdown()
	slog.Info("shutdown complete")
}
