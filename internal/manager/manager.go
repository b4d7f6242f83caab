// Package manager wires the stream-map (C1), volume store (C2), parent
// registry (C3), priority tracker (C4), routing engine (C5), volume
// applicator (C6, part of internal/volume), and Control Interface (C7),
// together with the external collaborator interfaces, into one process-wide
// instance, following the init/shutdown ordering of spec.md §5.
package manager

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/model"
	"github.com/tizen-audio/stream-manager/internal/parent"
	"github.com/tizen-audio/stream-manager/internal/persistentkv"
	"github.com/tizen-audio/stream-manager/internal/priority"
	"github.com/tizen-audio/stream-manager/internal/routing"
	"github.com/tizen-audio/stream-manager/internal/rpc"
	"github.com/tizen-audio/stream-manager/internal/streammap"
	"github.com/tizen-audio/stream-manager/internal/volume"
)

// Config carries everything Manager needs to initialize, gathered from the
// process entry point's flags/environment.
type Config struct {
	StreamMapPath       string
	VolumeTunedPathIn   string
	VolumeDefaultPathIn string
	VolumeTunedPathOut  string
	VolumeDefaultPathOut string
	WatchVolumeINI      bool

	HAL           collab.HAL
	DeviceManager collab.DeviceManager
	ServerEvents  collab.ServerEvents
	KV            persistentkv.Store

	DBusConn *dbus.Conn
}

// Manager owns the process-wide stream-manager instance.
type Manager struct {
	streamMap *streammap.Map
	vol       *volume.Store
	parents   *parent.Registry
	tracker   *priority.Tracker
	comm      *collab.Communicator
	engine    *routing.Engine
	rpcServer *rpc.Server

	stopWatchIn  func()
	stopWatchOut func()
}

// New initializes the manager in this order: C1, C2 (INI tables, HAL
// flags, initial levels), C3, C4, the routing engine, then C7's server
// object, then hook and device-manager subscriptions, then the volume INI
// watchers, and finally the D-Bus export. C7's server object is not
// constructed first: it is built after the routing engine it dispatches
// into.
func New(cfg Config) (*Manager, error) {
	streamMap, err := streammap.Load(cfg.StreamMapPath)
	if err != nil {
		return nil, err
	}

	kv := cfg.KV
	if kv == nil {
		kv = persistentkv.NewMemStore()
	}
	vol := volume.New(cfg.HAL, kv)
	if err := vol.LoadINI(model.DirectionOut, cfg.VolumeTunedPathOut, cfg.VolumeDefaultPathOut); err != nil {
		return nil, err
	}
	if err := vol.LoadINI(model.DirectionIn, cfg.VolumeTunedPathIn, cfg.VolumeDefaultPathIn); err != nil {
		return nil, err
	}
	for _, role := range streamMap.Roles() {
		spec, _ := streamMap.Lookup(role)
		for _, dir := range []model.Direction{model.DirectionIn, model.DirectionOut} {
			if spec.IsHALVolume[dir] && spec.VolumeType[dir] != "" {
				vol.MarkHAL(dir, spec.VolumeType[dir], true)
			}
		}
	}
	vol.OnInitialLevels(model.DirectionOut, volumeKeyPrefix(model.DirectionOut))
	vol.OnInitialLevels(model.DirectionIn, volumeKeyPrefix(model.DirectionIn))

	parents := parent.New()
	tracker := priority.New()
	comm := collab.NewCommunicator()

	engine := routing.New(streamMap, vol, parents, tracker, cfg.HAL, comm)

	rpcServer := rpc.New(streamMap, vol, parents, engine, volumeKeyPrefix)

	m := &Manager{
		streamMap: streamMap,
		vol:       vol,
		parents:   parents,
		tracker:   tracker,
		comm:      comm,
		engine:    engine,
		rpcServer: rpcServer,
	}

	// Hook subscriptions, then event-bus subscriptions, matching spec.md
	// §5's ordering: the routing engine must be fully wired before any
	// collaborator can fire a hook into it.
	engine.Subscribe(cfg.ServerEvents, cfg.DeviceManager)

	if cfg.WatchVolumeINI {
		stopOut, err := vol.WatchINI(model.DirectionOut, cfg.VolumeTunedPathOut, cfg.VolumeDefaultPathOut)
		if err != nil {
			slog.Warn("manager: volume INI watch (out) failed to start", "err", err)
		}
		m.stopWatchOut = stopOut

		stopIn, err := vol.WatchINI(model.DirectionIn, cfg.VolumeTunedPathIn, cfg.VolumeDefaultPathIn)
		if err != nil {
			slog.Warn("manager: volume INI watch (in) failed to start", "err", err)
		}
		m.stopWatchIn = stopIn
	}

	if cfg.DBusConn != nil {
		if err := rpcServer.Export(cfg.DBusConn); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// volumeKeyPrefix builds the per-type key-value store key prefix
// on_initial_levels/PersistLevel use, namespaced by direction so "media" in
// one direction never collides with "media" in the other (spec.md §6).
func volumeKeyPrefix(dir model.Direction) string {
	return "volume." + dir.String() + "."
}

// StreamMap, Volume, Parents, Tracker, Engine and RPC expose the wired
// sub-components for callers (the entry point, or tests) that need direct
// access beyond what New's wiring already covers.
func (m *Manager) StreamMap() *streammap.Map  { return m.streamMap }
func (m *Manager) Volume() *volume.Store      { return m.vol }
func (m *Manager) Parents() *parent.Registry  { return m.parents }
func (m *Manager) Tracker() *priority.Tracker { return m.tracker }
func (m *Manager) Engine() *routing.Engine    { return m.engine }
func (m *Manager) RPC() *rpc.Server           { return m.rpcServer }

// Shutdown stops the volume INI watchers, then drains tracker references
// by ending every stream the tracker still holds as active. It does not
// remove the engine's hook or device-manager subscriptions, does not
// unexport the D-Bus object, and releases no component explicitly.
func (m *Manager) Shutdown() {
	if m.stopWatchIn != nil {
		m.stopWatchIn()
	}
	if m.stopWatchOut != nil {
		m.stopWatchOut()
	}

	for _, dir := range []model.Direction{model.DirectionIn, model.DirectionOut} {
		for _, entry := range m.tracker.Snapshot(dir) {
			m.tracker.OnStreamEnded(entry.ID, dir)
		}
	}

	slog.Info("manager: shutdown complete")
}
