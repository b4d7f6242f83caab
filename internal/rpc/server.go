// Package rpc implements the Control Interface (spec §6, C7): the D-Bus
// object front end that dispatches the ten RPC methods into the Volume
// Store, Parent Registry, and Routing Engine, and emits the
// VolumeChanged signal.
package rpc

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/time/rate"

	"github.com/tizen-audio/stream-manager/internal/model"
	"github.com/tizen-audio/stream-manager/internal/parent"
	"github.com/tizen-audio/stream-manager/internal/streammap"
	"github.com/tizen-audio/stream-manager/internal/volume"
)

// ObjectPath and InterfaceName are the D-Bus identity of the Control
// Interface (spec §6).
const (
	ObjectPath    = dbus.ObjectPath("/org/tizen/streammanager")
	InterfaceName = "org.tizen.streammanager"
	busName       = InterfaceName
)

// routeOverrideRate bounds SetStreamRouteDevices/SetStreamRouteOption calls
// per parent id: a misbehaving external policy client hammering route
// overrides must not be able to starve the single-writer manager loop.
const (
	routeOverrideRate  = 5 // calls/sec
	routeOverrideBurst = 5
)

// Engine is the subset of *routing.Engine the Control Interface needs.
// Kept as an interface so rpc does not import routing directly and can be
// tested against a fake.
type Engine interface {
	CurrentVolumeType(dir model.Direction) (string, error)
	RepublishTop(dir model.Direction)
	TopExists(dir model.Direction) bool
	PublishRouteOption(parentID uint32, name string, value int32)
}

// Server is the exported D-Bus object implementing the Control Interface.
// Every exported method's last return value is *dbus.Error, as godbus
// requires.
type Server struct {
	streamMap *streammap.Map
	vol       *volume.Store
	parents   *parent.Registry
	engine    Engine
	conn      *dbus.Conn
	keyPrefix func(model.Direction) string

	mu       sync.Mutex
	limiters map[uint32]*rate.Limiter
}

// New creates a Control Interface server. Call Export to publish it on a
// D-Bus connection. keyPrefix builds the persistent key-value store key
// prefix for a direction, shared with the manager's OnInitialLevels call so
// a level set through SetVolumeLevel survives a restart.
func New(sm *streammap.Map, vol *volume.Store, parents *parent.Registry, engine Engine, keyPrefix func(model.Direction) string) *Server {
	return &Server{streamMap: sm, vol: vol, parents: parents, engine: engine, keyPrefix: keyPrefix, limiters: make(map[uint32]*rate.Limiter)}
}

// Export publishes the server at ObjectPath/InterfaceName on conn and
// requests busName. Mirrors the teacher's godbus usage in
// internal/streams/bluetooth.go and airplay.go, just on the export side
// instead of the client side.
func (s *Server) Export(conn *dbus.Conn) error {
	s.conn = conn
	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return err
	}
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return model.ErrConfigInvalid("rpc: bus name " + busName + " already owned")
	}
	return nil
}

func (s *Server) limiterFor(parentID uint32) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[parentID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(routeOverrideRate), routeOverrideBurst)
		s.limiters[parentID] = l
	}
	return l
}

func statusFor(err error) model.RPCStatus {
	if err == nil {
		return model.StatusOK
	}
	if kind, ok := model.AsKind(err); ok && kind == model.KindNoActiveStream {
		return model.StatusErrorNoStream
	}
	return model.StatusError
}

// GetStreamInfo returns the stream-map policy for role, defaulting an
// unknown role to model.DefaultRole (spec §3, §6).
func (s *Server) GetStreamInfo(role string) (priority int32, routeType int32, availIn []string, availOut []string, availFwks []string, dbusErr *dbus.Error) {
	spec, ok := s.streamMap.Resolve(role)
	if !ok {
		return 0, 0, nil, nil, nil, dbus.NewError(InterfaceName+".Error", []any{"role not configured"})
	}
	return spec.Priority, int32(spec.RouteType), setToSortedSlice(spec.AvailDevices[model.DirectionIn]),
		setToSortedSlice(spec.AvailDevices[model.DirectionOut]), frameworksToSortedSlice(spec.AvailFrameworks), nil
}

// GetStreamList returns every configured role paired with its priority,
// in matching order (spec §6).
func (s *Server) GetStreamList() (roles []string, priorities []int32, dbusErr *dbus.Error) {
	roles = s.streamMap.Roles()
	sort.Strings(roles)
	priorities = make([]int32, len(roles))
	for i, role := range roles {
		spec, _ := s.streamMap.Lookup(role)
		priorities[i] = spec.Priority
	}
	return roles, priorities, nil
}

// SetStreamRouteDevices sets a parent's manual device lists and
// re-publishes the current top stream's route so the new devices take
// effect immediately (spec §8 seed scenario 6).
func (s *Server) SetStreamRouteDevices(parentID uint32, inDevs []uint32, outDevs []uint32) (status string, dbusErr *dbus.Error) {
	if !s.limiterFor(parentID).Allow() {
		return string(model.StatusError), nil
	}
	err := s.parents.SetRouteDevices(parentID, inDevs, outDevs)
	if err == nil {
		s.engine.RepublishTop(model.DirectionIn)
		s.engine.RepublishTop(model.DirectionOut)
	}
	return string(statusFor(err)), nil
}

// SetStreamRouteOption forwards an out-of-band route option to the
// Communicator hook bus's UpdateRouteOption subscribers. With no active
// top stream in either direction, returns ERROR_NO_STREAM (spec §9 Open
// Question #1: kept as specified).
func (s *Server) SetStreamRouteOption(parentID uint32, name string, value int32) (status string, dbusErr *dbus.Error) {
	if !s.limiterFor(parentID).Allow() {
		return string(model.StatusError), nil
	}
	if !s.engine.TopExists(model.DirectionIn) && !s.engine.TopExists(model.DirectionOut) {
		return string(model.StatusErrorNoStream), nil
	}
	s.engine.PublishRouteOption(parentID, name, value)
	return string(model.StatusOK), nil
}

// SetVolumeLevel sets volumeType's level for dir and, on success, emits
// VolumeChanged (spec §6).
func (s *Server) SetVolumeLevel(dir string, volumeType string, level uint32) (status string, dbusErr *dbus.Error) {
	d, ok := model.ParseDirection(dir)
	if !ok {
		return string(model.StatusError), nil
	}
	err := s.vol.SetLevelByType(d, volumeType, level)
	if err == nil {
		s.emitVolumeChanged(dir, volumeType, level)
		if s.keyPrefix != nil {
			if perr := s.vol.PersistLevel(s.keyPrefix(d), volumeType, level); perr != nil {
				slog.Warn("rpc: persisting volume level failed", "dir", dir, "volume_type", volumeType, "err", perr)
			}
		}
	}
	return string(statusFor(err)), nil
}

// GetVolumeLevel returns volumeType's current level for dir.
func (s *Server) GetVolumeLevel(dir string, volumeType string) (level uint32, status string, dbusErr *dbus.Error) {
	d, ok := model.ParseDirection(dir)
	if !ok {
		return 0, string(model.StatusError), nil
	}
	level, err := s.vol.GetLevel(d, volumeType)
	return level, string(statusFor(err)), nil
}

// GetVolumeMaxLevel returns volumeType's configured maximum level for dir.
// For "master" this is always model.MasterMaxLevel (spec §8 testable
// property 6).
func (s *Server) GetVolumeMaxLevel(dir string, volumeType string) (level uint32, status string, dbusErr *dbus.Error) {
	d, ok := model.ParseDirection(dir)
	if !ok {
		return 0, string(model.StatusError), nil
	}
	level, err := s.vol.GetMaxLevel(d, volumeType)
	return level, string(statusFor(err)), nil
}

// SetVolumeMute sets volumeType's mute flag for dir. on is a D-Bus u32
// boolean (0/1), matching the method table's wire type.
func (s *Server) SetVolumeMute(dir string, volumeType string, on uint32) (status string, dbusErr *dbus.Error) {
	d, ok := model.ParseDirection(dir)
	if !ok {
		return string(model.StatusError), nil
	}
	err := s.vol.SetMuteByType(d, volumeType, on != 0)
	return string(statusFor(err)), nil
}

// GetVolumeMute returns volumeType's current mute flag for dir as a D-Bus
// u32 boolean.
func (s *Server) GetVolumeMute(dir string, volumeType string) (on uint32, status string, dbusErr *dbus.Error) {
	d, ok := model.ParseDirection(dir)
	if !ok {
		return 0, string(model.StatusError), nil
	}
	muted, err := s.vol.GetMuteByType(d, volumeType)
	if muted {
		on = 1
	}
	return on, string(statusFor(err)), nil
}

// GetCurrentVolumeType returns the volume type of the current top stream
// for dir, or ERROR_NO_STREAM if none (spec §7, §8 supplement).
func (s *Server) GetCurrentVolumeType(dir string) (volumeType string, status string, dbusErr *dbus.Error) {
	d, ok := model.ParseDirection(dir)
	if !ok {
		return "", string(model.StatusError), nil
	}
	volumeType, err := s.engine.CurrentVolumeType(d)
	return volumeType, string(statusFor(err)), nil
}

func (s *Server) emitVolumeChanged(dir, volumeType string, level uint32) {
	if s.conn == nil {
		return
	}
	_ = s.conn.Emit(ObjectPath, InterfaceName+".VolumeChanged", dir, volumeType, level)
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func frameworksToSortedSlice(set map[string]struct{}) []string {
	return setToSortedSlice(set)
}
