// Package volume implements the Volume Store (spec §4.2, C2) and the
// Volume Applicator (spec §4.7, C6): per-type level tables and mute state,
// the master-volume/gain-modifier formula, and the one-to-many/one-to-one
// push paths triggered by level, mute, or stream changes.
package volume

import (
	"fmt"
	"sync"

	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/model"
)

// typeState holds the per-direction state of one volume type (spec §3
// "VolumeType state").
type typeState struct {
	levels       []float64 // index 0 = most attenuated; linear gain in [0,1]
	currentLevel uint32
	muted        bool
	isHAL        bool
}

func newTypeState() *typeState {
	return &typeState{}
}

func (t *typeState) maxLevel() uint32 {
	if n := len(t.levels); n > 0 {
		return uint32(n)
	}
	return 0
}

// StreamHandle is the minimal surface the applicator needs from a stream
// to push a computed volume/mute, independent of the server's real stream
// type.
type StreamHandle interface {
	ID() uint32
	Direction() model.Direction
	SetVolume(linear float64) error
	SetMute(mute bool) error
}

// Registry lets the applicator enumerate the currently live streams bound
// to a volume type (one-to-many path) or look up a single stream's bound
// type (one-to-one path). The routing engine owns the real registry; this
// interface keeps volume decoupled from routing.
type Registry interface {
	// StreamsOfType returns every live stream whose StreamSpec binds
	// volumeType for dir.
	StreamsOfType(dir model.Direction, volumeType string) []StreamHandle
	// TypeOfStream returns the volume type bound to stream id in
	// direction dir, or ("", false) if the stream isn't tracked or has no
	// bound type.
	TypeOfStream(dir model.Direction, id uint32) (volumeType string, gainType string, ok bool)
	// StreamByID returns the live stream handle for id in direction dir.
	StreamByID(dir model.Direction, id uint32) (StreamHandle, bool)
}

// Store is the Volume Store + Applicator (C2 + C6). All methods are safe
// for concurrent use.
type Store struct {
	mu   sync.Mutex
	hal  collab.HAL
	reg  Registry
	kv   kvStore

	types [model.DirectionMax]map[string]*typeState
	gains [model.DirectionMax]map[string]float64
}

type kvStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// New creates an empty Store. Call LoadINI to populate level/gain tables,
// then SetRegistry once the routing engine exists (they are constructed
// together and reference each other).
func New(hal collab.HAL, kv kvStore) *Store {
	s := &Store{hal: hal, kv: kv}
	s.types[model.DirectionIn] = make(map[string]*typeState)
	s.types[model.DirectionOut] = make(map[string]*typeState)
	s.gains[model.DirectionIn] = make(map[string]float64)
	s.gains[model.DirectionOut] = make(map[string]float64)
	return s
}

// SetRegistry wires the stream registry used by the applicator paths.
func (s *Store) SetRegistry(reg Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg
}

// ensureType returns the typeState for (dir, volumeType), creating an
// empty one (empty level array, not HAL-owned) if it doesn't exist yet —
// spec §4.2: "loader does not require every volume-type in the stream map
// to exist in the INI; missing ones stay with an empty level array".
func (s *Store) ensureType(dir model.Direction, volumeType string) *typeState {
	t, ok := s.types[dir][volumeType]
	if !ok {
		t = newTypeState()
		s.types[dir][volumeType] = t
	}
	return t
}

// MarkHAL records that volumeType is HAL-owned for dir (called by the
// manager while applying the stream map's is-hal-volume flags, since the
// INI loader alone cannot know this).
func (s *Store) MarkHAL(dir model.Direction, volumeType string, isHAL bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureType(dir, volumeType).isHAL = isHAL
}

// GetLevel returns the current level of volumeType in direction dir.
func (s *Store) GetLevel(dir model.Direction, volumeType string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[dir][volumeType]
	if !ok {
		return 0, model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q not found for direction %s", volumeType, dir))
	}
	return t.currentLevel, nil
}

// GetMaxLevel returns the configured maximum level. For the master type
// this is always model.MasterMaxLevel regardless of INI contents
// (testable property §6 in spec).
func (s *Store) GetMaxLevel(dir model.Direction, volumeType string) (uint32, error) {
	if volumeType == model.MasterVolumeType {
		return model.MasterMaxLevel, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[dir][volumeType]
	if !ok {
		return 0, model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q not found for direction %s", volumeType, dir))
	}
	return t.maxLevel(), nil
}

// SetLevelByType updates volumeType's current level in direction dir and
// triggers the one-to-many applicator push. Out-of-range levels are
// rejected and leave state unchanged (spec §7).
func (s *Store) SetLevelByType(dir model.Direction, volumeType string, level uint32) error {
	s.mu.Lock()
	t, ok := s.types[dir][volumeType]
	if !ok {
		s.mu.Unlock()
		return model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q not found for direction %s", volumeType, dir))
	}

	maxLevel := t.maxLevel()
	if volumeType == model.MasterVolumeType {
		maxLevel = model.MasterMaxLevel
	}
	if maxLevel == 0 && !t.isHAL {
		s.mu.Unlock()
		return model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q has no level table", volumeType))
	}
	outOfRange := maxLevel > 0 && level >= maxLevel
	if volumeType == model.MasterVolumeType {
		outOfRange = level > model.MasterMaxLevel // master accepts [0, MasterMaxLevel] inclusive
	}
	if outOfRange {
		s.mu.Unlock()
		return model.ErrLevelOutOfRange(fmt.Sprintf("level %d out of range [0,%d) for %q", level, maxLevel, volumeType))
	}

	t.currentLevel = level
	isHAL := t.isHAL
	reg := s.reg
	hal := s.hal
	s.mu.Unlock()

	if isHAL {
		if err := hal.SetVolumeLevel(volumeType, dir, level); err != nil {
			return model.ErrHAL(fmt.Sprintf("HAL set_volume_level(%s,%s,%d): %v", volumeType, dir, level, err))
		}
	}

	s.pushOneToMany(reg, dir, volumeType)
	return nil
}

// SetMuteByType updates volumeType's mute flag in direction dir and
// pushes it to every live stream of that type. HAL-owned types also call
// through to the HAL (SPEC_FULL §4: "HAL-volume passthrough on mute").
func (s *Store) SetMuteByType(dir model.Direction, volumeType string, mute bool) error {
	s.mu.Lock()
	t, ok := s.types[dir][volumeType]
	if !ok {
		s.mu.Unlock()
		return model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q not found for direction %s", volumeType, dir))
	}
	t.muted = mute
	isHAL := t.isHAL
	reg := s.reg
	hal := s.hal
	s.mu.Unlock()

	if isHAL {
		if err := hal.SetMute(volumeType, dir, mute); err != nil {
			return model.ErrHAL(fmt.Sprintf("HAL set_mute(%s,%s,%v): %v", volumeType, dir, mute, err))
		}
	}

	if reg != nil {
		for _, h := range reg.StreamsOfType(dir, volumeType) {
			_ = h.SetMute(mute)
		}
	}
	return nil
}

// GetMuteByType returns volumeType's current mute flag for dir.
func (s *Store) GetMuteByType(dir model.Direction, volumeType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[dir][volumeType]
	if !ok {
		return false, model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q not found for direction %s", volumeType, dir))
	}
	return t.muted, nil
}

// SetMuteByStreamID mutes/unmutes the single stream id directly,
// independent of its type's mute flag. The push goes through the
// registry's handle, so for a stream tracked by the routing engine it
// counts as an independent mute that survives move-finish (SPEC_FULL §4);
// the engine's own move-triggered mute does not use this method.
func (s *Store) SetMuteByStreamID(dir model.Direction, id uint32, mute bool) error {
	s.mu.Lock()
	reg := s.reg
	s.mu.Unlock()
	if reg == nil {
		return model.ErrNoActiveStream(fmt.Sprintf("no registry wired, cannot mute stream %d", id))
	}
	h, ok := reg.StreamByID(dir, id)
	if !ok {
		return model.ErrNoActiveStream(fmt.Sprintf("stream %d not tracked for direction %s", id, dir))
	}
	return h.SetMute(mute)
}

// GetMuteByStreamID returns the current mute state as last pushed to the
// stream's type, via the registry.
func (s *Store) GetMuteByStreamID(dir model.Direction, id uint32) (bool, error) {
	s.mu.Lock()
	reg := s.reg
	s.mu.Unlock()
	if reg == nil {
		return false, model.ErrNoActiveStream(fmt.Sprintf("no registry wired, cannot query stream %d", id))
	}
	volType, _, ok := reg.TypeOfStream(dir, id)
	if !ok || volType == "" {
		return false, model.ErrNoActiveStream(fmt.Sprintf("stream %d not tracked for direction %s", id, dir))
	}
	return s.GetMuteByType(dir, volType)
}
