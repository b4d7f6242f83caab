package volume

import (
	"github.com/tizen-audio/stream-manager/internal/model"
)

// pushOneToMany recomputes and pushes the linear volume for every live
// stream bound to volumeType in dir (spec §4.7 "one-to-many"). When
// volumeType is the master type, every stream of every type in dir is
// visited, since master scales all of them (spec §4.7: "the iteration
// visits every stream and each uses its own per-type level").
func (s *Store) pushOneToMany(reg Registry, dir model.Direction, volumeType string) {
	if reg == nil {
		return
	}
	if volumeType == model.MasterVolumeType {
		s.mu.Lock()
		types := make([]string, 0, len(s.types[dir]))
		for t := range s.types[dir] {
			types = append(types, t)
		}
		s.mu.Unlock()
		for _, t := range types {
			s.pushStreamsOfType(reg, dir, t)
		}
		return
	}
	s.pushStreamsOfType(reg, dir, volumeType)
}

func (s *Store) pushStreamsOfType(reg Registry, dir model.Direction, volumeType string) {
	for _, h := range reg.StreamsOfType(dir, volumeType) {
		_, gainType, ok := reg.TypeOfStream(dir, h.ID())
		if !ok {
			continue
		}
		linear, err := s.computeLinear(dir, volumeType, gainType)
		if err != nil {
			continue // absent mapping: leave the stream's applied volume untouched (spec §4.2)
		}
		_ = h.SetVolume(linear)
	}
}

// ApplyToStream recomputes and pushes the linear volume for a single
// already-live stream (spec §4.7 "one-to-one"). Used when a stream's
// gain-type or bound volume-type changes without the type's level
// changing.
func (s *Store) ApplyToStream(dir model.Direction, streamID uint32) error {
	s.mu.Lock()
	reg := s.reg
	s.mu.Unlock()
	if reg == nil {
		return model.ErrNoActiveStream("no registry wired")
	}

	volType, gainType, ok := reg.TypeOfStream(dir, streamID)
	if !ok || volType == "" {
		return model.ErrUnknownVolumeType("stream has no bound volume type")
	}
	h, ok := reg.StreamByID(dir, streamID)
	if !ok {
		return model.ErrNoActiveStream("stream not currently live")
	}
	linear, err := s.computeLinear(dir, volType, gainType)
	if err != nil {
		return err
	}
	return h.SetVolume(linear)
}

// ApplyToNewStream applies the current level/mute of volumeType directly
// to h without consulting reg (spec §4.2 apply_to_new_stream), e.g. during
// the routing engine's new-data pipeline step 5, before the stream is
// tracked by the priority tracker.
func (s *Store) ApplyToNewStream(dir model.Direction, volumeType string, gainType string, h StreamHandle) error {
	if volumeType == "" {
		return nil // role has no bound volume type for this direction; nothing to apply
	}
	linear, err := s.computeLinear(dir, volumeType, gainType)
	if err != nil {
		return err
	}
	if err := h.SetVolume(linear); err != nil {
		return err
	}
	muted, err := s.GetMuteByType(dir, volumeType)
	if err != nil {
		return err
	}
	return h.SetMute(muted)
}
