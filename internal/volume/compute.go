package volume

import (
	"fmt"

	"github.com/tizen-audio/stream-manager/internal/model"
)

// computeLinear evaluates the deterministic volume formula of spec §4.2
// (1-4):
//
//	base   = levels[T][L]
//	if T != master: base *= master.current_level / 100
//	if G:           base *= modifiers[G]
//	final  = base (sw_volume_from_linear is identity here: the HAL/server
//	         owns the actual curve mapping once it receives our linear
//	         value; we compute and hand off linear gain)
//
// Any absent mapping at any step returns an error and the caller must
// leave the stream's applied volume untouched (spec §4.2).
func (s *Store) computeLinear(dir model.Direction, volumeType string, gainType string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.computeLinearLocked(dir, volumeType, gainType)
}

func (s *Store) computeLinearLocked(dir model.Direction, volumeType string, gainType string) (float64, error) {
	t, ok := s.types[dir][volumeType]
	if !ok {
		return 0, model.ErrUnknownVolumeType(fmt.Sprintf("volume type %q not found for direction %s", volumeType, dir))
	}

	var base float64
	if t.isHAL {
		v, err := s.hal.GetVolumeValue(volumeType, dir, t.currentLevel)
		if err != nil {
			return 0, model.ErrHAL(fmt.Sprintf("HAL get_volume_value(%s,%s,%d): %v", volumeType, dir, t.currentLevel, err))
		}
		base = v
	} else {
		if int(t.currentLevel) >= len(t.levels) {
			return 0, model.ErrLevelOutOfRange(fmt.Sprintf("level %d out of range for %q", t.currentLevel, volumeType))
		}
		base = t.levels[t.currentLevel]
	}

	if volumeType != model.MasterVolumeType {
		master, ok := s.types[dir][model.MasterVolumeType]
		if ok {
			base *= float64(master.currentLevel) / 100.0
		}
	}

	if gainType != "" {
		g, ok := s.gains[dir][gainType]
		if !ok {
			return 0, model.ErrUnknownVolumeType(fmt.Sprintf("gain type %q not found for direction %s", gainType, dir))
		}
		base *= g
	}

	return base, nil
}
