package volume

import (
	"strconv"

	"github.com/tizen-audio/stream-manager/internal/model"
)

// OnInitialLevels seeds each volume type's current_level from the
// persistent key-value store under "<prefix><type>" (spec §4.2, §6). A
// missing or unparsable key is left at the zero value (level 0)
// rather than failing init — there is no level to restore, which is not
// a config error.
func (s *Store) OnInitialLevels(dir model.Direction, keyPrefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv == nil {
		return
	}
	for volType, t := range s.types[dir] {
		raw, ok := s.kv.Get(keyPrefix + volType)
		if !ok {
			continue
		}
		level, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			continue
		}
		if volType == model.MasterVolumeType {
			if uint32(level) > model.MasterMaxLevel {
				continue
			}
		} else if maxLevel := t.maxLevel(); maxLevel > 0 && uint32(level) >= maxLevel {
			continue
		}
		t.currentLevel = uint32(level)
	}
}

// PersistLevel writes volumeType's current level back to the KV store
// under the same key scheme OnInitialLevels reads. Not part of the
// original's on_initial_levels (which is read-only), but a natural
// counterpart so a level set via RPC survives a later OnInitialLevels
// call against a fresh Store — used by SetLevelByType callers that want
// persistence (the RPC layer opts into this, the core Store does not call
// it automatically, since spec §1 scopes persistence out as a non-goal
// beyond this one seeded key).
func (s *Store) PersistLevel(keyPrefix string, volumeType string, level uint32) error {
	if s.kv == nil {
		return nil
	}
	return s.kv.Set(keyPrefix+volumeType, strconv.FormatUint(uint64(level), 10))
}
