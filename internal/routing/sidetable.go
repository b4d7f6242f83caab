package routing

import (
	"sync"

	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/model"
)

// sideEntry is the per-stream derived-policy side table (design note §9:
// "these should be held in a side table keyed by stream id so that types
// are retained and look-ups avoid string parsing", replacing the
// original's property-bag writes).
type sideEntry struct {
	role              string
	priority          int32
	routeType         model.RouteType
	volumeType        string
	gainType          string
	state             model.StreamState
	muteImposedByMove bool
	stream            collab.Stream
}

// sideTable is the per-direction map of sideEntry, guarded by its own
// mutex so it can be read by the volume.Registry adapter concurrently with
// routing pipeline writes in tests; in the single-writer production
// wiring, the manager serializes all entry points anyway (spec §5).
type sideTable struct {
	mu      sync.Mutex
	entries [model.DirectionMax]map[uint32]*sideEntry
}

func newSideTable() *sideTable {
	t := &sideTable{}
	t.entries[model.DirectionIn] = make(map[uint32]*sideEntry)
	t.entries[model.DirectionOut] = make(map[uint32]*sideEntry)
	return t
}

func (t *sideTable) put(dir model.Direction, id uint32, e *sideEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[dir][id] = e
}

func (t *sideTable) get(dir model.Direction, id uint32) (*sideEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[dir][id]
	return e, ok
}

func (t *sideTable) delete(dir model.Direction, id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries[dir], id)
}

func (t *sideTable) snapshot(dir model.Direction) map[uint32]*sideEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint32]*sideEntry, len(t.entries[dir]))
	for k, v := range t.entries[dir] {
		out[k] = v
	}
	return out
}

// trackedStream wraps a collab.Stream so that a mute push from the volume
// store (type-wide or per-stream) clears this stream's "muted by move"
// flag; a volume push leaves the flag alone. Any externally driven mute during a
// move window is treated as the user's own, independent mute, and must
// survive move-finish's cleanup (SPEC_FULL §4, spec §8 seed scenario 5).
type trackedStream struct {
	collab.Stream
	entry *sideEntry
}

func (s *trackedStream) SetMute(mute bool) error {
	s.entry.muteImposedByMove = false
	return s.Stream.SetMute(mute)
}
