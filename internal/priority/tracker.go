// Package priority implements the Priority Tracker (spec §4.4, C4): for
// each direction, the single highest-priority active stream, with the
// pending-on-new-data / commit-on-put two-phase rule and the
// tie-break-by-latest-arrival rule.
package priority

import (
	"sync"

	"github.com/tizen-audio/stream-manager/internal/model"
)

// Entry is one stream as tracked for priority purposes. The tracker does
// not hold a reference to the real server stream object (spec §5: "the
// manager never frees them") — just enough to compare and to report back
// to callers.
type Entry struct {
	ID         uint32
	Direction  model.Direction
	Priority   int32
	VolumeType string
	arrival    uint64 // monotonically increasing arrival sequence, for tie-breaks
}

// perDirection holds one direction's top-stream state.
type perDirection struct {
	top            *Entry
	pendingUpdate  bool // set by OnNewData, cleared by Commit
	pendingEntry   *Entry
	active         map[uint32]*Entry // every stream currently eligible (Running/Drained)
}

func newPerDirection() *perDirection {
	return &perDirection{active: make(map[uint32]*Entry)}
}

// Tracker is the Priority Tracker. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	dirs    [model.DirectionMax]*perDirection
	seq     uint64
}

// New creates an empty Tracker.
func New() *Tracker {
	t := &Tracker{}
	t.dirs[model.DirectionIn] = newPerDirection()
	t.dirs[model.DirectionOut] = newPerDirection()
	return t
}

func (t *Tracker) nextSeq() uint64 {
	t.seq++
	return t.seq
}

// OnStreamNewData compares a not-yet-materialized stream's priority
// against the current top (or sets it if the direction has no top yet).
// Returns true if the new stream would become top, in which case the
// caller must fire ChangeRouteStartWithNewData; the change is not
// committed until Commit is called from the put hook (spec §4.4).
func (t *Tracker) OnStreamNewData(id uint32, dir model.Direction, priority int32, volumeType string) (needsUpdate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pd := t.dirs[dir]
	entry := &Entry{ID: id, Direction: dir, Priority: priority, VolumeType: volumeType, arrival: t.nextSeq()}

	if pd.top == nil || priority >= pd.top.Priority {
		pd.pendingUpdate = true
		pd.pendingEntry = entry
		return true
	}
	return false
}

// Commit finalizes a pending top-stream change recorded by OnStreamNewData,
// called from the put hook once the stream has materialized
// (spec §4.4, §4.5).
func (t *Tracker) Commit(id uint32, dir model.Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pd := t.dirs[dir]
	if pd.pendingUpdate && pd.pendingEntry != nil && pd.pendingEntry.ID == id {
		pd.top = pd.pendingEntry
		pd.active[id] = pd.pendingEntry
		pd.pendingUpdate = false
		pd.pendingEntry = nil
		return
	}
	if pd.top != nil && pd.top.ID == id {
		pd.active[id] = pd.top
	}
}

// OnStreamStarted handles the put/started/move-finish transition for a
// stream that did NOT go through a pending new-data update (e.g. a stream
// resuming from Corked back to Running). It performs the same
// committed-state comparison as new-data but against the already-committed
// top (spec §4.4).
func (t *Tracker) OnStreamStarted(id uint32, dir model.Direction, priority int32, volumeType string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pd := t.dirs[dir]
	entry := &Entry{ID: id, Direction: dir, Priority: priority, VolumeType: volumeType, arrival: t.nextSeq()}
	pd.active[id] = entry

	if pd.pendingUpdate {
		return // a new-data update for this or another stream is still pending; Commit will settle it
	}
	if pd.top == nil || priority >= pd.top.Priority {
		pd.top = entry
	}
}

// OnStreamEnded removes a stream from tracking (unlink/corked/move-start).
// If it was top, the tracker rescans the surviving active set for dir and
// picks the maximum priority, ties broken by latest arrival (spec §4.4).
// Returns (newTop, changed) — changed is true if the top reference
// changed as a result (including going from some stream to none).
func (t *Tracker) OnStreamEnded(id uint32, dir model.Direction) (newTop *Entry, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pd := t.dirs[dir]
	delete(pd.active, id)
	if pd.pendingUpdate && pd.pendingEntry != nil && pd.pendingEntry.ID == id {
		pd.pendingUpdate = false
		pd.pendingEntry = nil
	}

	if pd.top == nil || pd.top.ID != id {
		return pd.top, false
	}

	pd.top = rescan(pd.active)
	return pd.top, true
}

// rescan picks the maximum-priority entry in active, ties broken by the
// latest arrival sequence (spec §4.4: "strictly > replaces, >= ties to the
// later iterator position").
func rescan(active map[uint32]*Entry) *Entry {
	var best *Entry
	for _, e := range active {
		if best == nil || e.Priority > best.Priority || (e.Priority == best.Priority && e.arrival > best.arrival) {
			best = e
		}
	}
	return best
}

// Top returns the current committed top stream for dir, or nil.
func (t *Tracker) Top(dir model.Direction) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirs[dir].top
}

// Snapshot returns every stream currently tracked as active for dir, for
// callers that need to drain tracker references (e.g. manager shutdown).
func (t *Tracker) Snapshot(dir model.Direction) []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	pd := t.dirs[dir]
	out := make([]*Entry, 0, len(pd.active))
	for _, e := range pd.active {
		out = append(out, e)
	}
	return out
}

// CurrentVolumeType returns the volume type of the current top stream for
// dir, or ("", false) if there is no top (SPEC_FULL §4: supplements the
// original's PRIMARY_VOLUME tracking, used by GetCurrentVolumeType).
func (t *Tracker) CurrentVolumeType(dir model.Direction) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	top := t.dirs[dir].top
	if top == nil || top.VolumeType == "" {
		return "", false
	}
	return top.VolumeType, true
}
