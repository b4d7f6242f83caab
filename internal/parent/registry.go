// Package parent implements the Parent Registry (spec §4.3, C3): the
// mapping from an external control-client id to the set of streams it
// owns and the device lists it has manually configured for them.
package parent

import (
	"log/slog"
	"sync"

	"github.com/tizen-audio/stream-manager/internal/model"
)

// ReservedAppName is the application name a connecting client must
// present to have a Parent record created for it (spec §4.3).
const ReservedAppName = "SOUND_MANAGER_STREAM_INFO"

// Parent is an external control client owning a subset of streams and
// optionally supplying manual routing device lists (spec §3).
type Parent struct {
	ID             uint32
	SinkInputs     map[uint32]struct{}
	SourceOutputs  map[uint32]struct{}
	RouteInDevices  []uint32
	RouteOutDevices []uint32
}

func newParent(id uint32) *Parent {
	return &Parent{
		ID:            id,
		SinkInputs:    make(map[uint32]struct{}),
		SourceOutputs: make(map[uint32]struct{}),
	}
}

// Registry owns every live Parent, keyed by client id, plus the reverse
// index from stream id to owning parent id (to enforce single ownership,
// Open Question #3).
type Registry struct {
	mu       sync.Mutex
	parents  map[uint32]*Parent
	ownerIn  map[uint32]uint32 // source-output id -> parent id
	ownerOut map[uint32]uint32 // sink-input id -> parent id
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		parents:  make(map[uint32]*Parent),
		ownerIn:  make(map[uint32]uint32),
		ownerOut: make(map[uint32]uint32),
	}
}

// OnClientConnect creates a Parent for clientID if appName matches the
// reserved identifier (spec §4.3). A no-op otherwise.
func (r *Registry) OnClientConnect(clientID uint32, appName string) {
	if appName != ReservedAppName {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parents[clientID]; exists {
		return
	}
	r.parents[clientID] = newParent(clientID)
}

// OnClientDisconnect removes clientID's Parent, if any. Per spec §4.3,
// references from streams are NOT scrubbed: streams continue to exist but
// become un-routable via Manual policy.
func (r *Registry) OnClientDisconnect(clientID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parents, clientID)
	// Leave ownerIn/ownerOut entries in place: a stream whose parent has
	// gone away still reports that parent id via Owner(), the routing
	// engine treats a dangling parent id as "un-routed" because
	// ManualDevices fails its parent lookup, not by pretending the stream
	// was never owned.
}

// Get returns the Parent for id, or (nil, false) if none is live.
func (r *Registry) Get(id uint32) (*Parent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parents[id]
	return p, ok
}

// AttachStream records that stream (id, dir) belongs to parentID. If the
// stream was already attached to a different live parent, it is detached
// from that parent first (single-owner invariant, Open Question #3) and a
// warning is logged — the original permitted two parents to reference one
// stream implicitly; this port narrows that to last-writer-wins.
func (r *Registry) AttachStream(dir model.Direction, streamID uint32, parentID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := r.ownerMap(dir)
	if prevOwner, ok := owners[streamID]; ok && prevOwner != parentID {
		if prev, ok := r.parents[prevOwner]; ok {
			delete(r.streamSet(prev, dir), streamID)
			slog.Warn("parent registry: stream reattached to a new parent", "stream", streamID, "direction", dir.String(), "from_parent", prevOwner, "to_parent", parentID)
		}
	}
	owners[streamID] = parentID

	if p, ok := r.parents[parentID]; ok {
		r.streamSet(p, dir)[streamID] = struct{}{}
	}
}

// DetachStream removes stream (id, dir) from whichever parent owns it.
// Called on stream unlink so the registry never grows unbounded.
func (r *Registry) DetachStream(dir model.Direction, streamID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := r.ownerMap(dir)
	parentID, ok := owners[streamID]
	if !ok {
		return
	}
	delete(owners, streamID)
	if p, ok := r.parents[parentID]; ok {
		delete(r.streamSet(p, dir), streamID)
	}
}

// Owner returns the parent id a stream is attached to, or (0, false).
func (r *Registry) Owner(dir model.Direction, streamID uint32) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ownerMap(dir)[streamID]
	return id, ok
}

// ManualDevices returns the parent-configured device list for dir, or nil
// if the stream has no live owning parent (spec §4.3: empty list means
// "no route"; a dangling/removed parent is treated as un-routed, which the
// routing engine maps to the same manual-collapse behavior as an empty
// list).
func (r *Registry) ManualDevices(dir model.Direction, streamID uint32) ([]uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parentID, ok := r.ownerMap(dir)[streamID]
	if !ok {
		return nil, false
	}
	p, ok := r.parents[parentID]
	if !ok {
		return nil, false // parent disconnected: un-routed
	}
	if dir == model.DirectionIn {
		return p.RouteInDevices, true
	}
	return p.RouteOutDevices, true
}

// SetRouteDevices sets a parent's manual device lists (RPC
// SetStreamRouteDevices). Returns model.KindParentNotFound if parentID has
// no live Parent.
func (r *Registry) SetRouteDevices(parentID uint32, inDevices, outDevices []uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parents[parentID]
	if !ok {
		return model.ErrParentNotFound("no such parent")
	}
	p.RouteInDevices = append([]uint32(nil), inDevices...)
	p.RouteOutDevices = append([]uint32(nil), outDevices...)
	return nil
}

func (r *Registry) ownerMap(dir model.Direction) map[uint32]uint32 {
	if dir == model.DirectionIn {
		return r.ownerIn
	}
	return r.ownerOut
}

func (r *Registry) streamSet(p *Parent, dir model.Direction) map[uint32]struct{} {
	if dir == model.DirectionIn {
		return p.SourceOutputs
	}
	return p.SinkInputs
}
