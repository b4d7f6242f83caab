// Package routing implements the Routing Engine (spec §4.5, C5): the
// six-hook pipeline that resolves a stream's policy, applies its initial
// volume, drives the Priority Tracker, and publishes route-change
// notifications to the external Communicator hook bus.
package routing

import (
	"fmt"
	"log/slog"

	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/model"
	"github.com/tizen-audio/stream-manager/internal/parent"
	"github.com/tizen-audio/stream-manager/internal/priority"
	"github.com/tizen-audio/stream-manager/internal/streammap"
	"github.com/tizen-audio/stream-manager/internal/volume"
)

// Engine is the Routing Engine. It implements volume.Registry so the
// Volume Store can push recomputed levels back through the same side
// table the routing pipeline maintains.
type Engine struct {
	streamMap *streammap.Map
	volStore  *volume.Store
	parents   *parent.Registry
	tracker   *priority.Tracker
	hal       collab.HAL
	comm      *collab.Communicator
	side      *sideTable
}

// New creates a Routing Engine wired to its collaborators. Call Subscribe
// to register its hook handlers once the hosting server's event surfaces
// exist.
func New(sm *streammap.Map, vs *volume.Store, pr *parent.Registry, tr *priority.Tracker, hal collab.HAL, comm *collab.Communicator) *Engine {
	e := &Engine{streamMap: sm, volStore: vs, parents: pr, tracker: tr, hal: hal, comm: comm, side: newSideTable()}
	vs.SetRegistry(e)
	return e
}

// Subscribe registers the engine's hook handlers against the server event
// surface and device manager (spec §5 startup order: "hook subscriptions"
// then "event-bus subscriptions").
func (e *Engine) Subscribe(events collab.ServerEvents, dm collab.DeviceManager) {
	for _, dir := range []model.Direction{model.DirectionIn, model.DirectionOut} {
		events.Subscribe(collab.HookStreamNewData, dir, func(s collab.Stream, _ collab.StreamState) { e.HandleNewData(s) })
		events.Subscribe(collab.HookStreamPut, dir, func(s collab.Stream, _ collab.StreamState) { e.HandlePut(s) })
		events.Subscribe(collab.HookStreamUnlink, dir, func(s collab.Stream, _ collab.StreamState) { e.HandleUnlink(s) })
		events.Subscribe(collab.HookStreamStateChanged, dir, func(s collab.Stream, st collab.StreamState) { e.HandleStateChanged(s, st) })
		events.Subscribe(collab.HookStreamMoveStart, dir, func(s collab.Stream, _ collab.StreamState) { e.HandleMoveStart(s) })
		events.Subscribe(collab.HookStreamMoveFinish, dir, func(s collab.Stream, _ collab.StreamState) { e.HandleMoveFinish(s) })
	}
	dm.OnConnectionChanged(e.HandleConnectionChanged)
	dm.OnInformationChanged(e.HandleInformationChanged)
}

// resolveRole returns the StreamSpec to use for s, defaulting an unknown
// role to model.DefaultRole (spec §3, §4.5 step 1). ok is false only if
// even the default role is unconfigured (malformed stream map).
func (e *Engine) resolveRole(s collab.Stream) (role string, spec *streammap.StreamSpec, ok bool) {
	role = s.Role()
	if role == "" {
		role = model.DefaultRole
	}
	spec, ok = e.streamMap.Resolve(role)
	if !ok {
		return role, nil, false
	}
	return spec.Role, spec, true
}

// HandleNewData runs the pre-creation pipeline: resolve role, seed the
// side table, attach to a parent, consult the HAL for buffer sizing,
// apply the stream's initial volume, and record it as a priority
// candidate (spec §4.5 new-data).
func (e *Engine) HandleNewData(s collab.Stream) {
	role, spec, ok := e.resolveRole(s)
	if !ok {
		slog.Warn("routing: role not present in stream map, ignoring stream", "stream", s.ID(), "role", role)
		return
	}

	dir := s.Direction()
	entry := &sideEntry{
		role:       spec.Role,
		priority:   spec.Priority,
		routeType:  spec.RouteType,
		volumeType: spec.VolumeType[dir],
		gainType:   s.GainType(),
		state:      model.StreamFresh,
		stream:     s,
	}
	e.side.put(dir, s.ID(), entry)

	if pid, hasParent := s.ParentID(); hasParent {
		e.parents.AttachStream(dir, s.ID(), pid)
	}

	if _, err := e.hal.GetBufferAttribute(s.LatencyClass(), true); err != nil {
		slog.Warn("routing: HAL buffer attribute lookup failed", "stream", s.ID(), "err", err)
	}

	if entry.volumeType != "" {
		tracked := &trackedStream{Stream: s, entry: entry}
		if err := e.volStore.ApplyToNewStream(dir, entry.volumeType, entry.gainType, tracked); err != nil {
			slog.Warn("routing: applying initial volume failed", "stream", s.ID(), "volume_type", entry.volumeType, "err", err)
		}
	}

	if e.tracker.OnStreamNewData(s.ID(), dir, entry.priority, entry.volumeType) {
		destination := e.selectInitDevice(dir, spec)
		e.fireChangeRoute(dir, entry, collab.ChangeRouteStartWithNewData, destination)
	}
}

// selectInitDevice fires SelectInitSinkOrSource over role's available
// devices for dir and returns whatever the registered subscriber chose, or
// "" if none is registered or none of the candidates were accepted (spec
// §4.5 new-data step 6, §4.6, §9 design note).
func (e *Engine) selectInitDevice(dir model.Direction, spec *streammap.StreamSpec) string {
	candidates := setToSlice(spec.AvailDevices[dir])
	if len(candidates) == 0 {
		return ""
	}
	outcome := e.comm.SelectInitSinkOrSource(collab.SelectionRequest{Direction: dir, Candidates: candidates})
	if outcome == nil {
		return ""
	}
	return outcome.ChosenDevice
}

// HandlePut runs the first-materialization pipeline: commits whatever
// priority update HandleNewData left pending and publishes the resulting
// route (spec §4.5 put).
func (e *Engine) HandlePut(s collab.Stream) {
	dir := s.Direction()
	entry, ok := e.side.get(dir, s.ID())
	if !ok || entry.state == model.StreamEnded {
		return
	}
	entry.state = model.StreamActive

	e.tracker.Commit(s.ID(), dir)
	e.fireChangeRoute(dir, entry, collab.ChangeRouteStart, "")

	if err := e.hal.UpdateStreamConnectionInfo(entry.role, dir, s.ID(), true); err != nil {
		slog.Warn("routing: HAL connect notification failed", "stream", s.ID(), "err", err)
	}
}

// HandleUnlink runs the true end-of-stream pipeline: removes the stream
// from priority tracking, detaches it from its parent, and drops its side
// table entry (spec §4.5 unlink).
func (e *Engine) HandleUnlink(s collab.Stream) {
	dir := s.Direction()
	entry, ok := e.side.get(dir, s.ID())
	if !ok || entry.state == model.StreamEnded {
		return // idempotent duplicate end-of-stream (spec §7), replaces the "-1 priority" sentinel
	}
	entry.state = model.StreamEnded

	if err := e.hal.UpdateStreamConnectionInfo(entry.role, dir, s.ID(), false); err != nil {
		slog.Warn("routing: HAL disconnect notification failed", "stream", s.ID(), "err", err)
	}

	if newTop, changed := e.tracker.OnStreamEnded(s.ID(), dir); changed {
		e.fireChangeRouteEnd(dir, newTop)
	}

	e.parents.DetachStream(dir, s.ID())
	e.side.delete(dir, s.ID())
}

// HandleStateChanged dispatches a server playback-state transition:
// Running/Drained re-admits the stream to priority tracking, Corked
// temporarily withdraws it without ending it (spec §4.4/§4.5).
func (e *Engine) HandleStateChanged(s collab.Stream, st collab.StreamState) {
	switch st {
	case collab.StateRunning, collab.StateDrained:
		e.activate(s)
	case collab.StateCorked:
		e.withdraw(s, false)
	}
}

// HandleMoveStart withdraws the stream from priority tracking and imposes
// a mute for the duration of the move (spec §8 seed scenario 5). The side
// table entry is kept — the stream is not ending, only relocating.
func (e *Engine) HandleMoveStart(s collab.Stream) {
	e.withdraw(s, true)
}

// HandleMoveFinish re-admits a relocated stream to priority tracking and
// clears any move-imposed mute, unless a user/type-level mute was set
// independently during the move window (spec §8 seed scenario 5, Open
// Question #2).
func (e *Engine) HandleMoveFinish(s collab.Stream) {
	e.activate(s)
}

// activate re-admits an already-materialized stream to priority tracking
// (a resume, not a first put — so it goes through OnStreamStarted, not
// Commit) and clears a move-imposed mute if one is still in effect.
func (e *Engine) activate(s collab.Stream) {
	dir := s.Direction()
	entry, ok := e.side.get(dir, s.ID())
	if !ok || entry.state == model.StreamEnded {
		return
	}
	entry.state = model.StreamActive

	if entry.muteImposedByMove {
		entry.muteImposedByMove = false
		if err := s.SetMute(false); err != nil {
			slog.Warn("routing: clearing move-imposed mute failed", "stream", s.ID(), "err", err)
		}
	}

	e.tracker.OnStreamStarted(s.ID(), dir, entry.priority, entry.volumeType)
	e.fireChangeRoute(dir, entry, collab.ChangeRouteStart, "")
}

// withdraw removes a stream from priority eligibility without ending it
// (corked or about to move). When impose is true the stream is also
// muted and the mute is tagged as move-imposed so a later activate call
// clears it (but an independent mute set in between survives, Open
// Question #2).
func (e *Engine) withdraw(s collab.Stream, impose bool) {
	dir := s.Direction()
	entry, ok := e.side.get(dir, s.ID())
	if !ok || entry.state == model.StreamEnded {
		return
	}

	if impose {
		if err := s.SetMute(true); err != nil {
			slog.Warn("routing: move-start mute failed", "stream", s.ID(), "err", err)
		} else {
			entry.muteImposedByMove = true
		}
	}

	if newTop, changed := e.tracker.OnStreamEnded(s.ID(), dir); changed {
		e.fireChangeRouteEnd(dir, newTop)
	}
}

// HandleConnectionChanged re-publishes ChangeRouteStart for whichever
// direction's top stream has a non-Manual route-type and a direction
// matching the event (spec §4.5 "Device change").
func (e *Engine) HandleConnectionChanged(evt collab.ConnectionChanged) {
	e.republishForDeviceEvent(evt.Direction)
}

// HandleInformationChanged behaves identically to a connection change for
// re-publish purposes (spec §4.5).
func (e *Engine) HandleInformationChanged(evt collab.InformationChanged) {
	e.republishForDeviceEvent(evt.Direction)
}

func (e *Engine) republishForDeviceEvent(dir model.Direction) {
	top := e.tracker.Top(dir)
	if top == nil {
		return
	}
	entry, ok := e.side.get(dir, top.ID)
	if !ok || entry.routeType == model.RouteManual {
		return
	}
	e.fireChangeRoute(dir, entry, collab.ChangeRouteStart, "")
}

// fireChangeRoute publishes a ChangeRoute event for entry. destination is
// only non-empty for ChangeRouteStartWithNewData, carrying whatever
// SelectInitSinkOrSource chose (spec §4.5 new-data step 6).
func (e *Engine) fireChangeRoute(dir model.Direction, entry *sideEntry, kind collab.ChangeRouteKind, destination string) {
	evt := collab.ChangeRouteEvent{
		Kind:        kind,
		Direction:   dir,
		Role:        entry.role,
		RouteType:   entry.routeType,
		Destination: destination,
	}

	if spec, ok := e.streamMap.Lookup(entry.role); ok {
		evt.AvailDevices = setToSlice(spec.AvailDevices[dir])
	}

	if entry.routeType == model.RouteManual {
		devices, _ := e.parents.ManualDevices(dir, entry.stream.ID())
		evt.ManualDevices = devices
		if len(devices) == 0 {
			evt.Role = "reset" // manual route collapse (spec §4.5)
		}
	}
	evt.SampleSpec = entry.stream.SampleSpec()

	e.comm.Fire(collab.HookChangeRoute, evt)
}

func (e *Engine) fireChangeRouteEnd(dir model.Direction, newTop *priority.Entry) {
	evt := collab.ChangeRouteEvent{Kind: collab.ChangeRouteEnd, Direction: dir}

	var entry *sideEntry
	var ok bool
	if newTop != nil {
		entry, ok = e.side.get(dir, newTop.ID)
	}
	if !ok {
		evt.Role = "reset"
		e.comm.Fire(collab.HookChangeRoute, evt)
		return
	}

	evt.Role = entry.role
	evt.RouteType = entry.routeType
	if spec, ok := e.streamMap.Lookup(entry.role); ok {
		evt.AvailDevices = setToSlice(spec.AvailDevices[dir])
	}
	if entry.routeType == model.RouteManual {
		devices, _ := e.parents.ManualDevices(dir, newTop.ID)
		evt.ManualDevices = devices
		if len(devices) == 0 {
			evt.Role = "reset"
		}
	}
	e.comm.Fire(collab.HookChangeRoute, evt)
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// --- volume.Registry implementation ---

func (e *Engine) StreamsOfType(dir model.Direction, volumeType string) []volume.StreamHandle {
	var out []volume.StreamHandle
	for _, entry := range e.side.snapshot(dir) {
		if entry.state != model.StreamEnded && entry.volumeType == volumeType {
			out = append(out, &trackedStream{Stream: entry.stream, entry: entry})
		}
	}
	return out
}

func (e *Engine) TypeOfStream(dir model.Direction, id uint32) (string, string, bool) {
	entry, ok := e.side.get(dir, id)
	if !ok {
		return "", "", false
	}
	return entry.volumeType, entry.gainType, true
}

func (e *Engine) StreamByID(dir model.Direction, id uint32) (volume.StreamHandle, bool) {
	entry, ok := e.side.get(dir, id)
	if !ok {
		return nil, false
	}
	return &trackedStream{Stream: entry.stream, entry: entry}, true
}

var _ volume.Registry = (*Engine)(nil)

// CurrentVolumeType exposes the tracker's top-stream volume type, used by
// the GetCurrentVolumeType RPC.
func (e *Engine) CurrentVolumeType(dir model.Direction) (string, error) {
	vt, ok := e.tracker.CurrentVolumeType(dir)
	if !ok {
		return "", model.ErrNoActiveStream(fmt.Sprintf("no active stream for direction %s", dir))
	}
	return vt, nil
}

// Tracker exposes the underlying Priority Tracker for callers (e.g. the
// rpc layer) that need to read the current top without going through a
// volume lookup.
func (e *Engine) Tracker() *priority.Tracker { return e.tracker }

// TopExists reports whether dir currently has a tracked top stream, used
// by the rpc layer's ERROR_NO_STREAM checks (spec §9 Open Question #1).
func (e *Engine) TopExists(dir model.Direction) bool {
	return e.tracker.Top(dir) != nil
}

// PublishRouteOption fires UpdateRouteOption on the Communicator hook bus,
// used by the SetStreamRouteOption RPC to forward an out-of-band option to
// its subscribers (spec §4.6, §6).
func (e *Engine) PublishRouteOption(parentID uint32, name string, value int32) {
	e.comm.Fire(collab.HookUpdateRouteOption, collab.UpdateRouteOptionEvent{ParentID: parentID, Name: name, Value: value})
}

// RepublishTop re-fires ChangeRouteStart for the current top stream of
// dir, if any — used by the RPC layer after a manual route override
// (spec §8 seed scenario 6).
func (e *Engine) RepublishTop(dir model.Direction) {
	top := e.tracker.Top(dir)
	if top == nil {
		return
	}
	if entry, ok := e.side.get(dir, top.ID); ok {
		e.fireChangeRoute(dir, entry, collab.ChangeRouteStart, "")
	}
}
