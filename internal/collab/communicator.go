package collab

import (
	"sync"

	"github.com/tizen-audio/stream-manager/internal/model"
)

// HookID names one of the Communicator's fixed notification points
// (spec §4.6). SelectInitSinkOrSource is handled separately (see below)
// since it alone returns a value to the caller.
type HookID string

const (
	HookChangeRoute              HookID = "ChangeRoute"
	HookUpdateRouteOption        HookID = "UpdateRouteOption"
	HookDeviceConnectionChanged  HookID = "DeviceConnectionChanged"
	HookDeviceInformationChanged HookID = "DeviceInformationChanged"
)

// ChangeRouteKind distinguishes the three ChangeRoute publication shapes
// the routing engine fires (spec §4.5).
type ChangeRouteKind int

const (
	ChangeRouteStartWithNewData ChangeRouteKind = iota
	ChangeRouteStart
	ChangeRouteEnd
)

// ChangeRouteEvent is the payload fired on HookChangeRoute.
type ChangeRouteEvent struct {
	Kind          ChangeRouteKind
	Direction     model.Direction
	Role          string // "reset" when the tracker has no top stream
	RouteType     model.RouteType
	AvailDevices  []string
	ManualDevices []uint32 // populated only when RouteType == RouteManual
	SampleSpec    string
	Destination   string // chosen sink/source for ChangeRouteStartWithNewData, via SelectInitSinkOrSource
}

// UpdateRouteOptionEvent is the payload fired on HookUpdateRouteOption.
type UpdateRouteOptionEvent struct {
	ParentID uint32
	Name     string
	Value    int32
}

// SelectionRequest is passed to SelectInitSinkOrSource subscribers.
type SelectionRequest struct {
	Direction  model.Direction
	Candidates []string
}

// SelectionOutcome is returned by a SelectInitSinkOrSource subscriber. This
// replaces the original's out-parameter pointer convention (design note
// §9): instead of mutating a destination pointer in place, a subscriber
// returns the device it chose.
type SelectionOutcome struct {
	ChosenDevice string
	Options      map[string]string
}

// Communicator is a synchronous, in-process hook bus (spec §4.6). Hooks
// fire on the manager's single event-processing path (spec §5: no
// suspension points, no interior locking required for the fire itself),
// so subscribers are invoked synchronously and in registration order —
// unlike internal/events.Bus in the teacher, which fans out asynchronously
// over buffered channels because its subscribers are slow HTTP/SSE
// clients. The mutex here only protects the subscriber list against
// concurrent Subscribe calls from outside the event loop (e.g. a plugin
// registering late).
type Communicator struct {
	mu       sync.Mutex
	subs     map[HookID][]func(any)
	selector func(SelectionRequest) *SelectionOutcome
}

// NewCommunicator creates an empty hook bus.
func NewCommunicator() *Communicator {
	return &Communicator{subs: make(map[HookID][]func(any))}
}

// Subscribe registers fn to be invoked synchronously whenever hook fires.
func (c *Communicator) Subscribe(hook HookID, fn func(any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[hook] = append(c.subs[hook], fn)
}

// SubscribeSelectInitSinkOrSource registers the (single) subscriber
// allowed to choose an initial sink or source. A later registration
// replaces an earlier one, matching the original's "last subscriber wins
// the out-parameter" behavior.
func (c *Communicator) SubscribeSelectInitSinkOrSource(fn func(SelectionRequest) *SelectionOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selector = fn
}

// Fire invokes every subscriber of hook, in registration order, passing
// payload. Fire does not recover from subscriber panics — a misbehaving
// subscriber is a collaborator bug, not the manager's to mask.
func (c *Communicator) Fire(hook HookID, payload any) {
	c.mu.Lock()
	fns := append([]func(any){}, c.subs[hook]...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// SelectInitSinkOrSource fires the selection hook and returns whatever the
// registered subscriber chose, or nil if none is registered.
func (c *Communicator) SelectInitSinkOrSource(req SelectionRequest) *SelectionOutcome {
	c.mu.Lock()
	sel := c.selector
	c.mu.Unlock()
	if sel == nil {
		return nil
	}
	return sel(req)
}
