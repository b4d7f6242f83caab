package collab

import "github.com/tizen-audio/stream-manager/internal/model"

// Stream is the read-only view the manager has of a server-owned
// sink-input or source-output. The manager never frees these — they are
// borrowed for the duration of a hook callback (spec §5).
//
// Only application-declared properties are exposed here. Manager-derived
// policy (priority, route-type, volume-type, processing state) is kept in
// side tables keyed by ID, not written back onto the stream (design note
// §9: property-bag coupling should become a side table).
type Stream interface {
	ID() uint32
	Direction() model.Direction
	Role() string         // "" if the client declared none
	AppName() string       // used to recognize SOUND_MANAGER_STREAM_INFO
	ParentID() (id uint32, ok bool)
	GainType() string      // "" if none
	LatencyClass() string
	SampleSpec() string

	// SetVolume/SetMute push a computed linear gain / mute flag onto the
	// real sink-input or source-output. Implemented by volume.StreamHandle
	// structurally — any collab.Stream is usable wherever a
	// volume.StreamHandle is required.
	SetVolume(linear float64) error
	SetMute(mute bool) error
}

// ServerHookID names one of the six lifecycle hooks the routing engine
// subscribes to, per direction (spec §4.5).
type ServerHookID int

const (
	HookStreamNewData ServerHookID = iota
	HookStreamPut
	HookStreamUnlink
	HookStreamStateChanged
	HookStreamMoveStart
	HookStreamMoveFinish
)

// StreamState mirrors the subset of server-side playback states the
// engine cares about for the state-changed hook.
type StreamState int

const (
	StateCorked StreamState = iota
	StateRunning
	StateDrained
)

// ServerEvents is the subscription surface the routing engine registers
// against at init (spec §5 startup order: "hook subscriptions" step).
type ServerEvents interface {
	// Subscribe registers fn for hook, restricted to streams of direction
	// dir. fn receives the Stream and, for HookStreamStateChanged, the new
	// StreamState (ignored for other hooks).
	Subscribe(hook ServerHookID, dir model.Direction, fn func(Stream, StreamState))
}
