// Package collab defines the interfaces to the stream manager's external
// collaborators: the Hardware Abstraction Layer, the Device Manager, and
// the Communicator hook bus. Production implementations of these live
// outside this module (spec §1); collab/fake provides in-memory doubles,
// used by tests and as stand-ins by cmd/streammanager.
package collab

import "github.com/tizen-audio/stream-manager/internal/model"

// BufferAttribute is the set of buffer/latency hints the HAL returns for a
// newly created stream.
type BufferAttribute struct {
	MaxLength uint32
	TLength   uint32
	PreBuf    uint32
	MinReq    uint32
	FragSize  uint32
}

// HAL is the Hardware Abstraction Layer interface (spec §4.6). It must be
// non-blocking: the routing/volume pipelines run on the manager's single
// event loop and cannot tolerate suspension.
type HAL interface {
	// GetVolumeValue returns the HAL-owned linear gain for a HAL-managed
	// volume type at the given level. Only called when StreamSpec.IsHALVolume
	// is true for that direction.
	GetVolumeValue(volumeType string, dir model.Direction, level uint32) (float64, error)

	// SetVolumeLevel pushes a level to the HAL for a HAL-owned volume type.
	SetVolumeLevel(volumeType string, dir model.Direction, level uint32) error

	// SetMute pushes a mute flag to the HAL for a HAL-owned volume type.
	SetMute(volumeType string, dir model.Direction, mute bool) error

	// GetBufferAttribute returns buffer-sizing hints for a new stream,
	// keyed by its latency class.
	GetBufferAttribute(latencyClass string, streamNew bool) (BufferAttribute, error)

	// UpdateStreamConnectionInfo informs the HAL that a stream with the
	// given role/direction/id has connected or disconnected.
	UpdateStreamConnectionInfo(role string, dir model.Direction, id uint32, connected bool) error
}
