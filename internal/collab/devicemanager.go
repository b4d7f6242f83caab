package collab

import "github.com/tizen-audio/stream-manager/internal/model"

// ConnectionChanged is published by the Device Manager when a device is
// plugged in or removed.
type ConnectionChanged struct {
	Device      string
	Direction   model.Direction
	IsConnected bool
}

// InformationChanged is published by the Device Manager when an existing
// device's information (e.g. available framework) changes without a
// connection-state transition.
type InformationChanged struct {
	Device    string
	Direction model.Direction
}

// DeviceManager is the device-enumeration collaborator (spec §4.6). The
// stream manager only subscribes to its events; it never enumerates
// devices on its own.
type DeviceManager interface {
	OnConnectionChanged(fn func(ConnectionChanged))
	OnInformationChanged(fn func(InformationChanged))
}
