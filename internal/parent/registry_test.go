package parent

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tizen-audio/stream-manager/internal/model"
)

func TestConnectCreatesParentOnReservedName(t *testing.T) {
	r := New()
	r.OnClientConnect(1, "some-other-app")
	_, ok := r.Get(1)
	require.False(t, ok)

	r.OnClientConnect(2, ReservedAppName)
	p, ok := r.Get(2)
	require.True(t, ok)
	require.Equal(t, uint32(2), p.ID)
}

func TestDisconnectRemovesParentNotStreams(t *testing.T) {
	r := New()
	r.OnClientConnect(1, ReservedAppName)
	r.AttachStream(model.DirectionOut, 100, 1)

	owner, ok := r.Owner(model.DirectionOut, 100)
	require.True(t, ok)
	require.Equal(t, uint32(1), owner)

	r.OnClientDisconnect(1)
	_, ok = r.Get(1)
	require.False(t, ok)

	// Stream's owner reference persists (spec: not scrubbed), but the
	// stream is now un-routable via Manual policy.
	owner, ok = r.Owner(model.DirectionOut, 100)
	require.True(t, ok)
	require.Equal(t, uint32(1), owner)
	_, ok = r.ManualDevices(model.DirectionOut, 100)
	require.False(t, ok)
}

func TestSingleOwnerInvariant(t *testing.T) {
	r := New()
	r.OnClientConnect(1, ReservedAppName)
	r.OnClientConnect(2, ReservedAppName)

	r.AttachStream(model.DirectionOut, 50, 1)
	p1, _ := r.Get(1)
	require.Contains(t, p1.SinkInputs, uint32(50))

	r.AttachStream(model.DirectionOut, 50, 2)
	p2, _ := r.Get(2)
	require.Contains(t, p2.SinkInputs, uint32(50))
	require.NotContains(t, p1.SinkInputs, uint32(50))

	owner, ok := r.Owner(model.DirectionOut, 50)
	require.True(t, ok)
	require.Equal(t, uint32(2), owner)
}

func TestSetRouteDevicesAndManualDevices(t *testing.T) {
	r := New()
	r.OnClientConnect(1, ReservedAppName)
	require.NoError(t, r.SetRouteDevices(1, nil, []uint32{7, 8}))
	r.AttachStream(model.DirectionOut, 10, 1)

	devices, ok := r.ManualDevices(model.DirectionOut, 10)
	require.True(t, ok)
	require.Equal(t, []uint32{7, 8}, devices)
}

func TestSetRouteDevicesParentNotFound(t *testing.T) {
	r := New()
	err := r.SetRouteDevices(99, nil, nil)
	require.Error(t, err)
	kind, ok := model.AsKind(err)
	require.True(t, ok)
	require.Equal(t, model.KindParentNotFound, kind)
}

func TestDetachStreamOnUnlink(t *testing.T) {
	r := New()
	r.OnClientConnect(1, ReservedAppName)
	r.AttachStream(model.DirectionIn, 5, 1)
	r.DetachStream(model.DirectionIn, 5)

	_, ok := r.Owner(model.DirectionIn, 5)
	require.False(t, ok)
	p, _ := r.Get(1)
	require.NotContains(t, p.SourceOutputs, uint32(5))
}
