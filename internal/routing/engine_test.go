package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/collab/fake"
	"github.com/tizen-audio/stream-manager/internal/model"
	"github.com/tizen-audio/stream-manager/internal/parent"
	"github.com/tizen-audio/stream-manager/internal/persistentkv"
	"github.com/tizen-audio/stream-manager/internal/priority"
	"github.com/tizen-audio/stream-manager/internal/streammap"
	"github.com/tizen-audio/stream-manager/internal/volume"
)

func writeStreamMap(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream-map.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

const testMapDoc = `{
	"streams": [
		{
			"role": "media",
			"priority": 100,
			"route-type": "auto",
			"volume-types": {"in": "none", "out": "media"},
			"is-hal-volume": {"in": false, "out": false},
			"avail-in-devices": [],
			"avail-out-devices": ["speaker", "bt-a2dp"],
			"avail-frameworks": ["gstreamer"]
		},
		{
			"role": "notification",
			"priority": 300,
			"route-type": "auto-all",
			"volume-types": {"in": "none", "out": "media"},
			"is-hal-volume": {"in": false, "out": false},
			"avail-in-devices": [],
			"avail-out-devices": ["speaker"],
			"avail-frameworks": []
		},
		{
			"role": "voice-control",
			"priority": 500,
			"route-type": "manual",
			"volume-types": {"in": "call", "out": "call"},
			"is-hal-volume": {"in": false, "out": false},
			"avail-in-devices": ["mic"],
			"avail-out-devices": ["speaker"],
			"avail-frameworks": []
		}
	]
}`

type harness struct {
	engine  *Engine
	vol     *volume.Store
	parents *parent.Registry
	tracker *priority.Tracker
	hal     *fake.HAL
	comm    *collab.Communicator
	events  *fake.ServerEvents
	dm      *fake.DeviceManager

	changeRoutes []collab.ChangeRouteEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sm, err := streammap.Load(writeStreamMap(t, testMapDoc))
	require.NoError(t, err)

	iniPath := filepath.Join(t.TempDir(), "volume.ini")
	require.NoError(t, os.WriteFile(iniPath, []byte("[volumes]\nmedia = 0, 50, 100\ncall = 0, 50, 100\nmaster = 100\n"), 0644))

	hal := fake.NewHAL()
	vol := volume.New(hal, persistentkv.NewMemStore())
	require.NoError(t, vol.LoadINI(model.DirectionOut, iniPath, iniPath))
	require.NoError(t, vol.LoadINI(model.DirectionIn, iniPath, iniPath))
	require.NoError(t, vol.SetLevelByType(model.DirectionOut, "master", 100))

	parents := parent.New()
	tracker := priority.New()
	comm := collab.NewCommunicator()
	events := fake.NewServerEvents()
	dm := fake.NewDeviceManager()

	e := New(sm, vol, parents, tracker, hal, comm)
	e.Subscribe(events, dm)

	h := &harness{engine: e, vol: vol, parents: parents, tracker: tracker, hal: hal, comm: comm, events: events, dm: dm}
	comm.Subscribe(collab.HookChangeRoute, func(payload any) {
		evt, ok := payload.(collab.ChangeRouteEvent)
		if ok {
			h.changeRoutes = append(h.changeRoutes, evt)
		}
	})
	return h
}

func (h *harness) newFresh(id uint32, role string) {
	s := fake.NewStream(id, model.DirectionOut, role)
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)
}

// TestPriorityReplacementEndToEnd is seed scenario 1 from spec §8, exercised
// through the full hook pipeline instead of the tracker directly.
func TestPriorityReplacementEndToEnd(t *testing.T) {
	h := newHarness(t)

	media := fake.NewStream(1, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, media, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, media, collab.StateRunning)
	require.Equal(t, uint32(1), h.tracker.Top(model.DirectionOut).ID)

	notif := fake.NewStream(2, model.DirectionOut, "notification")
	h.events.Fire(collab.HookStreamNewData, notif, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, notif, collab.StateRunning)
	require.Equal(t, uint32(2), h.tracker.Top(model.DirectionOut).ID)

	h.events.Fire(collab.HookStreamUnlink, notif, collab.StateCorked)
	require.Equal(t, uint32(1), h.tracker.Top(model.DirectionOut).ID)
}

// TestManualRouteCollapse is seed scenario 2: a Manual-routed stream whose
// owning parent has supplied no device list collapses to role "reset".
func TestManualRouteCollapse(t *testing.T) {
	h := newHarness(t)
	h.parents.OnClientConnect(9, parent.ReservedAppName)

	s := fake.NewStream(5, model.DirectionOut, "voice-control").WithParent(9)
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)

	require.NotEmpty(t, h.changeRoutes)
	last := h.changeRoutes[len(h.changeRoutes)-1]
	require.Equal(t, model.RouteManual, last.RouteType)
	require.Equal(t, "reset", last.Role)

	require.NoError(t, h.parents.SetRouteDevices(9, nil, []uint32{42}))
	h.engine.RepublishTop(model.DirectionOut)
	last = h.changeRoutes[len(h.changeRoutes)-1]
	require.Equal(t, "voice-control", last.Role)
	require.Equal(t, []uint32{42}, last.ManualDevices)
}

// TestMoveMuteSurvivesUserMute is seed scenario 5 / Open Question #2: a move
// imposes a mute; if the user independently mutes the stream during the move
// window, that mute must survive move-finish's cleanup.
func TestMoveMuteSurvivesUserMute(t *testing.T) {
	h := newHarness(t)
	s := fake.NewStream(11, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)
	require.False(t, s.Muted)

	h.events.Fire(collab.HookStreamMoveStart, s, collab.StateCorked)
	require.True(t, s.Muted)

	// User/type-level mute pushed independently during the move window.
	require.NoError(t, h.vol.SetMuteByStreamID(model.DirectionOut, 11, true))

	h.events.Fire(collab.HookStreamMoveFinish, s, collab.StateRunning)
	require.True(t, s.Muted, "user-imposed mute during the move window must survive move-finish")
}

// TestMoveMuteClearedWhenNotOverridden complements the scenario above: with
// no independent mute during the window, move-finish clears the imposed one.
func TestMoveMuteClearedWhenNotOverridden(t *testing.T) {
	h := newHarness(t)
	s := fake.NewStream(12, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)

	h.events.Fire(collab.HookStreamMoveStart, s, collab.StateCorked)
	require.True(t, s.Muted)

	h.events.Fire(collab.HookStreamMoveFinish, s, collab.StateRunning)
	require.False(t, s.Muted)
}

// TestDeviceChangeRepublishesNonManualTop is the device-change re-publish
// behavior from spec §4.5: a connection-changed event re-fires
// ChangeRouteStart for the current non-Manual top stream, and is a no-op
// when the top is Manual-routed.
func TestDeviceChangeRepublishesNonManualTop(t *testing.T) {
	h := newHarness(t)
	s := fake.NewStream(20, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)
	before := len(h.changeRoutes)

	h.dm.FireConnectionChanged(collab.ConnectionChanged{Device: "bt-a2dp", Direction: model.DirectionOut, IsConnected: true})
	require.Greater(t, len(h.changeRoutes), before)
	last := h.changeRoutes[len(h.changeRoutes)-1]
	require.Equal(t, "media", last.Role)
}

func TestDeviceChangeSkipsManualTop(t *testing.T) {
	h := newHarness(t)
	h.parents.OnClientConnect(1, parent.ReservedAppName)
	require.NoError(t, h.parents.SetRouteDevices(1, nil, []uint32{7}))
	s := fake.NewStream(21, model.DirectionOut, "voice-control").WithParent(1)
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)
	before := len(h.changeRoutes)

	h.dm.FireConnectionChanged(collab.ConnectionChanged{Device: "speaker", Direction: model.DirectionOut, IsConnected: true})
	require.Equal(t, before, len(h.changeRoutes))
}

// TestUnknownRoleDefaultsToMedia checks spec §3's "unknown roles default to
// media" rule is applied by the engine, not just streammap.Resolve.
func TestUnknownRoleDefaultsToMedia(t *testing.T) {
	h := newHarness(t)
	s := fake.NewStream(30, model.DirectionOut, "totally-unconfigured-role")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)

	require.Equal(t, uint32(30), h.tracker.Top(model.DirectionOut).ID)
	require.NotEmpty(t, h.changeRoutes)
	require.Equal(t, "media", h.changeRoutes[len(h.changeRoutes)-1].Role)
}

// TestDuplicateUnlinkIsIdempotent guards the Ended-state replacement for the
// original's "-1 priority" sentinel (spec §7).
func TestDuplicateUnlinkIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := fake.NewStream(40, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)

	h.events.Fire(collab.HookStreamUnlink, s, collab.StateCorked)
	require.Nil(t, h.tracker.Top(model.DirectionOut))

	require.NotPanics(t, func() {
		h.events.Fire(collab.HookStreamUnlink, s, collab.StateCorked)
	})
}

// TestNewStreamReceivesInitialVolume verifies the new-data pipeline applies
// the bound volume type's current level before the stream is ever tracked
// in priority (spec §4.5 step 5, §4.2 apply_to_new_stream).
func TestNewStreamReceivesInitialVolume(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.vol.SetLevelByType(model.DirectionOut, "media", 2))

	s := fake.NewStream(50, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)

	require.InDelta(t, 1.0, s.Volume, 1e-9)
}

// TestSelectInitSinkOrSourceChoosesDestination verifies the new-data
// pipeline asks a registered SelectInitSinkOrSource subscriber to pick
// among a role's available devices and carries its choice on the fired
// ChangeRouteStartWithNewData event's Destination field (spec §4.5 new-data
// step 6, §4.6, §9 design note).
func TestSelectInitSinkOrSourceChoosesDestination(t *testing.T) {
	h := newHarness(t)

	var gotReq collab.SelectionRequest
	h.comm.SubscribeSelectInitSinkOrSource(func(req collab.SelectionRequest) *collab.SelectionOutcome {
		gotReq = req
		return &collab.SelectionOutcome{ChosenDevice: "bt-a2dp"}
	})

	s := fake.NewStream(60, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)

	require.Equal(t, model.DirectionOut, gotReq.Direction)
	require.ElementsMatch(t, []string{"speaker", "bt-a2dp"}, gotReq.Candidates)

	require.NotEmpty(t, h.changeRoutes)
	first := h.changeRoutes[0]
	require.Equal(t, collab.ChangeRouteStartWithNewData, first.Kind)
	require.Equal(t, "bt-a2dp", first.Destination)
}

// TestSelectInitSinkOrSourceNoSubscriberLeavesDestinationEmpty verifies the
// new-data pipeline degrades to an empty Destination when no selector is
// registered, rather than erroring.
func TestSelectInitSinkOrSourceNoSubscriberLeavesDestinationEmpty(t *testing.T) {
	h := newHarness(t)

	s := fake.NewStream(61, model.DirectionOut, "media")
	h.events.Fire(collab.HookStreamNewData, s, collab.StateCorked)
	h.events.Fire(collab.HookStreamPut, s, collab.StateRunning)

	require.NotEmpty(t, h.changeRoutes)
	require.Empty(t, h.changeRoutes[0].Destination)
}

// TestPublishRouteOptionFiresUpdateRouteOptionHook verifies
// Engine.PublishRouteOption forwards its arguments onto the Communicator's
// UpdateRouteOption hook (spec §4.6, §6).
func TestPublishRouteOptionFiresUpdateRouteOptionHook(t *testing.T) {
	h := newHarness(t)

	var got collab.UpdateRouteOptionEvent
	var fired bool
	h.comm.Subscribe(collab.HookUpdateRouteOption, func(payload any) {
		evt, ok := payload.(collab.UpdateRouteOptionEvent)
		require.True(t, ok)
		got = evt
		fired = true
	})

	h.engine.PublishRouteOption(9, "some-option", 7)

	require.True(t, fired)
	require.Equal(t, collab.UpdateRouteOptionEvent{ParentID: 9, Name: "some-option", Value: 7}, got)
}
