package volume

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/collab/fake"
	"github.com/tizen-audio/stream-manager/internal/model"
	"github.com/tizen-audio/stream-manager/internal/persistentkv"
)

func writeINI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestParseDBToLinear(t *testing.T) {
	v, err := parseDBToLinear("0")
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	v, err = parseDBToLinear("100")
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, 1e-9)
}

func TestLoadINIAndMasterFormula(t *testing.T) {
	body := "[volumes]\nmedia = 0, 80, 90, 100\nmaster = 100\ngain_tts = 106\n"
	path := writeINI(t, body)

	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))

	require.NoError(t, s.SetLevelByType(model.DirectionOut, "master", 50))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "media", 2))

	linear, err := s.computeLinear(model.DirectionOut, "media", "")
	require.NoError(t, err)
	require.InDelta(t, math.Pow(10, -0.5)*0.5, linear, 1e-6) // seed scenario 3: levels[media][2]=10^((90-100)/20)~0.316, master level 50 -> 50/100
}

func TestGainModifier(t *testing.T) {
	body := "[volumes]\nmedia = 0, 80, 90, 100\nmaster = 100\ngain_tts = 2.0\n"
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "master", 50))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "media", 2))

	linear, err := s.computeLinear(model.DirectionOut, "media", "tts")
	require.NoError(t, err)
	require.InDelta(t, math.Pow(10, -0.5)*0.5*2.0, linear, 1e-6)
}

func TestMasterMaxLevelFixed(t *testing.T) {
	body := "[volumes]\nmaster = 50, 60\n" // deliberately too short to test the fixed max
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))

	max, err := s.GetMaxLevel(model.DirectionOut, "master")
	require.NoError(t, err)
	require.Equal(t, uint32(model.MasterMaxLevel), max)
}

func TestSetLevelOutOfRange(t *testing.T) {
	body := "[volumes]\nmedia = 0, 50, 100\n"
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))

	err := s.SetLevelByType(model.DirectionOut, "media", 5)
	require.Error(t, err)
	kind, ok := model.AsKind(err)
	require.True(t, ok)
	require.Equal(t, model.KindLevelOutOfRange, kind)

	// unchanged state
	lvl, err := s.GetLevel(model.DirectionOut, "media")
	require.NoError(t, err)
	require.Equal(t, uint32(0), lvl)
}

func TestUnknownVolumeTypeLeavesStateUnchanged(t *testing.T) {
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	err := s.SetLevelByType(model.DirectionOut, "nonexistent", 1)
	require.Error(t, err)
	kind, _ := model.AsKind(err)
	require.Equal(t, model.KindUnknownVolumeType, kind)
}

type stubHandle struct {
	id     uint32
	dir    model.Direction
	volume float64
	muted  bool
}

func (h *stubHandle) ID() uint32                 { return h.id }
func (h *stubHandle) Direction() model.Direction { return h.dir }
func (h *stubHandle) SetVolume(v float64) error  { h.volume = v; return nil }
func (h *stubHandle) SetMute(m bool) error        { h.muted = m; return nil }

type stubRegistry struct {
	byID map[uint32]*stubHandle
	typ  map[uint32]string
	gain map[uint32]string
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{byID: map[uint32]*stubHandle{}, typ: map[uint32]string{}, gain: map[uint32]string{}}
}

func (r *stubRegistry) add(h *stubHandle, volType, gainType string) {
	r.byID[h.id] = h
	r.typ[h.id] = volType
	r.gain[h.id] = gainType
}

func (r *stubRegistry) StreamsOfType(dir model.Direction, volumeType string) []StreamHandle {
	var out []StreamHandle
	for id, h := range r.byID {
		if h.dir == dir && r.typ[id] == volumeType {
			out = append(out, h)
		}
	}
	return out
}

func (r *stubRegistry) TypeOfStream(dir model.Direction, id uint32) (string, string, bool) {
	h, ok := r.byID[id]
	if !ok || h.dir != dir {
		return "", "", false
	}
	return r.typ[id], r.gain[id], true
}

func (r *stubRegistry) StreamByID(dir model.Direction, id uint32) (StreamHandle, bool) {
	h, ok := r.byID[id]
	if !ok || h.dir != dir {
		return nil, false
	}
	return h, true
}

var _ Registry = (*stubRegistry)(nil)
var _ collab.HAL = (*fake.HAL)(nil)

func TestOneToManyPushOnLevelChange(t *testing.T) {
	body := "[volumes]\nmedia = 0, 50, 100\nmaster = 100\n"
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "master", 100))

	reg := newStubRegistry()
	s.SetRegistry(reg)
	h1 := &stubHandle{id: 1, dir: model.DirectionOut}
	h2 := &stubHandle{id: 2, dir: model.DirectionOut}
	reg.add(h1, "media", "")
	reg.add(h2, "media", "")

	require.NoError(t, s.SetLevelByType(model.DirectionOut, "media", 2))
	require.InDelta(t, 1.0, h1.volume, 1e-9)
	require.InDelta(t, 1.0, h2.volume, 1e-9)
}

func TestOneToOneApplyToStream(t *testing.T) {
	body := "[volumes]\nmedia = 0, 50, 100\nmaster = 100\n"
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "master", 100))

	reg := newStubRegistry()
	s.SetRegistry(reg)
	h := &stubHandle{id: 7, dir: model.DirectionOut}
	reg.add(h, "media", "")
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "media", 1))

	require.NoError(t, s.ApplyToStream(model.DirectionOut, 7))
	require.InDelta(t, math.Pow(10, -2.5), h.volume, 1e-9) // levels[media][1] = 10^((50-100)/20)
}

func TestApplyToNewStream(t *testing.T) {
	body := "[volumes]\nmedia = 0, 50, 100\nmaster = 100\n"
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "master", 100))
	require.NoError(t, s.SetLevelByType(model.DirectionOut, "media", 1))
	require.NoError(t, s.SetMuteByType(model.DirectionOut, "media", true))

	h := &stubHandle{id: 9, dir: model.DirectionOut}
	require.NoError(t, s.ApplyToNewStream(model.DirectionOut, "media", "", h))
	require.InDelta(t, math.Pow(10, -2.5), h.volume, 1e-9) // levels[media][1] = 10^((50-100)/20)
	require.True(t, h.muted)
}

func TestSetMuteIdempotent(t *testing.T) {
	body := "[volumes]\nmedia = 0, 50, 100\nmaster = 100\n"
	path := writeINI(t, body)
	hal := fake.NewHAL()
	s := New(hal, persistentkv.NewMemStore())
	require.NoError(t, s.LoadINI(model.DirectionOut, path, path))
	reg := newStubRegistry()
	s.SetRegistry(reg)
	h := &stubHandle{id: 3, dir: model.DirectionOut}
	reg.add(h, "media", "")

	require.NoError(t, s.SetMuteByType(model.DirectionOut, "media", true))
	require.NoError(t, s.SetMuteByType(model.DirectionOut, "media", true))
	muted, err := s.GetMuteByType(model.DirectionOut, "media")
	require.NoError(t, err)
	require.True(t, muted)
	require.True(t, h.muted)
}
