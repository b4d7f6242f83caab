// Package fake provides in-memory test doubles for the collab interfaces.
// Production implementations of HAL, the Device Manager, and the server
// hook surface live outside this module (spec §1); these fakes let
// internal packages be tested in isolation, and cmd/streammanager also
// wires them in as stand-ins for the out-of-process collaborators.
package fake

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tizen-audio/stream-manager/internal/collab"
	"github.com/tizen-audio/stream-manager/internal/model"
)

// HAL is a deterministic in-memory collab.HAL.
type HAL struct {
	mu     sync.Mutex
	Levels map[string]float64 // keyed by volumeType+dir+level, set by test
	Mutes  map[string]bool
	Fail   bool
}

func NewHAL() *HAL {
	return &HAL{Levels: map[string]float64{}, Mutes: map[string]bool{}}
}

func halKey(t string, dir model.Direction, level uint32) string {
	return fmt.Sprintf("%s/%s/%d", t, dir.String(), level)
}

func (h *HAL) GetVolumeValue(volumeType string, dir model.Direction, level uint32) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Fail {
		return 0, model.ErrHAL("fake HAL failure")
	}
	if v, ok := h.Levels[halKey(volumeType, dir, level)]; ok {
		return v, nil
	}
	return 1.0, nil
}

func (h *HAL) SetVolumeLevel(volumeType string, dir model.Direction, level uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Fail {
		return model.ErrHAL("fake HAL failure")
	}
	return nil
}

func (h *HAL) SetMute(volumeType string, dir model.Direction, mute bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Fail {
		return model.ErrHAL("fake HAL failure")
	}
	h.Mutes[volumeType+"/"+dir.String()] = mute
	return nil
}

func (h *HAL) GetBufferAttribute(latencyClass string, streamNew bool) (collab.BufferAttribute, error) {
	if h.Fail {
		return collab.BufferAttribute{}, model.ErrHAL("fake HAL failure")
	}
	return collab.BufferAttribute{MaxLength: 4096, TLength: 2048, PreBuf: 1024, MinReq: 512, FragSize: 1024}, nil
}

func (h *HAL) UpdateStreamConnectionInfo(role string, dir model.Direction, id uint32, connected bool) error {
	return nil
}

// DeviceManager is a fake collab.DeviceManager driven by a test calling
// FireConnectionChanged/FireInformationChanged directly.
type DeviceManager struct {
	mu            sync.Mutex
	connFns       []func(collab.ConnectionChanged)
	infoFns       []func(collab.InformationChanged)
}

func NewDeviceManager() *DeviceManager { return &DeviceManager{} }

func (d *DeviceManager) OnConnectionChanged(fn func(collab.ConnectionChanged)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connFns = append(d.connFns, fn)
}

func (d *DeviceManager) OnInformationChanged(fn func(collab.InformationChanged)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.infoFns = append(d.infoFns, fn)
}

func (d *DeviceManager) FireConnectionChanged(e collab.ConnectionChanged) {
	d.mu.Lock()
	fns := append([]func(collab.ConnectionChanged){}, d.connFns...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (d *DeviceManager) FireInformationChanged(e collab.InformationChanged) {
	d.mu.Lock()
	fns := append([]func(collab.InformationChanged){}, d.infoFns...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// Stream is a fake collab.Stream with settable fields, plus a synthetic id
// minted with uuid so tests exercise the same id-shape production code
// would see from a real server.
type Stream struct {
	id           uint32
	dir          model.Direction
	role         string
	appName      string
	parentID     uint32
	hasParent    bool
	gainType     string
	latencyClass string
	sampleSpec   string
	corrID       string

	Volume float64
	Muted  bool
}

func NewStream(id uint32, dir model.Direction, role string) *Stream {
	return &Stream{id: id, dir: dir, role: role, corrID: uuid.NewString()}
}

func (s *Stream) ID() uint32                { return s.id }
func (s *Stream) Direction() model.Direction { return s.dir }
func (s *Stream) Role() string              { return s.role }
func (s *Stream) AppName() string           { return s.appName }
func (s *Stream) ParentID() (uint32, bool)  { return s.parentID, s.hasParent }
func (s *Stream) GainType() string          { return s.gainType }
func (s *Stream) LatencyClass() string      { return s.latencyClass }
func (s *Stream) SampleSpec() string        { return s.sampleSpec }
func (s *Stream) CorrelationID() string     { return s.corrID }
func (s *Stream) SetVolume(linear float64) error { s.Volume = linear; return nil }
func (s *Stream) SetMute(mute bool) error        { s.Muted = mute; return nil }

func (s *Stream) WithAppName(n string) *Stream   { s.appName = n; return s }
func (s *Stream) WithParent(id uint32) *Stream   { s.parentID, s.hasParent = id, true; return s }
func (s *Stream) WithGainType(g string) *Stream  { s.gainType = g; return s }
func (s *Stream) WithLatency(l string) *Stream   { s.latencyClass = l; return s }
func (s *Stream) WithSampleSpec(sp string) *Stream { s.sampleSpec = sp; return s }

// ServerEvents is a fake collab.ServerEvents a test fires directly.
type ServerEvents struct {
	mu   sync.Mutex
	subs map[key][]func(collab.Stream, collab.StreamState)
}

type key struct {
	hook collab.ServerHookID
	dir  model.Direction
}

func NewServerEvents() *ServerEvents {
	return &ServerEvents{subs: make(map[key][]func(collab.Stream, collab.StreamState))}
}

func (e *ServerEvents) Subscribe(hook collab.ServerHookID, dir model.Direction, fn func(collab.Stream, collab.StreamState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := key{hook, dir}
	e.subs[k] = append(e.subs[k], fn)
}

func (e *ServerEvents) Fire(hook collab.ServerHookID, s collab.Stream, state collab.StreamState) {
	e.mu.Lock()
	k := key{hook, s.Direction()}
	fns := append([]func(collab.Stream, collab.StreamState){}, e.subs[k]...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(s, state)
	}
}
