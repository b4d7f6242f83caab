// Package streammap loads the stream-map policy file (spec §4.1) and
// exposes the immutable role -> StreamSpec lookup every other component
// consults.
package streammap

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tizen-audio/stream-manager/internal/model"
)

// StreamSpec is the immutable per-role policy loaded from the stream-map
// file (spec §3).
type StreamSpec struct {
	Role           string
	Priority       int32
	RouteType      model.RouteType
	VolumeType     [model.DirectionMax]string // "" if none configured for that direction
	IsHALVolume    [model.DirectionMax]bool
	AvailDevices   [model.DirectionMax]map[string]struct{}
	AvailFrameworks map[string]struct{}
}

// HasVolumeType reports whether dir has a bound volume type for this role.
func (s *StreamSpec) HasVolumeType(dir model.Direction) bool {
	return s.VolumeType[dir] != ""
}

// AllowsDevice reports whether device is in this role's avail-devices set
// for dir. An empty set (role declares no devices for dir) never matches.
func (s *StreamSpec) AllowsDevice(dir model.Direction, device string) bool {
	_, ok := s.AvailDevices[dir][device]
	return ok
}

// wireSpec mirrors the on-disk JSON shape (spec §6 "Stream-map file").
type wireSpec struct {
	Role            string   `json:"role"`
	Priority        *int32   `json:"priority"`
	RouteType       *string  `json:"route-type"`
	VolumeTypes     *wireVol `json:"volume-types"`
	IsHALVolume     *wireHAL `json:"is-hal-volume"`
	AvailInDevices  []string `json:"avail-in-devices"`
	AvailOutDevices []string `json:"avail-out-devices"`
	AvailFrameworks []string `json:"avail-frameworks"`
}

type wireVol struct {
	In  *string `json:"in"`
	Out *string `json:"out"`
}

type wireHAL struct {
	In  *bool `json:"in"`
	Out *bool `json:"out"`
}

type wireDoc struct {
	Streams []wireSpec `json:"streams"`
}

// Map is the immutable, load-once role -> StreamSpec table.
type Map struct {
	byRole map[string]*StreamSpec
}

// Load reads and validates the stream-map JSON file at path. Any missing
// required key or malformed route-type string aborts with a
// model.Error{Kind: KindConfigInvalid}, per spec §4.1 ("Invalid documents
// abort initialization").
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: read %s: %v", path, err))
	}

	var doc wireDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: parse %s: %v", path, err))
	}

	m := &Map{byRole: make(map[string]*StreamSpec, len(doc.Streams))}
	for _, w := range doc.Streams {
		spec, err := parseSpec(w)
		if err != nil {
			return nil, err
		}
		m.byRole[spec.Role] = spec
	}
	return m, nil
}

func parseSpec(w wireSpec) (*StreamSpec, error) {
	if w.Role == "" {
		return nil, model.ErrConfigInvalid("stream map: entry missing required key \"role\"")
	}
	if w.Priority == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"priority\"", w.Role))
	}
	if w.RouteType == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"route-type\"", w.Role))
	}
	rt, ok := model.ParseRouteType(*w.RouteType)
	if !ok {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q has unknown route-type %q", w.Role, *w.RouteType))
	}
	if w.VolumeTypes == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"volume-types\"", w.Role))
	}
	if w.VolumeTypes.In == nil || w.VolumeTypes.Out == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q volume-types must set both \"in\" and \"out\"", w.Role))
	}
	if w.IsHALVolume == nil || w.IsHALVolume.In == nil || w.IsHALVolume.Out == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"is-hal-volume\"", w.Role))
	}
	if w.AvailInDevices == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"avail-in-devices\"", w.Role))
	}
	if w.AvailOutDevices == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"avail-out-devices\"", w.Role))
	}
	if w.AvailFrameworks == nil {
		return nil, model.ErrConfigInvalid(fmt.Sprintf("stream map: role %q missing required key \"avail-frameworks\"", w.Role))
	}

	spec := &StreamSpec{
		Role:            w.Role,
		Priority:        *w.Priority,
		RouteType:       rt,
		AvailFrameworks: toSet(w.AvailFrameworks),
	}
	spec.VolumeType[model.DirectionIn] = normalizeVolumeType(*w.VolumeTypes.In)
	spec.VolumeType[model.DirectionOut] = normalizeVolumeType(*w.VolumeTypes.Out)
	spec.IsHALVolume[model.DirectionIn] = *w.IsHALVolume.In
	spec.IsHALVolume[model.DirectionOut] = *w.IsHALVolume.Out
	spec.AvailDevices[model.DirectionIn] = toSet(w.AvailInDevices)
	spec.AvailDevices[model.DirectionOut] = toSet(w.AvailOutDevices)

	return spec, nil
}

// normalizeVolumeType maps the literal "none" to the absent ("") value
// (spec §4.1).
func normalizeVolumeType(s string) string {
	if s == "none" {
		return ""
	}
	return s
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// Lookup returns the StreamSpec for role, or (nil, false) if role is not
// configured. Callers default unknown roles to model.DefaultRole
// themselves (spec §3) — Lookup does not perform that substitution so
// that a caller which intentionally wants "unconfigured" (e.g. validation
// tooling) can tell the difference.
func (m *Map) Lookup(role string) (*StreamSpec, bool) {
	spec, ok := m.byRole[role]
	return spec, ok
}

// Resolve returns the StreamSpec for role, substituting model.DefaultRole
// when role is unconfigured (spec §3: "unknown roles default to media").
// The bool result is false only if even the default role is unconfigured,
// which indicates a malformed stream-map file.
func (m *Map) Resolve(role string) (*StreamSpec, bool) {
	if spec, ok := m.byRole[role]; ok {
		return spec, true
	}
	spec, ok := m.byRole[model.DefaultRole]
	return spec, ok
}

// Roles returns every configured role, in no particular order.
func (m *Map) Roles() []string {
	roles := make([]string, 0, len(m.byRole))
	for r := range m.byRole {
		roles = append(roles, r)
	}
	return roles
}
