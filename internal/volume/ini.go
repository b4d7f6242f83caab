package volume

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/ini.v1"

	"github.com/tizen-audio/stream-manager/internal/model"
)

const iniTable = "volumes"

// LoadINI loads the per-type level tables and per-gain-tag modifiers from
// an INI file, for one direction (spec §4.2, §6). The tuned path is tried
// first; the default path is the fallback, matching the original's
// VOLUME_INI_TUNED_PATH/VOLUME_INI_DEFAULT_PATH precedence.
func (s *Store) LoadINI(dir model.Direction, tunedPath, defaultPath string) error {
	f, err := ini.Load(tunedPath)
	if err != nil {
		slog.Warn("volume: loading tuned INI failed, falling back to default", "path", tunedPath, "err", err)
		f, err = ini.Load(defaultPath)
		if err != nil {
			return model.ErrConfigInvalid(fmt.Sprintf("volume: load %s and %s: %v", tunedPath, defaultPath, err))
		}
	}
	return s.loadFromFile(dir, f)
}

func (s *Store) loadFromFile(dir model.Direction, f *ini.File) error {
	sec, err := f.GetSection(iniTable)
	if err != nil {
		return model.ErrConfigInvalid(fmt.Sprintf("volume: INI missing section %q", iniTable))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range sec.Keys() {
		name := key.Name()
		raw := key.Value()
		if strings.HasPrefix(name, "gain_") {
			tag := strings.TrimPrefix(name, "gain_")
			tokens := splitList(raw)
			if len(tokens) != 1 {
				return model.ErrConfigInvalid(fmt.Sprintf("volume: gain %q must have exactly one value, got %d", name, len(tokens)))
			}
			g, err := strconv.ParseFloat(tokens[0], 64)
			if err != nil {
				return model.ErrConfigInvalid(fmt.Sprintf("volume: gain %q: invalid linear value %q: %v", name, tokens[0], err))
			}
			s.gains[dir][tag] = g
			continue
		}

		// Per-type level array.
		tokens := splitList(raw)
		levels := make([]float64, 0, len(tokens))
		for _, tok := range tokens {
			v, err := parseDBToLinear(tok)
			if err != nil {
				return model.ErrConfigInvalid(fmt.Sprintf("volume: level table %q: %v", name, err))
			}
			levels = append(levels, v)
		}
		t := s.ensureType(dir, name)
		t.levels = levels
	}
	return nil
}

// splitList splits a comma-and-space separated INI value (spec §6).
func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDBToLinear converts one dB integer token to linear gain (spec §3):
// 10^((dB-100)/20), with the literal "0" mapped to 0.0 exactly.
func parseDBToLinear(tok string) (float64, error) {
	if tok == "0" {
		return 0.0, nil
	}
	db, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dB value %q: %w", tok, err)
	}
	return math.Pow(10.0, (db-100.0)/20.0), nil
}

// WatchINI hot-reloads the tuned/default INI pair on write, mirroring the
// teacher's internal/auth/service.go fsnotify pattern. Returns a stop
// function; callers should defer it. A watcher failure is logged and
// non-fatal, matching internal/auth's "watch is best-effort" behavior.
func (s *Store) WatchINI(dir model.Direction, tunedPath, defaultPath string) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("volume: could not create fsnotify watcher", "err", err)
		return func() {}, nil
	}

	watchPath := tunedPath
	if err := watcher.Add(watchPath); err != nil {
		// tuned file may not exist yet; watch its directory's default instead
		watchPath = defaultPath
		if err := watcher.Add(watchPath); err != nil {
			slog.Warn("volume: could not watch INI path", "path", watchPath, "err", err)
			_ = watcher.Close()
			return func() {}, nil
		}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := s.LoadINI(dir, tunedPath, defaultPath); err != nil {
						slog.Error("volume: reload after fsnotify event failed", "err", err)
					} else {
						slog.Info("volume: reloaded INI tables", "direction", dir.String())
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("volume: fsnotify watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
