// Package config implements the layered configuration store described
// in spec.md §4.3, grounded on original_source/src/rtaspi/core/config.py
// (ConfigManager) and on the YAML-file conventions of redb-open's
// cmd/supervisor/internal/superconfig, using gopkg.in/yaml.v3 for layer
// (de)serialization and github.com/fsnotify/fsnotify to watch the
// project-scoped file for changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Layer names, lowest to highest precedence (spec.md §4.3).
const (
	LayerDefaults = "defaults"
	LayerSystem   = "system"
	LayerUser     = "user"
	LayerProject  = "project"
	LayerEnv      = "env"
)

// Store is a hierarchical configuration: built-in defaults overlaid by
// system, user and project YAML files, overlaid in turn by a fixed
// environment-variable table. Values are addressed by dotted path
// ("section.subsection.key").
type Store struct {
	systemPath  string
	userPath    string
	projectPath string

	merged map[string]any // defaults + files + env, flattened on load
	layers map[string]map[string]any
}

// Load builds a Store by reading, in order, the compiled-in defaults,
// then the system/user/project YAML files (a missing file is not an
// error; a parse error aborts only that layer), then applies the
// env-variable table. systemPath/userPath/projectPath may be empty to
// use the conventional locations.
func Load(systemPath, userPath, projectPath string) (*Store, error) {
	if systemPath == "" {
		systemPath = "/etc/rtaspi/config.yaml"
	}
	if userPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			userPath = filepath.Join(home, ".config", "rtaspi", "config.yaml")
		}
	}
	if projectPath == "" {
		projectPath = filepath.Join(".rtaspi", "config.yaml")
	}

	s := &Store{
		systemPath:  systemPath,
		userPath:    userPath,
		projectPath: projectPath,
		layers:      make(map[string]map[string]any),
	}

	s.layers[LayerDefaults] = defaultConfig()
	merged := cloneMap(s.layers[LayerDefaults])

	for _, l := range []struct{ name, path string }{
		{LayerSystem, systemPath},
		{LayerUser, userPath},
		{LayerProject, projectPath},
	} {
		loaded, err := loadYAMLFile(l.path)
		if err != nil {
			continue // a layer that fails to read or parse is skipped; the others still load
		}
		if loaded != nil {
			s.layers[l.name] = loaded
			mergeInto(merged, loaded)
		}
	}

	s.merged = merged
	s.applyEnv()
	return s, nil
}

// loadYAMLFile returns nil, nil when the file does not exist.
func loadYAMLFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyEnv overlays every env variable present in envVariableMap onto
// the merged config, coercing its string value (spec.md §4.3: "true"/
// "false" -> bool, digit-only -> int, digit-with-one-dot -> float,
// otherwise string).
func (s *Store) applyEnv() {
	envLayer := make(map[string]any)
	for envVar, path := range envVariableMap {
		raw, ok := os.LookupEnv(envVar)
		if !ok {
			continue
		}
		setDotted(envLayer, path, coerce(raw))
	}
	if len(envLayer) > 0 {
		s.layers[LayerEnv] = envLayer
		mergeInto(s.merged, envLayer)
	}
}

func coerce(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if isDigitsOnly(raw) {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	if strings.Count(raw, ".") == 1 {
		stripped := strings.Replace(raw, ".", "", 1)
		if isDigitsOnly(stripped) {
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				return f
			}
		}
	}
	return raw
}

func isDigitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Get looks up a dotted path in the fully-merged view. It returns
// (value, true) if found, else (nil, false).
func (s *Store) Get(path string) (any, bool) {
	return lookupDotted(s.merged, path)
}

// GetString, GetInt, GetBool are typed convenience lookups returning the
// provided default when the path is absent or of the wrong type.
func (s *Store) GetString(path, def string) string {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return def
}

func (s *Store) GetInt(path string, def int) int {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func (s *Store) GetBool(path string, def bool) bool {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func (s *Store) GetStringSlice(path string) []string {
	v, ok := s.Get(path)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Set writes value at path into the named layer (system/user/project)
// and re-merges, but does not persist to disk; call Save to write the
// layer's file. Lower layers are never rewritten (spec.md §4.3).
func (s *Store) Set(layer, path string, value any) error {
	if layer == LayerDefaults || layer == LayerEnv {
		return fmt.Errorf("config: cannot set into the %s layer", layer)
	}
	target, ok := s.layers[layer]
	if !ok {
		target = make(map[string]any)
		s.layers[layer] = target
	}
	setDotted(target, path, value)

	merged := cloneMap(s.layers[LayerDefaults])
	for _, name := range []string{LayerSystem, LayerUser, LayerProject, LayerEnv} {
		if l, ok := s.layers[name]; ok {
			mergeInto(merged, l)
		}
	}
	s.merged = merged
	return nil
}

// Save serializes the named layer back to its file, creating parent
// directories as needed.
func (s *Store) Save(layer string) error {
	path := s.pathFor(layer)
	if path == "" {
		return fmt.Errorf("config: no file path for layer %s", layer)
	}
	data, err := yaml.Marshal(s.layers[layer])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) pathFor(layer string) string {
	switch layer {
	case LayerSystem:
		return s.systemPath
	case LayerUser:
		return s.userPath
	case LayerProject:
		return s.projectPath
	default:
		return ""
	}
}

// Watch starts watching the project-scoped file for changes and invokes
// onChange (with the newly reloaded Store) whenever it is written. The
// returned stop function removes the watch. A missing project file is
// watched on its parent directory, same as fsnotify's own convention for
// files that may be created later.
func (s *Store) Watch(onChange func(*Store)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watchTarget := s.projectPath
	if _, statErr := os.Stat(watchTarget); statErr != nil {
		watchTarget = filepath.Dir(watchTarget)
	}
	if err := watcher.Add(watchTarget); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.projectPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, loadErr := Load(s.systemPath, s.userPath, s.projectPath)
				if loadErr == nil && onChange != nil {
					onChange(reloaded)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

// mergeInto recursively overlays src onto dest, matching
// original_source's ConfigManager._update_dict.
func mergeInto(dest, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if destMap, ok := dest[k].(map[string]any); ok {
				mergeInto(destMap, srcMap)
				continue
			}
		}
		dest[k] = v
	}
}

func lookupDotted(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = asMap[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setDotted(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
