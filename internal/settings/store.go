// Package settings is the persistent key/value store read before logging starts.
package settings

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
)

// Store holds dotted keys ("section.name") backed by a TOML file.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// NewStore returns an empty store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path, values: map[string]any{}}
}

// FileName is the backing file path.
func (s *Store) FileName() string {
	return s.path
}

// Format names the on-disk encoding.
func (s *Store) Format() string {
	return "toml"
}

// SetDefaultsWhereNeeded fills missing keys from Defaults and returns the
// keys it filled, sorted. Existing values are never overwritten.
func (s *Store) SetDefaultsWhereNeeded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var filled []string
	for key, value := range Defaults() {
		if _, ok := s.values[key]; ok {
			continue
		}
		s.values[key] = value
		filled = append(filled, key)
	}
	slices.Sort(filled)
	return filled
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Set stores a value in memory; call Save to persist.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Keys lists every set key, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

func (s *Store) lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		v, ok = Defaults()[key]
	}
	return v, ok
}

// String returns key as a string, falling back to its default.
func (s *Store) String(key string) string {
	v, _ := s.lookup(key)
	out, err := cast.ToStringE(v)
	if err != nil {
		return cast.ToString(Defaults()[key])
	}
	return out
}

// Int returns key as an int, falling back to its default when the stored
// value cannot be coerced.
func (s *Store) Int(key string) int {
	v, _ := s.lookup(key)
	out, err := cast.ToIntE(v)
	if err != nil {
		return cast.ToInt(Defaults()[key])
	}
	return out
}

// Bool returns key as a bool, falling back to its default.
func (s *Store) Bool(key string) bool {
	v, _ := s.lookup(key)
	out, err := cast.ToBoolE(v)
	if err != nil {
		return cast.ToBool(Defaults()[key])
	}
	return out
}

// Duration reads key as a duration. Integers are milliseconds; strings use
// time.ParseDuration syntax ("1.5s").
func (s *Store) Duration(key string) time.Duration {
	v, _ := s.lookup(key)
	if str, ok := v.(string); ok {
		d, err := cast.ToDurationE(str)
		if err == nil {
			return d
		}
		v = Defaults()[key]
	}
	ms, err := cast.ToInt64E(v)
	if err != nil {
		ms = cast.ToInt64(Defaults()[key])
	}
	return time.Duration(ms) * time.Millisecond
}

// Save writes every key to the backing file, creating parent directories.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := nest(s.values)
	s.mu.RUnlock()

	content, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, content, 0o600); err != nil {
		return fmt.Errorf("write settings %q: %w", s.path, err)
	}
	return nil
}

func (s *Store) replace(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
}

// flatten turns nested TOML tables into dotted keys.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if table, ok := value.(map[string]any); ok {
			flatten(full, table, out)
			continue
		}
		out[full] = value
	}
}

func nest(flat map[string]any) map[string]any {
	root := map[string]any{}
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return root
}
