package settings

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Warning is a non-fatal problem found while loading.
type Warning struct {
	Message string
}

// Loaded captures resolved settings path, the store, and non-fatal warnings.
type Loaded struct {
	Path     string
	Store    *Store
	Warnings []Warning
	Exists   bool

	// Malformed is set when the file exists but could not be read or parsed.
	// The store then holds no user values and must not be saved over it.
	Malformed bool
}

// Load resolves and reads the settings file. A missing or corrupt file yields
// an empty store plus a warning; only path resolution is fatal.
func Load() (Loaded, error) {
	path, err := ResolvePath()
	if err != nil {
		return Loaded{}, err
	}
	return LoadFile(path), nil
}

// LoadFile reads path into a new store.
func LoadFile(path string) Loaded {
	store := NewStore(path)
	values, err := readValues(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Loaded{
			Path:  path,
			Store: store,
			Warnings: []Warning{{
				Message: fmt.Sprintf("settings file %q not found; using defaults", path),
			}},
		}
	case err != nil:
		return Loaded{
			Path:      path,
			Store:     store,
			Warnings:  []Warning{{Message: err.Error() + "; using defaults"}},
			Exists:    true,
			Malformed: true,
		}
	}

	store.replace(values)
	return Loaded{Path: path, Store: store, Exists: true}
}

// Reload re-reads the backing file, keeping current values on error.
func (s *Store) Reload() error {
	values, err := readValues(s.path)
	if err != nil {
		return err
	}
	s.replace(values)
	return nil
}

func readValues(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read settings %q: %w", path, err)
	}

	doc := map[string]any{}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %q: %w", path, err)
	}

	values := map[string]any{}
	flatten("", doc, values)
	return values, nil
}
