package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const stateVersion = 1

// StateStore persists the open session list between runs.
type StateStore struct {
	path string
}

// NewStateStore returns a store backed by path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// DefaultStatePath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func DefaultStatePath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "sigview", "sessions.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "sigview", "sessions.json"), nil
}

func (s *StateStore) Path() string {
	return s.path
}

// Save replaces the stored session list.
func (s *StateStore) Save(snapshots []Snapshot) error {
	list := make([]any, 0, len(snapshots))
	for _, snap := range snapshots {
		list = append(list, map[string]any{
			"name":          snap.Name,
			"device_driver": snap.DeviceDriver,
			"device_id":     snap.DeviceID,
			"input_file":    snap.InputFile,
			"input_format":  snap.InputFormat,
		})
	}

	doc, err := structpb.NewStruct(map[string]any{
		"version":  stateVersion,
		"sessions": list,
	})
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	content, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(s.path, content, 0o600); err != nil {
		return fmt.Errorf("write session state %q: %w", s.path, err)
	}
	return nil
}

// Load returns the stored session list. A missing file restores nothing.
func (s *StateStore) Load() ([]Snapshot, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session state %q: %w", s.path, err)
	}

	var doc structpb.Struct
	if err := protojson.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse session state %q: %w", s.path, err)
	}

	values := doc.AsMap()
	if v := cast.ToInt(values["version"]); v != stateVersion {
		return nil, fmt.Errorf("unsupported session state version %d", v)
	}

	raw, _ := values["sessions"].([]any)
	snapshots := make([]Snapshot, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Name:         cast.ToString(entry["name"]),
			DeviceDriver: cast.ToString(entry["device_driver"]),
			DeviceID:     cast.ToString(entry["device_id"]),
			InputFile:    cast.ToString(entry["input_file"]),
			InputFormat:  cast.ToString(entry["input_format"]),
		})
	}
	return snapshots, nil
}
