package device

import (
	"errors"
	"fmt"
	"strings"
)

// DriverSpec is a parsed "-d" argument: a driver name plus key=value options.
type DriverSpec struct {
	Name    string
	Options map[string]string
}

// ParseDriverSpec parses "name[:key=value]...".
func ParseDriverSpec(raw string) (DriverSpec, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return DriverSpec{}, errors.New("driver spec has no driver name")
	}

	spec := DriverSpec{Name: name, Options: map[string]string{}}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return DriverSpec{}, fmt.Errorf("driver option %q must be key=value", part)
		}
		spec.Options[key] = strings.TrimSpace(value)
	}
	return spec, nil
}

func (s DriverSpec) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, key := range sortedKeys(s.Options) {
		fmt.Fprintf(&b, ":%s=%s", key, s.Options[key])
	}
	return b.String()
}
