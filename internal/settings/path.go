package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath overrides the settings file location.
const EnvPath = "SIGVIEW_SETTINGS"

// ResolvePath applies env/XDG/home fallback rules for settings.toml location.
func ResolvePath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(EnvPath)); explicit != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "sigview", "settings.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for settings fallback")
	}

	return filepath.Join(home, ".config", "sigview", "settings.toml"), nil
}
