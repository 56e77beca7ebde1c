package config

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotFound means no configuration file exists at the given path.
var ErrNotFound = errors.New("config file not found")

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "gitplug.yaml"

// envToken is the environment variable carrying the GitHub token.
const envToken = "GITPLUG_GITHUB_TOKEN"

// Load reads and parses the configuration file at path. A missing file at
// the default path is not an error: callers get the defaults and supply the
// account via flags. A missing file at an explicitly chosen path is.
func Load(path string) (Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return Config{}, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			cfg := Default()
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays environment-provided secrets onto the configuration.
func applyEnv(cfg *Config) {
	if token := os.Getenv(envToken); token != "" {
		cfg.GitHub.Token = token
	}
}
