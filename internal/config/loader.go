package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedVersion is returned for a config file whose version is not 1.
var ErrUnsupportedVersion = errors.New("unsupported config version")

// FileLoader is the production Loader. It reads a YAML file layered over
// Default().
type FileLoader struct {
	path     string
	explicit bool
}

// NewFileLoader returns a loader for path. An empty path selects the default
// location, which is allowed to be absent.
func NewFileLoader(path string) *FileLoader {
	if path != "" {
		return &FileLoader{path: path, explicit: true}
	}
	return &FileLoader{path: DefaultPath()}
}

// DefaultPath returns ~/.config/billing-analyzer/config.yaml, or an empty
// string when the home directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "billing-analyzer", "config.yaml")
}

// ConfigPath implements Loader.
func (l *FileLoader) ConfigPath() string { return l.path }

// Load implements Loader.
func (l *FileLoader) Load() (*Config, error) {
	cfg := Default()
	if l.path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !l.explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config %s: %w", l.path, errors.Join(errs...))
	}
	return cfg, nil
}
