package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds bloomctl's configuration, loadable from a hujson (JSON with
// comments, trailing commas tolerated) file.
type Config struct {
	Servers []string `json:"servers"`
	N       int      `json:"n"`
	P       float64  `json:"p"`
	Lease   string   `json:"lease"`
}

// ConfigFileName is the default config file name, checked in the working
// directory, mirroring the teacher's .tk.json convention.
const ConfigFileName = ".bloomctl.hujson"

// DefaultConfig returns bloomctl's built-in defaults, used when no config
// file is present and no flags override them.
func DefaultConfig() Config {
	return Config{
		Servers: []string{"127.0.0.1:11211"},
		N:       1000,
		P:       0.001,
		Lease:   "1s",
	}
}

// LoadConfig reads ConfigFileName from workDir if present, overlaying it
// onto DefaultConfig. A missing file is not an error.
func LoadConfig(workDir string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workDir, ConfigFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return cfg, nil
}
