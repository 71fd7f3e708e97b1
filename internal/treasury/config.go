// Package treasury ties the component packages together into one
// open treasury: its on-disk layout, its loaded importer set, and the
// process-wide state (the instance registry and the artifact scan
// cache) that's shared across concurrent store/fetch/find calls.
package treasury

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// configFileName is the well-known config file at the base of every
// treasury directory.
const configFileName = "Treasury.toml"

const (
	defaultArtifactsDir = "treasury/artifacts"
	defaultExternalDir  = "treasury/external"
)

// Config is the parsed body of Treasury.toml.
type Config struct {
	Artifacts string   `toml:"artifacts,omitempty"`
	External  string   `toml:"external,omitempty"`
	Temp      string   `toml:"temp,omitempty"`
	Importers []string `toml:"importers,omitempty"`
}

// loadConfig reads and parses Treasury.toml under base. A missing
// file is not an error: Open may be used to initialize a brand-new
// treasury directory.
func loadConfig(base string) (Config, error) {
	path := filepath.Join(base, configFileName)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("treasury: reading %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("treasury: parsing %q: %w", path, err)
	}
	return cfg, nil
}

// resolved fills in this Config's defaults relative to base.
func (c Config) resolved(base string) resolvedPaths {
	rp := resolvedPaths{
		artifacts: filepath.Join(base, defaultArtifactsDir),
		external:  filepath.Join(base, defaultExternalDir),
		temp:      os.TempDir(),
	}
	if c.Artifacts != "" {
		rp.artifacts = filepath.Join(base, c.Artifacts)
	}
	if c.External != "" {
		rp.external = filepath.Join(base, c.External)
	}
	if c.Temp != "" {
		rp.temp = filepath.Join(base, c.Temp)
	}
	return rp
}

type resolvedPaths struct {
	artifacts string
	external  string
	temp      string
}
