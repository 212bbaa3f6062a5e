// Package config loads the benchmark configuration file. Every field is
// optional; the Get* methods supply defaults and command-line flags override
// whatever the file sets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

// Defaults applied when neither the file nor a flag sets a value.
const (
	DefaultCacheDir  = "cache"
	DefaultOutputDir = "output"
	DefaultDatabase  = "pimp.db"
)

// BenchConfig is the root of the configuration file.
type BenchConfig struct {
	OpenMLURL *string `json:"openml_url,omitempty"`
	APIKey    *string `json:"api_key,omitempty"`

	CacheDir  *string `json:"cache_dir,omitempty"`
	OutputDir *string `json:"output_dir,omitempty"`
	Database  *string `json:"database,omitempty"`

	// BackendCommand is the argv prefix of the analysis tool, e.g.
	// ["python3", "-m", "pimp"].
	BackendCommand []string `json:"backend_command,omitempty"`

	// Grids adds or replaces model-family grids. Parameter order within a
	// grid is kept as written.
	Grids map[string]paramgrid.Grid `json:"grids,omitempty"`
}

func ptrString(v string) *string { return &v }

// DefaultBenchConfig returns a config with every scalar field set to its
// default.
func DefaultBenchConfig() *BenchConfig {
	return &BenchConfig{
		OpenMLURL: ptrString(openml.DefaultBaseURL),
		APIKey:    ptrString(""),
		CacheDir:  ptrString(DefaultCacheDir),
		OutputDir: ptrString(DefaultOutputDir),
		Database:  ptrString(DefaultDatabase),
	}
}

// LoadBenchConfig loads a BenchConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadBenchConfig(path string) (*BenchConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &BenchConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *BenchConfig) Validate() error {
	if c.OpenMLURL != nil && *c.OpenMLURL != "" {
		u := *c.OpenMLURL
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("openml_url must be an http(s) URL, got %q", u)
		}
	}

	for i, arg := range c.BackendCommand {
		if strings.TrimSpace(arg) == "" {
			return fmt.Errorf("backend_command[%d] is empty", i)
		}
	}

	for family, g := range c.Grids {
		if family == "" {
			return fmt.Errorf("grids: empty model family name")
		}
		if g.Len() == 0 {
			return fmt.Errorf("grids: family %q has no parameters", family)
		}
		for _, e := range g.Entries() {
			if len(e.Values) == 0 {
				return fmt.Errorf("grids: %s parameter %q has no values", family, e.Name)
			}
		}
	}

	return nil
}

// GetOpenMLURL returns the service base URL or the public endpoint.
func (c *BenchConfig) GetOpenMLURL() string {
	if c.OpenMLURL == nil || *c.OpenMLURL == "" {
		return openml.DefaultBaseURL
	}
	return *c.OpenMLURL
}

// GetAPIKey returns the API key, falling back to $OPENML_APIKEY.
func (c *BenchConfig) GetAPIKey() string {
	if c.APIKey == nil || *c.APIKey == "" {
		return os.Getenv("OPENML_APIKEY")
	}
	return *c.APIKey
}

// GetCacheDir returns cache_dir or the default.
func (c *BenchConfig) GetCacheDir() string {
	if c.CacheDir == nil || *c.CacheDir == "" {
		return DefaultCacheDir
	}
	return *c.CacheDir
}

// GetOutputDir returns output_dir or the default.
func (c *BenchConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return DefaultOutputDir
	}
	return *c.OutputDir
}

// GetDatabase returns the sqlite path or the default.
func (c *BenchConfig) GetDatabase() string {
	if c.Database == nil || *c.Database == "" {
		return DefaultDatabase
	}
	return *c.Database
}

// GetBackendCommand returns the configured argv prefix, or nil.
func (c *BenchConfig) GetBackendCommand() []string {
	return append([]string(nil), c.BackendCommand...)
}

// Registry returns the built-in grids extended by the configured ones.
func (c *BenchConfig) Registry() *paramgrid.Registry {
	reg := paramgrid.DefaultRegistry()
	if len(c.Grids) == 0 {
		return reg
	}
	return reg.With(c.Grids)
}
