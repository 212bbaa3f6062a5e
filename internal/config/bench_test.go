package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultBenchConfig(t *testing.T) {
	cfg := DefaultBenchConfig()

	if cfg.OpenMLURL == nil || *cfg.OpenMLURL != openml.DefaultBaseURL {
		t.Errorf("Expected OpenMLURL %q, got %v", openml.DefaultBaseURL, cfg.OpenMLURL)
	}
	if cfg.GetCacheDir() != DefaultCacheDir {
		t.Errorf("GetCacheDir() = %q, want %q", cfg.GetCacheDir(), DefaultCacheDir)
	}
	if cfg.GetOutputDir() != DefaultOutputDir {
		t.Errorf("GetOutputDir() = %q, want %q", cfg.GetOutputDir(), DefaultOutputDir)
	}
	if cfg.GetDatabase() != DefaultDatabase {
		t.Errorf("GetDatabase() = %q, want %q", cfg.GetDatabase(), DefaultDatabase)
	}
	if cmd := cfg.GetBackendCommand(); cmd != nil {
		t.Errorf("GetBackendCommand() = %v, want nil", cmd)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadBenchConfig(t *testing.T) {
	path := writeConfig(t, "bench.json", `{
  "openml_url": "https://test.openml.org/api/v1/json",
  "api_key": "abc",
  "cache_dir": "/tmp/pimp-cache",
  "backend_command": ["python3", "-m", "pimp"],
  "grids": {
    "svm": {
      "classifier__kernel": ["rbf", "sigmoid"],
      "classifier__C": [0.1, 1, 10]
    }
  }
}`)

	cfg, err := LoadBenchConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetOpenMLURL(); got != "https://test.openml.org/api/v1/json" {
		t.Errorf("GetOpenMLURL() = %q", got)
	}
	if got := cfg.GetAPIKey(); got != "abc" {
		t.Errorf("GetAPIKey() = %q, want abc", got)
	}
	if got := cfg.GetCacheDir(); got != "/tmp/pimp-cache" {
		t.Errorf("GetCacheDir() = %q", got)
	}
	// Omitted fields fall back to defaults.
	if got := cfg.GetOutputDir(); got != DefaultOutputDir {
		t.Errorf("GetOutputDir() = %q, want default", got)
	}
	if got := strings.Join(cfg.GetBackendCommand(), " "); got != "python3 -m pimp" {
		t.Errorf("GetBackendCommand() = %q", got)
	}

	reg := cfg.Registry()
	g, err := reg.GridFor("svm", nil, false)
	if err != nil {
		t.Fatalf("GridFor(svm): %v", err)
	}
	if keys := strings.Join(g.Keys(), ","); keys != "classifier__kernel,classifier__C" {
		t.Errorf("grid keys = %s, want declaration order", keys)
	}
	if _, err := reg.GridFor(paramgrid.RandomForest, nil, false); err != nil {
		t.Errorf("built-in family lost: %v", err)
	}
}

func TestLoadBenchConfig_APIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENML_APIKEY", "from-env")
	path := writeConfig(t, "bench.json", `{}`)

	cfg, err := LoadBenchConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetAPIKey(); got != "from-env" {
		t.Errorf("GetAPIKey() = %q, want from-env", got)
	}
}

func TestLoadBenchConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{name: "extension", file: "bench.yaml", body: `{}`, wantErr: ".json extension"},
		{name: "bad json", file: "bench.json", body: `{`, wantErr: "failed to parse"},
		{name: "bad url", file: "bench.json", body: `{"openml_url": "ftp://x"}`, wantErr: "openml_url"},
		{name: "empty backend arg", file: "bench.json", body: `{"backend_command": ["python3", " "]}`, wantErr: "backend_command[1]"},
		{name: "empty grid", file: "bench.json", body: `{"grids": {"svm": {}}}`, wantErr: "no parameters"},
		{name: "empty values", file: "bench.json", body: `{"grids": {"svm": {"C": []}}}`, wantErr: "no values"},
		{name: "duplicate key", file: "bench.json", body: `{"grids": {"svm": {"C": [1], "C": [2]}}}`, wantErr: "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadBenchConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadBenchConfig_Missing(t *testing.T) {
	if _, err := LoadBenchConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBenchConfig_TooLarge(t *testing.T) {
	body := `{"api_key": "` + strings.Repeat("x", 1024*1024) + `"}`
	path := writeConfig(t, "big.json", body)
	_, err := LoadBenchConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}
