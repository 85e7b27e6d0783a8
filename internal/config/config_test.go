package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Import.Scale != 1 {
		t.Errorf("expected import scale 1, got %f", cfg.Import.Scale)
	}
	if cfg.Export.Scale != 1 {
		t.Errorf("expected export scale 1, got %f", cfg.Export.Scale)
	}
	if cfg.Export.Precision != 4 {
		t.Errorf("expected precision 4, got %d", cfg.Export.Precision)
	}
	if !cfg.Export.ApplyDeformations {
		t.Error("expected apply_deformations to be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
import:
  scale: 0.001

export:
  scale: 1000
  precision: 6
  apply_deformations: false

logging:
  level: "debug"
  log_file: "threemf.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Import.Scale != 0.001 {
		t.Errorf("expected import scale 0.001, got %f", cfg.Import.Scale)
	}
	if cfg.Export.Scale != 1000 {
		t.Errorf("expected export scale 1000, got %f", cfg.Export.Scale)
	}
	if cfg.Export.Precision != 6 {
		t.Errorf("expected precision 6, got %d", cfg.Export.Precision)
	}
	if cfg.Export.ApplyDeformations {
		t.Error("expected apply_deformations to be false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "threemf.log" {
		t.Errorf("expected log file 'threemf.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
export:
  precision: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)

	// No config file exists - should return empty
	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("export:\n  precision: 5\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "precision flag",
			setup: func() {
				*flagPrecision = 8
			},
			verify: func(cfg *Config) {
				if cfg.Export.Precision != 8 {
					t.Errorf("expected precision 8, got %d", cfg.Export.Precision)
				}
			},
			teardown: func() {
				*flagPrecision = 0
			},
		},
		{
			name: "scale flag applies to both directions",
			setup: func() {
				*flagScale = 2.5
			},
			verify: func(cfg *Config) {
				if cfg.Import.Scale != 2.5 {
					t.Errorf("expected import scale 2.5, got %f", cfg.Import.Scale)
				}
				if cfg.Export.Scale != 2.5 {
					t.Errorf("expected export scale 2.5, got %f", cfg.Export.Scale)
				}
			},
			teardown: func() {
				*flagScale = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
export:
  precision: 6
  scale: 10
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagPrecision = 9
	defer func() {
		*flagConfig = ""
		*flagPrecision = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Precision comes from the flag, scale from the file.
	if cfg.Export.Precision != 9 {
		t.Errorf("expected precision 9 from flag, got %d", cfg.Export.Precision)
	}
	if cfg.Export.Scale != 10 {
		t.Errorf("expected scale 10 from file, got %f", cfg.Export.Scale)
	}
}
