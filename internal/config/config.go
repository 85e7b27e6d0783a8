// Package config handles configuration loading for the 3mftool CLI.
package config

// Config holds all tool settings.
type Config struct {
	Import  ImportConfig  `yaml:"import"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// ImportConfig holds defaults applied when reading 3MF files.
type ImportConfig struct {
	Scale float64 `yaml:"scale"` // Extra scale on top of unit conversion
}

// ExportConfig holds defaults applied when writing 3MF files.
type ExportConfig struct {
	Scale             float64 `yaml:"scale"`
	Precision         int     `yaml:"precision"` // Decimal digits for coordinates
	ApplyDeformations bool    `yaml:"apply_deformations"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			Scale: 1,
		},
		Export: ExportConfig{
			Scale:             1,
			Precision:         4,
			ApplyDeformations: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
