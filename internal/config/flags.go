package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagPrecision = flag.Int("precision", 0, "Decimal digits for exported coordinates")
	flagScale     = flag.Float64("scale", 0, "Scale factor for import and export")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagPrecision > 0 {
		cfg.Export.Precision = *flagPrecision
	}
	if *flagScale > 0 {
		cfg.Import.Scale = *flagScale
		cfg.Export.Scale = *flagScale
	}
}
