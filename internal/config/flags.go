package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile   = flag.String("log-file", "", "Also write logs to this file")
	flagBackend   = flag.String("backend", "", "Meshing backend: software or hardware")
	flagAlgorithm = flag.String("algorithm", "", "Meshing algorithm: mc or mt")
	flagLevels    = flag.Int("levels", 0, "Number of LOD levels")
	flagSeed      = flag.Int64("seed", 0, "Density source seed")
	flagNoHybrid  = flag.Bool("no-hybrid", false, "Disable the cross-LOD hybrid generator")
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
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagBackend != "" {
		cfg.Meshing.Backend = *flagBackend
	}
	if *flagAlgorithm != "" {
		cfg.Meshing.Algorithm = *flagAlgorithm
	}
	if *flagLevels > 0 {
		cfg.Terrain.Levels = *flagLevels
		if cfg.Hybrid.CutLevel >= cfg.Terrain.Levels {
			cfg.Hybrid.Enabled = false
		}
	}
	if *flagSeed != 0 {
		cfg.Source.Seed = *flagSeed
	}
	if *flagNoHybrid {
		cfg.Hybrid.Enabled = false
	}
}
