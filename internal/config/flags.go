package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagModel       = flag.String("model", "", "Model file to open")
	flagAnimation   = flag.Int("animation", -1, "Animation index")
	flagSpeed       = flag.Float64("speed", 0, "Playback speed multiplier")
	flagNoSkinning  = flag.Bool("no-skinning", false, "Draw the bind pose")
	flagNoTextures  = flag.Bool("no-textures", false, "Disable textures")
	flagNoMaterials = flag.Bool("no-materials", false, "Disable materials")
	flagWatch       = flag.Bool("watch", false, "Reload the model when it changes")
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
	if *flagModel != "" {
		cfg.Scene.Path = *flagModel
	}
	if *flagAnimation >= 0 {
		cfg.Animation.Index = *flagAnimation
	}
	if *flagSpeed > 0 {
		cfg.Animation.Speed = *flagSpeed
	}
	if *flagNoSkinning {
		cfg.Render.Skinning = false
	}
	if *flagNoTextures {
		cfg.Render.Textures = false
	}
	if *flagNoMaterials {
		cfg.Render.Materials = false
	}
	if *flagWatch {
		cfg.Scene.Watch = true
	}
}
