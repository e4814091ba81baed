// Package config handles viewer configuration loading and management.
package config

import "time"

// Config holds all viewer settings.
type Config struct {
	Scene     SceneConfig     `yaml:"scene" toml:"scene"`
	Animation AnimationConfig `yaml:"animation" toml:"animation"`
	Render    RenderConfig    `yaml:"render" toml:"render"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// SceneConfig holds model file settings.
type SceneConfig struct {
	Path        string   `yaml:"path" toml:"path"`               // Model to open at startup
	SearchPaths []string `yaml:"search_paths" toml:"search_paths"` // Roots for textures and relative paths
	Watch       bool     `yaml:"watch" toml:"watch"`             // Reload when the file changes
}

// AnimationConfig holds playback settings.
type AnimationConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	Index   int     `yaml:"index" toml:"index"`
	Speed   float64 `yaml:"speed" toml:"speed"` // Multiplier applied to wall time
	Loop    bool    `yaml:"loop" toml:"loop"`
}

// RenderConfig holds per-frame toggles.
type RenderConfig struct {
	Skinning  bool          `yaml:"skinning" toml:"skinning"`
	Materials bool          `yaml:"materials" toml:"materials"`
	Textures  bool          `yaml:"textures" toml:"textures"`
	FrameTime time.Duration `yaml:"frame_time" toml:"frame_time"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Scene: SceneConfig{
			SearchPaths: []string{"."},
		},
		Animation: AnimationConfig{
			Enabled: true,
			Index:   0,
			Speed:   1,
			Loop:    true,
		},
		Render: RenderConfig{
			Skinning:  true,
			Materials: true,
			Textures:  true,
			FrameTime: time.Second / 60,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
