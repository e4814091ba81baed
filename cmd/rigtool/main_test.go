package main

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/rigview/internal/config"
	"github.com/Faultbox/rigview/internal/engine/model"
)

func TestModelPath(t *testing.T) {
	cfg := config.Default()

	if _, err := modelPath(cfg, nil); !errors.Is(err, errNoModel) {
		t.Errorf("expected errNoModel without argument or scene.path, got %v", err)
	}

	cfg.Scene.Path = "robot.glb"
	if got, err := modelPath(cfg, nil); err != nil || got != "robot.glb" {
		t.Errorf("modelPath() = %q, %v; want configured scene path", got, err)
	}
	if got, _ := modelPath(cfg, []string{"other.gltf"}); got != "other.gltf" {
		t.Errorf("positional argument should win, got %q", got)
	}
}

func TestPlaybackTime(t *testing.T) {
	// four ticks at two ticks per second: two seconds long
	clip := &model.Animation{Duration: 4, TicksPerSecond: 2}

	tests := []struct {
		name    string
		loop    bool
		speed   float64
		anim    *model.Animation
		seconds float64
		want    float64
	}{
		{"inside", true, 1, clip, 0.5, 0.5},
		{"loop wraps", true, 1, clip, 2.5, 0.5},
		{"loop wraps negative", true, 1, clip, -0.5, 1.5},
		{"speed", true, 2, clip, 0.75, 1.5},
		{"hold at end", false, 1, clip, 5, 2},
		{"hold at start", false, 1, clip, -1, 0},
		{"no animation", false, 3, nil, 5, 15},
		{"empty clip", true, 1, &model.Animation{}, 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := config.AnimationConfig{Speed: tt.speed, Loop: tt.loop}
			got := playbackTime(ac, tt.anim, tt.seconds)
			if gomath.Abs(got-tt.want) > 1e-9 {
				t.Errorf("playbackTime(%v) = %v, want %v", tt.seconds, got, tt.want)
			}
		})
	}
}
