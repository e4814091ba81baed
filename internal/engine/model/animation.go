package model

import (
	"errors"
	"fmt"

	"github.com/Faultbox/rigview/pkg/math"
)

var ErrUnorderedKeys = errors.New("keyframe times are not in order")

// VectorKey is a position or scale keyframe.
type VectorKey struct {
	Time  float64
	Value math.Vec3
}

// QuatKey is a rotation keyframe.
type QuatKey struct {
	Time  float64
	Value math.Quat
}

// Channel animates the local transform of one node. Each track is sorted by
// time and may be empty.
type Channel struct {
	Node         string
	PositionKeys []VectorKey
	RotationKeys []QuatKey
	ScaleKeys    []VectorKey
}

// Animation is a set of channels sharing a timeline. Duration and key times
// are in ticks.
type Animation struct {
	Name           string
	Duration       float64
	TicksPerSecond float64
	Channels       []Channel
}

// Ticks converts caller time to ticks. A zero rate counts as one tick per unit.
func (a *Animation) Ticks(t float64) float64 {
	tps := a.TicksPerSecond
	if tps == 0 {
		tps = 1
	}
	return t * tps
}

// HasMotion reports whether any track has more than one key. Single-key
// tracks are static poses.
func (a *Animation) HasMotion() bool {
	for i := range a.Channels {
		c := &a.Channels[i]
		if len(c.PositionKeys) > 1 || len(c.RotationKeys) > 1 || len(c.ScaleKeys) > 1 {
			return true
		}
	}
	return false
}

// Validate checks that key times never decrease within a track.
func (a *Animation) Validate() error {
	for i := range a.Channels {
		c := &a.Channels[i]
		for k := 1; k < len(c.PositionKeys); k++ {
			if c.PositionKeys[k].Time < c.PositionKeys[k-1].Time {
				return fmt.Errorf("%w: animation %q channel %q position key %d", ErrUnorderedKeys, a.Name, c.Node, k)
			}
		}
		for k := 1; k < len(c.RotationKeys); k++ {
			if c.RotationKeys[k].Time < c.RotationKeys[k-1].Time {
				return fmt.Errorf("%w: animation %q channel %q rotation key %d", ErrUnorderedKeys, a.Name, c.Node, k)
			}
		}
		for k := 1; k < len(c.ScaleKeys); k++ {
			if c.ScaleKeys[k].Time < c.ScaleKeys[k-1].Time {
				return fmt.Errorf("%w: animation %q channel %q scale key %d", ErrUnorderedKeys, a.Name, c.Node, k)
			}
		}
	}
	return nil
}

// Apply samples every channel at caller time t and overwrites the local
// transform of its target node. It returns the number of channels whose
// target could not be resolved; those are skipped.
func (a *Animation) Apply(t float64, lookup NodeLookup) (missing int) {
	ticks := a.Ticks(t)
	for i := range a.Channels {
		c := &a.Channels[i]
		n, ok := lookup.Node(c.Node)
		if !ok {
			missing++
			continue
		}
		pos, rot, scale := c.Sample(ticks, a.Duration)
		n.SetPosition(pos)
		n.SetOrientation(rot)
		n.SetScale(scale)
	}
	return missing
}

// Sample evaluates all three tracks at tick time t.
func (c *Channel) Sample(t, duration float64) (position math.Vec3, rotation math.Quat, scale math.Vec3) {
	return SamplePosition(c.PositionKeys, t, duration),
		SampleRotation(c.RotationKeys, t, duration),
		SampleScale(c.ScaleKeys, t, duration)
}

// SamplePosition interpolates a position track. An empty track yields zero.
func SamplePosition(keys []VectorKey, t, duration float64) math.Vec3 {
	return sampleVector(keys, t, duration, math.Vec3{})
}

// SampleScale interpolates a scale track. An empty track yields (1, 1, 1).
func SampleScale(keys []VectorKey, t, duration float64) math.Vec3 {
	return sampleVector(keys, t, duration, math.Vec3One())
}

func sampleVector(keys []VectorKey, t, duration float64, empty math.Vec3) math.Vec3 {
	switch len(keys) {
	case 0:
		return empty
	case 1:
		return keys[0].Value
	}

	frame := findFrame(len(keys), t, func(i int) float64 { return keys[i].Time })
	next := (frame + 1) % len(keys)
	factor, ok := keyFactor(keys[frame].Time, keys[next].Time, t, duration)
	if !ok || factor == 0 {
		return keys[frame].Value
	}
	return keys[frame].Value.Lerp(keys[next].Value, factor)
}

// SampleRotation interpolates a rotation track with slerp. An empty track
// yields the identity.
func SampleRotation(keys []QuatKey, t, duration float64) math.Quat {
	switch len(keys) {
	case 0:
		return math.QuatIdentity()
	case 1:
		return keys[0].Value
	}

	frame := findFrame(len(keys), t, func(i int) float64 { return keys[i].Time })
	next := (frame + 1) % len(keys)
	factor, ok := keyFactor(keys[frame].Time, keys[next].Time, t, duration)
	if !ok || factor == 0 {
		return keys[frame].Value
	}
	return keys[frame].Value.Slerp(keys[next].Value, factor)
}

// findFrame returns the first key i for which t < time(i+1), or the last key.
func findFrame(n int, t float64, time func(int) float64) int {
	frame := 0
	for frame < n-1 {
		if t < time(frame+1) {
			break
		}
		frame++
	}
	return frame
}

// keyFactor returns the interpolation factor between the key at t0 and the
// next key at t1. Past the last key t1 wraps to the first key and the gap is
// extended by the duration. ok is false when the gap is not positive, in which
// case the key at t0 is used as is.
func keyFactor(t0, t1, t, duration float64) (factor float32, ok bool) {
	dt := t1 - t0
	if dt < 0 {
		dt += duration
	}
	if dt <= 0 {
		return 0, false
	}
	return float32((t - t0) / dt), true
}
