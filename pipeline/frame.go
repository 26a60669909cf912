package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/arp/history"
	"github.com/gogpu/arp/lighting"
)

// FrameUniformSize is the size of the per-camera frame uniform block: the
// internal resolution and its reciprocal as a vec4<f32>.
const FrameUniformSize = 16

// Bind slot of the frame uniform block.
const (
	FrameGroup   = 0
	FrameBinding = 0
)

// FrameTargets are the render targets of one frame, resolved from the
// history ring after it was advanced. They are borrowed for the frame only.
type FrameTargets struct {
	RawColor     history.Handle
	TAAColor     history.Handle
	PrevTAAColor history.Handle
	HDRColor     history.Handle
	Display      history.Handle
	Depth        history.Handle
	PrevDepth    history.Handle
	Velocity     history.Handle
	PrevVelocity history.Handle
	GBuffer1     history.Handle
	GBuffer2     history.Handle
}

// ByName returns the current-frame handle of a logical target.
func (t *FrameTargets) ByName(name string) (history.Handle, bool) {
	switch name {
	case RawColor:
		return t.RawColor, true
	case TAAColor:
		return t.TAAColor, true
	case HDRColor:
		return t.HDRColor, true
	case Display:
		return t.Display, true
	case Depth:
		return t.Depth, true
	case Velocity:
		return t.Velocity, true
	case GBuffer1:
		return t.GBuffer1, true
	case GBuffer2:
		return t.GBuffer2, true
	}
	return history.Handle{}, false
}

// resolveTargets fetches every handle the pass sequence uses.
func resolveTargets(ring *history.Ring) (FrameTargets, error) {
	var t FrameTargets
	var err error
	get := func(dst *history.Handle, name string, framesAgo int) {
		if err != nil {
			return
		}
		*dst, err = ring.Get(name, framesAgo)
		if err != nil {
			err = fmt.Errorf("resolve %s[%d]: %w", name, framesAgo, err)
		}
	}
	get(&t.RawColor, RawColor, 0)
	get(&t.TAAColor, TAAColor, 0)
	get(&t.PrevTAAColor, TAAColor, 1)
	get(&t.HDRColor, HDRColor, 0)
	get(&t.Display, Display, 0)
	get(&t.Depth, Depth, 0)
	get(&t.PrevDepth, Depth, 1)
	get(&t.Velocity, Velocity, 0)
	get(&t.PrevVelocity, Velocity, 1)
	get(&t.GBuffer1, GBuffer1, 0)
	get(&t.GBuffer2, GBuffer2, 0)
	return t, err
}

// FrameContext is the state of one camera's frame. It is created at the
// start of Render and dropped at its end; nothing in it outlives the frame.
type FrameContext struct {
	// Frame is the history ring frame number.
	Frame uint64

	OutputWidth, OutputHeight     uint32
	InternalWidth, InternalHeight uint32

	// ScreenSize is (w, h, 1/w, 1/h) of the internal resolution.
	ScreenSize mgl32.Vec4

	// Visible is the set drawn this frame. After a culling failure with
	// CullReuseStale it is the previous frame's set.
	Visible       VisibleSet
	CullSucceeded bool

	// SkipDraws is set when draw collaborators are not called this frame.
	SkipDraws bool

	Light   lighting.Snapshot
	Targets FrameTargets
}

// hasDraws reports whether draw collaborators should be called.
func (f *FrameContext) hasDraws() bool {
	return !f.SkipDraws && f.Visible != nil && !f.Visible.Empty()
}

// screenSize returns (w, h, 1/w, 1/h).
func screenSize(w, h uint32) mgl32.Vec4 {
	fw, fh := float32(w), float32(h)
	return mgl32.Vec4{fw, fh, 1 / fw, 1 / fh}
}

// encodeScreenSize writes v into a FrameUniformSize block.
func encodeScreenSize(dst []byte, v mgl32.Vec4) {
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v[i]))
	}
}
