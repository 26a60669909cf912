// Package lighting extracts the dominant directional light for a frame and
// uploads it as a fixed-layout uniform block.
//
// The block holds exactly one light. When the lighting source reports no
// visible directional light a zero-intensity light is written instead, so
// shading degrades to black rather than failing.
//
// Block layout (little-endian, 48 bytes):
//
//	offset  size  field
//	0       12    direction (vec3<f32>)
//	12      4     padding
//	16      12    color (vec3<f32>)
//	28      4     intensity (f32)
//	32      16    shadow params (strength, depth bias, normal bias, near plane)
package lighting

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Capacity is the number of lights the uniform block holds.
const Capacity = 1

// BlockSize is the size of the encoded light block in bytes.
const BlockSize = 48

// Bind slot read by the shading stage.
const (
	MainLightGroup   = 1
	MainLightBinding = 0
)

// ShadowParams configures shadow sampling for a light.
type ShadowParams struct {
	Strength   float32
	DepthBias  float32
	NormalBias float32
	NearPlane  float32
}

// DirectionalLight is a light at infinity. Direction points from the scene
// towards the light.
type DirectionalLight struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Shadow    ShadowParams
}

// NoLight is written when no directional light is visible.
var NoLight = DirectionalLight{
	Direction: mgl32.Vec3{0, 1, 0},
}

// Encode writes the light into dst using the block layout. dst must hold at
// least BlockSize bytes.
func (l DirectionalLight) Encode(dst []byte) {
	_ = dst[BlockSize-1]
	putVec3(dst[0:12], l.Direction)
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	putVec3(dst[16:28], l.Color)
	putFloat(dst[28:32], l.Intensity)
	putFloat(dst[32:36], l.Shadow.Strength)
	putFloat(dst[36:40], l.Shadow.DepthBias)
	putFloat(dst[40:44], l.Shadow.NormalBias)
	putFloat(dst[44:48], l.Shadow.NearPlane)
}

// Bytes returns the encoded block.
func (l DirectionalLight) Bytes() []byte {
	buf := make([]byte, BlockSize)
	l.Encode(buf)
	return buf
}

// Decode reads a light from the block layout. src must hold at least
// BlockSize bytes.
func Decode(src []byte) DirectionalLight {
	_ = src[BlockSize-1]
	return DirectionalLight{
		Direction: getVec3(src[0:12]),
		Color:     getVec3(src[16:28]),
		Intensity: getFloat(src[28:32]),
		Shadow: ShadowParams{
			Strength:   getFloat(src[32:36]),
			DepthBias:  getFloat(src[36:40]),
			NormalBias: getFloat(src[40:44]),
			NearPlane:  getFloat(src[44:48]),
		},
	}
}

// Radiance returns color scaled by intensity.
func (l DirectionalLight) Radiance() mgl32.Vec3 {
	return l.Color.Mul(l.Intensity)
}

// Snapshot is the light data uploaded for one frame.
type Snapshot struct {
	Lights [Capacity]DirectionalLight
}

// Main returns the dominant light.
func (s Snapshot) Main() DirectionalLight {
	return s.Lights[0]
}

// Len returns the number of entries, which is always Capacity.
func (s Snapshot) Len() int {
	return len(s.Lights)
}

// Source is the lighting collaborator. UpdateLights is called with the
// frame's visibility result before DominantLight is queried. DominantLight
// reports false when no directional light is visible; which light counts as
// dominant is the source's choice.
type Source interface {
	UpdateLights(vis any)
	DominantLight() (DirectionalLight, bool)
}

func putFloat(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}

func putVec3(dst []byte, v mgl32.Vec3) {
	putFloat(dst[0:4], v[0])
	putFloat(dst[4:8], v[1])
	putFloat(dst[8:12], v[2])
}

func getFloat(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}

func getVec3(src []byte) mgl32.Vec3 {
	return mgl32.Vec3{getFloat(src[0:4]), getFloat(src[4:8]), getFloat(src[8:12])}
}
