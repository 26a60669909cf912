package pipeline

import (
	"github.com/gogpu/arp/target"
	"github.com/gogpu/gputypes"
)

// Logical render target names registered by every camera renderer.
const (
	RawColor = "raw_color"
	TAAColor = "taa_color"
	HDRColor = "hdr_color"
	Display  = "display"
	Depth    = "depth"
	Velocity = "velocity"
	GBuffer1 = "gbuffer_1"
	GBuffer2 = "gbuffer_2"
)

// History depths. Depth, velocity and TAA color keep one previous frame for
// reprojection; lowering them breaks temporal effects.
const (
	DepthHistory    = 2
	VelocityHistory = 2
	TAAHistory      = 2
)

// Render target formats. Velocity and encoded normals are signed two-channel
// data; the HAL has no RG16Snorm texture format on Vulkan, so they use
// RG16Float.
const (
	ColorFormat    = gputypes.TextureFormatRGBA16Float
	DepthFormat    = gputypes.TextureFormatDepth32Float
	VelocityFormat = gputypes.TextureFormatRG16Float
	GBuffer1Format = gputypes.TextureFormatRG16Float
	GBuffer2Format = gputypes.TextureFormatRGBA8Unorm
)

// DefaultDescriptors returns the render targets of a camera renderer, all
// sized at renderScale times the output size.
func DefaultDescriptors(renderScale float32) []target.Descriptor {
	size := target.Relative(renderScale)
	color := func(name string, history int) target.Descriptor {
		return target.Descriptor{
			Name:        name,
			Size:        size,
			ColorFormat: ColorFormat,
			Filter:      gputypes.FilterModeLinear,
			History:     history,
		}
	}
	return []target.Descriptor{
		color(RawColor, 1),
		color(TAAColor, TAAHistory),
		color(HDRColor, 1),
		color(Display, 1),
		{
			Name:        Depth,
			Size:        size,
			DepthFormat: DepthFormat,
			Filter:      gputypes.FilterModeNearest,
			History:     DepthHistory,
		},
		{
			Name:        Velocity,
			Size:        size,
			ColorFormat: VelocityFormat,
			Filter:      gputypes.FilterModeNearest,
			History:     VelocityHistory,
		},
		{
			Name:        GBuffer1,
			Size:        size,
			ColorFormat: GBuffer1Format,
			Filter:      gputypes.FilterModeNearest,
			History:     1,
		},
		{
			Name:        GBuffer2,
			Size:        size,
			ColorFormat: GBuffer2Format,
			Filter:      gputypes.FilterModeNearest,
			History:     1,
		},
	}
}
