package pipeline

import (
	"github.com/gogpu/arp/history"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// transparentBlack clears the opaque MRT. Later passes read alpha as a
// coverage mask, so the camera background never applies here.
var transparentBlack = gputypes.Color{R: 0, G: 0, B: 0, A: 0}

// staticLayers are drawn without per-object motion in the first prepass.
const staticLayers = LayerStatic | LayerTerrain

func colorView(h history.Handle) hal.TextureView {
	if a := h.Allocation(); a != nil {
		return a.ColorView
	}
	return nil
}

func depthView(h history.Handle) hal.TextureView {
	if a := h.Allocation(); a != nil {
		return a.DepthView
	}
	return nil
}

func colorAttachment(h history.Handle, load gputypes.LoadOp) hal.RenderPassColorAttachment {
	return hal.RenderPassColorAttachment{
		View:       colorView(h),
		LoadOp:     load,
		StoreOp:    gputypes.StoreOpStore,
		ClearValue: transparentBlack,
	}
}

func depthAttachment(h history.Handle, load gputypes.LoadOp) *hal.RenderPassDepthStencilAttachment {
	return &hal.RenderPassDepthStencilAttachment{
		View:            depthView(h),
		DepthLoadOp:     load,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: 1.0,
	}
}

// staticPrepassDescriptor clears velocity to zero and depth to one.
func staticPrepassDescriptor(t *FrameTargets) *hal.RenderPassDescriptor {
	return &hal.RenderPassDescriptor{
		Label:                  "static_depth_prepass",
		ColorAttachments:       []hal.RenderPassColorAttachment{colorAttachment(t.Velocity, gputypes.LoadOpClear)},
		DepthStencilAttachment: depthAttachment(t.Depth, gputypes.LoadOpClear),
	}
}

// dynamicPrepassDescriptor continues on the static prepass results.
func dynamicPrepassDescriptor(t *FrameTargets) *hal.RenderPassDescriptor {
	return &hal.RenderPassDescriptor{
		Label:                  "dynamic_depth_prepass",
		ColorAttachments:       []hal.RenderPassColorAttachment{colorAttachment(t.Velocity, gputypes.LoadOpLoad)},
		DepthStencilAttachment: depthAttachment(t.Depth, gputypes.LoadOpLoad),
	}
}

// opaqueDescriptor clears raw color and both gbuffers to transparent black
// and depth-tests against the prepass.
func opaqueDescriptor(t *FrameTargets) *hal.RenderPassDescriptor {
	return &hal.RenderPassDescriptor{
		Label: "opaque_lighting",
		ColorAttachments: []hal.RenderPassColorAttachment{
			colorAttachment(t.RawColor, gputypes.LoadOpClear),
			colorAttachment(t.GBuffer1, gputypes.LoadOpClear),
			colorAttachment(t.GBuffer2, gputypes.LoadOpClear),
		},
		DepthStencilAttachment: depthAttachment(t.Depth, gputypes.LoadOpLoad),
	}
}

// forwardDescriptor draws on top of raw color, testing against depth.
func forwardDescriptor(label string, t *FrameTargets) *hal.RenderPassDescriptor {
	return &hal.RenderPassDescriptor{
		Label:                  label,
		ColorAttachments:       []hal.RenderPassColorAttachment{colorAttachment(t.RawColor, gputypes.LoadOpLoad)},
		DepthStencilAttachment: depthAttachment(t.Depth, gputypes.LoadOpLoad),
	}
}

func staticPrepassSettings(instancing bool) DrawSettings {
	return DrawSettings{
		Pass:       PassDepthStencil,
		Sort:       SortCommonOpaque,
		Filter:     Filter{Queue: QueueOpaque, Layers: staticLayers},
		Instancing: instancing,
	}
}

func dynamicPrepassSettings(instancing bool) DrawSettings {
	return DrawSettings{
		Pass:            PassDepthStencil,
		Sort:            SortCommonOpaque,
		Filter:          Filter{Queue: QueueOpaque, Layers: LayerAll &^ staticLayers},
		PerObjectMotion: true,
		Instancing:      instancing,
	}
}

func opaqueSettings(instancing bool) DrawSettings {
	return DrawSettings{
		Pass:       PassForward,
		Sort:       SortOptimizeStateChanges,
		Filter:     Filter{Queue: QueueOpaque, Layers: LayerAll},
		Instancing: instancing,
	}
}
