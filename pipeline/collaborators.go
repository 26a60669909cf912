package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/arp/lighting"
	"github.com/gogpu/arp/target"
	"github.com/gogpu/wgpu/hal"
)

// ErrMissingCollaborator is returned when a required collaborator is nil.
var ErrMissingCollaborator = errors.New("pipeline: missing collaborator")

// VisibleSet is the result of culling. Its contents are opaque to the
// pipeline; it is only handed back to collaborators.
type VisibleSet interface {
	// Empty reports whether nothing is visible.
	Empty() bool
}

// CullingParams is whatever a Visibility implementation needs to cull a
// camera's view. The pipeline never inspects it.
type CullingParams any

// Visibility determines what a camera sees.
type Visibility interface {
	// CullingParameters returns false when the camera cannot be culled this
	// frame, e.g. a degenerate projection.
	CullingParameters(cam Camera) (CullingParams, bool)
	Cull(params CullingParams) VisibleSet
}

// PassTag selects which shader pass a draw uses.
type PassTag string

// Shader passes drawn by the pipeline.
const (
	PassDepthStencil PassTag = "DepthStencil"
	PassForward      PassTag = "Forward"
)

// SortCriteria is a set of draw ordering hints.
type SortCriteria uint32

// Sort criteria.
const (
	SortOptimizeStateChanges SortCriteria = 1 << iota
	SortQuantizedFrontToBack
	SortBackToFront
	SortRenderQueue

	// SortCommonOpaque is the usual opaque ordering.
	SortCommonOpaque = SortRenderQueue | SortOptimizeStateChanges | SortQuantizedFrontToBack
)

// Has reports whether every flag in c is set.
func (s SortCriteria) Has(c SortCriteria) bool {
	return s&c == c
}

// LayerMask selects rendering layers.
type LayerMask uint32

// Rendering layers.
const (
	LayerDefault LayerMask = 1 << iota
	LayerStatic
	LayerTerrain
	LayerDynamic
	LayerCharacter

	LayerAll LayerMask = ^LayerMask(0)
)

// QueueRange is an inclusive range of render queue values.
type QueueRange struct {
	Lower, Upper int
}

// Render queue ranges.
var (
	QueueOpaque      = QueueRange{Lower: 0, Upper: 2500}
	QueueTransparent = QueueRange{Lower: 2501, Upper: 5000}
	QueueAll         = QueueRange{Lower: 0, Upper: 5000}
)

// Contains reports whether q is in the range.
func (r QueueRange) Contains(q int) bool {
	return q >= r.Lower && q <= r.Upper
}

// Filter selects which renderers a draw call includes.
type Filter struct {
	Queue  QueueRange
	Layers LayerMask
}

// DrawSettings describes one DrawRenderers call.
type DrawSettings struct {
	Pass   PassTag
	Sort   SortCriteria
	Filter Filter

	// PerObjectMotion requests per-object motion vectors.
	PerObjectMotion bool

	// Instancing enables automatic GPU instancing.
	Instancing bool
}

// Shading records draws for the visible set into an open render pass.
type Shading interface {
	DrawRenderers(rp hal.RenderPassEncoder, vis VisibleSet, ds DrawSettings)
}

// Shadows renders shadow maps. It may record nothing.
type Shadows interface {
	RenderShadows(enc hal.CommandEncoder, frame *FrameContext) error
}

// Sky fills background pixels of the raw color target.
type Sky interface {
	DrawSky(rp hal.RenderPassEncoder, cam Camera)
}

// Transparent records the transparent lighting pass.
type Transparent interface {
	DrawTransparent(rp hal.RenderPassEncoder, frame *FrameContext)
}

// TemporalInputs are the surfaces read and written by a temporal resolve.
type TemporalInputs struct {
	Current      target.Surface
	History      target.Surface
	Output       target.Surface
	Depth        target.Surface
	PrevDepth    target.Surface
	Velocity     target.Surface
	PrevVelocity target.Surface

	// HDR receives the resolved image for tone mapping.
	HDR target.Surface
}

// PostProcess runs the temporal resolve and tone mapping.
type PostProcess interface {
	ResolveTemporal(enc hal.CommandEncoder, in TemporalInputs) error
	Tonemap(enc hal.CommandEncoder, src, dst target.Surface) error
}

// Blitter copies a whole surface onto another, scaling when sizes differ.
type Blitter interface {
	Blit(enc hal.CommandEncoder, src, dst target.Surface) error
}

// Collaborators are the external systems a camera renderer drives.
// Visibility, Shading and Blitter are required.
type Collaborators struct {
	Visibility  Visibility
	Shading     Shading
	Blitter     Blitter
	Lights      lighting.Source
	Shadows     Shadows
	Sky         Sky
	Transparent Transparent

	// PostProcess defaults to CopyPostProcess over Blitter.
	PostProcess PostProcess
}

func (c Collaborators) validate() error {
	switch {
	case c.Visibility == nil:
		return fmt.Errorf("%w: visibility", ErrMissingCollaborator)
	case c.Shading == nil:
		return fmt.Errorf("%w: shading", ErrMissingCollaborator)
	case c.Blitter == nil:
		return fmt.Errorf("%w: blitter", ErrMissingCollaborator)
	}
	return nil
}

func (c Collaborators) withDefaults() Collaborators {
	if c.PostProcess == nil {
		c.PostProcess = CopyPostProcess{Blitter: c.Blitter}
	}
	return c
}
