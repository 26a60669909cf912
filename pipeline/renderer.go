package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/arp"
	"github.com/gogpu/arp/history"
	"github.com/gogpu/arp/lighting"
	"github.com/gogpu/wgpu/hal"
)

// Renderer errors.
var (
	// ErrNilCamera is returned when a renderer is created without a camera.
	ErrNilCamera = errors.New("pipeline: camera is nil")

	// ErrNilDevice is returned when a renderer is created without a device
	// or queue.
	ErrNilDevice = errors.New("pipeline: device or queue is nil")

	// ErrNoOutputTarget is returned when a camera has no output surface to
	// composite into.
	ErrNoOutputTarget = errors.New("pipeline: camera has no output target")

	// ErrDisposed is returned by Render after Dispose.
	ErrDisposed = errors.New("pipeline: renderer disposed")
)

// Stage names, as logged with the "stage" attribute.
const (
	StageSetup       = "setup"
	StageCull        = "cull"
	StagePrepass     = "prepass"
	StageLights      = "lights"
	StageShadows     = "shadows"
	StageOpaque      = "opaque"
	StageSky         = "sky"
	StageTransparent = "transparent"
	StagePostProcess = "postprocess"
	StageComposite   = "composite"
	StageSubmit      = "submit"
	StageRelease     = "release"
)

// RendererStats counts renderer activity.
type RendererStats struct {
	Frames       uint64
	CullFailures uint64

	// Submissions is the number of command buffers submitted.
	Submissions uint64

	// InFlight is the number of frames not yet known to be complete.
	InFlight int
}

// CameraRenderer renders one camera. Each Render call runs the full pass
// sequence for one frame:
//
//	setup, BeforeCull, cull, BeforeFirstPass, prepass, lights, shadows,
//	opaque, sky, BeforeTransparent, transparent, BeforePostProcess,
//	postprocess, AfterLastPass, composite, submit, AfterSubmission, release
//
// Every stage that records GPU work submits it before the next stage starts.
//
// CameraRenderer is not safe for concurrent use. Hooks may be registered
// from any goroutine.
type CameraRenderer struct {
	cam      Camera
	variant  Variant
	device   hal.Device
	queue    hal.Queue
	collab   Collaborators
	settings Settings
	hooks    *Hooks
	desc     string

	ring   *history.Ring
	lights *lighting.Uploader
	frameU *uniformBlock
	sub    *submitter

	// visible survives across frames so a failed cull can reuse it.
	visible VisibleSet
	last    FrameContext
	stats   RendererStats

	disposed bool
}

// NewCameraRenderer creates a renderer for cam. It registers the camera's
// render targets and creates its uniform buffers; render targets are
// allocated by the first Render.
func NewCameraRenderer(cam Camera, variant Variant, device hal.Device, queue hal.Queue,
	collab Collaborators, settings Settings) (*CameraRenderer, error) {
	return newCameraRenderer(cam, variant, device, queue, collab, settings, &Hooks{})
}

func newCameraRenderer(cam Camera, variant Variant, device hal.Device, queue hal.Queue,
	collab Collaborators, settings Settings, hooks *Hooks) (*CameraRenderer, error) {
	if cam == nil {
		return nil, ErrNilCamera
	}
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}

	r := &CameraRenderer{
		cam:      cam,
		variant:  variant,
		device:   device,
		queue:    queue,
		collab:   collab.withDefaults(),
		settings: settings,
		hooks:    hooks,
		desc:     rendererDesc(variant, cam.Name()),
		ring:     history.NewRing(device),
		lights:   lighting.NewUploader(device, queue),
	}

	for _, d := range DefaultDescriptors(settings.RenderScale) {
		if err := r.ring.Register(d); err != nil {
			return nil, fmt.Errorf("%s: %w", r.desc, err)
		}
	}

	if err := r.lights.Init(); err != nil {
		return nil, fmt.Errorf("%s: %w", r.desc, err)
	}

	frameU, err := newUniformBlock(device, "frame", FrameBinding, FrameUniformSize)
	if err != nil {
		r.lights.Destroy()
		return nil, fmt.Errorf("%s: %w", r.desc, err)
	}
	r.frameU = frameU

	sub, err := newSubmitter(device, queue, settings.FramesInFlight)
	if err != nil {
		r.frameU.destroy(device)
		r.lights.Destroy()
		return nil, fmt.Errorf("%s: %w", r.desc, err)
	}
	r.sub = sub

	arp.Logger().Info("pipeline: camera renderer created",
		"renderer", r.desc, "scale", settings.RenderScale, "framesInFlight", settings.FramesInFlight)
	return r, nil
}

func rendererDesc(v Variant, name string) string {
	if v == VariantSceneView {
		return "Render Scene View (" + name + ")"
	}
	return "Render Game (" + name + ")"
}

// Render draws one frame of the camera.
//
// A culling failure is logged and handled per Settings.CullFailure; it never
// fails the frame. GPU errors abort the frame and are returned.
func (r *CameraRenderer) Render() (err error) {
	if r.disposed {
		return ErrDisposed
	}

	frame := &FrameContext{}
	frame.OutputWidth, frame.OutputHeight = r.cam.OutputSize()

	defer func() {
		if err != nil {
			// Keep whatever was submitted on the in-flight list.
			if retireErr := r.sub.endFrame(frame.Frame); retireErr != nil {
				arp.Logger().Warn("pipeline: retire after failed frame", "renderer", r.desc, "err", retireErr)
			}
			err = fmt.Errorf("%s: %w", r.desc, err)
		}
	}()

	r.stage(frame, StageSetup)
	if err := r.setup(frame); err != nil {
		return err
	}

	r.invoke(frame, BeforeCull)

	r.stage(frame, StageCull)
	r.cull(frame)

	r.invoke(frame, BeforeFirstPass)

	r.stage(frame, StagePrepass)
	if err := r.prepass(frame); err != nil {
		return err
	}

	r.stage(frame, StageLights)
	if err := r.setupLights(frame); err != nil {
		return err
	}

	r.stage(frame, StageShadows)
	if err := r.shadowPass(frame); err != nil {
		return err
	}

	r.stage(frame, StageOpaque)
	if err := r.opaquePass(frame); err != nil {
		return err
	}

	r.stage(frame, StageSky)
	if err := r.skyPass(frame); err != nil {
		return err
	}

	r.invoke(frame, BeforeTransparent)

	r.stage(frame, StageTransparent)
	if err := r.transparentPass(frame); err != nil {
		return err
	}

	r.invoke(frame, BeforePostProcess)

	r.stage(frame, StagePostProcess)
	if err := r.postProcess(frame); err != nil {
		return err
	}

	r.invoke(frame, AfterLastPass)

	r.stage(frame, StageComposite)
	enc, err := r.composite(frame)
	if err != nil {
		return err
	}

	r.stage(frame, StageSubmit)
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StageSubmit, err)
	}

	r.invoke(frame, AfterSubmission)

	r.stage(frame, StageRelease)
	return r.release(frame)
}

func (r *CameraRenderer) stage(frame *FrameContext, name string) {
	arp.Logger().Debug("pipeline: stage", "renderer", r.desc, "frame", frame.Frame, "stage", name)
}

func (r *CameraRenderer) invoke(frame *FrameContext, p HookPoint) {
	arp.Logger().Debug("pipeline: hook", "renderer", r.desc, "frame", frame.Frame, "stage", p.String())
	r.hooks.Invoke(p)
}

// setup advances the history ring, resolves the frame's targets and writes
// the screen size uniform.
func (r *CameraRenderer) setup(frame *FrameContext) error {
	if err := r.ring.BeginFrame(frame.OutputWidth, frame.OutputHeight); err != nil {
		return fmt.Errorf("%s: %w", StageSetup, err)
	}
	frame.Frame = r.ring.Frame()

	targets, err := resolveTargets(r.ring)
	if err != nil {
		return fmt.Errorf("%s: %w", StageSetup, err)
	}
	frame.Targets = targets

	raw := targets.RawColor.Allocation()
	frame.InternalWidth, frame.InternalHeight = raw.Width, raw.Height
	frame.ScreenSize = screenSize(raw.Width, raw.Height)

	encodeScreenSize(r.frameU.data, frame.ScreenSize)
	if err := r.frameU.write(r.queue); err != nil {
		return fmt.Errorf("%s: write frame uniform: %w", StageSetup, err)
	}
	return nil
}

func (r *CameraRenderer) cull(frame *FrameContext) {
	params, ok := r.collab.Visibility.CullingParameters(r.cam)
	if !ok {
		r.stats.CullFailures++
		arp.Logger().Warn("pipeline: culling failed",
			"renderer", r.desc, "frame", frame.Frame, "policy", r.settings.CullFailure.String())
		switch r.settings.CullFailure {
		case CullSkipDraws:
			frame.SkipDraws = true
		default:
			frame.Visible = r.visible
		}
		return
	}

	r.visible = r.collab.Visibility.Cull(params)
	frame.Visible = r.visible
	frame.CullSucceeded = true
}

func (r *CameraRenderer) drawRenderers(rp hal.RenderPassEncoder, frame *FrameContext, ds DrawSettings) {
	if frame.hasDraws() {
		r.collab.Shading.DrawRenderers(rp, frame.Visible, ds)
	}
}

func (r *CameraRenderer) prepass(frame *FrameContext) error {
	enc, err := r.sub.begin(r.desc + " " + StagePrepass)
	if err != nil {
		return fmt.Errorf("%s: %w", StagePrepass, err)
	}
	instancing := r.settings.EnableAutoInstancing

	rp := enc.BeginRenderPass(staticPrepassDescriptor(&frame.Targets))
	r.bindFrame(rp)
	r.drawRenderers(rp, frame, staticPrepassSettings(instancing))
	rp.End()

	rp = enc.BeginRenderPass(dynamicPrepassDescriptor(&frame.Targets))
	r.bindFrame(rp)
	r.drawRenderers(rp, frame, dynamicPrepassSettings(instancing))
	rp.End()

	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StagePrepass, err)
	}
	return nil
}

func (r *CameraRenderer) setupLights(frame *FrameContext) error {
	var vis any
	if frame.Visible != nil {
		vis = frame.Visible
	}
	snap, err := r.lights.Upload(vis, r.collab.Lights)
	if err != nil {
		return fmt.Errorf("%s: %w", StageLights, err)
	}
	frame.Light = snap
	return nil
}

func (r *CameraRenderer) shadowPass(frame *FrameContext) error {
	if !r.settings.EnableShadows || r.collab.Shadows == nil {
		return nil
	}
	enc, err := r.sub.begin(r.desc + " " + StageShadows)
	if err != nil {
		return fmt.Errorf("%s: %w", StageShadows, err)
	}
	if err := r.collab.Shadows.RenderShadows(enc, frame); err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("%s: %w", StageShadows, err)
	}
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StageShadows, err)
	}
	return nil
}

func (r *CameraRenderer) opaquePass(frame *FrameContext) error {
	enc, err := r.sub.begin(r.desc + " " + StageOpaque)
	if err != nil {
		return fmt.Errorf("%s: %w", StageOpaque, err)
	}
	rp := enc.BeginRenderPass(opaqueDescriptor(&frame.Targets))
	r.bindFrame(rp)
	r.drawRenderers(rp, frame, opaqueSettings(r.settings.EnableAutoInstancing))
	rp.End()
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StageOpaque, err)
	}
	return nil
}

func (r *CameraRenderer) skyPass(frame *FrameContext) error {
	if r.collab.Sky == nil || frame.SkipDraws {
		return nil
	}
	enc, err := r.sub.begin(r.desc + " " + StageSky)
	if err != nil {
		return fmt.Errorf("%s: %w", StageSky, err)
	}
	rp := enc.BeginRenderPass(forwardDescriptor("skybox", &frame.Targets))
	r.bindFrame(rp)
	r.collab.Sky.DrawSky(rp, r.cam)
	rp.End()
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StageSky, err)
	}
	return nil
}

func (r *CameraRenderer) transparentPass(frame *FrameContext) error {
	if r.collab.Transparent == nil || frame.SkipDraws {
		return nil
	}
	enc, err := r.sub.begin(r.desc + " " + StageTransparent)
	if err != nil {
		return fmt.Errorf("%s: %w", StageTransparent, err)
	}
	rp := enc.BeginRenderPass(forwardDescriptor("transparent_lighting", &frame.Targets))
	r.bindFrame(rp)
	r.collab.Transparent.DrawTransparent(rp, frame)
	rp.End()
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StageTransparent, err)
	}
	return nil
}

// postProcess resolves TAA and tone maps, each in its own submission.
func (r *CameraRenderer) postProcess(frame *FrameContext) error {
	t := &frame.Targets
	pp := r.collab.PostProcess

	enc, err := r.sub.begin(r.desc + " taa_resolve")
	if err != nil {
		return fmt.Errorf("%s: %w", StagePostProcess, err)
	}
	in := TemporalInputs{
		Current:      t.RawColor.Surface(),
		History:      t.PrevTAAColor.Surface(),
		Output:       t.TAAColor.Surface(),
		Depth:        t.Depth.Surface(),
		PrevDepth:    t.PrevDepth.Surface(),
		Velocity:     t.Velocity.Surface(),
		PrevVelocity: t.PrevVelocity.Surface(),
		HDR:          t.HDRColor.Surface(),
	}
	if err := pp.ResolveTemporal(enc, in); err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("%s: temporal resolve: %w", StagePostProcess, err)
	}
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StagePostProcess, err)
	}

	enc, err = r.sub.begin(r.desc + " tonemap")
	if err != nil {
		return fmt.Errorf("%s: %w", StagePostProcess, err)
	}
	if err := pp.Tonemap(enc, t.HDRColor.Surface(), t.Display.Surface()); err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("%s: tonemap: %w", StagePostProcess, err)
	}
	if err := r.sub.flush(enc); err != nil {
		return fmt.Errorf("%s: %w", StagePostProcess, err)
	}
	return nil
}

// composite records the copy to the camera output. The returned encoder is
// submitted by the submit stage.
func (r *CameraRenderer) composite(frame *FrameContext) (hal.CommandEncoder, error) {
	dst := r.cam.OutputTarget()
	if !dst.Valid() {
		return nil, fmt.Errorf("%s: %w", StageComposite, ErrNoOutputTarget)
	}

	enc, err := r.sub.begin(r.desc + " " + StageComposite)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageComposite, err)
	}
	if err := r.collab.Blitter.Blit(enc, frame.Targets.Display.Surface(), dst); err != nil {
		enc.DiscardEncoding()
		return nil, fmt.Errorf("%s: %w", StageComposite, err)
	}

	if r.settings.EnableDebugView && r.variant.allowsDebugView() {
		h, ok := frame.Targets.ByName(r.settings.DebugOutput.target())
		if !ok {
			enc.DiscardEncoding()
			return nil, fmt.Errorf("%s: %w: debug output %v has no target", StageComposite, ErrInvalidSettings, r.settings.DebugOutput)
		}
		if err := r.collab.Blitter.Blit(enc, h.Surface(), dst); err != nil {
			enc.DiscardEncoding()
			return nil, fmt.Errorf("%s: debug view: %w", StageComposite, err)
		}
	}
	return enc, nil
}

// release retires old frames and keeps a copy of the frame for inspection.
func (r *CameraRenderer) release(frame *FrameContext) error {
	if err := r.sub.endFrame(frame.Frame); err != nil {
		return fmt.Errorf("%s: %w", StageRelease, err)
	}
	r.stats.Frames++
	r.last = *frame
	return nil
}

func (r *CameraRenderer) bindFrame(rp hal.RenderPassEncoder) {
	rp.SetBindGroup(FrameGroup, r.frameU.group, nil)
	rp.SetBindGroup(lighting.MainLightGroup, r.lights.BindGroup(), nil)
}

// Hooks returns the renderer's hook registry.
func (r *CameraRenderer) Hooks() *Hooks {
	return r.hooks
}

// Ring returns the renderer's history ring.
func (r *CameraRenderer) Ring() *history.Ring {
	return r.ring
}

// Camera returns the rendered camera.
func (r *CameraRenderer) Camera() Camera {
	return r.cam
}

// Variant returns the renderer variant.
func (r *CameraRenderer) Variant() Variant {
	return r.variant
}

// Description returns the renderer label used in logs and GPU labels.
func (r *CameraRenderer) Description() string {
	return r.desc
}

// LastFrame returns a copy of the most recent completed frame context. Its
// handles belong to that frame and resolve as stale afterwards.
func (r *CameraRenderer) LastFrame() FrameContext {
	return r.last
}

// Stats returns renderer counters.
func (r *CameraRenderer) Stats() RendererStats {
	st := r.stats
	if r.sub != nil {
		st.Submissions = r.sub.submissions
		st.InFlight = r.sub.pending()
	}
	return st
}

// Dispose waits for queued frames and releases every GPU object the
// renderer owns. Dispose is idempotent.
func (r *CameraRenderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.sub.destroy()
	r.frameU.destroy(r.device)
	r.lights.Destroy()
	r.ring.ReleaseAll()
	r.visible = nil
	arp.Logger().Info("pipeline: camera renderer disposed", "renderer", r.desc, "frames", r.stats.Frames)
}
