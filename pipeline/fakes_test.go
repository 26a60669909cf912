package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/arp"
	"github.com/gogpu/arp/lighting"
	"github.com/gogpu/arp/target"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop HAL device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// events is a shared, ordered record of what fakes observed.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	e.list = append(e.list, fmt.Sprintf(format, args...))
	e.mu.Unlock()
}

func (e *events) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func (e *events) reset() {
	e.mu.Lock()
	e.list = nil
	e.mu.Unlock()
}

// stageRecorder is a slog.Handler collecting "stage" attributes.
type stageRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (h *stageRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *stageRecorder) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "stage" {
			h.mu.Lock()
			h.stages = append(h.stages, a.Value.String())
			h.mu.Unlock()
			return false
		}
		return true
	})
	return nil
}

func (h *stageRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *stageRecorder) WithGroup(string) slog.Handler      { return h }

func (h *stageRecorder) get() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.stages...)
}

// recordStages routes the package logger into a stageRecorder for the test.
func recordStages(t *testing.T) *stageRecorder {
	t.Helper()
	rec := &stageRecorder{}
	arp.SetLogger(slog.New(rec))
	t.Cleanup(func() { arp.SetLogger(nil) })
	return rec
}

type fakeCamera struct {
	name   string
	w, h   uint32
	clear  ClearFlags
	bg     gputypes.Color
	output target.Surface
}

func (c *fakeCamera) Name() string                    { return c.name }
func (c *fakeCamera) OutputSize() (uint32, uint32)    { return c.w, c.h }
func (c *fakeCamera) ClearFlags() ClearFlags          { return c.clear }
func (c *fakeCamera) BackgroundColor() gputypes.Color { return c.bg }
func (c *fakeCamera) OutputTarget() target.Surface    { return c.output }

// newCamera returns a camera whose output is a real noop texture.
func newCamera(t *testing.T, device hal.Device, name string, w, h uint32) *fakeCamera {
	t.Helper()
	al := target.NewAllocator(device)
	out, err := al.Allocate(target.Descriptor{
		Name:        "camera_output",
		ColorFormat: gputypes.TextureFormatBGRA8Unorm,
		History:     1,
	}, w, h, name+"_output")
	if err != nil {
		t.Fatalf("allocate camera output: %v", err)
	}
	t.Cleanup(func() { al.Release(out) })
	return &fakeCamera{name: name, w: w, h: h, output: out.Surface()}
}

type fakeSet struct {
	id    int
	empty bool
}

func (s *fakeSet) Empty() bool { return s.empty }

type fakeVisibility struct {
	ev    *events
	fail  bool
	empty bool
	culls int
}

func (v *fakeVisibility) CullingParameters(cam Camera) (CullingParams, bool) {
	v.ev.add("params:%s", cam.Name())
	if v.fail {
		return nil, false
	}
	return cam.Name(), true
}

func (v *fakeVisibility) Cull(params CullingParams) VisibleSet {
	v.culls++
	v.ev.add("cull:%v", params)
	return &fakeSet{id: v.culls, empty: v.empty}
}

type drawCall struct {
	vis VisibleSet
	ds  DrawSettings
}

type fakeShading struct {
	ev    *events
	calls []drawCall
}

func (s *fakeShading) DrawRenderers(_ hal.RenderPassEncoder, vis VisibleSet, ds DrawSettings) {
	s.calls = append(s.calls, drawCall{vis: vis, ds: ds})
	s.ev.add("draw:%s", ds.Pass)
}

type blit struct {
	src, dst string
}

type fakeBlitter struct {
	ev    *events
	blits []blit
	err   error
}

func (b *fakeBlitter) Blit(_ hal.CommandEncoder, src, dst target.Surface) error {
	if b.err != nil {
		return b.err
	}
	b.blits = append(b.blits, blit{src: src.Label, dst: dst.Label})
	b.ev.add("blit:%s->%s", src.Label, dst.Label)
	return nil
}

type fakeLights struct {
	light   lighting.DirectionalLight
	ok      bool
	updates []any
}

func (l *fakeLights) UpdateLights(vis any) { l.updates = append(l.updates, vis) }

func (l *fakeLights) DominantLight() (lighting.DirectionalLight, bool) { return l.light, l.ok }

type fakeShadows struct {
	ev    *events
	calls int
	err   error
}

func (s *fakeShadows) RenderShadows(_ hal.CommandEncoder, frame *FrameContext) error {
	s.calls++
	s.ev.add("shadows:%d", frame.Frame)
	return s.err
}

type fakeSky struct {
	ev    *events
	calls int
}

func (s *fakeSky) DrawSky(_ hal.RenderPassEncoder, cam Camera) {
	s.calls++
	s.ev.add("sky:%s", cam.Name())
}

type fakeTransparent struct {
	ev    *events
	calls int
}

func (s *fakeTransparent) DrawTransparent(_ hal.RenderPassEncoder, frame *FrameContext) {
	s.calls++
	s.ev.add("transparent:%d", frame.Frame)
}

// rig bundles a noop device with recording collaborators.
type rig struct {
	device hal.Device
	queue  hal.Queue
	ev     *events

	vis         *fakeVisibility
	shading     *fakeShading
	blitter     *fakeBlitter
	lights      *fakeLights
	shadows     *fakeShadows
	sky         *fakeSky
	transparent *fakeTransparent
}

func newRig(t *testing.T) *rig {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	ev := &events{}
	return &rig{
		device:      device,
		queue:       queue,
		ev:          ev,
		vis:         &fakeVisibility{ev: ev},
		shading:     &fakeShading{ev: ev},
		blitter:     &fakeBlitter{ev: ev},
		lights:      &fakeLights{},
		shadows:     &fakeShadows{ev: ev},
		sky:         &fakeSky{ev: ev},
		transparent: &fakeTransparent{ev: ev},
	}
}

// required returns only the required collaborators.
func (r *rig) required() Collaborators {
	return Collaborators{
		Visibility: r.vis,
		Shading:    r.shading,
		Blitter:    r.blitter,
	}
}

// full returns every collaborator.
func (r *rig) full() Collaborators {
	c := r.required()
	c.Lights = r.lights
	c.Shadows = r.shadows
	c.Sky = r.sky
	c.Transparent = r.transparent
	return c
}

// renderer creates a camera renderer that is disposed with the test. It is
// registered after the rig so it is disposed before the device.
func (r *rig) renderer(t *testing.T, cam Camera, variant Variant, collab Collaborators, s Settings) *CameraRenderer {
	t.Helper()
	cr, err := NewCameraRenderer(cam, variant, r.device, r.queue, collab, s)
	if err != nil {
		t.Fatalf("NewCameraRenderer failed: %v", err)
	}
	t.Cleanup(cr.Dispose)
	return cr
}

func mustRender(t *testing.T, cr *CameraRenderer) {
	t.Helper()
	if err := cr.Render(); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
}

var errBoom = errors.New("boom")
