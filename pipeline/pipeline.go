package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/arp"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// ErrNoHALProvider is returned by NewFromProvider when the provider does not
// expose its HAL device and queue.
var ErrNoHALProvider = errors.New("pipeline: provider does not expose HAL types")

// Pipeline renders any number of cameras on one device. It keeps one
// CameraRenderer per camera name and variant, created on first use, and
// shares one hook registry between them so a hook registered on the pipeline
// runs for every camera.
type Pipeline struct {
	device   hal.Device
	queue    hal.Queue
	collab   Collaborators
	settings Settings
	hooks    Hooks

	mu        sync.Mutex
	renderers map[rendererKey]*CameraRenderer
	order     []rendererKey
	disposed  bool
}

type rendererKey struct {
	name    string
	variant Variant
}

// New creates a pipeline on device and queue. The pipeline does not own
// them; Dispose releases only what the pipeline created.
func New(device hal.Device, queue hal.Queue, collab Collaborators, settings Settings) (*Pipeline, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		device:    device,
		queue:     queue,
		collab:    collab,
		settings:  settings,
		renderers: make(map[rendererKey]*CameraRenderer),
	}, nil
}

// NewFromProvider creates a pipeline sharing a host application's device.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, collab Collaborators, settings Settings) (*Pipeline, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	if provider == nil {
		return nil, ErrNoHALProvider
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	arp.Logger().Info("pipeline: using host device", "surfaceFormat", provider.SurfaceFormat())
	return New(device, queue, collab, settings)
}

// Hooks returns the hook registry shared by every camera renderer.
func (p *Pipeline) Hooks() *Hooks {
	return &p.hooks
}

// Settings returns the pipeline settings.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Render renders each camera as a game view, in order. Cameras with a zero
// output size are skipped. Rendering stops at the first error.
func (p *Pipeline) Render(cams ...Camera) error {
	return p.render(VariantGame, cams)
}

// RenderSceneView renders each camera as an editor scene view.
func (p *Pipeline) RenderSceneView(cams ...Camera) error {
	return p.render(VariantSceneView, cams)
}

func (p *Pipeline) render(variant Variant, cams []Camera) error {
	for _, cam := range cams {
		if cam == nil {
			return ErrNilCamera
		}
		if w, h := cam.OutputSize(); w == 0 || h == 0 {
			arp.Logger().Debug("pipeline: skipping camera with empty output", "camera", cam.Name())
			continue
		}
		r, err := p.Renderer(cam, variant)
		if err != nil {
			return err
		}
		if err := r.Render(); err != nil {
			return err
		}
	}
	return nil
}

// Renderer returns the renderer for cam and variant, creating it on first
// use. The game and scene view of one camera name have separate renderers.
// A cached renderer always renders the most recent camera passed for its
// name, so a host may recreate its camera objects every frame.
func (p *Pipeline) Renderer(cam Camera, variant Variant) (*CameraRenderer, error) {
	if cam == nil {
		return nil, ErrNilCamera
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, ErrDisposed
	}
	key := rendererKey{name: cam.Name(), variant: variant}
	if r, ok := p.renderers[key]; ok {
		r.cam = cam
		return r, nil
	}
	r, err := newCameraRenderer(cam, variant, p.device, p.queue, p.collab, p.settings, &p.hooks)
	if err != nil {
		return nil, err
	}
	p.renderers[key] = r
	p.order = append(p.order, key)
	return r, nil
}

// Renderers returns the camera renderers in creation order.
func (p *Pipeline) Renderers() []*CameraRenderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*CameraRenderer, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.renderers[key])
	}
	return out
}

// Remove disposes every renderer of the named camera, if any.
func (p *Pipeline) Remove(name string) {
	p.mu.Lock()
	var removed []*CameraRenderer
	kept := p.order[:0]
	for _, key := range p.order {
		if key.name == name {
			removed = append(removed, p.renderers[key])
			delete(p.renderers, key)
			continue
		}
		kept = append(kept, key)
	}
	p.order = kept
	p.mu.Unlock()
	for _, r := range removed {
		r.Dispose()
	}
}

// Dispose disposes every camera renderer. The device and queue are left to
// their owner.
func (p *Pipeline) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	renderers := make([]*CameraRenderer, 0, len(p.order))
	for _, key := range p.order {
		renderers = append(renderers, p.renderers[key])
	}
	p.renderers = nil
	p.order = nil
	p.mu.Unlock()

	for _, r := range renderers {
		r.Dispose()
	}
}
