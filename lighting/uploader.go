package lighting

import (
	"errors"
	"fmt"

	"github.com/gogpu/arp"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrNotInitialized is returned by Upload before Init succeeded.
var ErrNotInitialized = errors.New("lighting: uploader not initialized")

// Uploader owns the light uniform buffer and its bind group. It is created
// once per camera renderer and written once per frame.
type Uploader struct {
	device hal.Device
	queue  hal.Queue

	buffer    hal.Buffer
	layout    hal.BindGroupLayout
	bindGroup hal.BindGroup

	staging [BlockSize]byte
	last    Snapshot
	uploads uint64
}

// NewUploader returns an uploader for device and queue. Call Init before use.
func NewUploader(device hal.Device, queue hal.Queue) *Uploader {
	return &Uploader{device: device, queue: queue}
}

// Init creates the uniform buffer, its bind group layout and the bind group.
// Calling Init on an initialized uploader is a no-op.
func (u *Uploader) Init() error {
	if u.bindGroup != nil {
		return nil
	}
	if u.device == nil || u.queue == nil {
		return fmt.Errorf("lighting: init: nil device or queue")
	}

	buf, err := u.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "main_light_uniform",
		Size:  BlockSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("lighting: create uniform buffer: %w", err)
	}

	layout, err := u.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "main_light_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    MainLightBinding,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeUniform,
					MinBindingSize: BlockSize,
				},
			},
		},
	})
	if err != nil {
		u.device.DestroyBuffer(buf)
		return fmt.Errorf("lighting: create bind group layout: %w", err)
	}

	group, err := u.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "main_light_bind",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: MainLightBinding, Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: BlockSize,
			}},
		},
	})
	if err != nil {
		u.device.DestroyBindGroupLayout(layout)
		u.device.DestroyBuffer(buf)
		return fmt.Errorf("lighting: create bind group: %w", err)
	}

	u.buffer, u.layout, u.bindGroup = buf, layout, group
	return nil
}

// Upload asks src for the dominant directional light of vis and writes it
// into the uniform buffer. A nil source, or one reporting no light, uploads
// NoLight. The returned snapshot always holds exactly one light.
func (u *Uploader) Upload(vis any, src Source) (Snapshot, error) {
	if u.bindGroup == nil {
		return Snapshot{}, ErrNotInitialized
	}

	light := NoLight
	if src != nil {
		src.UpdateLights(vis)
		if l, ok := src.DominantLight(); ok {
			light = l
		} else {
			arp.Logger().Debug("lighting: no directional light visible")
		}
	}

	light.Encode(u.staging[:])
	if err := u.queue.WriteBuffer(u.buffer, 0, u.staging[:]); err != nil {
		return Snapshot{}, fmt.Errorf("write main light: %w", err)
	}

	u.last = Snapshot{Lights: [Capacity]DirectionalLight{light}}
	u.uploads++
	return u.last, nil
}

// Last returns the most recently uploaded snapshot.
func (u *Uploader) Last() Snapshot {
	return u.last
}

// Uploads returns the number of successful uploads.
func (u *Uploader) Uploads() uint64 {
	return u.uploads
}

// Buffer returns the uniform buffer, or nil before Init.
func (u *Uploader) Buffer() hal.Buffer {
	return u.buffer
}

// BindGroup returns the bind group for MainLightGroup, or nil before Init.
func (u *Uploader) BindGroup() hal.BindGroup {
	return u.bindGroup
}

// Layout returns the bind group layout, or nil before Init.
func (u *Uploader) Layout() hal.BindGroupLayout {
	return u.layout
}

// Destroy releases the GPU objects. The uploader can be re-initialized.
func (u *Uploader) Destroy() {
	if u.device == nil {
		return
	}
	if u.bindGroup != nil {
		u.device.DestroyBindGroup(u.bindGroup)
		u.bindGroup = nil
	}
	if u.layout != nil {
		u.device.DestroyBindGroupLayout(u.layout)
		u.layout = nil
	}
	if u.buffer != nil {
		u.device.DestroyBuffer(u.buffer)
		u.buffer = nil
	}
}
