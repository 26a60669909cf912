package pipeline

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformBlock is a small uniform buffer with its own bind group.
type uniformBlock struct {
	buffer hal.Buffer
	layout hal.BindGroupLayout
	group  hal.BindGroup
	data   []byte
}

func newUniformBlock(device hal.Device, label string, binding uint32, size uint64) (*uniformBlock, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_uniform",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s uniform buffer: %w", label, err)
	}

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    binding,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		device.DestroyBuffer(buf)
		return nil, fmt.Errorf("create %s layout: %w", label, err)
	}

	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label + "_bind",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: binding, Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: size,
			}},
		},
	})
	if err != nil {
		device.DestroyBindGroupLayout(layout)
		device.DestroyBuffer(buf)
		return nil, fmt.Errorf("create %s bind group: %w", label, err)
	}

	return &uniformBlock{
		buffer: buf,
		layout: layout,
		group:  group,
		data:   make([]byte, size),
	}, nil
}

// write uploads u.data.
func (u *uniformBlock) write(queue hal.Queue) error {
	return queue.WriteBuffer(u.buffer, 0, u.data)
}

func (u *uniformBlock) destroy(device hal.Device) {
	if u == nil {
		return
	}
	if u.group != nil {
		device.DestroyBindGroup(u.group)
		u.group = nil
	}
	if u.layout != nil {
		device.DestroyBindGroupLayout(u.layout)
		u.layout = nil
	}
	if u.buffer != nil {
		device.DestroyBuffer(u.buffer)
		u.buffer = nil
	}
}
