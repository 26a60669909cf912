package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/arp"
	"github.com/gogpu/wgpu/hal"
)

// ErrGPUTimeout is returned when a frame older than the in-flight limit did
// not complete in time.
var ErrGPUTimeout = errors.New("pipeline: timed out waiting for GPU")

// fenceTimeout bounds the wait for an old frame.
const fenceTimeout = 5 * time.Second

// inFlightFrame holds the command buffers of a submitted frame until the
// GPU has passed its last fence value.
type inFlightFrame struct {
	frame   uint64
	value   uint64
	buffers []hal.CommandBuffer
}

// submitter submits stage command buffers on one timeline fence and frees
// them once the GPU is done, keeping at most framesInFlight frames queued.
type submitter struct {
	device hal.Device
	queue  hal.Queue
	fence  hal.Fence

	value          uint64
	framesInFlight int

	current  []hal.CommandBuffer
	inFlight []inFlightFrame

	submissions uint64
}

func newSubmitter(device hal.Device, queue hal.Queue, framesInFlight int) (*submitter, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return &submitter{
		device:         device,
		queue:          queue,
		fence:          fence,
		framesInFlight: framesInFlight,
	}, nil
}

// begin creates a command encoder and starts recording.
func (s *submitter) begin(label string) (hal.CommandEncoder, error) {
	enc, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return enc, nil
}

// flush finishes enc and submits it. Later submissions on the queue observe
// everything it wrote.
func (s *submitter) flush(enc hal.CommandEncoder) error {
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	s.value++
	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, s.fence, s.value); err != nil {
		s.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("submit: %w", err)
	}
	s.current = append(s.current, cmdBuf)
	s.submissions++
	return nil
}

// endFrame retires the frame's submissions and waits for, then frees, any
// frame older than the in-flight limit.
func (s *submitter) endFrame(frame uint64) error {
	if len(s.current) > 0 {
		s.inFlight = append(s.inFlight, inFlightFrame{
			frame:   frame,
			value:   s.value,
			buffers: s.current,
		})
		s.current = nil
	}
	for len(s.inFlight) > s.framesInFlight {
		if err := s.retireOldest(); err != nil {
			return err
		}
	}
	return nil
}

// drain waits for every queued frame.
func (s *submitter) drain() error {
	for len(s.inFlight) > 0 {
		if err := s.retireOldest(); err != nil {
			return err
		}
	}
	return nil
}

func (s *submitter) retireOldest() error {
	f := s.inFlight[0]
	ok, err := s.device.Wait(s.fence, f.value, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for frame %d: %w", f.frame, err)
	}
	if !ok {
		return fmt.Errorf("%w: frame %d", ErrGPUTimeout, f.frame)
	}
	for _, cb := range f.buffers {
		s.device.FreeCommandBuffer(cb)
	}
	s.inFlight = s.inFlight[1:]
	return nil
}

// pending returns the number of frames queued on the GPU.
func (s *submitter) pending() int {
	return len(s.inFlight)
}

// destroy drains the queue and destroys the fence.
func (s *submitter) destroy() {
	if s.fence == nil {
		return
	}
	if len(s.current) > 0 {
		s.inFlight = append(s.inFlight, inFlightFrame{value: s.value, buffers: s.current})
		s.current = nil
	}
	if err := s.drain(); err != nil {
		arp.Logger().Warn("pipeline: drain on dispose failed", "err", err)
		// Buffers still referenced by the GPU are leaked rather than freed.
		s.inFlight = nil
	}
	s.device.DestroyFence(s.fence)
	s.fence = nil
}
