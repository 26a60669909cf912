// Package history keeps a rolling, per-name history of render targets.
//
// Consumers refer to logical names ("depth", "velocity") and a number of
// frames ago; the Ring maps those onto a fixed set of physical allocations
// per name. Two operations are deliberately separate:
//
//   - rotation: once per BeginFrame every slot advances its head by one, so
//     this frame writes into the allocation that held the oldest history.
//     No GPU work.
//   - reallocation: when the output size changes, or a slot has no storage
//     (new or re-registered), its allocations are destroyed and recreated.
//     This is the expensive, rare path.
//
// Indexing follows an arena layout: a slot's allocations never move, only
// the head index does. Get(name, k) returns allocations[(head-k) mod depth].
package history

import (
	"errors"
	"fmt"

	"github.com/gogpu/arp"
	"github.com/gogpu/arp/target"
	"github.com/gogpu/wgpu/hal"
)

// Ring errors.
var (
	// ErrUnknownResource is returned when a name was never registered.
	ErrUnknownResource = errors.New("history: unknown resource")

	// ErrHistoryOutOfRange is returned when framesAgo is negative or not
	// smaller than the resource's history depth.
	ErrHistoryOutOfRange = errors.New("history: frames ago out of range")

	// ErrNotAllocated is returned when a registered resource has no storage
	// yet (no BeginFrame since it was registered or since ReleaseAll).
	ErrNotAllocated = errors.New("history: resource not allocated")

	// ErrStaleHandle is returned when a handle from an earlier frame, or
	// one whose storage has been released, is resolved.
	ErrStaleHandle = errors.New("history: stale handle")

	// ErrInvalidSize is returned by BeginFrame for a zero output size.
	ErrInvalidSize = errors.New("history: invalid output size")
)

// slot is the ring of physical allocations behind one logical name.
type slot struct {
	desc   target.Descriptor
	allocs []*target.Allocation
	head   int
}

func (s *slot) allocated() bool {
	return len(s.allocs) == s.desc.History
}

// index returns the allocation index for framesAgo; the caller checks range.
func (s *slot) index(framesAgo int) int {
	d := s.desc.History
	return ((s.head-framesAgo)%d + d) % d
}

// Stats counts ring activity.
type Stats struct {
	// Frames is the number of BeginFrame calls that succeeded.
	Frames uint64

	// Allocated and Released count physical allocations over the ring's lifetime.
	Allocated int
	Released  int

	// Live is the number of physical allocations currently held.
	Live int

	// Reallocations counts BeginFrame calls that created any storage.
	Reallocations int
}

// Ring owns every physical allocation for a set of logical render targets.
//
// Ring is not safe for concurrent use; it is driven from the frame goroutine.
type Ring struct {
	alloc *target.Allocator
	slots map[string]*slot
	order []string

	frame  uint64
	width  uint32
	height uint32

	stats Stats
}

// NewRing creates an empty ring allocating on device.
func NewRing(device hal.Device) *Ring {
	return &Ring{
		alloc: target.NewAllocator(device),
		slots: make(map[string]*slot),
	}
}

// Register declares a logical resource. Registering an equal descriptor
// again is a no-op. Registering a changed descriptor destroys the existing
// storage for the name; new storage is created by the next BeginFrame.
func (r *Ring) Register(desc target.Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	if s, ok := r.slots[desc.Name]; ok {
		if s.desc == desc {
			return nil
		}
		arp.Logger().Debug("history: descriptor changed, slot invalidated",
			"name", desc.Name, "history", desc.History)
		r.releaseSlot(s)
		r.slots[desc.Name] = &slot{desc: desc}
		return nil
	}

	r.slots[desc.Name] = &slot{desc: desc}
	r.order = append(r.order, desc.Name)
	return nil
}

// Unregister destroys the storage of name and forgets it.
func (r *Ring) Unregister(name string) error {
	s, ok := r.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	r.releaseSlot(s)
	delete(r.slots, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Descriptor returns the registered descriptor for name.
func (r *Ring) Descriptor(name string) (target.Descriptor, bool) {
	s, ok := r.slots[name]
	if !ok {
		return target.Descriptor{}, false
	}
	return s.desc, true
}

// Names returns the registered names in registration order.
func (r *Ring) Names() []string {
	return append([]string(nil), r.order...)
}

// BeginFrame starts a new frame at the given output size.
//
// If the size differs from the previous frame, every slot is reallocated in
// this call. Otherwise only slots without storage are allocated. Then every
// slot's head advances by one. Handles from earlier frames become stale.
//
// If an allocation fails the error is returned, the frame does not advance
// and slots that failed are left without storage so the next call retries.
func (r *Ring) BeginFrame(outputWidth, outputHeight uint32) error {
	if outputWidth == 0 || outputHeight == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, outputWidth, outputHeight)
	}

	resized := outputWidth != r.width || outputHeight != r.height
	reallocated := false

	for _, name := range r.order {
		s := r.slots[name]
		if !resized && s.allocated() {
			continue
		}
		if err := r.allocateSlot(s, outputWidth, outputHeight); err != nil {
			// Force a full pass next frame so slots stay in sync.
			r.width, r.height = 0, 0
			return fmt.Errorf("begin frame: %w", err)
		}
		reallocated = true
	}

	if reallocated {
		r.stats.Reallocations++
		arp.Logger().Debug("history: reallocated render targets",
			"width", outputWidth, "height", outputHeight, "resized", resized)
	}
	r.width, r.height = outputWidth, outputHeight

	for _, name := range r.order {
		s := r.slots[name]
		s.head = (s.head + 1) % s.desc.History
	}

	r.frame++
	r.stats.Frames++
	return nil
}

// allocateSlot replaces the slot's storage with History fresh allocations.
// The head is placed so that the following rotation lands on index 0.
func (r *Ring) allocateSlot(s *slot, outputWidth, outputHeight uint32) error {
	r.releaseSlot(s)

	w, h := s.desc.Size.Resolve(outputWidth, outputHeight)
	allocs := make([]*target.Allocation, 0, s.desc.History)
	for i := 0; i < s.desc.History; i++ {
		a, err := r.alloc.Allocate(s.desc, w, h, fmt.Sprintf("%s_%d", s.desc.Name, i))
		if err != nil {
			for _, done := range allocs {
				r.alloc.Release(done)
				r.stats.Released++
				r.stats.Live--
			}
			return err
		}
		allocs = append(allocs, a)
		r.stats.Allocated++
		r.stats.Live++
	}

	s.allocs = allocs
	s.head = s.desc.History - 1

	arp.Logger().Debug("history: allocated slot",
		"name", s.desc.Name, "history", s.desc.History, "width", w, "height", h)
	return nil
}

func (r *Ring) releaseSlot(s *slot) {
	for _, a := range s.allocs {
		r.alloc.Release(a)
		r.stats.Released++
		r.stats.Live--
	}
	s.allocs = nil
	s.head = 0
}

// Get returns a handle to the allocation of name written framesAgo frames
// ago. framesAgo 0 is this frame's target; larger values are read-only
// views of finished earlier frames.
func (r *Ring) Get(name string, framesAgo int) (Handle, error) {
	s, ok := r.slots[name]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	if framesAgo < 0 || framesAgo >= s.desc.History {
		return Handle{}, fmt.Errorf("%w: %q: %d frames ago, history depth %d",
			ErrHistoryOutOfRange, name, framesAgo, s.desc.History)
	}
	if !s.allocated() {
		return Handle{}, fmt.Errorf("%w: %q", ErrNotAllocated, name)
	}
	return Handle{
		name:      name,
		framesAgo: framesAgo,
		frame:     r.frame,
		alloc:     s.allocs[s.index(framesAgo)],
	}, nil
}

// Resolve returns the allocation behind h after checking that h was issued
// in the current frame and its storage still exists.
func (r *Ring) Resolve(h Handle) (*target.Allocation, error) {
	if h.alloc == nil {
		return nil, fmt.Errorf("%w: zero handle", ErrStaleHandle)
	}
	if h.frame != r.frame || h.alloc.Released() {
		return nil, fmt.Errorf("%w: %q issued in frame %d, current frame %d",
			ErrStaleHandle, h.name, h.frame, r.frame)
	}
	return h.alloc, nil
}

// ReleaseAll destroys every physical allocation. Slots stay registered and
// are reallocated by the next BeginFrame.
func (r *Ring) ReleaseAll() {
	for _, name := range r.order {
		r.releaseSlot(r.slots[name])
	}
	r.width, r.height = 0, 0
}

// Frame returns the number of frames begun so far.
func (r *Ring) Frame() uint64 {
	return r.frame
}

// Size returns the output size of the current frame.
func (r *Ring) Size() (uint32, uint32) {
	return r.width, r.height
}

// Stats returns allocation counters.
func (r *Ring) Stats() Stats {
	return r.stats
}
