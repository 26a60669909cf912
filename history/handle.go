package history

import "github.com/gogpu/arp/target"

// Handle is a borrowed reference to one allocation of a logical resource,
// valid for the frame it was obtained in. Use Ring.Resolve to check it
// before using it outside the code path that called Get.
type Handle struct {
	name      string
	framesAgo int
	frame     uint64
	alloc     *target.Allocation
}

// Name returns the logical resource name.
func (h Handle) Name() string { return h.name }

// FramesAgo returns the history offset the handle was requested with.
func (h Handle) FramesAgo() int { return h.framesAgo }

// Frame returns the ring frame the handle was issued in.
func (h Handle) Frame() uint64 { return h.frame }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.alloc == nil }

// Allocation returns the allocation without validation. The result must not
// be retained past the frame the handle was issued in.
func (h Handle) Allocation() *target.Allocation { return h.alloc }

// Surface returns the allocation's primary surface.
func (h Handle) Surface() target.Surface {
	if h.alloc == nil {
		return target.Surface{}
	}
	return h.alloc.Surface()
}
