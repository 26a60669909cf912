package pipeline

import "sync"

// HookPoint identifies a fixed position in the per-camera pass sequence where
// registered callbacks run.
type HookPoint int

const (
	// BeforeCull runs after setup, before visibility determination.
	BeforeCull HookPoint = iota

	// BeforeFirstPass runs after culling, before the depth prepass.
	BeforeFirstPass

	// BeforeTransparent runs after the sky pass.
	BeforeTransparent

	// BeforePostProcess runs after the transparent pass.
	BeforePostProcess

	// AfterLastPass runs after post-processing, before the final composite.
	AfterLastPass

	// AfterSubmission runs once the frame's commands have been submitted.
	AfterSubmission

	hookPointCount
)

// HookPoints lists every hook point in execution order.
var HookPoints = [...]HookPoint{
	BeforeCull,
	BeforeFirstPass,
	BeforeTransparent,
	BeforePostProcess,
	AfterLastPass,
	AfterSubmission,
}

// String returns the hook point name.
func (p HookPoint) String() string {
	switch p {
	case BeforeCull:
		return "BeforeCull"
	case BeforeFirstPass:
		return "BeforeFirstPass"
	case BeforeTransparent:
		return "BeforeTransparent"
	case BeforePostProcess:
		return "BeforePostProcess"
	case AfterLastPass:
		return "AfterLastPass"
	case AfterSubmission:
		return "AfterSubmission"
	default:
		return "Unknown"
	}
}

func (p HookPoint) valid() bool {
	return p >= 0 && p < hookPointCount
}

// Hooks is an ordered callback registry per hook point.
//
// Registration is safe from any goroutine. Invoke runs callbacks on the
// calling goroutine in registration order; callbacks registered while an
// Invoke is running are first called by the next Invoke.
type Hooks struct {
	mu        sync.Mutex
	callbacks [hookPointCount][]func()
}

// On appends fn to the callbacks of point. A nil fn or an unknown point is
// ignored.
func (h *Hooks) On(point HookPoint, fn func()) {
	if fn == nil || !point.valid() {
		return
	}
	h.mu.Lock()
	h.callbacks[point] = append(h.callbacks[point], fn)
	h.mu.Unlock()
}

// Invoke calls every callback registered for point.
func (h *Hooks) Invoke(point HookPoint) {
	if !point.valid() {
		return
	}
	h.mu.Lock()
	fns := h.callbacks[point]
	h.mu.Unlock()

	// fns is a snapshot: On only appends, so callbacks added from inside a
	// callback land past len(fns).
	for _, fn := range fns {
		fn()
	}
}

// Len returns the number of callbacks registered for point.
func (h *Hooks) Len(point HookPoint) int {
	if !point.valid() {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.callbacks[point])
}

// Clear removes every callback registered for point.
func (h *Hooks) Clear(point HookPoint) {
	if !point.valid() {
		return
	}
	h.mu.Lock()
	h.callbacks[point] = nil
	h.mu.Unlock()
}
