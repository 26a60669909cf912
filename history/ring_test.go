package history

import (
	"errors"
	"testing"

	"github.com/gogpu/arp/target"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop HAL device for testing.
func createNoopDevice(t *testing.T) (hal.Device, func()) {
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
	return openDev.Device, cleanup
}

func newTestRing(t *testing.T) *Ring {
	t.Helper()
	device, cleanup := createNoopDevice(t)
	r := NewRing(device)
	t.Cleanup(func() {
		r.ReleaseAll()
		cleanup()
	})
	return r
}

func depthDesc(history int) target.Descriptor {
	return target.Descriptor{
		Name:        "depth",
		Size:        target.FullSize,
		DepthFormat: gputypes.TextureFormatDepth32Float,
		Filter:      gputypes.FilterModeNearest,
		History:     history,
	}
}

func colorDesc(name string, history int) target.Descriptor {
	return target.Descriptor{
		Name:        name,
		Size:        target.FullSize,
		ColorFormat: gputypes.TextureFormatRGBA16Float,
		Filter:      gputypes.FilterModeLinear,
		History:     history,
	}
}

func mustRegister(t *testing.T, r *Ring, desc target.Descriptor) {
	t.Helper()
	if err := r.Register(desc); err != nil {
		t.Fatalf("Register(%q) failed: %v", desc.Name, err)
	}
}

func mustBegin(t *testing.T, r *Ring, w, h uint32) {
	t.Helper()
	if err := r.BeginFrame(w, h); err != nil {
		t.Fatalf("BeginFrame(%d, %d) failed: %v", w, h, err)
	}
}

func mustGetID(t *testing.T, r *Ring, name string, framesAgo int) uint64 {
	t.Helper()
	h, err := r.Get(name, framesAgo)
	if err != nil {
		t.Fatalf("Get(%q, %d) failed: %v", name, framesAgo, err)
	}
	return h.Allocation().ID
}

func slotIDs(r *Ring, name string) map[uint64]bool {
	ids := make(map[uint64]bool)
	for _, a := range r.slots[name].allocs {
		ids[a.ID] = true
	}
	return ids
}

func TestRingDepthTwoEndToEnd(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))

	mustBegin(t, r, 800, 600)
	frame1Current := mustGetID(t, r, "depth", 0)

	mustBegin(t, r, 800, 600)
	current := mustGetID(t, r, "depth", 0)
	previous := mustGetID(t, r, "depth", 1)

	if current == previous {
		t.Error("Get(depth, 0) and Get(depth, 1) should be distinct allocations")
	}
	if previous != frame1Current {
		t.Errorf("Get(depth, 1) on frame 2 = %d, want frame 1's current %d", previous, frame1Current)
	}
	if got := len(slotIDs(r, "depth")); got != 2 {
		t.Errorf("physical allocations = %d, want 2", got)
	}
	if st := r.Stats(); st.Allocated != 2 || st.Live != 2 {
		t.Errorf("Stats() = %+v, want Allocated=2 Live=2", st)
	}
}

func TestRingHistoryReadsPriorWrites(t *testing.T) {
	for _, depth := range []int{1, 2, 3, 4} {
		r := newTestRing(t)
		mustRegister(t, r, colorDesc("color", depth))

		var written []uint64
		for n := 0; n < 3*depth+2; n++ {
			mustBegin(t, r, 320, 240)
			written = append(written, mustGetID(t, r, "color", 0))

			if n+1 < depth {
				continue
			}
			for k := 0; k < depth; k++ {
				if got := mustGetID(t, r, "color", k); got != written[n-k] {
					t.Errorf("depth %d frame %d: Get(color, %d) = %d, want %d", depth, n, k, got, written[n-k])
				}
			}
			if _, err := r.Get("color", depth); !errors.Is(err, ErrHistoryOutOfRange) {
				t.Errorf("depth %d: Get(color, %d) = %v, want ErrHistoryOutOfRange", depth, depth, err)
			}
		}
	}
}

func TestRingNoReallocationAtSameSize(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))
	mustRegister(t, r, colorDesc("raw_color", 1))
	mustRegister(t, r, colorDesc("taa_color", 2))

	mustBegin(t, r, 1280, 720)
	first := r.Stats()

	for i := 0; i < 10; i++ {
		mustBegin(t, r, 1280, 720)
	}

	st := r.Stats()
	if st.Allocated != first.Allocated || st.Live != first.Live {
		t.Errorf("allocation count changed across same-size frames: first %+v, now %+v", first, st)
	}
	if st.Reallocations != 1 {
		t.Errorf("Reallocations = %d, want 1", st.Reallocations)
	}
	if st.Frames != 11 {
		t.Errorf("Frames = %d, want 11", st.Frames)
	}
}

func TestRingRotationIsPermutation(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, colorDesc("taa_color", 3))
	mustBegin(t, r, 64, 64)

	before := slotIDs(r, "taa_color")
	headBefore := r.slots["taa_color"].head

	mustBegin(t, r, 64, 64)

	after := slotIDs(r, "taa_color")
	if len(before) != len(after) {
		t.Fatalf("allocation set size changed: %d -> %d", len(before), len(after))
	}
	for id := range before {
		if !after[id] {
			t.Errorf("allocation %d disappeared after rotation", id)
		}
	}
	if got, want := r.slots["taa_color"].head, (headBefore+1)%3; got != want {
		t.Errorf("head = %d, want %d", got, want)
	}
}

func TestRingResizeReallocatesEverySlotOnce(t *testing.T) {
	r := newTestRing(t)
	descs := []target.Descriptor{
		depthDesc(2),
		colorDesc("velocity", 2),
		colorDesc("raw_color", 1),
		colorDesc("display", 1),
	}
	for _, d := range descs {
		mustRegister(t, r, d)
	}

	mustBegin(t, r, 800, 600)
	old := make(map[string]map[uint64]bool)
	for _, d := range descs {
		old[d.Name] = slotIDs(r, d.Name)
	}
	allocatedBefore := r.Stats().Allocated

	mustBegin(t, r, 1600, 900)

	st := r.Stats()
	if st.Reallocations != 2 {
		t.Errorf("Reallocations = %d, want 2", st.Reallocations)
	}
	if got, want := st.Allocated-allocatedBefore, 6; got != want {
		t.Errorf("allocations created by resize = %d, want %d", got, want)
	}
	if st.Live != 6 {
		t.Errorf("Live = %d, want 6", st.Live)
	}
	for _, d := range descs {
		for _, a := range r.slots[d.Name].allocs {
			if old[d.Name][a.ID] {
				t.Errorf("%s: allocation %d survived resize", d.Name, a.ID)
			}
			if a.Width != 1600 || a.Height != 900 {
				t.Errorf("%s: size = (%d, %d), want (1600, 900)", d.Name, a.Width, a.Height)
			}
		}
	}

	// Settling at the new size does not reallocate again.
	mustBegin(t, r, 1600, 900)
	if got := r.Stats().Reallocations; got != 2 {
		t.Errorf("Reallocations after settling = %d, want 2", got)
	}
}

func TestRingSizePolicy(t *testing.T) {
	r := newTestRing(t)
	half := colorDesc("half", 1)
	half.Size = target.Relative(0.5)
	mustRegister(t, r, half)
	mustBegin(t, r, 1920, 1080)

	h, err := r.Get("half", 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a := h.Allocation(); a.Width != 960 || a.Height != 540 {
		t.Errorf("size = (%d, %d), want (960, 540)", a.Width, a.Height)
	}
	if w, hgt := r.Size(); w != 1920 || hgt != 1080 {
		t.Errorf("Size() = (%d, %d), want (1920, 1080)", w, hgt)
	}
}

func TestRingReRegister(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))
	mustRegister(t, r, colorDesc("raw_color", 1))
	mustBegin(t, r, 800, 600)

	rawBefore := slotIDs(r, "raw_color")
	allocatedBefore := r.Stats().Allocated

	// Identical registration is a no-op.
	mustRegister(t, r, depthDesc(2))
	if _, err := r.Get("depth", 1); err != nil {
		t.Fatalf("Get after identical Register failed: %v", err)
	}

	// Changed descriptor drops the old storage immediately.
	mustRegister(t, r, depthDesc(3))
	if _, err := r.Get("depth", 0); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Get after changed Register = %v, want ErrNotAllocated", err)
	}
	if got := r.Stats().Live; got != 1 {
		t.Errorf("Live after changed Register = %d, want 1", got)
	}

	mustBegin(t, r, 800, 600)
	if got := r.Stats().Allocated - allocatedBefore; got != 3 {
		t.Errorf("allocations after re-register = %d, want 3", got)
	}
	if _, err := r.Get("depth", 2); err != nil {
		t.Errorf("Get(depth, 2) with new history 3 failed: %v", err)
	}
	for id := range slotIDs(r, "raw_color") {
		if !rawBefore[id] {
			t.Errorf("raw_color reallocated by an unrelated re-register")
		}
	}
	if names := r.Names(); len(names) != 2 || names[0] != "depth" || names[1] != "raw_color" {
		t.Errorf("Names() = %v, want [depth raw_color]", names)
	}
}

func TestRingRegisterInvalid(t *testing.T) {
	r := newTestRing(t)
	if err := r.Register(depthDesc(0)); !errors.Is(err, target.ErrInvalidDescriptor) {
		t.Errorf("Register with zero history = %v, want ErrInvalidDescriptor", err)
	}
	if _, ok := r.Descriptor("depth"); ok {
		t.Error("invalid descriptor should not be registered")
	}
}

func TestRingGetErrors(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))

	if _, err := r.Get("depth", 0); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Get before BeginFrame = %v, want ErrNotAllocated", err)
	}

	mustBegin(t, r, 16, 16)

	tests := []struct {
		name      string
		resource  string
		framesAgo int
		want      error
	}{
		{"unknown", "velocity", 0, ErrUnknownResource},
		{"negative", "depth", -1, ErrHistoryOutOfRange},
		{"equal to depth", "depth", 2, ErrHistoryOutOfRange},
		{"beyond depth", "depth", 5, ErrHistoryOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Get(tt.resource, tt.framesAgo); !errors.Is(err, tt.want) {
				t.Errorf("Get(%q, %d) = %v, want %v", tt.resource, tt.framesAgo, err, tt.want)
			}
		})
	}
}

func TestRingStaleHandle(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))
	mustBegin(t, r, 16, 16)

	h, err := r.Get("depth", 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a, err := r.Resolve(h); err != nil || a != h.Allocation() {
		t.Fatalf("Resolve in issuing frame = (%v, %v), want allocation", a, err)
	}
	if h.Frame() != r.Frame() || h.Name() != "depth" || h.FramesAgo() != 0 {
		t.Errorf("handle = {%q, %d, %d}, want {depth, 0, %d}", h.Name(), h.FramesAgo(), h.Frame(), r.Frame())
	}

	mustBegin(t, r, 16, 16)
	if _, err := r.Resolve(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Resolve of previous frame's handle = %v, want ErrStaleHandle", err)
	}

	h2, _ := r.Get("depth", 0)
	r.ReleaseAll()
	if _, err := r.Resolve(h2); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Resolve after ReleaseAll = %v, want ErrStaleHandle", err)
	}
	if _, err := r.Resolve(Handle{}); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Resolve of zero handle = %v, want ErrStaleHandle", err)
	}
}

func TestRingReleaseAll(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))
	mustRegister(t, r, colorDesc("display", 1))
	mustBegin(t, r, 100, 100)

	r.ReleaseAll()
	st := r.Stats()
	if st.Live != 0 || st.Released != 3 {
		t.Errorf("Stats() after ReleaseAll = %+v, want Live=0 Released=3", st)
	}
	if _, err := r.Get("display", 0); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Get after ReleaseAll = %v, want ErrNotAllocated", err)
	}

	// Same size as before still reallocates because the storage is gone.
	mustBegin(t, r, 100, 100)
	if got := r.Stats().Live; got != 3 {
		t.Errorf("Live after BeginFrame = %d, want 3", got)
	}

	r.ReleaseAll()
	r.ReleaseAll()
}

func TestRingBeginFrameZeroSize(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))
	if err := r.BeginFrame(0, 600); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("BeginFrame(0, 600) = %v, want ErrInvalidSize", err)
	}
	if r.Frame() != 0 {
		t.Errorf("Frame() = %d after failed BeginFrame, want 0", r.Frame())
	}
}

func TestRingUnregister(t *testing.T) {
	r := newTestRing(t)
	mustRegister(t, r, depthDesc(2))
	mustRegister(t, r, colorDesc("display", 1))
	mustBegin(t, r, 32, 32)

	if err := r.Unregister("depth"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if _, err := r.Get("depth", 0); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Get after Unregister = %v, want ErrUnknownResource", err)
	}
	if got := r.Stats().Live; got != 1 {
		t.Errorf("Live = %d, want 1", got)
	}
	if err := r.Unregister("depth"); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("second Unregister = %v, want ErrUnknownResource", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "display" {
		t.Errorf("Names() = %v, want [display]", names)
	}
}
