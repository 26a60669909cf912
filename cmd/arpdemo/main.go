// Command arpdemo drives the camera pipeline headless for a number of frames
// and prints per-camera statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/arp"
	"github.com/gogpu/arp/internal/gpudevice"
	"github.com/gogpu/arp/lighting"
	"github.com/gogpu/arp/pipeline"
	"github.com/gogpu/arp/target"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func main() {
	var (
		frames      = flag.Int("frames", 60, "frames to render")
		width       = flag.Uint("width", 1280, "output width")
		height      = flag.Uint("height", 720, "output height")
		resizeAt    = flag.Int("resize-at", 0, "frame at which the output doubles in size (0 = never)")
		config      = flag.String("config", "", "TOML settings file")
		backend     = flag.String("backend", gpudevice.BackendNoop, "HAL backend (noop, vulkan)")
		verbose     = flag.Bool("verbose", false, "log every stage")
		printConfig = flag.Bool("print-config", false, "print the effective settings and exit")
	)
	flag.Parse()

	if *verbose {
		arp.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	settings := pipeline.DefaultSettings()
	if *config != "" {
		s, err := pipeline.LoadSettings(*config)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		settings = s
	}
	if *printConfig {
		data, err := settings.MarshalTOML()
		if err != nil {
			log.Fatalf("Failed to encode settings: %v", err)
		}
		if _, err := os.Stdout.Write(data); err != nil {
			log.Fatalf("Failed to write settings: %v", err)
		}
		return
	}

	dev, err := gpudevice.Open(*backend)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()
	log.Printf("Using %s adapter %q", *backend, dev.Name)

	cam := &outputCamera{name: "Main Camera", alloc: target.NewAllocator(dev.Device)}
	defer cam.release()
	if err := cam.resize(uint32(*width), uint32(*height)); err != nil {
		log.Fatalf("Failed to create camera output: %v", err)
	}

	var (
		vis   = &sceneVisibility{}
		sun   = &sunLight{}
		blit  = &passBlitter{}
		shade = &countingShading{}
	)
	p, err := pipeline.New(dev.Device, dev.Queue, pipeline.Collaborators{
		Visibility: vis,
		Shading:    shade,
		Blitter:    blit,
		Lights:     sun,
	}, settings)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Dispose()

	for i := 0; i < *frames; i++ {
		if *resizeAt > 0 && i == *resizeAt {
			if err := cam.resize(uint32(*width)*2, uint32(*height)*2); err != nil {
				log.Fatalf("Failed to resize camera output: %v", err)
			}
		}
		sun.angle = float32(i) * 0.05
		if err := p.Render(cam); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
	}

	for _, r := range p.Renderers() {
		st := r.Stats()
		rs := r.Ring().Stats()
		last := r.LastFrame()
		fmt.Printf("%s\n", r.Description())
		fmt.Printf("  frames:        %d\n", st.Frames)
		fmt.Printf("  submissions:   %d\n", st.Submissions)
		fmt.Printf("  in flight:     %d\n", st.InFlight)
		fmt.Printf("  cull failures: %d\n", st.CullFailures)
		fmt.Printf("  internal size: %dx%d\n", last.InternalWidth, last.InternalHeight)
		fmt.Printf("  targets:       %d live, %d reallocations\n", rs.Live, rs.Reallocations)
		fmt.Printf("  draws:         %d\n", shade.draws)
		fmt.Printf("  blits:         %d\n", blit.count)
		fmt.Printf("  main light:    %v\n", last.Light.Main().Radiance())
	}
}

// outputCamera renders into an offscreen color target it owns.
type outputCamera struct {
	name  string
	alloc *target.Allocator
	out   *target.Allocation
}

func (c *outputCamera) Name() string                    { return c.name }
func (c *outputCamera) ClearFlags() pipeline.ClearFlags { return pipeline.ClearSkybox }
func (c *outputCamera) BackgroundColor() gputypes.Color { return gputypes.Color{A: 1} }

func (c *outputCamera) OutputSize() (uint32, uint32) {
	if c.out == nil {
		return 0, 0
	}
	return c.out.Width, c.out.Height
}

func (c *outputCamera) OutputTarget() target.Surface {
	if c.out == nil {
		return target.Surface{}
	}
	return c.out.Surface()
}

func (c *outputCamera) resize(w, h uint32) error {
	out, err := c.alloc.Allocate(target.Descriptor{
		Name:        "camera_output",
		ColorFormat: gputypes.TextureFormatBGRA8Unorm,
		History:     1,
	}, w, h, c.name)
	if err != nil {
		return err
	}
	c.release()
	c.out = out
	return nil
}

func (c *outputCamera) release() {
	c.alloc.Release(c.out)
	c.out = nil
}

// visibleObjects is a fixed visible set.
type visibleObjects int

func (v visibleObjects) Empty() bool { return v == 0 }

type sceneVisibility struct{}

func (sceneVisibility) CullingParameters(cam pipeline.Camera) (pipeline.CullingParams, bool) {
	return cam.Name(), true
}

func (sceneVisibility) Cull(pipeline.CullingParams) pipeline.VisibleSet {
	return visibleObjects(128)
}

type countingShading struct {
	draws int
}

func (s *countingShading) DrawRenderers(_ hal.RenderPassEncoder, vis pipeline.VisibleSet, _ pipeline.DrawSettings) {
	if n, ok := vis.(visibleObjects); ok {
		s.draws += int(n)
	}
}

// sunLight is a directional light circling the scene.
type sunLight struct {
	angle float32
}

func (s *sunLight) UpdateLights(any) {}

func (s *sunLight) DominantLight() (lighting.DirectionalLight, bool) {
	dir := mgl32.Rotate3DX(s.angle).Mul3x1(mgl32.Vec3{0, 1, 0.3}).Normalize()
	return lighting.DirectionalLight{
		Direction: dir,
		Color:     mgl32.Vec3{1, 0.96, 0.9},
		Intensity: 1.5,
		Shadow:    lighting.ShadowParams{Strength: 1, DepthBias: 1, NormalBias: 1, NearPlane: 0.2},
	}, true
}

// passBlitter records a load/store render pass on the destination. A real
// host replaces it with a fullscreen copy shader.
type passBlitter struct {
	count int
}

func (b *passBlitter) Blit(enc hal.CommandEncoder, src, dst target.Surface) error {
	if !src.Valid() || !dst.Valid() {
		return fmt.Errorf("blit %s -> %s: invalid surface", src.Label, dst.Label)
	}
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "blit " + src.Label + " -> " + dst.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    dst.View,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	rp.End()
	b.count++
	return nil
}
