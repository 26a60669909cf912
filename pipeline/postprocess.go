package pipeline

import (
	"fmt"

	"github.com/gogpu/arp/target"
	"github.com/gogpu/wgpu/hal"
)

// CopyPostProcess is the default post-process chain: the temporal resolve
// copies the current raw color into the TAA target and on into HDR, and tone
// mapping copies HDR into the display target.
type CopyPostProcess struct {
	Blitter Blitter
}

// ResolveTemporal implements PostProcess.
func (p CopyPostProcess) ResolveTemporal(enc hal.CommandEncoder, in TemporalInputs) error {
	if err := p.Blitter.Blit(enc, in.Current, in.Output); err != nil {
		return fmt.Errorf("resolve to TAA: %w", err)
	}
	if err := p.Blitter.Blit(enc, in.Output, in.HDR); err != nil {
		return fmt.Errorf("TAA to HDR: %w", err)
	}
	return nil
}

// Tonemap implements PostProcess.
func (p CopyPostProcess) Tonemap(enc hal.CommandEncoder, src, dst target.Surface) error {
	return p.Blitter.Blit(enc, src, dst)
}
