package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("pipeline: invalid settings")

// DebugOutput selects the image the final composite shows when the debug
// view is enabled.
type DebugOutput int

// Debug outputs.
const (
	DebugDisplay DebugOutput = iota
	DebugDepth
	DebugNormal
	DebugMotionVector
)

var debugOutputNames = [...]string{"display", "depth", "normal", "motion_vector"}

// String returns the settings-file spelling of d.
func (d DebugOutput) String() string {
	if d < 0 || int(d) >= len(debugOutputNames) {
		return fmt.Sprintf("DebugOutput(%d)", int(d))
	}
	return debugOutputNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d DebugOutput) MarshalText() ([]byte, error) {
	if d < 0 || int(d) >= len(debugOutputNames) {
		return nil, fmt.Errorf("%w: debug output %d", ErrInvalidSettings, int(d))
	}
	return []byte(debugOutputNames[d]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DebugOutput) UnmarshalText(text []byte) error {
	for i, name := range debugOutputNames {
		if string(text) == name {
			*d = DebugOutput(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown debug output %q", ErrInvalidSettings, text)
}

// target returns the logical render target shown for d, or "" for an
// unknown output.
func (d DebugOutput) target() string {
	switch d {
	case DebugDisplay:
		return Display
	case DebugDepth:
		return Depth
	case DebugNormal:
		return GBuffer1
	case DebugMotionVector:
		return Velocity
	default:
		return ""
	}
}

// CullFailurePolicy decides what a frame draws when its camera cannot be
// culled.
type CullFailurePolicy int

const (
	// CullReuseStale draws the previous frame's visible set.
	CullReuseStale CullFailurePolicy = iota

	// CullSkipDraws records the frame's clears but no draws.
	CullSkipDraws
)

var cullPolicyNames = [...]string{"reuse_stale", "skip_draws"}

// String returns the settings-file spelling of p.
func (p CullFailurePolicy) String() string {
	if p < 0 || int(p) >= len(cullPolicyNames) {
		return fmt.Sprintf("CullFailurePolicy(%d)", int(p))
	}
	return cullPolicyNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p CullFailurePolicy) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(cullPolicyNames) {
		return nil, fmt.Errorf("%w: cull failure policy %d", ErrInvalidSettings, int(p))
	}
	return []byte(cullPolicyNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *CullFailurePolicy) UnmarshalText(text []byte) error {
	for i, name := range cullPolicyNames {
		if string(text) == name {
			*p = CullFailurePolicy(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown cull failure policy %q", ErrInvalidSettings, text)
}

// Settings configures every camera renderer of a pipeline.
type Settings struct {
	// RenderScale is the internal resolution relative to the output, in (0, 4].
	RenderScale float32 `toml:"render_scale"`

	EnableAutoInstancing bool `toml:"enable_auto_instancing"`

	// EnableDebugView replaces the composite of game cameras with
	// DebugOutput. Scene view cameras ignore it.
	EnableDebugView bool        `toml:"enable_debug_view"`
	DebugOutput     DebugOutput `toml:"debug_output"`

	CullFailure CullFailurePolicy `toml:"cull_failure"`

	// FramesInFlight is how many frames may be queued on the GPU before
	// the renderer waits on the oldest one, in [1, 8].
	FramesInFlight int `toml:"frames_in_flight"`

	EnableShadows bool `toml:"enable_shadows"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		RenderScale:          1,
		EnableAutoInstancing: true,
		DebugOutput:          DebugDisplay,
		CullFailure:          CullReuseStale,
		FramesInFlight:       2,
		EnableShadows:        true,
	}
}

// Validate reports the first out-of-range field.
func (s Settings) Validate() error {
	switch {
	case !(s.RenderScale > 0 && s.RenderScale <= 4):
		return fmt.Errorf("%w: render_scale %v not in (0, 4]", ErrInvalidSettings, s.RenderScale)
	case s.FramesInFlight < 1 || s.FramesInFlight > 8:
		return fmt.Errorf("%w: frames_in_flight %d not in [1, 8]", ErrInvalidSettings, s.FramesInFlight)
	case s.DebugOutput < 0 || int(s.DebugOutput) >= len(debugOutputNames):
		return fmt.Errorf("%w: debug_output %d", ErrInvalidSettings, int(s.DebugOutput))
	case s.CullFailure < 0 || int(s.CullFailure) >= len(cullPolicyNames):
		return fmt.Errorf("%w: cull_failure %d", ErrInvalidSettings, int(s.CullFailure))
	}
	return nil
}

// ParseSettings decodes TOML over DefaultSettings. Keys not present keep
// their default; unknown keys are an error.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads and parses a TOML settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// MarshalTOML encodes s as a TOML document.
func (s Settings) MarshalTOML() ([]byte, error) {
	return toml.Marshal(s)
}
