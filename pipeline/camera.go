package pipeline

import (
	"github.com/gogpu/arp/target"
	"github.com/gogpu/gputypes"
)

// ClearFlags is how a camera wants its background cleared.
type ClearFlags int

// Camera clear modes.
const (
	ClearSkybox ClearFlags = iota
	ClearColor
	ClearDepth
	ClearNothing
)

// String returns the clear mode name.
func (f ClearFlags) String() string {
	switch f {
	case ClearSkybox:
		return "Skybox"
	case ClearColor:
		return "Color"
	case ClearDepth:
		return "Depth"
	case ClearNothing:
		return "Nothing"
	default:
		return "Unknown"
	}
}

// Camera is a view rendered by a CameraRenderer.
type Camera interface {
	// Name identifies the camera. Pipeline keeps one renderer per name.
	Name() string

	// OutputSize is the size of the camera's output target in pixels.
	OutputSize() (width, height uint32)

	ClearFlags() ClearFlags
	BackgroundColor() gputypes.Color

	// OutputTarget is the surface the final composite is copied to.
	OutputTarget() target.Surface
}

// Variant selects the camera renderer flavour.
type Variant int

const (
	// VariantGame renders a game camera. The debug view override applies.
	VariantGame Variant = iota

	// VariantSceneView renders an editor scene view. The debug view
	// override never applies.
	VariantSceneView
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantGame:
		return "Game"
	case VariantSceneView:
		return "SceneView"
	default:
		return "Unknown"
	}
}

// allowsDebugView reports whether the debug output override may replace the
// composite for this variant.
func (v Variant) allowsDebugView() bool {
	return v == VariantGame
}
