package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// DepthTheme represents a predefined color scheme for depth visualization.
// Each theme is optimized for different visualization needs:
// - ClassicTheme: Traditional range display (blue to red)
// - GrayscaleTheme: Monochrome visualization
// - JungleTheme: Nature-inspired colors for better contrast
// - ThermalTheme: Heat map visualization
// - MarineTheme: Water-depth inspired colors
type DepthTheme string

const (
	ClassicTheme   DepthTheme = "classic"   // Blue to red transition
	GrayscaleTheme DepthTheme = "grayscale" // Black to white transition
	JungleTheme    DepthTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   DepthTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    DepthTheme = "marine"    // Deep blue to cyan to white

	defaultColorMapSize = 256
)

var validDepthThemes = map[DepthTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// noDepthColor marks pixels without a valid depth reading.
var noDepthColor = color.Black

// DepthBounds is the depth range mapped onto the color ramp, in millimeters.
type DepthBounds struct {
	Near float64
	Far  float64
}

// depthColorMapper provides efficient depth-to-color mapping through a
// pre-computed lookup table. Near readings map to the hot end of the ramp,
// so the closest surface stands out in every theme.
type depthColorMapper struct {
	colorMap    []color.Color
	theme       func(float64) color.Color
	themeName   DepthTheme
	size        int
	boundsNear  float64
	boundsRange float64
}

// newDepthColorMapper creates a mapper with the given theme and bounds.
func newDepthColorMapper(theme DepthTheme, bounds DepthBounds) *depthColorMapper {
	cm := &depthColorMapper{
		colorMap:  make([]color.Color, defaultColorMapSize),
		theme:     themeFunc(theme),
		themeName: theme,
		size:      defaultColorMapSize,
	}
	cm.updateBounds(bounds)
	return cm
}

// updateBounds replaces the depth bounds and rebuilds the color map.
func (cm *depthColorMapper) updateBounds(bounds DepthBounds) {
	if bounds.Far <= bounds.Near {
		bounds.Far = bounds.Near + 1
	}

	cm.boundsNear = bounds.Near
	cm.boundsRange = bounds.Far - bounds.Near

	for i := 0; i < cm.size; i++ {
		heat := float64(i) / float64(cm.size-1)
		cm.colorMap[i] = cm.theme(heat)
	}
}

// colorFor returns the color for one depth reading. Zero readings are holes.
func (cm *depthColorMapper) colorFor(depth uint16) color.Color {
	if depth == 0 {
		return noDepthColor
	}

	// Invert the normalized depth so near surfaces land on the hot end.
	heat := 1 - (float64(depth)-cm.boundsNear)/cm.boundsRange

	index := int(heat * float64(cm.size-1))
	if index < 0 {
		index = 0
	} else if index >= cm.size {
		index = cm.size - 1
	}
	return cm.colorMap[index]
}

// rampColor returns the color at a normalized ramp position, used for the
// legend gradient.
func (cm *depthColorMapper) rampColor(heat float64) color.Color {
	index := int(heat * float64(cm.size-1))
	if index < 0 {
		index = 0
	} else if index >= cm.size {
		index = cm.size - 1
	}
	return cm.colorMap[index]
}

// themeName is kept for logs and the info bar.
func (cm *depthColorMapper) name() DepthTheme {
	return cm.themeName
}

// Color theme implementations. Heat runs [0,1] with 1 being the near end.
func themeFunc(theme DepthTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(heat float64) color.Color {
			return colorful.Hsv(240-(heat*240), 0.9+(heat*0.1), math.Pow(heat, 0.7))
		}

	case GrayscaleTheme:
		return func(heat float64) color.Color {
			v := uint8(math.Pow(heat, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(heat float64) color.Color {
			return colorful.Hsv(120-(heat*60), 1.0, 0.3+(math.Pow(heat, 0.6)*0.7))
		}

	case MarineTheme:
		return func(heat float64) color.Color {
			return colorful.Hsv(240-(heat*60), 1.0-(heat*0.8), 0.3+(math.Pow(heat, 0.6)*0.7))
		}

	default: // ThermalTheme
		return func(heat float64) color.Color {
			if heat < 0.33 {
				return color.RGBA{
					R: uint8((heat * 3) * 255),
					A: 255,
				}
			}
			if heat < 0.66 {
				return color.RGBA{
					R: 255,
					G: uint8(((heat - 0.33) * 3) * 255),
					A: 255,
				}
			}
			return color.RGBA{
				R: 255,
				G: 255,
				B: uint8(math.Min((heat-0.66)*3, 1) * 255),
				A: 255,
			}
		}
	}
}
