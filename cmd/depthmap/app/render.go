package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sensekit/depthsuite/internal/sensor"
)

const (
	dpi            = 120.0
	fontSize       = 12.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 40
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	// Gradient bar thickness inside the top border
	legendBarHeight = 10

	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the depth map
type BorderConfig struct {
	Top    int // Space for the depth legend
	Left   int // Left padding
	Bottom int // Space for the information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for depth visualization
type RenderConfig struct {
	ColorTheme DepthTheme // Color scheme for depth values
	FontSize   float64    // Font size in points
	FontFile   string     // Optional TTF path, built-in font when empty

	// Border configuration
	BorderConfig BorderConfig
}

// DepthRenderer turns one depth frame plus its recording summary into an
// annotated image.
type DepthRenderer struct {
	colorMap *depthColorMapper
	config   RenderConfig
}

// NewDepthRenderer creates a new depth renderer with the given configuration
func NewDepthRenderer(config RenderConfig) (*DepthRenderer, error) {
	// Set defaults for zero values
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &DepthRenderer{config: config}, nil
}

// Render creates an annotated image of the given depth frame
func (r *DepthRenderer) Render(frame *sensor.DepthFrame, sum *DepthSummary) (*image.RGBA, error) {
	// Create image with space for borders
	fullWidth := frame.Width + r.config.BorderConfig.Left + r.config.BorderConfig.Right
	fullHeight := frame.Height + r.config.BorderConfig.Top + r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// Depth map area (1:1 pixel mapping)
	depthArea := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.BorderConfig.Left+frame.Width,
		r.config.BorderConfig.Top+frame.Height,
	)

	bounds := sum.Bounds()
	if r.colorMap == nil {
		r.colorMap = newDepthColorMapper(r.config.ColorTheme, bounds)
	} else {
		r.colorMap.updateBounds(bounds)
	}

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		FontFile: r.config.FontFile,
		Borders:  r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, r.colorMap, frame, sum, bounds); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderDepth(img, depthArea, frame)

	return img, nil
}

// renderDepth draws the depth samples using the color map
func (r *DepthRenderer) renderDepth(img *image.RGBA, area image.Rectangle, frame *sensor.DepthFrame) {
	for y := 0; y < frame.Height; y++ {
		imgY := area.Min.Y + y
		for x := 0; x < frame.Width; x++ {
			img.Set(area.Min.X+x, imgY, r.colorMap.colorFor(frame.At(x, y)))
		}
	}
}

// Internal annotator implementation
type annotatorConfig struct {
	FontSize float64
	FontFile string
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := loadFont(config.FontFile)
	if err != nil {
		return nil, err
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

// loadFont reads a TTF from disk or falls back to the bundled Go Regular.
func loadFont(path string) (*truetype.Font, error) {
	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading font file: %w", err)
		}
		data = b
	}

	parsedFont, err := freetype.ParseFont(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	return parsedFont, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, cm *depthColorMapper, frame *sensor.DepthFrame, sum *DepthSummary, bounds DepthBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawLegend(img, cm, frame, bounds); err != nil {
		return fmt.Errorf("drawing depth legend: %w", err)
	}
	if err := a.drawInfoBar(img, frame, sum, bounds); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

// drawLegend paints the color ramp across the top border with depth labels
// at nice step positions. Near depth sits on the left.
func (a *annotator) drawLegend(img *image.RGBA, cm *depthColorMapper, frame *sensor.DepthFrame, bounds DepthBounds) error {
	barTop := a.config.Borders.Top - tickMarkHeight - legendBarHeight
	barBottom := a.config.Borders.Top - tickMarkHeight

	// Gradient bar, 1:1 with the depth area width
	for x := 0; x < frame.Width; x++ {
		heat := 1 - float64(x)/float64(frame.Width-1)
		c := cm.rampColor(heat)
		for y := barTop; y < barBottom; y++ {
			img.Set(a.config.Borders.Left+x, y, c)
		}
	}

	depthStep := calculateNiceDepthStep(bounds.Far-bounds.Near, frame.Width)
	startDepth := math.Ceil(bounds.Near/depthStep) * depthStep

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := barTop - fontHeight/2

	for depth := startDepth; depth <= bounds.Far; depth += depthStep {
		xRatio := (depth - bounds.Near) / (bounds.Far - bounds.Near)
		x := a.config.Borders.Left + int(xRatio*float64(frame.Width))

		// Tick mark below the bar
		for y := barBottom; y < barBottom+tickMarkHeight; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatDepth(depth)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing depth label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, frame *sensor.DepthFrame, sum *DepthSummary, bounds DepthBounds) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Sensor: %s", sum.SensorID))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Frame %d of %d", frame.Number, sum.FrameCount))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%dx%d", frame.Width, frame.Height))
	sb.WriteString("; ")
	sb.WriteString(frame.Timestamp.Local().Format(defaultDatetimeFormat))
	sb.WriteString("; ")
	sb.WriteString(formatDepthRange(bounds.Near, bounds.Far))
	if sum.TotalBytes > 0 {
		sb.WriteString("; ")
		sb.WriteString(humanize.Bytes(uint64(sum.TotalBytes)))
	}

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Center text vertically in the bottom border
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// Helper functions

func calculateNiceDepthStep(range_ float64, width int) float64 {
	// Standard step sizes in millimeters
	steps := []float64{
		10,     // 1 cm
		25,     // 2.5 cm
		50,     // 5 cm
		100,    // 10 cm
		250,    // 25 cm
		500,    // 50 cm
		1_000,  // 1 m
		2_500,  // 2.5 m
		5_000,  // 5 m
		10_000, // 10 m
	}

	desiredSteps := float64(width) / pixelsPerLabel
	targetStep := range_ / desiredSteps

	// Find the closest standard step size
	for _, step := range steps {
		if step >= targetStep {
			// If this step would give us at least 2 points
			if range_/step >= 2 {
				return step
			}
			break
		}
	}

	// If we can't find a suitable step or would get too few points,
	// return half the range to show at least the center depth
	return range_ / 2
}

func formatDepth(mm float64) string {
	if mm >= 1000 {
		return fmt.Sprintf("%.2f m", mm/1000)
	}
	return fmt.Sprintf("%.0f mm", mm)
}

func formatDepthRange(near, far float64) string {
	return fmt.Sprintf("Depth: %s - %s", formatDepth(near), formatDepth(far))
}
