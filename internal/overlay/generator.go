// Package overlay renders the telemetry widget frames that get burned
// into the video: a speed dial plus altitude, g-force and bearing
// readouts, one PNG per track sample.
package overlay

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"overlay-studio/internal/trajectory"
)

const (
	canvasSize = 340
	dialRadius = 95.0
	margin     = 15.0
)

// ProgressFunc reports frame rendering progress.
type ProgressFunc func(current, total int)

// Generator renders an overlay frame sequence into a temp directory.
type Generator struct {
	width, height int
	tempDir       string
	fontPath      string
	position      string
	progress      ProgressFunc
}

// NewGenerator creates a generator placing the widget at the given
// corner preset (top/bottom x left/right).
func NewGenerator(position string) *Generator {
	tempDir, err := os.MkdirTemp("", "overlay_frames_*")
	if err != nil {
		log.Printf("[Overlay] Failed to create temp dir, using cwd: %v", err)
		tempDir = "."
	}
	return &Generator{
		width:    canvasSize,
		height:   canvasSize,
		tempDir:  tempDir,
		fontPath: systemFontPath(),
		position: position,
	}
}

// SetProgressFunc registers the per-frame progress callback.
func (g *Generator) SetProgressFunc(fn ProgressFunc) {
	g.progress = fn
}

// Cleanup removes the rendered frames.
func (g *Generator) Cleanup() {
	if g.tempDir != "" && g.tempDir != "." {
		os.RemoveAll(g.tempDir)
	}
}

// GenerateSequence renders one frame per track sample and returns the
// frame paths in order.
func (g *Generator) GenerateSequence(points []trajectory.Point) ([]string, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no GPS points provided")
	}

	maxSpeed := 0.0
	for _, p := range points {
		if kmh := p.Velocity * 3.6; kmh > maxSpeed {
			maxSpeed = kmh
		}
	}
	// Round the dial scale up to the next 10 km/h, minimum 50.
	scale := math.Ceil(maxSpeed/10) * 10
	if scale < 50 {
		scale = 50
	}

	paths := make([]string, 0, len(points))
	for i, p := range points {
		if g.progress != nil {
			g.progress(i+1, len(points))
		}
		path := filepath.Join(g.tempDir, fmt.Sprintf("overlay_%06d.png", i))
		if err := g.renderFrame(p, scale, path); err != nil {
			g.Cleanup()
			return nil, fmt.Errorf("failed to render overlay frame %d: %w", i, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (g *Generator) renderFrame(p trajectory.Point, maxScale float64, outputPath string) error {
	dc := gg.NewContext(g.width, g.height)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	cx, cy := g.dialCenter()
	g.drawSpeedDial(dc, cx, cy, p, maxScale)
	g.drawReadouts(dc, cx, cy, p)

	return dc.SavePNG(outputPath)
}

func (g *Generator) dialCenter() (float64, float64) {
	switch g.position {
	case "top-left":
		return dialRadius + margin, dialRadius + margin
	case "top-right":
		return float64(g.width) - dialRadius - margin, dialRadius + margin
	case "bottom-right":
		return float64(g.width) - dialRadius - margin, float64(g.height) - dialRadius - margin
	default: // bottom-left
		return dialRadius + margin, float64(g.height) - dialRadius - margin
	}
}

// drawSpeedDial draws the dial background, a speed arc colored by the
// map's speed banding, and the numeric speed.
func (g *Generator) drawSpeedDial(dc *gg.Context, cx, cy float64, p trajectory.Point, maxScale float64) {
	kmh := p.Velocity * 3.6

	dc.SetRGBA(0.05, 0.05, 0.05, 0.6)
	dc.DrawCircle(cx, cy, dialRadius)
	dc.Fill()

	// Dial sweeps 270 degrees starting at the lower left.
	start := 0.75 * math.Pi
	sweep := 1.5 * math.Pi * math.Min(kmh/maxScale, 1)

	dc.SetRGBA(0.3, 0.3, 0.3, 0.8)
	dc.SetLineWidth(8)
	dc.DrawArc(cx, cy, dialRadius-12, start, start+1.5*math.Pi)
	dc.Stroke()

	r, gr, b := hexToRGB(trajectory.SpeedColor(p.Velocity))
	dc.SetRGBA(r, gr, b, 1)
	dc.SetLineWidth(8)
	dc.DrawArc(cx, cy, dialRadius-12, start, start+sweep)
	dc.Stroke()

	g.loadFont(dc, 34)
	dc.SetRGBA(1, 1, 1, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", kmh), cx, cy-6, 0.5, 0.5)
	g.loadFont(dc, 12)
	dc.SetRGBA(0.7, 0.7, 0.7, 1)
	dc.DrawStringAnchored("km/h", cx, cy+20, 0.5, 0.5)
}

// drawReadouts stacks the secondary telemetry values beside the dial.
func (g *Generator) drawReadouts(dc *gg.Context, cx, cy float64, p trajectory.Point) {
	const (
		spacing        = 35.0
		padding        = 10.0
		containerWidth = 95.0
	)
	totalHeight := spacing*2 + 25 + padding*2

	var x float64
	switch g.position {
	case "top-right", "bottom-right":
		x = 10
	default:
		x = cx + dialRadius + 20
		if x+containerWidth > float64(g.width) {
			x = 10
		}
	}
	y := cy - totalHeight/2

	dc.SetRGBA(0.1, 0.1, 0.1, 0.5)
	dc.DrawRoundedRectangle(x, y, containerWidth, totalHeight, 8)
	dc.Fill()

	sx := x + padding
	sy := y + padding
	g.drawReadout(dc, sx, sy, "ALTITUDE", fmt.Sprintf("%.0f m", p.Altitude), 0.4, 1, 0.6)
	sy += spacing
	g.drawReadout(dc, sx, sy, "G-FORCE", fmt.Sprintf("%.2f G", math.Abs(p.GForce)), 1, 0.4, 0.2)
	sy += spacing
	g.drawReadout(dc, sx, sy, "HEADING", fmt.Sprintf("%.0f°", p.Bearing), 1, 0.8, 0.2)
}

func (g *Generator) drawReadout(dc *gg.Context, x, y float64, label, value string, r, gr, b float64) {
	g.loadFont(dc, 9)
	dc.SetRGBA(0.6, 0.6, 0.6, 0.9)
	dc.DrawString(label, x, y)

	g.loadFont(dc, 16)
	dc.SetRGBA(r, gr, b, 1)
	dc.DrawString(value, x, y+15)
}

func (g *Generator) loadFont(dc *gg.Context, size float64) {
	if g.fontPath != "" {
		if err := dc.LoadFontFace(g.fontPath, size); err == nil {
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

func systemFontPath() string {
	switch runtime.GOOS {
	case "windows":
		return "C:/Windows/Fonts/arial.ttf"
	case "darwin":
		return "/System/Library/Fonts/Supplemental/Arial.ttf"
	default:
		for _, fp := range []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"/usr/share/fonts/truetype/ubuntu/Ubuntu-R.ttf",
		} {
			if _, err := os.Stat(fp); err == nil {
				return fp
			}
		}
	}
	return ""
}

func hexToRGB(hex string) (float64, float64, float64) {
	if len(hex) != 7 || hex[0] != '#' {
		return 1, 1, 1
	}
	var r, g, b int
	fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b)
	return float64(r) / 255, float64(g) / 255, float64(b) / 255
}
