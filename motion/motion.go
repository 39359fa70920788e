// Package motion derives the camera paths behind the pipeline's visual
// effects and renders them as ffmpeg filter expressions: a Ken-Burns
// style moving crop for still images, a capped zoom-in for the title
// card, and the letterbox padding applied to the final program.
package motion

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

// Point is one stop of a crop path. PixelPerFrame is the pan speed used
// to reach the next stop.
type Point struct {
	X, Y          float64
	PixelPerFrame float64
}

// Generator derives per-clip camera paths. The pseudo-random start
// angle makes every clip pan from a different direction.
type Generator struct {
	cfg *config.Config

	// guards rand, which concurrent clip jobs share
	mu   sync.Mutex
	rand *rand.Rand
}

func NewGenerator(cfg *config.Config) *Generator {
	return &Generator{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSeededGenerator pins the random source, for reproducible paths.
func NewSeededGenerator(cfg *config.Config, seed int64) *Generator {
	return &Generator{cfg: cfg, rand: rand.New(rand.NewSource(seed))}
}

// CropPath picks the two-point pan for a clip: a start point on a circle
// around the scaled canvas center, clamped per axis into the valid crop
// range, and the center itself as the end point. The crop therefore
// always converges inward. When the clip is no longer than the
// transition overlap the pixel budget collapses and the path is static.
func (g *Generator) CropPath(duration float64, screen types.Size) (Point, Point) {
	v := g.cfg.Video
	scaledW := int(float64(screen.Width) * v.ScaleFactor)
	scaledH := int(float64(screen.Height) * v.ScaleFactor)

	centerX := float64(scaledW)/2 - float64(screen.Width)/2
	centerY := float64(scaledH)/2 - float64(screen.Height)/2
	maxCropX := float64(scaledW - screen.Width)
	maxCropY := float64(scaledH - screen.Height)

	totalPixels := v.PixelPerSecond * (duration - v.TransitionDuration)
	if totalPixels < 0 {
		totalPixels = 0
	}
	pixelPerFrame := v.PixelPerSecond / float64(v.Framerate)

	g.mu.Lock()
	rad := g.rand.Float64() * 2 * math.Pi
	g.mu.Unlock()
	start := Point{
		X:             clamp(centerX+math.Cos(rad)*totalPixels, 0, maxCropX),
		Y:             clamp(centerY+math.Sin(rad)*totalPixels, 0, maxCropY),
		PixelPerFrame: pixelPerFrame,
	}
	end := Point{X: centerX, Y: centerY, PixelPerFrame: pixelPerFrame}
	return start, end
}

// MovingCropFilter builds the scale+crop filter that pans a window of
// screen size across the scaled source image along the clip's path.
func (g *Generator) MovingCropFilter(duration float64, screen types.Size, image types.Size) string {
	start, end := g.CropPath(duration, screen)
	scaledW := int(float64(image.Width) * g.cfg.Video.ScaleFactor)
	scaledH := int(float64(image.Height) * g.cfg.Video.ScaleFactor)
	x, y := cropPathExpr([]Point{start, end}, 0)
	return fmt.Sprintf("scale=%dx%d, crop='%d:%d:%s:%s'",
		scaledW, scaledH, screen.Width, screen.Height, x, y)
}

// cropPathExpr turns a point list into frame-indexed x/y expressions.
// Each leg advances linearly for the number of frames implied by its
// distance and speed, then hands over to the next leg; the final leg
// holds its position. The expression is evaluated by the crop filter
// per output frame.
func cropPathExpr(points []Point, startFrame int) (string, string) {
	if len(points) == 1 {
		return ff(points[0].X), ff(points[0].Y)
	}

	start, end := points[0], points[1]
	distance := math.Hypot(end.X-start.X, end.Y-start.Y)
	if distance == 0 {
		return cropPathExpr(points[1:], startFrame)
	}
	frames := int(math.Ceil(distance / start.PixelPerFrame))
	stepX := (end.X - start.X) / distance * start.PixelPerFrame
	stepY := (end.Y - start.Y) / distance * start.PixelPerFrame

	nextX, nextY := cropPathExpr(points[1:], startFrame+frames)

	x := fmt.Sprintf("if(between(n,%d,%d),%s%s*(n-%d),%s)",
		startFrame, startFrame+frames, ff(start.X), signed(stepX), startFrame, nextX)
	y := fmt.Sprintf("if(between(n,%d,%d),%s%s*(n-%d),%s)",
		startFrame, startFrame+frames, ff(start.Y), signed(stepY), startFrame, nextY)
	return x, y
}

// ZoomInFilter builds the title-card zoom: a monotonic zoom factor
// growing by a fixed rate per frame up to the configured cap.
func (g *Generator) ZoomInFilter(duration float64, screen types.Size) string {
	v := g.cfg.Video
	frames := int(duration * float64(v.Framerate))
	return fmt.Sprintf(
		"scale=8000:-1,zoompan=z='min(%s,zoom+%s)':x=iw/2-(iw/zoom/2):y=ih/2-(ih/zoom/2):d=%d:s=%dx%d:fps=%d",
		ff(v.MaxZoom), ff(v.ZoomInRate), frames, screen.Width, screen.Height, v.Framerate)
}

// PaddingFilter letterboxes any input into the screen size.
func PaddingFilter(screen types.Size) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:-1:-1:color=black",
		screen.Width, screen.Height, screen.Width, screen.Height)
}

// ScaleFilter stretches the input to exactly the screen size.
func ScaleFilter(screen types.Size) string {
	return fmt.Sprintf("scale=%dx%d", screen.Width, screen.Height)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ff formats a float without trailing zero noise for filter expressions.
func ff(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// signed renders a step as an explicit +d/-d term so the expression
// stays valid whatever the pan direction.
func signed(step float64) string {
	if step < 0 {
		return "-" + ff(-step)
	}
	return "+" + ff(step)
}
