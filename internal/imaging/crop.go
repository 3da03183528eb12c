package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Margins removed from a page screenshot before it is kept as a clipping.
type Margins struct {
	Top, Right, Bottom, Left int
}

// ClippingMargins trims browser chrome above the viewer and padding around it.
var ClippingMargins = Margins{Top: 100, Right: 50, Bottom: 50, Left: 50}

// Result describes a processed screenshot.
type Result struct {
	PNG      []byte
	Original image.Point
	Final    image.Point
}

// CropPNG decodes a PNG, trims margins, optionally downsizes to maxWidth and re-encodes.
// When margins would leave nothing the original bounds are kept.
func CropPNG(data []byte, m Margins, maxWidth int) (Result, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode screenshot: %w", err)
	}

	bounds := src.Bounds()
	rect := bounds
	if bounds.Dx() > m.Left+m.Right && bounds.Dy() > m.Top+m.Bottom {
		rect = image.Rect(
			bounds.Min.X+m.Left,
			bounds.Min.Y+m.Top,
			bounds.Max.X-m.Right,
			bounds.Max.Y-m.Bottom,
		)
	}

	width, height := rect.Dx(), rect.Dy()
	if maxWidth > 0 && width > maxWidth {
		height = height * maxWidth / width
		width = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == rect.Dx() {
		draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, rect, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return Result{}, fmt.Errorf("encode clipping: %w", err)
	}

	return Result{
		PNG:      buf.Bytes(),
		Original: image.Pt(bounds.Dx(), bounds.Dy()),
		Final:    image.Pt(width, height),
	}, nil
}
