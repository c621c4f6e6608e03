package web

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/teslashibe/go-gaze/pkg/pupil"
)

var errNoEyes = errors.New("no eye regions")

// EyeSnapshot renders the eye regions side by side at a common height,
// marks each pupil with a cross and encodes the result as JPEG. Eyes that
// are nil are left out.
func EyeSnapshot(frame *pupil.Frame, left, right *pupil.EyeResult, height int) ([]byte, error) {
	var eyes []*pupil.EyeResult
	for _, e := range []*pupil.EyeResult{left, right} {
		if e != nil && !e.Region.Frame.Empty() {
			eyes = append(eyes, e)
		}
	}
	if len(eyes) == 0 || height <= 0 {
		return nil, errNoEyes
	}

	var buf pupil.Buffer
	gray, ok := pupil.ExtractGrayscale(frame, &buf)
	if !ok {
		return nil, fmt.Errorf("unreadable frame")
	}
	src := &image.Gray{
		Pix:    gray.Pix,
		Stride: gray.Stride,
		Rect:   image.Rect(0, 0, gray.Width, gray.Height),
	}

	// Lay the eyes out left to right, each scaled to height.
	widths := make([]int, len(eyes))
	total := 0
	for i, e := range eyes {
		r := e.Region.Frame
		widths[i] = int(float64(height) * r.W / r.H)
		if widths[i] < 1 {
			widths[i] = 1
		}
		total += widths[i]
	}

	dst := image.NewGray(image.Rect(0, 0, total, height))
	x := 0
	for i, e := range eyes {
		r := e.Region.Frame
		srcRect := image.Rect(int(r.X), int(r.Y), int(r.MaxX()), int(r.MaxY())).Intersect(src.Rect)
		dstRect := image.Rect(x, 0, x+widths[i], height)
		draw.ApproxBiLinear.Scale(dst, dstRect, src, srcRect, draw.Src, nil)

		scale := float64(height) / r.H
		markPupil(dst, x+int(e.Pupil.X*scale), int(e.Pupil.Y*scale), dstRect)
		x += widths[i]
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return out.Bytes(), nil
}

// markPupil draws a small white cross clipped to bounds.
func markPupil(img *image.Gray, cx, cy int, bounds image.Rectangle) {
	const arm = 3
	white := color.Gray{Y: 255}
	for d := -arm; d <= arm; d++ {
		if p := image.Pt(cx+d, cy); p.In(bounds) {
			img.SetGray(p.X, p.Y, white)
		}
		if p := image.Pt(cx, cy+d); p.In(bounds) {
			img.SetGray(p.X, p.Y, white)
		}
	}
}
