package pupil

import (
	"image"

	"golang.org/x/image/draw"
)

// PixelFormat is the memory layout of a camera frame.
type PixelFormat int

const (
	// FormatBGRA is packed 32-bit B,G,R,A.
	FormatBGRA PixelFormat = iota
	// FormatYCbCr420FullRange is bi-planar 4:2:0, Y plane first, full range.
	FormatYCbCr420FullRange
	// FormatYCbCr420VideoRange is bi-planar 4:2:0, Y plane first, video range.
	FormatYCbCr420VideoRange
	// FormatGeneric carries a decoded image.Image.
	FormatGeneric
)

func (f PixelFormat) String() string {
	switch f {
	case FormatBGRA:
		return "bgra"
	case FormatYCbCr420FullRange:
		return "420f"
	case FormatYCbCr420VideoRange:
		return "420v"
	default:
		return "generic"
	}
}

// Plane is one plane of a frame. Stride may exceed the row's payload.
type Plane struct {
	Data   []byte
	Stride int
}

// Frame is a read-only view of a camera buffer for the duration of one call.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Planes []Plane
	Image  image.Image // FormatGeneric only
}

// Size returns the frame size.
func (f *Frame) Size() Size {
	return Size{Width: float64(f.Width), Height: float64(f.Height)}
}

// Gray is a single-channel 8-bit image view.
type Gray struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
}

// At returns the luminance at (x, y). No bounds checks.
func (g Gray) At(x, y int) uint8 {
	return g.Pix[y*g.Stride+x]
}

// Luminance weights, fixed-point over 1<<16.
const (
	lumaR = 19595 // 0.299
	lumaG = 38470 // 0.587
	lumaB = 7471  // 0.114
)

// ExtractGrayscale converts a frame into a tightly packed luminance image
// stored in dst. Returns false when the frame cannot expose its pixels.
func ExtractGrayscale(frame *Frame, dst *Buffer) (Gray, bool) {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return Gray{}, false
	}
	w, h := frame.Width, frame.Height

	switch frame.Format {
	case FormatBGRA:
		plane, ok := framePlane(frame, 0, w*4)
		if !ok {
			return Gray{}, false
		}
		out := dst.Reserve(w * h)
		for y := 0; y < h; y++ {
			row := plane.Data[y*plane.Stride : y*plane.Stride+w*4]
			o := out[y*w : y*w+w]
			for x := range o {
				b := uint32(row[x*4])
				g := uint32(row[x*4+1])
				r := uint32(row[x*4+2])
				o[x] = uint8((lumaR*r + lumaG*g + lumaB*b + 1<<15) >> 16)
			}
		}
		return Gray{Pix: out, Width: w, Height: h, Stride: w}, true

	case FormatYCbCr420FullRange, FormatYCbCr420VideoRange:
		plane, ok := framePlane(frame, 0, w)
		if !ok {
			return Gray{}, false
		}
		out := dst.Reserve(w * h)
		for y := 0; y < h; y++ {
			copy(out[y*w:y*w+w], plane.Data[y*plane.Stride:y*plane.Stride+w])
		}
		return Gray{Pix: out, Width: w, Height: h, Stride: w}, true

	default:
		if frame.Image == nil {
			return Gray{}, false
		}
		out := dst.Reserve(w * h)
		img := &image.Gray{Pix: out, Stride: w, Rect: image.Rect(0, 0, w, h)}
		draw.Draw(img, img.Rect, frame.Image, frame.Image.Bounds().Min, draw.Src)
		return Gray{Pix: out, Width: w, Height: h, Stride: w}, true
	}
}

// framePlane validates that plane i can hold height rows of rowBytes.
func framePlane(frame *Frame, i, rowBytes int) (Plane, bool) {
	if len(frame.Planes) <= i {
		return Plane{}, false
	}
	p := frame.Planes[i]
	if p.Stride == 0 {
		p.Stride = rowBytes
	}
	if p.Stride < rowBytes {
		return Plane{}, false
	}
	if len(p.Data) < (frame.Height-1)*p.Stride+rowBytes {
		return Plane{}, false
	}
	return p, true
}
