package pupil

// Localizer defaults.
const (
	DarkCutoff    = 10
	MinDarkPixels = 5
	MinRegionSide = 10
	BinaryDark    = 0
	BinaryBright  = 255
)

// Binarize maps every pixel below threshold to 0 and the rest to 255.
// Applying it to an already binary image with threshold in 1..255 is a no-op.
func Binarize(src Gray, threshold int, dst *Buffer) Gray {
	out := dst.Reserve(src.Width * src.Height)
	for y := 0; y < src.Height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+src.Width]
		o := out[y*src.Width : (y+1)*src.Width]
		for x, v := range row {
			if int(v) < threshold {
				o[x] = BinaryDark
			} else {
				o[x] = BinaryBright
			}
		}
	}
	return Gray{Pix: out, Width: src.Width, Height: src.Height, Stride: src.Width}
}

// Localize returns the centroid of every pixel darker than cutoff.
// Fewer than minPixels qualifying pixels is treated as no detection.
//
// A plain centroid is enough here because IsolateEye has already masked
// everything outside the eye polygon to MaskValue.
func Localize(bin Gray, cutoff uint8, minPixels int) (Point, bool) {
	var sumX, sumY float64
	count := 0
	for y := 0; y < bin.Height; y++ {
		row := bin.Pix[y*bin.Stride : y*bin.Stride+bin.Width]
		for x, v := range row {
			if v < cutoff {
				sumX += float64(x)
				sumY += float64(y)
				count++
			}
		}
	}
	if count == 0 || count < minPixels {
		return Point{}, false
	}
	return Point{X: sumX / float64(count), Y: sumY / float64(count)}, true
}
