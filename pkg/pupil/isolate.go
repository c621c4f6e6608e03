package pupil

// MaskValue fills every eye-buffer pixel outside the landmark polygon.
const MaskValue = 255

// IsolateEye copies the source luminance inside the eye polygon into a
// region-sized buffer. Everything else is MaskValue so skin and eyelid
// pixels can never win the dark-pixel search.
func IsolateEye(gray Gray, points []Point, region EyeRegion, dst *Buffer) (Gray, bool) {
	x0, y0, w, h := region.pixelBounds()
	if w <= 0 || h <= 0 {
		return Gray{}, false
	}

	out := dst.Reserve(w * h)
	for i := range out {
		out[i] = MaskValue
	}

	for y := 0; y < h; y++ {
		sy := y0 + y
		if sy < 0 || sy >= gray.Height {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x0 + x
			if sx < 0 || sx >= gray.Width {
				continue
			}
			if insidePolygon(points, float64(sx), float64(sy)) {
				out[y*w+x] = gray.Pix[sy*gray.Stride+sx]
			}
		}
	}

	return Gray{Pix: out, Width: w, Height: h, Stride: w}, true
}

// insidePolygon applies the even-odd rule by casting a ray towards +X.
func insidePolygon(poly []Point, x, y float64) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) {
			cross := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < cross {
				inside = !inside
			}
		}
	}
	return inside
}
