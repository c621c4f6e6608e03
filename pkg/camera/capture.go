package camera

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gaze/pkg/pupil"
)

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("camera closed")

// Capture reads frames from an OpenCV video device as BGRA pupil frames.
type Capture struct {
	webcam *gocv.VideoCapture
	config Config
	width  int
	height int

	raw     gocv.Mat
	flipped gocv.Mat
	bgra    gocv.Mat
	mu      sync.Mutex
}

// Open starts capturing from cfg.Device.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}

	var device interface{} = cfg.Device
	if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}
	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", cfg.Device, err)
	}

	c := &Capture{
		webcam:  webcam,
		raw:     gocv.NewMat(),
		flipped: gocv.NewMat(),
		bgra:    gocv.NewMat(),
	}
	c.apply(cfg)
	return c, nil
}

// Apply changes resolution and image settings on the open device. Use it
// as a Manager.OnConfigChange callback.
func (c *Capture) Apply(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return ErrClosed
	}
	if cfg.Device != c.config.Device {
		return fmt.Errorf("switching device needs a restart (%s -> %s)", c.config.Device, cfg.Device)
	}
	c.apply(cfg)
	return nil
}

func (c *Capture) apply(cfg Config) {
	c.webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	c.webcam.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness > 0 {
		c.webcam.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	if cfg.Contrast > 0 {
		c.webcam.Set(gocv.VideoCaptureContrast, cfg.Contrast)
	}
	if cfg.AutoExposure {
		c.webcam.Set(gocv.VideoCaptureAutoExposure, 3) // V4L2 aperture priority
	} else {
		c.webcam.Set(gocv.VideoCaptureAutoExposure, 1)
	}

	// Camera may not support the requested resolution
	c.width = int(c.webcam.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(c.webcam.Get(gocv.VideoCaptureFrameHeight))
	c.config = cfg
}

// Read grabs the next frame. The returned frame owns its pixels.
func (c *Capture) Read() (*pupil.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil, ErrClosed
	}
	if !c.webcam.Read(&c.raw) || c.raw.Empty() {
		return nil, fmt.Errorf("camera %s returned no frame", c.config.Device)
	}

	src := c.raw
	if c.config.Mirror {
		gocv.Flip(c.raw, &c.flipped, 1)
		src = c.flipped
	}
	gocv.CvtColor(src, &c.bgra, gocv.ColorBGRToBGRA)

	w, h := c.bgra.Cols(), c.bgra.Rows()
	return &pupil.Frame{
		Width:  w,
		Height: h,
		Format: pupil.FormatBGRA,
		Planes: []pupil.Plane{{Data: c.bgra.ToBytes(), Stride: w * 4}},
	}, nil
}

// Size returns the negotiated frame size.
func (c *Capture) Size() (width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Close releases the camera.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil
	}
	err := c.webcam.Close()
	c.webcam = nil
	c.raw.Close()
	c.flipped.Close()
	c.bgra.Close()
	return err
}
