// Package device provides camera drivers: a simulated sensor and a V4L2
// camera captured through GStreamer.
package device

import (
	"fmt"

	"github.com/bryanchriswhite/DualCam/internal/camera"
)

// Config selects and configures a driver.
type Config struct {
	Driver   string // sim or gstreamer
	Device   string // V4L2 device path for gstreamer
	Pipeline string // optional gst-launch source description
}

// New returns the driver named by cfg.Driver.
func New(cfg Config) (camera.Driver, error) {
	switch cfg.Driver {
	case "", "sim":
		return NewSim(), nil
	case "gstreamer":
		dev := cfg.Device
		if dev == "" {
			dev = "/dev/video0"
		}
		return NewGStreamer(dev, cfg.Pipeline), nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", cfg.Driver)
	}
}
