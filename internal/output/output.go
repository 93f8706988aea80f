// Package output defines frame sinks for rendered heads.
package output

import (
	"image"
)

// Output is a destination for finished head frames, such as an MJPEG
// stream or an X11 window.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output. The frame is only valid for
	// the duration of the call.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Width  int
	Height int
	FPS    int
	// Quality is the JPEG quality, 1-100. Zero means 85.
	Quality int
}
