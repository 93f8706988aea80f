// Package config loads and saves the DualCam configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StreamConfig is the capture stream mode and memory layout.
type StreamConfig struct {
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
	Pitch  int `json:"pitch" yaml:"pitch" mapstructure:"pitch"`
	FPS    int `json:"fps" yaml:"fps" mapstructure:"fps"`

	SurfaceAlign int `json:"surface_align" yaml:"surface_align" mapstructure:"surface_align"`
	WorkAlign    int `json:"work_align" yaml:"work_align" mapstructure:"work_align"`
	// SegmentBoundary rejects allocations that straddle a multiple of it.
	// Zero disables the check.
	SegmentBoundary int `json:"segment_boundary" yaml:"segment_boundary" mapstructure:"segment_boundary"`
}

// DeviceConfig selects the camera driver.
type DeviceConfig struct {
	Driver   string `json:"driver" yaml:"driver" mapstructure:"driver"`
	Path     string `json:"path" yaml:"path" mapstructure:"path"`
	Pipeline string `json:"pipeline,omitempty" yaml:"pipeline,omitempty" mapstructure:"pipeline"`
}

// HeadConfig is one output head.
type HeadConfig struct {
	Name   string `json:"name" yaml:"name" mapstructure:"name"`
	Width  int    `json:"width" yaml:"width" mapstructure:"width"`
	Height int    `json:"height" yaml:"height" mapstructure:"height"`
	// Window opens an X11 window showing the head.
	Window bool `json:"window" yaml:"window" mapstructure:"window"`
}

// SnapshotConfig controls where captures are stored.
type SnapshotConfig struct {
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// LabelConfig is a static text overlay.
type LabelConfig struct {
	ID      string  `json:"id" yaml:"id" mapstructure:"id"`
	Text    string  `json:"text" yaml:"text" mapstructure:"text"`
	X       int     `json:"x" yaml:"x" mapstructure:"x"`
	Y       int     `json:"y" yaml:"y" mapstructure:"y"`
	Anchor  string  `json:"anchor,omitempty" yaml:"anchor,omitempty" mapstructure:"anchor"`
	Opacity float64 `json:"opacity,omitempty" yaml:"opacity,omitempty" mapstructure:"opacity"`
}

// OverlayConfig represents overlay configuration
type OverlayConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ToastSeconds int           `json:"toast_seconds" yaml:"toast_seconds" mapstructure:"toast_seconds"`
	ShowStats    bool          `json:"show_stats" yaml:"show_stats" mapstructure:"show_stats"`
	Labels       []LabelConfig `json:"labels" yaml:"labels" mapstructure:"labels"`
}

// Config is the whole configuration file.
type Config struct {
	Stream     StreamConfig   `json:"stream" yaml:"stream" mapstructure:"stream"`
	Device     DeviceConfig   `json:"device" yaml:"device" mapstructure:"device"`
	Heads      []HeadConfig   `json:"heads" yaml:"heads" mapstructure:"heads"`
	Snapshot   SnapshotConfig `json:"snapshot" yaml:"snapshot" mapstructure:"snapshot"`
	Overlay    OverlayConfig  `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
	ServerPort int            `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string         `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// Defaults returns the built-in configuration: a 640x480 stream at 30 fps
// with a 768 byte pitch, shown on two 854x480 heads.
func Defaults() *Config {
	return &Config{
		Stream: StreamConfig{
			Width:        640,
			Height:       480,
			Pitch:        768,
			FPS:          30,
			SurfaceAlign: 256,
			WorkAlign:    256,
		},
		Device: DeviceConfig{
			Driver: "sim",
			Path:   "/dev/video0",
		},
		Heads: []HeadConfig{
			{Name: "tv", Width: 854, Height: 480},
			{Name: "drc", Width: 854, Height: 480},
		},
		Snapshot: SnapshotConfig{
			Dir: defaultSnapshotDir(),
		},
		Overlay: OverlayConfig{
			Enabled:      true,
			ToastSeconds: 3,
			Labels:       []LabelConfig{},
		},
		ServerPort: 8080,
		LogLevel:   "info",
	}
}

func defaultSnapshotDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "snapshots"
	}
	return filepath.Join(home, "Pictures", "dualcam")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validDrivers = map[string]bool{"sim": true, "gstreamer": true}

// Validate checks the configuration for values the pipeline cannot run
// with. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	s := c.Stream

	if s.Width <= 0 || s.Height <= 0 || s.Width%2 != 0 || s.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("stream size %dx%d must be positive and even", s.Width, s.Height))
	}
	if s.Pitch < s.Width {
		errs = append(errs, fmt.Errorf("stream pitch %d is smaller than width %d", s.Pitch, s.Width))
	} else if a := s.SurfaceAlign; a > 0 && a&(a-1) == 0 {
		// Presenter textures are allocated at this pitch.
		if want := (s.Width + a - 1) &^ (a - 1); s.Pitch != want {
			errs = append(errs, fmt.Errorf("stream pitch %d must be width %d aligned to surface_align %d (%d)", s.Pitch, s.Width, a, want))
		}
	}
	if s.FPS <= 0 {
		errs = append(errs, fmt.Errorf("stream fps %d must be positive", s.FPS))
	}
	for name, a := range map[string]int{"surface_align": s.SurfaceAlign, "work_align": s.WorkAlign} {
		if a <= 0 || a&(a-1) != 0 {
			errs = append(errs, fmt.Errorf("stream %s %d is not a power of two", name, a))
		}
	}
	if s.SegmentBoundary < 0 || (s.SegmentBoundary > 0 && s.SegmentBoundary < s.Pitch*s.Height*3/2) {
		errs = append(errs, fmt.Errorf("stream segment_boundary %d cannot hold a frame", s.SegmentBoundary))
	}

	if !validDrivers[c.Device.Driver] {
		errs = append(errs, fmt.Errorf("unknown device driver %q", c.Device.Driver))
	}

	if len(c.Heads) == 0 {
		errs = append(errs, errors.New("at least one head is required"))
	}
	seen := make(map[string]bool)
	for _, h := range c.Heads {
		if h.Name == "" {
			errs = append(errs, errors.New("head name is empty"))
		}
		if seen[h.Name] {
			errs = append(errs, fmt.Errorf("duplicate head %q", h.Name))
		}
		seen[h.Name] = true
		if h.Width <= 0 || h.Height <= 0 {
			errs = append(errs, fmt.Errorf("head %q size %dx%d is invalid", h.Name, h.Width, h.Height))
		}
	}

	if c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot dir is empty"))
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server port %d is out of range", c.ServerPort))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("invalid log level %q (use: debug, info, warn, error)", c.LogLevel))
	}

	return errors.Join(errs...)
}
