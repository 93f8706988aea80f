package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/logger"
)

// GStreamer captures from a V4L2 camera through a gst-launch-1.0
// subprocess that writes packed NV12 frames to its stdout. Running the
// pipeline out of process avoids linking GStreamer with cgo.
type GStreamer struct {
	device   string
	pipeline string

	// newCmd builds the capture command from the pipeline string.
	newCmd func(pipeline string) *exec.Cmd
}

// NewGStreamer creates a driver for the V4L2 device path. A non-empty
// pipeline replaces the default source description; it must still emit
// NV12 at the stream size on fd 1.
func NewGStreamer(device, pipeline string) *GStreamer {
	return &GStreamer{
		device:   device,
		pipeline: pipeline,
		newCmd: func(p string) *exec.Cmd {
			// sh -c parses the ! separated pipeline.
			return exec.Command("sh", "-c", "exec gst-launch-1.0 -q "+p)
		},
	}
}

// Name implements camera.Driver.
func (d *GStreamer) Name() string { return "gstreamer" }

// MemReq implements camera.Driver. Work memory stages one packed frame.
func (d *GStreamer) MemReq(info camera.StreamInfo) int {
	l := info.Layout
	if l.Width <= 0 || l.Height <= 0 || l.Width%2 != 0 || l.Height%2 != 0 || l.Pitch < l.Width {
		return 0
	}
	return packedSize(l)
}

// Init implements camera.Driver.
func (d *GStreamer) Init(setup camera.Setup) (camera.Session, error) {
	need := d.MemReq(setup.Stream)
	if need == 0 {
		return nil, fmt.Errorf("unsupported stream %+v", setup.Stream.Layout)
	}
	if setup.WorkMem == nil || setup.WorkMem.Len() < need {
		return nil, fmt.Errorf("work memory too small, need %d bytes", need)
	}
	if setup.Handler == nil {
		return nil, fmt.Errorf("no event handler")
	}
	return &gstSession{driver: d, setup: setup}, nil
}

// Pipeline returns the gst-launch pipeline description for a stream.
func (d *GStreamer) Pipeline(info camera.StreamInfo) string {
	src := d.pipeline
	if src == "" {
		src = fmt.Sprintf("v4l2src device=%s do-timestamp=true ! videoconvert ! videoscale ! videorate", d.device)
	}
	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}
	return fmt.Sprintf(
		"%s ! video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1 ! fdsink fd=1 sync=false",
		src, info.Layout.Width, info.Layout.Height, fps,
	)
}

type gstSession struct {
	driver *GStreamer
	setup  camera.Setup

	mu     sync.Mutex
	open   bool
	cmd    *exec.Cmd
	queued *camera.Surface
	done   chan struct{}

	dropped atomic.Uint64
}

func (s *gstSession) Open() error {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return camera.ErrAlreadyOpen
	}
	s.reapLocked()

	log := logger.WithComponent("gstreamer")
	pipeline := s.driver.Pipeline(s.setup.Stream)
	log.Debug().Str("pipeline", pipeline).Msg("Starting GStreamer subprocess")

	cmd := s.driver.newCmd(pipeline)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to start gst-launch: %w", err)
	}

	s.cmd = cmd
	s.open = true
	s.done = make(chan struct{})
	go s.readFrames(stdout, s.done)
	go logStderr(stderr)
	s.mu.Unlock()

	log.Info().Str("device", s.driver.device).Int("pid", cmd.Process.Pid).Msg("GStreamer subprocess started")
	s.setup.Handler(camera.Event{Type: camera.EventAttached})
	return nil
}

// reapLocked waits for a subprocess that already exited on its own.
func (s *gstSession) reapLocked() {
	if s.cmd == nil {
		return
	}
	<-s.done
	_ = s.cmd.Wait()
	s.cmd = nil
}

func (s *gstSession) SubmitTarget(surf *camera.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("capture stopped: %w", camera.ErrBusy)
	}
	if s.queued != nil {
		return camera.ErrBusy
	}
	s.queued = surf
	return nil
}

func (s *gstSession) Close() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.cmd = nil
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	log := logger.WithComponent("gstreamer")
	if cmd.Process != nil {
		log.Debug().Int("pid", cmd.Process.Pid).Msg("Killing GStreamer subprocess")
		_ = cmd.Process.Kill()
	}
	<-done
	_ = cmd.Wait()

	log.Info().Uint64("dropped", s.dropped.Load()).Msg("GStreamer subprocess stopped")
	return nil
}

// readFrames stages each packed frame in work memory and copies it into the
// queued target at the hardware pitch. Frames arriving with no target are
// dropped.
func (s *gstSession) readFrames(stdout io.Reader, done chan struct{}) {
	defer close(done)
	log := logger.WithComponent("gstreamer")

	layout := s.setup.Stream.Layout
	staging := s.setup.WorkMem.Bytes()[:packedSize(layout)]
	reader := bufio.NewReaderSize(stdout, len(staging))

	for {
		if _, err := io.ReadFull(reader, staging); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Debug().Msg("EOF from GStreamer subprocess")
			} else {
				log.Error().Err(err).Msg("Error reading frame")
			}
			break
		}

		s.mu.Lock()
		target := s.queued
		s.queued = nil
		s.mu.Unlock()

		if target == nil {
			s.dropped.Add(1)
			continue
		}
		copyPacked(target.Block.Bytes(), staging, layout)
		s.setup.Handler(camera.Event{Type: camera.EventDecodeDone, Surface: target})
	}

	s.mu.Lock()
	s.open = false
	s.queued = nil
	s.mu.Unlock()
	s.setup.Handler(camera.Event{Type: camera.EventDetached})
}

// logStderr forwards gst-launch diagnostics to the log.
func logStderr(stderr io.Reader) {
	log := logger.WithComponent("gstreamer")
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}
