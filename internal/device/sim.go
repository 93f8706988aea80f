package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/logger"
)

// Sim is a camera driver that renders a test pattern. It needs no
// hardware.
type Sim struct {
	mu      sync.Mutex
	session *SimSession
}

// NewSim creates a simulated camera driver.
func NewSim() *Sim {
	return &Sim{}
}

// Name implements camera.Driver.
func (d *Sim) Name() string { return "sim" }

// MemReq implements camera.Driver. The scratch memory holds the pattern
// rows.
func (d *Sim) MemReq(info camera.StreamInfo) int {
	l := info.Layout
	if l.Width <= 0 || l.Height <= 0 || l.Width%2 != 0 || l.Height%2 != 0 || l.Pitch < l.Width {
		return 0
	}
	return patternRows * l.Pitch
}

// Init implements camera.Driver.
func (d *Sim) Init(setup camera.Setup) (camera.Session, error) {
	if need := d.MemReq(setup.Stream); need == 0 {
		return nil, fmt.Errorf("unsupported stream %+v", setup.Stream.Layout)
	} else if setup.WorkMem == nil || setup.WorkMem.Len() < need {
		return nil, fmt.Errorf("work memory too small, need %d bytes", need)
	}
	if setup.Handler == nil {
		return nil, fmt.Errorf("no event handler")
	}

	fps := setup.Stream.FPS
	if fps <= 0 {
		fps = 30
	}
	s := &SimSession{setup: setup, interval: time.Second / time.Duration(fps)}

	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
	return s, nil
}

// Session returns the most recently created session, or nil.
func (d *Sim) Session() *SimSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// SimSession is a running simulated capture session.
type SimSession struct {
	setup    camera.Setup
	interval time.Duration

	mu     sync.Mutex
	open   bool
	queued *camera.Surface
	stop   chan struct{}
	done   chan struct{}
	frame  uint64

	decoded atomic.Uint64
}

// Open implements camera.Session.
func (s *SimSession) Open() error {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return camera.ErrAlreadyOpen
	}
	s.open = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	s.mu.Unlock()

	logger.WithComponent("sim").Info().Dur("interval", s.interval).Msg("Simulated sensor streaming")
	s.setup.Handler(camera.Event{Type: camera.EventAttached})
	return nil
}

// SubmitTarget implements camera.Session. Only one target may be queued.
func (s *SimSession) SubmitTarget(surf *camera.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("sensor suspended: %w", camera.ErrBusy)
	}
	if s.queued != nil {
		return camera.ErrBusy
	}
	s.queued = surf
	return nil
}

// Suspend stops streaming and drops the queued target, as a power-saving
// environment would. Open resumes.
func (s *SimSession) Suspend() {
	if s.halt() {
		logger.WithComponent("sim").Info().Msg("Simulated sensor suspended")
		s.setup.Handler(camera.Event{Type: camera.EventDetached})
	}
}

// Close implements camera.Session.
func (s *SimSession) Close() error {
	s.halt()
	return nil
}

// Decoded returns the number of frames delivered.
func (s *SimSession) Decoded() uint64 { return s.decoded.Load() }

// halt stops the sensor goroutine and reports whether it was running.
func (s *SimSession) halt() bool {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return false
	}
	s.open = false
	s.queued = nil
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	return true
}

func (s *SimSession) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fills the queued target, if any, and reports completion.
func (s *SimSession) tick() {
	s.mu.Lock()
	target := s.queued
	s.queued = nil
	n := s.frame
	s.frame++
	s.mu.Unlock()

	if target == nil || target.Block == nil || target.Block.Freed() {
		return
	}
	drawPattern(target.Block.Bytes(), s.setup.WorkMem.Bytes(), s.setup.Stream.Layout, n)
	s.decoded.Add(1)
	s.setup.Handler(camera.Event{Type: camera.EventDecodeDone, Surface: target})
}
