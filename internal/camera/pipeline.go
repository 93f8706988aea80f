// Package camera owns the two capture surfaces and the handoff between the
// capture hardware, which writes one surface, and the render loop, which
// reads the other.
package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/google/uuid"
)

// State word layout. Slot and pending flag live in one word so the
// completion handler can update both with a single compare-and-swap.
const (
	slotMask   uint32 = 1
	pendingBit uint32 = 2
)

// Config selects the stream mode and memory alignment.
type Config struct {
	Layout       Layout
	FPS          int
	SurfaceAlign int
	WorkAlign    int
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	SessionID    string `json:"session_id"`
	Driver       string `json:"driver"`
	TargetSlot   int    `json:"target_slot"`
	Pending      bool   `json:"pending"`
	Decoded      uint64 `json:"decoded"`
	Submitted    uint64 `json:"submitted"`
	BusyRetries  uint64 `json:"busy_retries"`
	Reopens      uint64 `json:"reopens"`
	SensorOnline bool   `json:"sensor_online"`
	Closed       bool   `json:"closed"`
}

// Pipeline is the capture context: session, work memory, both surfaces and
// the shared slot state. Only one should exist per process since the
// hardware supports a single session.
type Pipeline struct {
	driver Driver
	alloc  memory.Allocator
	retry  *memory.RetryAllocator
	cfg    Config

	id       string
	session  Session
	workMem  *memory.Block
	surfaces [2]Surface

	state     atomic.Uint32
	decoded   atomic.Uint64
	submitted atomic.Uint64
	busy      atomic.Uint64
	reopens   atomic.Uint64
	online    atomic.Bool

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// New creates an uninitialized pipeline. Blocks are allocated from alloc
// and retried until validate accepts them.
func New(driver Driver, alloc memory.Allocator, validate memory.Validator, cfg Config) *Pipeline {
	if cfg.SurfaceAlign <= 0 {
		cfg.SurfaceAlign = 256
	}
	if cfg.WorkAlign <= 0 {
		cfg.WorkAlign = 256
	}
	return &Pipeline{
		driver: driver,
		alloc:  alloc,
		retry:  &memory.RetryAllocator{Allocator: alloc, Validate: validate},
		cfg:    cfg,
	}
}

// Init allocates memory, creates and opens the hardware session. Any error
// is an *EnvironmentError and leaves nothing allocated.
func (p *Pipeline) Init() error {
	log := logger.WithComponent("camera")

	info := StreamInfo{Layout: p.cfg.Layout, FPS: p.cfg.FPS}
	if p.cfg.Layout.Width <= 0 || p.cfg.Layout.Height <= 0 || p.cfg.Layout.Pitch < p.cfg.Layout.Width {
		return envErr("layout", fmt.Errorf("invalid layout %+v", p.cfg.Layout))
	}

	memReq := p.driver.MemReq(info)
	if memReq <= 0 {
		return envErr("memreq", fmt.Errorf("driver %s reported memory requirement %d", p.driver.Name(), memReq))
	}

	var err error
	p.workMem, err = p.retry.Allocate(p.cfg.WorkAlign, memReq)
	if err != nil {
		return envErr("alloc", fmt.Errorf("work memory: %w", err))
	}

	p.id = uuid.NewString()
	p.session, err = p.driver.Init(Setup{
		Stream:  info,
		WorkMem: p.workMem,
		Handler: p.HandleEvent,
		Mode:    Mode{FPS: p.cfg.FPS},
	})
	if err != nil {
		p.release()
		return envErr("init", err)
	}

	if err := p.session.Open(); err != nil {
		p.session.Close()
		p.session = nil
		p.release()
		return envErr("open", err)
	}
	p.online.Store(true)

	for i := range p.surfaces {
		b, err := p.retry.Allocate(p.cfg.SurfaceAlign, p.cfg.Layout.FrameSize())
		if err != nil {
			p.session.Close()
			p.session = nil
			p.release()
			return envErr("alloc", fmt.Errorf("surface %d: %w", i, err))
		}
		p.surfaces[i] = Surface{Index: i, Block: b}
	}

	// Target slot 0, first submission outstanding.
	p.state.Store(pendingBit)

	log.Info().
		Str("session_id", p.id).
		Str("driver", p.driver.Name()).
		Int("width", p.cfg.Layout.Width).
		Int("height", p.cfg.Layout.Height).
		Int("pitch", p.cfg.Layout.Pitch).
		Int("fps", p.cfg.FPS).
		Int("work_mem", memReq).
		Int("surface_size", p.cfg.Layout.FrameSize()).
		Msg("Capture pipeline initialized")
	return nil
}

// HandleEvent is the completion callback. It runs on the device's goroutine,
// never blocks, never allocates and never logs.
func (p *Pipeline) HandleEvent(ev Event) {
	switch ev.Type {
	case EventDecodeDone:
		for {
			old := p.state.Load()
			if p.state.CompareAndSwap(old, (old^slotMask)|pendingBit) {
				break
			}
		}
		p.decoded.Add(1)
	case EventAttached:
		p.online.Store(true)
	case EventDetached:
		p.online.Store(false)
	}
}

// AcquireDisplayableFrame keeps the hardware fed and returns the surface it
// is not writing. A busy submission is retried on the next call.
func (p *Pipeline) AcquireDisplayableFrame() *memory.Block {
	s := p.state.Load()
	if s&pendingBit != 0 && !p.closed.Load() {
		if err := p.session.SubmitTarget(&p.surfaces[s&slotMask]); err == nil {
			p.submitted.Add(1)
			// Fails only if a completion landed meanwhile, which re-arms the
			// flag for the new target.
			p.state.CompareAndSwap(s, s&^pendingBit)
		} else {
			p.busy.Add(1)
		}
	}
	return p.surfaces[1-p.state.Load()&slotMask].Block
}

// TargetSlot returns the slot currently owned by the hardware.
func (p *Pipeline) TargetSlot() int {
	return int(p.state.Load() & slotMask)
}

// Pending reports whether a target submission is outstanding.
func (p *Pipeline) Pending() bool {
	return p.state.Load()&pendingBit != 0
}

// Surface returns surface i (0 or 1).
func (p *Pipeline) Surface(i int) *Surface {
	return &p.surfaces[i&1]
}

// Layout returns the configured frame layout.
func (p *Pipeline) Layout() Layout {
	return p.cfg.Layout
}

// SessionID identifies the current capture session.
func (p *Pipeline) SessionID() string {
	return p.id
}

// Reopen re-opens a session that the environment suspended. It succeeds if
// the session is already open. After a real re-open the current target is
// resubmitted, since a suspended device drops its queued target.
func (p *Pipeline) Reopen() error {
	if p.closed.Load() || p.session == nil {
		return ErrClosed
	}
	err := p.session.Open()
	if errors.Is(err, ErrAlreadyOpen) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reopen camera session: %w", err)
	}
	for {
		old := p.state.Load()
		if p.state.CompareAndSwap(old, old|pendingBit) {
			break
		}
	}
	p.reopens.Add(1)
	p.online.Store(true)
	logger.WithComponent("camera").Info().
		Str("session_id", p.id).
		Msg("Capture session reopened")
	return nil
}

// Close releases the session, then the work memory, then both surfaces.
// Only the first call does anything.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.session != nil {
			if err := p.session.Close(); err != nil {
				p.closeErr = fmt.Errorf("failed to close camera session: %w", err)
			}
		}
		p.release()
		logger.WithComponent("camera").Info().
			Str("session_id", p.id).
			Uint64("decoded", p.decoded.Load()).
			Msg("Capture pipeline closed")
	})
	return p.closeErr
}

// release frees whatever is still held and forgets it, so a later call
// frees nothing twice.
func (p *Pipeline) release() {
	if p.workMem != nil {
		p.alloc.Free(p.workMem)
		p.workMem = nil
	}
	for i := range p.surfaces {
		if p.surfaces[i].Block != nil {
			p.alloc.Free(p.surfaces[i].Block)
			p.surfaces[i] = Surface{}
		}
	}
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	s := p.state.Load()
	name := ""
	if p.driver != nil {
		name = p.driver.Name()
	}
	return Stats{
		SessionID:    p.id,
		Driver:       name,
		TargetSlot:   int(s & slotMask),
		Pending:      s&pendingBit != 0,
		Decoded:      p.decoded.Load(),
		Submitted:    p.submitted.Load(),
		BusyRetries:  p.busy.Load(),
		Reopens:      p.reopens.Load(),
		SensorOnline: p.online.Load(),
		Closed:       p.closed.Load(),
	}
}
