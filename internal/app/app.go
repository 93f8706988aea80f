// Package app wires the capture pipeline, the presenter and the snapshot
// store into the main loop.
package app

import (
	"context"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/config"
	"github.com/bryanchriswhite/DualCam/internal/device"
	"github.com/bryanchriswhite/DualCam/internal/display"
	"github.com/bryanchriswhite/DualCam/internal/gfx"
	"github.com/bryanchriswhite/DualCam/internal/gfx/soft"
	"github.com/bryanchriswhite/DualCam/internal/input"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/bryanchriswhite/DualCam/internal/output"
	"github.com/bryanchriswhite/DualCam/internal/overlay"
	"github.com/bryanchriswhite/DualCam/internal/snapshot"
	"github.com/spf13/afero"
)

// Options replaces collaborators that New would otherwise build from the
// configuration.
type Options struct {
	// Fs holds the snapshot directory. Defaults to the OS filesystem.
	Fs afero.Fs
	// Driver overrides the configured camera driver.
	Driver camera.Driver
	// Allocator defaults to a HeapAllocator.
	Allocator memory.Allocator
	// Compiler validates shaders. Defaults to gfx.NagaCompiler.
	Compiler gfx.ShaderCompiler
	// Pads are polled alongside the built-in virtual pad.
	Pads []input.Pad
	// NoWindows skips X11 windows even for heads that ask for one.
	NoWindows bool
}

// App is one running camera session.
type App struct {
	cfg    *config.Config
	layout camera.Layout

	pipeline  *camera.Pipeline
	backend   *soft.Backend
	presenter *gfx.Presenter
	store     *snapshot.Store

	overlays *overlay.Manager
	toast    *overlay.Toast

	streams map[string]*output.MJPEGOutput
	windows []*display.Window

	pad   *input.VirtualPad
	input input.Poller

	events *broadcaster
	now    func() time.Time

	running   atomic.Bool
	snapshots atomic.Uint64
	failures  atomic.Uint64
	startTime time.Time
	closeOnce sync.Once
}

// Status is the application state reported by the API.
type Status struct {
	Camera        camera.Stats   `json:"camera"`
	Running       bool           `json:"running"`
	Frames        uint64         `json:"frames"`
	Invalidations uint64         `json:"invalidations"`
	Snapshots     uint64         `json:"snapshots"`
	SnapshotFails uint64         `json:"snapshot_failures"`
	SnapshotDir   string         `json:"snapshot_dir"`
	Heads         []output.Stats `json:"heads"`
	Layout        camera.Layout  `json:"layout"`
	Uptime        string         `json:"uptime"`
}

// New builds every component and opens the capture session. A failure to
// reach the camera is returned as a *camera.EnvironmentError.
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.WithComponent("app")

	a := &App{
		cfg: cfg,
		layout: camera.Layout{
			Width:  cfg.Stream.Width,
			Height: cfg.Stream.Height,
			Pitch:  cfg.Stream.Pitch,
		},
		streams: make(map[string]*output.MJPEGOutput),
		pad:     &input.VirtualPad{},
		events:  newBroadcaster(),
		now:     time.Now,
	}
	a.startTime = a.now()
	a.input = input.Poller{Pads: input.Merge(opts.Pads), Virtual: a.pad}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	store, err := snapshot.NewStore(fs, cfg.Snapshot.Dir, a.layout)
	if err != nil {
		return nil, err
	}
	a.store = store

	driver := opts.Driver
	if driver == nil {
		driver, err = device.New(device.Config{
			Driver:   cfg.Device.Driver,
			Device:   cfg.Device.Path,
			Pipeline: cfg.Device.Pipeline,
		})
		if err != nil {
			return nil, err
		}
	}

	alloc := opts.Allocator
	if alloc == nil {
		alloc = &memory.HeapAllocator{}
	}
	var validate memory.Validator
	if cfg.Stream.SegmentBoundary > 0 {
		validate = memory.SegmentValidator(uintptr(cfg.Stream.SegmentBoundary))
	}

	a.pipeline = camera.New(driver, alloc, validate, camera.Config{
		Layout:       a.layout,
		FPS:          cfg.Stream.FPS,
		SurfaceAlign: cfg.Stream.SurfaceAlign,
		WorkAlign:    cfg.Stream.WorkAlign,
	})
	if err := a.pipeline.Init(); err != nil {
		return nil, err
	}

	compiler := opts.Compiler
	if compiler == nil {
		compiler = gfx.NagaCompiler{}
	}
	heads := make([]soft.HeadConfig, len(cfg.Heads))
	for i, h := range cfg.Heads {
		heads[i] = soft.HeadConfig{Name: h.Name, Width: h.Width, Height: h.Height}
	}
	a.backend, err = soft.New(soft.Config{
		Heads:        heads,
		FPS:          cfg.Stream.FPS,
		TextureAlign: cfg.Stream.SurfaceAlign,
		Compiler:     compiler,
	})
	if err != nil {
		a.pipeline.Close()
		return nil, fmt.Errorf("failed to create render backend: %w", err)
	}

	a.presenter = gfx.NewPresenter(a.backend, a.layout)
	if err := a.presenter.Init(); err != nil {
		a.backend.Close()
		a.pipeline.Close()
		return nil, &camera.EnvironmentError{Op: "present", Err: err}
	}

	if err := a.setupOverlay(); err != nil {
		a.backend.Close()
		a.pipeline.Close()
		return nil, err
	}
	a.setupOutputs(opts.NoWindows)

	log.Info().
		Str("session_id", a.pipeline.SessionID()).
		Str("driver", driver.Name()).
		Int("heads", len(cfg.Heads)).
		Str("snapshot_dir", store.Dir()).
		Msg("Application initialized")
	return a, nil
}

func (a *App) setupOverlay() error {
	oc := a.cfg.Overlay
	a.overlays = overlay.NewManager()
	a.toast = overlay.NewToast("toast", time.Duration(oc.ToastSeconds)*time.Second)
	if err := a.overlays.AddWidget(a.toast); err != nil {
		return err
	}

	for _, l := range oc.Labels {
		w, err := overlay.NewTextWidget(l.ID, overlay.TextOptions{
			Text:    l.Text,
			X:       l.X,
			Y:       l.Y,
			Anchor:  overlay.ParseAnchor(l.Anchor),
			Opacity: l.Opacity,
		})
		if err != nil {
			return fmt.Errorf("overlay label: %w", err)
		}
		if err := a.overlays.AddWidget(w); err != nil {
			return fmt.Errorf("overlay label: %w", err)
		}
	}

	if oc.ShowStats {
		bg := color.RGBA{0, 0, 0, 160}
		stats, err := overlay.NewTextWidget("stats", overlay.TextOptions{
			X:          8,
			Y:          8,
			Anchor:     overlay.AnchorTopRight,
			Opacity:    0.8,
			Background: &bg,
			Source:     a.statsLine,
		})
		if err != nil {
			return err
		}
		if err := a.overlays.AddWidget(stats); err != nil {
			return err
		}
	}

	a.overlays.SetEnabled(oc.Enabled)
	a.backend.SetOverlay(a.overlays)
	return nil
}

func (a *App) statsLine() string {
	st := a.pipeline.Stats()
	return fmt.Sprintf("slot %d  frames %d  busy %d", 1-st.TargetSlot, st.Decoded, st.BusyRetries)
}

func (a *App) setupOutputs(noWindows bool) {
	log := logger.WithComponent("app")

	for _, h := range a.cfg.Heads {
		stream := output.NewMJPEGOutput(h.Name, output.Config{
			Width:  h.Width,
			Height: h.Height,
			FPS:    a.cfg.Stream.FPS,
		})
		if err := stream.Start(); err != nil {
			log.Warn().Err(err).Str("head", h.Name).Msg("Failed to start stream")
			continue
		}
		a.backend.Attach(h.Name, stream)
		a.streams[h.Name] = stream

		if !h.Window || noWindows {
			continue
		}
		win, err := display.NewWindow(h.Name, h.Width, h.Height)
		if err != nil {
			log.Warn().Err(err).Str("head", h.Name).Msg("X11 window unavailable, head is stream only")
			continue
		}
		if err := win.Start(); err != nil {
			log.Warn().Err(err).Str("head", h.Name).Msg("Failed to open window")
			continue
		}
		a.backend.Attach(h.Name, win)
		a.windows = append(a.windows, win)
	}
}

// Run drives the main loop until ctx is cancelled or a frame cannot be
// drawn. Each iteration feeds the hardware, reacts to input edges and
// presents the stable surface on every head.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return fmt.Errorf("app is already running")
	}
	defer a.running.Store(false)

	log := logger.WithComponent("app")
	log.Info().Msg("Main loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Uint64("frames", a.presenter.Frames()).
				Uint64("snapshots", a.snapshots.Load()).
				Msg("Main loop stopped")
			return nil
		default:
		}

		if err := a.step(); err != nil {
			return fmt.Errorf("failed to draw frame: %w", err)
		}
	}
}

func (a *App) step() error {
	frame := a.pipeline.AcquireDisplayableFrame()

	pressed := a.input.Poll()
	if pressed&input.ButtonReopen != 0 {
		a.reopen()
	}
	if pressed&input.ButtonCapture != 0 {
		a.capture(frame)
	}

	a.presenter.SetImage(frame)
	return a.presenter.Draw()
}

// capture saves frame. A failed save is reported and otherwise ignored.
func (a *App) capture(frame *memory.Block) {
	log := logger.WithComponent("app")

	rec, err := a.store.Save(frame, a.now())
	if err != nil {
		a.failures.Add(1)
		log.Error().Err(err).Msg("Failed to save snapshot")
		a.toast.Show("Snapshot failed")
		a.events.publish(Event{
			Type:  EventSnapshotFailed,
			Time:  a.now(),
			Error: err.Error(),
		})
		return
	}

	a.snapshots.Add(1)
	log.Debug().
		Str("name", rec.Name).
		Str("frame_addr", fmt.Sprintf("%#x", frame.Addr())).
		Msg("Snapshot captured")
	a.toast.Show("Saved " + rec.Name)
	a.events.publish(Event{
		Type:     EventSnapshotSaved,
		Time:     a.now(),
		Message:  "Saved " + rec.Name,
		Snapshot: &rec,
	})
}

// reopen re-opens a suspended session. Failure is left for the next
// resume request.
func (a *App) reopen() {
	if err := a.pipeline.Reopen(); err != nil {
		logger.WithComponent("app").Warn().Err(err).Msg("Failed to reopen capture session, will retry on next resume")
		a.events.publish(Event{Type: EventReopenFailed, Time: a.now(), Error: err.Error()})
		return
	}
	a.events.publish(Event{Type: EventReopened, Time: a.now(), Message: "Capture session open"})
}

// Snapshot asks the main loop to save the next displayed frame.
func (a *App) Snapshot() {
	a.pad.Press(input.ButtonCapture)
}

// Resume asks the main loop to re-open the capture session.
func (a *App) Resume() {
	a.pad.Press(input.ButtonReopen)
}

// Subscribe returns a channel of application events. Release it with
// Unsubscribe.
func (a *App) Subscribe() chan Event {
	return a.events.subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (a *App) Unsubscribe(ch chan Event) {
	a.events.unsubscribe(ch)
}

// Store returns the snapshot store.
func (a *App) Store() *snapshot.Store { return a.store }

// Stream returns the MJPEG stream of a head.
func (a *App) Stream(head string) (*output.MJPEGOutput, bool) {
	s, ok := a.streams[head]
	return s, ok
}

// Heads lists the head names in draw order.
func (a *App) Heads() []string {
	return a.backend.HeadNames()
}

// Status reports the pipeline and output counters.
func (a *App) Status() Status {
	st := Status{
		Camera:        a.pipeline.Stats(),
		Running:       a.running.Load(),
		Frames:        a.presenter.Frames(),
		Invalidations: a.presenter.Invalidations(),
		Snapshots:     a.snapshots.Load(),
		SnapshotFails: a.failures.Load(),
		SnapshotDir:   a.store.Dir(),
		Layout:        a.layout,
		Uptime:        "N/A",
	}
	if st.Running {
		st.Uptime = a.now().Sub(a.startTime).Round(time.Second).String()
	}
	for _, name := range a.Heads() {
		if s, ok := a.streams[name]; ok {
			st.Heads = append(st.Heads, s.Stats())
		}
	}
	return st
}

// Close stops the outputs and releases the capture pipeline. Run must have
// returned.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		log := logger.WithComponent("app")
		for _, w := range a.windows {
			if werr := w.Stop(); werr != nil {
				log.Warn().Err(werr).Str("window", w.Name()).Msg("Failed to close window")
			}
		}
		for _, s := range a.streams {
			s.Stop()
		}
		a.events.closeAll()
		a.backend.Close()
		err = a.pipeline.Close()
	})
	return err
}
