// Package display shows rendered heads in X11 windows.
package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/DualCam/internal/logger"
)

// putImageHeader is the fixed size of a PutImage request in bytes.
const putImageHeader = 24

// Window is an output sink that shows one head in an X11 window.
type Window struct {
	head   string
	width  int
	height int

	mu      sync.RWMutex
	conn    *xgb.Conn
	screen  *xproto.ScreenInfo
	window  xproto.Window
	gc      xproto.Gcontext
	running bool

	bpp      int
	pad      int
	maxBytes int
	buf      []byte
}

// NewWindow connects to the X server named by $DISPLAY.
func NewWindow(head string, width, height int) (*Window, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	w := &Window{
		head:     head,
		width:    width,
		height:   height,
		conn:     conn,
		screen:   screen,
		maxBytes: int(setup.MaximumRequestLength)*4 - putImageHeader,
	}
	for _, format := range setup.PixmapFormats {
		if format.Depth == screen.RootDepth {
			w.bpp = int(format.BitsPerPixel) / 8
			w.pad = int(format.ScanlinePad) / 8
			break
		}
	}
	if w.bpp != 3 && w.bpp != 4 {
		conn.Close()
		return nil, fmt.Errorf("unsupported pixmap format for depth %d", screen.RootDepth)
	}
	return w, nil
}

// Start creates and maps the window.
func (w *Window) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("window for %s already running", w.head)
	}

	id, err := xproto.NewWindowId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	w.window = id

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		w.conn,
		w.screen.RootDepth,
		w.window,
		w.screen.Root,
		0, 0,
		uint16(w.width), uint16(w.height),
		0,
		xproto.WindowClassInputOutput,
		w.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	log := logger.WithComponent("display")
	if err := w.setWindowTitle("DualCam - " + w.head); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := w.setWindowClass("dualcam", "DualCam"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(w.conn, w.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(w.conn, gc, xproto.Drawable(w.window), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	w.gc = gc
	w.conn.Sync()

	go w.drainEvents()

	w.running = true
	log.Info().
		Str("head", w.head).
		Int("width", w.width).
		Int("height", w.height).
		Uint32("window_id", uint32(w.window)).
		Msg("Head window created")
	return nil
}

// drainEvents keeps the connection's event queue from filling up.
func (w *Window) drainEvents() {
	for {
		ev, err := w.conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
	}
}

// Stop destroys the window and closes the connection.
func (w *Window) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	if w.gc != 0 {
		xproto.FreeGC(w.conn, w.gc)
	}
	if w.window != 0 {
		xproto.DestroyWindow(w.conn, w.window)
		w.conn.Sync()
	}
	w.conn.Close()
	w.running = false

	logger.WithComponent("display").Info().Str("head", w.head).Msg("Head window closed")
	return nil
}

// WriteFrame copies img into the window.
func (w *Window) WriteFrame(img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("window for %s not running", w.head)
	}
	b := img.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("image size mismatch: got %dx%d, expected %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}

	var stride int
	w.buf, stride = encodeRows(w.buf, img, w.bpp, w.pad, w.screen.RootDepth == 32)

	rows := stripRows(w.maxBytes, stride)
	if rows == 0 {
		return fmt.Errorf("row of %d bytes exceeds the X request size", stride)
	}
	for y := 0; y < w.height; y += rows {
		n := min(rows, w.height-y)
		err := xproto.PutImageChecked(
			w.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(w.window),
			w.gc,
			uint16(w.width), uint16(n),
			0, int16(y),
			0,
			w.screen.RootDepth,
			w.buf[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// Name returns the sink name.
func (w *Window) Name() string {
	return "X11 window " + w.head
}

// IsRunning returns true if the window is shown.
func (w *Window) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Window) setWindowTitle(title string) error {
	titleAtom, err := w.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := w.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (w *Window) setWindowClass(instance, class string) error {
	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.window,
		xproto.AtomWmClass,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

func (w *Window) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(w.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// encodeRows converts img to the server's ZPixmap layout: BGR or BGRx
// pixels, rows padded to pad bytes. buf is reused when large enough.
func encodeRows(buf []byte, img *image.RGBA, bpp, pad int, alpha bool) ([]byte, int) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	stride := (width*bpp + pad - 1) / pad * pad

	if cap(buf) < stride*height {
		buf = make([]byte, stride*height)
	}
	buf = buf[:stride*height]

	for y := 0; y < height; y++ {
		src := img.Pix[(y)*img.Stride:]
		dst := buf[y*stride:]
		for x := 0; x < width; x++ {
			s, d := x*4, x*bpp
			dst[d] = src[s+2]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s]
			if bpp == 4 {
				if alpha {
					dst[d+3] = src[s+3]
				} else {
					dst[d+3] = 0
				}
			}
		}
	}
	return buf, stride
}

// stripRows is how many rows of stride bytes fit in one request.
func stripRows(maxBytes, stride int) int {
	if stride <= 0 {
		return 0
	}
	return maxBytes / stride
}
