// Package soft is a CPU implementation of gfx.Backend. Heads are plain RGBA
// images that are handed to output sinks after every frame.
package soft

import (
	"fmt"
	"image"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/gfx"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/output"
	"github.com/gogpu/gputypes"
)

// DefaultTextureAlign is the row and base alignment of linear textures.
const DefaultTextureAlign = 256

// HeadConfig describes one output head.
type HeadConfig struct {
	Name   string
	Width  int
	Height int
}

// DefaultHeads are the television and gamepad heads.
var DefaultHeads = []HeadConfig{
	{Name: "tv", Width: 854, Height: 480},
	{Name: "drc", Width: 854, Height: 480},
}

// Config holds backend settings.
type Config struct {
	Heads []HeadConfig
	// FPS paces BeginRender. Zero disables pacing.
	FPS          int
	TextureAlign int
	// Compiler validates shader source when set.
	Compiler gfx.ShaderCompiler
}

// Overlay draws on top of a finished head frame.
type Overlay interface {
	Render(img *image.RGBA) error
}

// Backend renders into in-memory heads.
type Backend struct {
	config Config
	heads  []*Head
	ticker *time.Ticker

	overlayMu sync.RWMutex
	overlay   Overlay

	invalidations atomic.Uint64
	frames        atomic.Uint64
}

var samplerDecl = regexp.MustCompile(`var\s+(\w+)\s*:\s*texture_2d`)

// New creates a backend with one head per config entry.
func New(config Config) (*Backend, error) {
	if len(config.Heads) == 0 {
		config.Heads = DefaultHeads
	}
	if config.TextureAlign <= 0 {
		config.TextureAlign = DefaultTextureAlign
	}
	if config.TextureAlign&(config.TextureAlign-1) != 0 {
		return nil, fmt.Errorf("texture alignment %d is not a power of two", config.TextureAlign)
	}

	b := &Backend{config: config}
	seen := make(map[string]bool)
	for _, hc := range config.Heads {
		if hc.Width <= 0 || hc.Height <= 0 {
			return nil, fmt.Errorf("head %q has invalid size %dx%d", hc.Name, hc.Width, hc.Height)
		}
		if seen[hc.Name] {
			return nil, fmt.Errorf("duplicate head %q", hc.Name)
		}
		seen[hc.Name] = true
		b.heads = append(b.heads, newHead(b, hc))
	}

	if config.FPS > 0 {
		b.ticker = time.NewTicker(time.Second / time.Duration(config.FPS))
	}

	logger.WithComponent("soft").Info().
		Int("heads", len(b.heads)).
		Int("fps", config.FPS).
		Bool("shader_validation", config.Compiler != nil).
		Msg("Software backend created")
	return b, nil
}

// InitTexture implements gfx.Backend. Only linear R8 and RG8 textures are
// supported.
func (b *Backend) InitTexture(t *gfx.Texture) error {
	switch t.Format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRG8Unorm:
	default:
		return fmt.Errorf("unsupported texture format %v", t.Format)
	}
	if t.Tiling != gfx.TilingLinear {
		return fmt.Errorf("texture %s: only linear tiling is supported", t.Label)
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("texture %s: invalid size %dx%d", t.Label, t.Width, t.Height)
	}

	align := b.config.TextureAlign
	t.Pitch = alignUp(t.Width*gfx.BytesPerTexel(t.Format), align)
	t.ImageSize = t.Pitch * t.Height
	t.Alignment = align
	return nil
}

// CompileProgram implements gfx.Backend.
func (b *Backend) CompileProgram(vertexSrc, pixelSrc string) (*gfx.Program, error) {
	prog := &gfx.Program{VertexSource: vertexSrc, PixelSource: pixelSrc}

	if c := b.config.Compiler; c != nil {
		var err error
		if prog.Vertex, err = c.Compile(vertexSrc); err != nil {
			return nil, fmt.Errorf("vertex shader: %w", err)
		}
		if prog.Pixel, err = c.Compile(pixelSrc); err != nil {
			return nil, fmt.Errorf("pixel shader: %w", err)
		}
	}

	for _, m := range samplerDecl.FindAllStringSubmatch(pixelSrc, -1) {
		prog.Samplers = append(prog.Samplers, m[1])
	}
	return prog, nil
}

// Invalidate implements gfx.Backend. CPU reads are always coherent, so this
// only counts.
func (b *Backend) Invalidate(mem []byte) {
	b.invalidations.Add(1)
}

// Heads implements gfx.Backend.
func (b *Backend) Heads() []gfx.Head {
	heads := make([]gfx.Head, len(b.heads))
	for i, h := range b.heads {
		heads[i] = h
	}
	return heads
}

// Head returns the named head.
func (b *Backend) Head(name string) (*Head, bool) {
	for _, h := range b.heads {
		if h.name == name {
			return h, true
		}
	}
	return nil, false
}

// HeadNames lists the heads in draw order.
func (b *Backend) HeadNames() []string {
	names := make([]string, len(b.heads))
	for i, h := range b.heads {
		names[i] = h.name
	}
	return names
}

// BeginRender implements gfx.Backend. It waits for the next frame tick.
func (b *Backend) BeginRender() error {
	if b.ticker != nil {
		<-b.ticker.C
	}
	return nil
}

// FinishRender implements gfx.Backend.
func (b *Backend) FinishRender() error {
	b.frames.Add(1)
	return nil
}

// SetOverlay sets the overlay drawn on every head. Nil removes it.
func (b *Backend) SetOverlay(o Overlay) {
	b.overlayMu.Lock()
	defer b.overlayMu.Unlock()
	b.overlay = o
}

func (b *Backend) currentOverlay() Overlay {
	b.overlayMu.RLock()
	defer b.overlayMu.RUnlock()
	return b.overlay
}

// Attach adds a sink to the named head.
func (b *Backend) Attach(head string, sink output.Output) error {
	h, ok := b.Head(head)
	if !ok {
		return fmt.Errorf("unknown head %q", head)
	}
	h.attach(sink)
	return nil
}

// Frames returns the number of finished frames.
func (b *Backend) Frames() uint64 { return b.frames.Load() }

// Invalidations returns the number of Invalidate calls.
func (b *Backend) Invalidations() uint64 { return b.invalidations.Load() }

// Close stops frame pacing.
func (b *Backend) Close() {
	if b.ticker != nil {
		b.ticker.Stop()
	}
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
