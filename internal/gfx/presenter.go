// Package gfx presents planar capture frames as two textures and draws them
// on every output head with a YUV to RGB shader.
package gfx

import (
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/gogpu/gputypes"
)

// ClearColor is the background around the aspect-corrected quad.
var ClearColor = gputypes.Color{R: 0.6, G: 0.3, B: 0.3, A: 1.0}

// Presenter aliases the luma and chroma planes of a capture surface as
// textures and renders them. It must only be used from the render loop.
type Presenter struct {
	backend Backend
	layout  camera.Layout

	luma    Texture
	chroma  Texture
	sampler Sampler
	program *Program

	invalidations atomic.Uint64
	frames        atomic.Uint64
}

// NewPresenter creates a presenter for frames with the given layout.
func NewPresenter(backend Backend, layout camera.Layout) *Presenter {
	return &Presenter{
		backend: backend,
		layout:  layout,
		sampler: ClampedBilinear,
	}
}

// Init creates both textures and compiles the shader pair.
func (p *Presenter) Init() error {
	log := logger.WithComponent("gfx")

	p.luma = Texture{
		Label:   "luma",
		Width:   p.layout.Width,
		Height:  p.layout.Height,
		Format:  gputypes.TextureFormatR8Unorm,
		Tiling:  TilingLinear,
		Swizzle: Swizzle{ChannelR, ChannelZero, ChannelZero, ChannelOne},
	}
	p.chroma = Texture{
		Label:   "chroma",
		Width:   p.layout.Width / 2,
		Height:  p.layout.Height / 2,
		Format:  gputypes.TextureFormatRG8Unorm,
		Tiling:  TilingLinear,
		Swizzle: Swizzle{ChannelR, ChannelG, ChannelZero, ChannelOne},
	}

	for _, t := range []*Texture{&p.luma, &p.chroma} {
		if err := p.backend.InitTexture(t); err != nil {
			return fmt.Errorf("failed to init %s texture: %w", t.Label, err)
		}
		// Aliasing only works if the texture rows line up with the
		// capture rows.
		if t.Pitch != p.layout.Pitch {
			return fmt.Errorf("%s texture pitch %d does not match capture pitch %d", t.Label, t.Pitch, p.layout.Pitch)
		}
		log.Debug().
			Str("texture", t.Label).
			Int("size", t.ImageSize).
			Int("alignment", t.Alignment).
			Int("pitch", t.Pitch).
			Msg("Texture initialized")
	}

	prog, err := p.backend.CompileProgram(VertexShaderWGSL, PixelShaderWGSL)
	if err != nil {
		return fmt.Errorf("failed to compile shaders: %w", err)
	}
	if len(prog.Samplers) < 2 {
		return fmt.Errorf("pixel shader exposes %d samplers, need 2", len(prog.Samplers))
	}
	p.program = prog

	log.Info().
		Int("width", p.layout.Width).
		Int("height", p.layout.Height).
		Int("heads", len(p.backend.Heads())).
		Msg("Presenter initialized")
	return nil
}

// SetImage binds frame as the backing store of both textures. Binding the
// frame that is already bound does nothing.
func (p *Presenter) SetImage(frame *memory.Block) {
	if frame == nil || frame == p.luma.Image() {
		return
	}
	data := frame.Bytes()
	if n := p.layout.FrameSize(); len(data) > n {
		data = data[:n]
	}
	p.backend.Invalidate(data)
	p.invalidations.Add(1)

	p.luma.Bind(frame, 0)
	p.chroma.Bind(frame, p.layout.LumaSize())
}

// Draw renders one quad on every head. It blocks while the backend is
// not ready for a new frame.
func (p *Presenter) Draw() error {
	if err := p.backend.BeginRender(); err != nil {
		return fmt.Errorf("failed to begin render: %w", err)
	}

	for _, head := range p.backend.Heads() {
		if err := p.drawHead(head); err != nil {
			return fmt.Errorf("head %s: %w", head.Name(), err)
		}
	}

	if err := p.backend.FinishRender(); err != nil {
		return fmt.Errorf("failed to finish render: %w", err)
	}
	p.frames.Add(1)
	return nil
}

func (p *Presenter) drawHead(head Head) error {
	if err := head.Begin(); err != nil {
		return err
	}
	head.Clear(ClearColor)

	width, _ := head.Size()
	pass := &Pass{
		Program:     p.program,
		Textures:    [2]*Texture{&p.luma, &p.chroma},
		Sampler:     p.sampler,
		Positions:   QuadPositions(p.layout.Width, width),
		TexCoords:   QuadTexCoords,
		Topology:    TopologyQuads,
		VertexCount: 4,
	}
	if err := head.Draw(pass); err != nil {
		return err
	}
	return head.Finish()
}

// Luma returns the luma texture.
func (p *Presenter) Luma() *Texture { return &p.luma }

// Chroma returns the chroma texture.
func (p *Presenter) Chroma() *Texture { return &p.chroma }

// Invalidations returns how many times a new frame was bound.
func (p *Presenter) Invalidations() uint64 { return p.invalidations.Load() }

// Frames returns the number of completed draws.
func (p *Presenter) Frames() uint64 { return p.frames.Load() }
