package soft

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/bryanchriswhite/DualCam/internal/gfx"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/output"
	"github.com/gogpu/gputypes"
)

// Head is one render target backed by an RGBA image.
type Head struct {
	backend *Backend
	name    string

	img *image.RGBA

	frontMu sync.RWMutex
	front   *image.RGBA

	sinksMu sync.RWMutex
	sinks   []output.Output
}

func newHead(b *Backend, hc HeadConfig) *Head {
	rect := image.Rect(0, 0, hc.Width, hc.Height)
	return &Head{
		backend: b,
		name:    hc.Name,
		img:     image.NewRGBA(rect),
		front:   image.NewRGBA(rect),
	}
}

// Name implements gfx.Head.
func (h *Head) Name() string { return h.name }

// Size implements gfx.Head.
func (h *Head) Size() (int, int) {
	b := h.img.Bounds()
	return b.Dx(), b.Dy()
}

// Begin implements gfx.Head.
func (h *Head) Begin() error { return nil }

// Clear implements gfx.Head. It must be called between Begin and Finish.
func (h *Head) Clear(c gputypes.Color) {
	px := color.RGBA{R: unorm8(c.R), G: unorm8(c.G), B: unorm8(c.B), A: unorm8(c.A)}
	pix := h.img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = px.R
		pix[i+1] = px.G
		pix[i+2] = px.B
		pix[i+3] = px.A
	}
}

// Draw implements gfx.Head. The quad must be axis aligned.
func (h *Head) Draw(p *gfx.Pass) error {
	if p.VertexCount != 4 {
		return fmt.Errorf("expected 4 vertices, got %d", p.VertexCount)
	}
	luma, chroma, err := boundPlanes(p)
	if err != nil {
		return err
	}

	w, ht := h.Size()
	q := newQuad(p.Positions, p.TexCoords, w, ht)
	x0, x1 := clampSpan(q.x0, q.x1, w)
	y0, y1 := clampSpan(q.y0, q.y1, ht)

	for py := y0; py < y1; py++ {
		v := q.v(float64(py) + 0.5)
		row := h.img.Pix[py*h.img.Stride:]
		for px := x0; px < x1; px++ {
			u := q.u(float64(px) + 0.5)

			yv := luma.sample(u, v, p.Sampler.Filter)
			uv := chroma.sample(u, v, p.Sampler.Filter)
			r, g, b := gfx.YUVToRGB(yv[0], uv[0], uv[1])

			o := px * 4
			row[o] = unorm8(float64(r))
			row[o+1] = unorm8(float64(g))
			row[o+2] = unorm8(float64(b))
			row[o+3] = 255
		}
	}
	return nil
}

// Finish implements gfx.Head. It draws the overlay and hands the frame to
// every running sink. Sink errors are logged, not returned.
func (h *Head) Finish() error {
	if o := h.backend.currentOverlay(); o != nil {
		if err := o.Render(h.img); err != nil {
			logger.WithComponent("soft").Debug().Err(err).Str("head", h.name).Msg("Overlay render failed")
		}
	}

	h.frontMu.Lock()
	copy(h.front.Pix, h.img.Pix)
	h.frontMu.Unlock()

	h.sinksMu.RLock()
	defer h.sinksMu.RUnlock()
	for _, s := range h.sinks {
		if !s.IsRunning() {
			continue
		}
		if err := s.WriteFrame(h.img); err != nil {
			logger.WithComponent("soft").Warn().Err(err).
				Str("head", h.name).
				Str("sink", s.Name()).
				Msg("Failed to write frame")
		}
	}
	return nil
}

// Snapshot returns a copy of the last finished frame.
func (h *Head) Snapshot() *image.RGBA {
	h.frontMu.RLock()
	defer h.frontMu.RUnlock()

	img := image.NewRGBA(h.front.Rect)
	copy(img.Pix, h.front.Pix)
	return img
}

func (h *Head) attach(s output.Output) {
	h.sinksMu.Lock()
	defer h.sinksMu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Sinks returns the attached sinks.
func (h *Head) Sinks() []output.Output {
	h.sinksMu.RLock()
	defer h.sinksMu.RUnlock()
	return append([]output.Output(nil), h.sinks...)
}

// quad is an axis-aligned quad in pixel space with linear texture mapping.
type quad struct {
	x0, x1, y0, y1 float64 // pixel edges, y0 at the top
	uL, uR, vT, vB float64
}

func newQuad(pos, tex [4]gfx.Vec2, w, h int) quad {
	left, right, top, bottom := 0, 0, 0, 0
	for i := 1; i < 4; i++ {
		if pos[i].X < pos[left].X {
			left = i
		}
		if pos[i].X > pos[right].X {
			right = i
		}
		if pos[i].Y > pos[top].Y {
			top = i
		}
		if pos[i].Y < pos[bottom].Y {
			bottom = i
		}
	}

	toX := func(x float32) float64 { return (float64(x) + 1) / 2 * float64(w) }
	toY := func(y float32) float64 { return (1 - float64(y)) / 2 * float64(h) }

	return quad{
		x0: toX(pos[left].X), x1: toX(pos[right].X),
		y0: toY(pos[top].Y), y1: toY(pos[bottom].Y),
		uL: float64(tex[left].X), uR: float64(tex[right].X),
		vT: float64(tex[top].Y), vB: float64(tex[bottom].Y),
	}
}

func (q quad) u(x float64) float32 {
	return float32(q.uL + (x-q.x0)/(q.x1-q.x0)*(q.uR-q.uL))
}

func (q quad) v(y float64) float32 {
	return float32(q.vT + (y-q.y0)/(q.y1-q.y0)*(q.vB-q.vT))
}

// clampSpan returns the pixel columns whose centers lie in [a, b).
func clampSpan(a, b float64, limit int) (int, int) {
	lo := int(math.Ceil(a - 0.5))
	hi := int(math.Ceil(b - 0.5))
	if lo < 0 {
		lo = 0
	}
	if hi > limit {
		hi = limit
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func unorm8[T float32 | float64](f T) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	default:
		return uint8(f*255 + 0.5)
	}
}

var errUnbound = errors.New("texture not bound")

// plane is a bound texture ready for sampling.
type plane struct {
	tex  *gfx.Texture
	data []byte
	bpp  int
}

func boundPlanes(p *gfx.Pass) (plane, plane, error) {
	var planes [2]plane
	for i, t := range p.Textures {
		if t == nil {
			return plane{}, plane{}, fmt.Errorf("slot %d: %w", i, errUnbound)
		}
		data := t.Texels()
		if data == nil {
			return plane{}, plane{}, fmt.Errorf("%s: %w", t.Label, errUnbound)
		}
		bpp := gfx.BytesPerTexel(t.Format)
		if need := (t.Height-1)*t.Pitch + t.Width*bpp; len(data) < need {
			return plane{}, plane{}, fmt.Errorf("%s: bound memory holds %d bytes, need %d", t.Label, len(data), need)
		}
		planes[i] = plane{tex: t, data: data, bpp: bpp}
	}
	return planes[0], planes[1], nil
}

// sample reads the swizzled texel at normalized (u, v) with clamp-to-edge
// addressing.
func (pl plane) sample(u, v float32, filter gputypes.FilterMode) [4]float32 {
	w, h := pl.tex.Width, pl.tex.Height
	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5

	if filter != gputypes.FilterModeLinear {
		return pl.fetch(clampInt(int(math.Floor(float64(x+0.5))), w), clampInt(int(math.Floor(float64(y+0.5))), h))
	}

	fx, fy := math.Floor(float64(x)), math.Floor(float64(y))
	ax, ay := float32(float64(x)-fx), float32(float64(y)-fy)
	x0, y0 := clampInt(int(fx), w), clampInt(int(fy), h)
	x1, y1 := clampInt(int(fx)+1, w), clampInt(int(fy)+1, h)

	t00, t10 := pl.fetch(x0, y0), pl.fetch(x1, y0)
	t01, t11 := pl.fetch(x0, y1), pl.fetch(x1, y1)

	var out [4]float32
	for i := range out {
		top := t00[i] + (t10[i]-t00[i])*ax
		bot := t01[i] + (t11[i]-t01[i])*ax
		out[i] = top + (bot-top)*ay
	}
	return out
}

func (pl plane) fetch(x, y int) [4]float32 {
	o := y*pl.tex.Pitch + x*pl.bpp
	var raw [4]float32
	for c := 0; c < pl.bpp; c++ {
		raw[c] = float32(pl.data[o+c]) / 255
	}

	var out [4]float32
	for i, ch := range pl.tex.Swizzle {
		switch ch {
		case gfx.ChannelZero:
			out[i] = 0
		case gfx.ChannelOne:
			out[i] = 1
		default:
			out[i] = raw[ch]
		}
	}
	return out
}

func clampInt(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
