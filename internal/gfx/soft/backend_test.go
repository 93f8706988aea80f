package soft

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/gfx"
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/gogpu/gputypes"
)

var layout = camera.Layout{Width: 640, Height: 480, Pitch: 768}

type captureSink struct {
	frames  int
	last    *image.RGBA
	running bool
}

func (s *captureSink) Start() error    { s.running = true; return nil }
func (s *captureSink) Stop() error     { s.running = false; return nil }
func (s *captureSink) Name() string    { return "capture" }
func (s *captureSink) IsRunning() bool { return s.running }

func (s *captureSink) WriteFrame(img *image.RGBA) error {
	s.frames++
	s.last = img
	return nil
}

type markOverlay struct{ calls int }

func (o *markOverlay) Render(img *image.RGBA) error {
	o.calls++
	img.Pix[0], img.Pix[1], img.Pix[2] = 1, 2, 3
	return nil
}

type failingCompiler struct{}

func (failingCompiler) Compile(string) ([]uint32, error) { return nil, errors.New("bad shader") }

func newBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

// uniformFrame fills every luma byte with y and every chroma byte with c,
// leaving row padding zero.
func uniformFrame(t *testing.T, y, c byte) *memory.Block {
	t.Helper()
	var h memory.HeapAllocator
	blk, err := h.Alloc(256, layout.FrameSize())
	if err != nil {
		t.Fatal(err)
	}
	data := blk.Bytes()
	for row := 0; row < layout.Rows(); row++ {
		v := y
		if row >= layout.Height {
			v = c
		}
		line := data[row*layout.Pitch : row*layout.Pitch+layout.Width]
		for i := range line {
			line[i] = v
		}
	}
	return blk
}

func TestInitTexturePitch(t *testing.T) {
	b := newBackend(t, Config{})

	luma := gfx.Texture{Label: "luma", Width: 640, Height: 480, Format: gputypes.TextureFormatR8Unorm}
	chroma := gfx.Texture{Label: "chroma", Width: 320, Height: 240, Format: gputypes.TextureFormatRG8Unorm}
	for _, tex := range []*gfx.Texture{&luma, &chroma} {
		if err := b.InitTexture(tex); err != nil {
			t.Fatalf("InitTexture(%s) failed: %v", tex.Label, err)
		}
		if tex.Pitch != 768 {
			t.Errorf("%s pitch = %d, want 768", tex.Label, tex.Pitch)
		}
		if tex.Alignment != DefaultTextureAlign {
			t.Errorf("%s alignment = %d", tex.Label, tex.Alignment)
		}
	}
	if luma.ImageSize != 768*480 || chroma.ImageSize != 768*240 {
		t.Errorf("image sizes = %d, %d", luma.ImageSize, chroma.ImageSize)
	}
}

func TestInitTextureRejectsOptimalTiling(t *testing.T) {
	b := newBackend(t, Config{})
	tex := gfx.Texture{Label: "luma", Width: 640, Height: 480, Format: gputypes.TextureFormatR8Unorm, Tiling: gfx.TilingOptimal}
	if err := b.InitTexture(&tex); err == nil {
		t.Fatal("expected error for optimal tiling")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"alignment": {TextureAlign: 100},
		"size":      {Heads: []HeadConfig{{Name: "tv", Width: 0, Height: 480}}},
		"duplicate": {Heads: []HeadConfig{{Name: "tv", Width: 1, Height: 1}, {Name: "tv", Width: 1, Height: 1}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCompileProgramSamplers(t *testing.T) {
	b := newBackend(t, Config{})
	prog, err := b.CompileProgram(gfx.VertexShaderWGSL, gfx.PixelShaderWGSL)
	if err != nil {
		t.Fatalf("CompileProgram() failed: %v", err)
	}
	if len(prog.Samplers) != 2 || prog.Samplers[0] != "y_tex" || prog.Samplers[1] != "uv_tex" {
		t.Errorf("samplers = %v", prog.Samplers)
	}
	if prog.Vertex != nil || prog.Pixel != nil {
		t.Error("no SPIR-V expected without a compiler")
	}
}

func TestCompileProgramValidates(t *testing.T) {
	b := newBackend(t, Config{Compiler: failingCompiler{}})
	if _, err := b.CompileProgram(gfx.VertexShaderWGSL, gfx.PixelShaderWGSL); err == nil {
		t.Fatal("expected compiler error")
	}
}

func TestPresentUniformGray(t *testing.T) {
	b := newBackend(t, Config{})
	p := gfx.NewPresenter(b, layout)
	if err := p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	p.SetImage(uniformFrame(t, 235, 128))
	if err := p.Draw(); err != nil {
		t.Fatalf("Draw() failed: %v", err)
	}

	for _, name := range b.HeadNames() {
		h, _ := b.Head(name)
		img := h.Snapshot()

		// Left of the 640 on 854 quad is background.
		bg := img.RGBAAt(10, 240)
		if bg.R != 153 || bg.G != 77 || bg.B != 77 || bg.A != 255 {
			t.Errorf("%s background = %+v", name, bg)
		}

		for _, pt := range []image.Point{{427, 240}, {110, 0}, {745, 479}} {
			c := img.RGBAAt(pt.X, pt.Y)
			for _, v := range []uint8{c.R, c.G, c.B} {
				if v < 216 || v > 223 {
					t.Errorf("%s pixel %v = %+v, want gray near 219", name, pt, c)
					break
				}
			}
		}
	}
	if b.Frames() != 1 || b.Invalidations() != 1 {
		t.Errorf("frames = %d, invalidations = %d", b.Frames(), b.Invalidations())
	}
}

func TestDrawUnboundTexture(t *testing.T) {
	b := newBackend(t, Config{})
	p := gfx.NewPresenter(b, layout)
	if err := p.Init(); err != nil {
		t.Fatal(err)
	}
	if err := p.Draw(); !errors.Is(err, errUnbound) {
		t.Fatalf("Draw() = %v, want unbound error", err)
	}
}

func TestFinishFeedsSinksAndOverlay(t *testing.T) {
	b := newBackend(t, Config{Heads: []HeadConfig{{Name: "tv", Width: 64, Height: 48}}})
	sink := &captureSink{}
	stopped := &captureSink{}
	if err := sink.Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Attach("tv", sink); err != nil {
		t.Fatal(err)
	}
	if err := b.Attach("tv", stopped); err != nil {
		t.Fatal(err)
	}
	if err := b.Attach("nope", sink); err == nil {
		t.Error("expected unknown head error")
	}

	ov := &markOverlay{}
	b.SetOverlay(ov)

	h, _ := b.Head("tv")
	h.Clear(gfx.ClearColor)
	if err := h.Finish(); err != nil {
		t.Fatal(err)
	}

	if sink.frames != 1 || stopped.frames != 0 {
		t.Errorf("sink frames = %d, stopped sink frames = %d", sink.frames, stopped.frames)
	}
	if ov.calls != 1 {
		t.Errorf("overlay calls = %d", ov.calls)
	}
	if px := h.Snapshot().RGBAAt(0, 0); px.R != 1 || px.G != 2 || px.B != 3 {
		t.Errorf("overlay not in snapshot: %+v", px)
	}
}

func TestBeginRenderPaces(t *testing.T) {
	b := newBackend(t, Config{FPS: 50})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := b.BeginRender(); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("3 paced frames took %v", elapsed)
	}
}
