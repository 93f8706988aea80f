package gfx

import (
	"github.com/gogpu/gputypes"
)

// Program is a compiled vertex/pixel shader pair.
type Program struct {
	VertexSource string
	PixelSource  string

	// SPIR-V words, nil when the backend does not compile to SPIR-V.
	Vertex []uint32
	Pixel  []uint32

	// Samplers lists the pixel shader's texture slots in binding order.
	Samplers []string
}

// Topology is the primitive type of a draw.
type Topology uint8

const (
	TopologyQuads Topology = iota
	TopologyTriangleStrip
)

// Pass is one draw: a program, its two textures, a sampler and a
// four-vertex quad.
type Pass struct {
	Program     *Program
	Textures    [2]*Texture
	Sampler     Sampler
	Positions   [4]Vec2
	TexCoords   [4]Vec2
	Topology    Topology
	VertexCount int
}

// Head is one independent output target.
type Head interface {
	Name() string
	Size() (width, height int)
	Begin() error
	Clear(c gputypes.Color)
	Draw(p *Pass) error
	Finish() error
}

// Backend is the rendering service the presenter drives. All calls come
// from the render loop goroutine.
type Backend interface {
	// InitTexture validates the texture description and computes its
	// pitch, size and alignment.
	InitTexture(t *Texture) error
	// CompileProgram builds a shader pair from source text.
	CompileProgram(vertexSrc, pixelSrc string) (*Program, error)
	// Invalidate makes CPU writes to mem visible to texture fetches.
	Invalidate(mem []byte)
	// Heads returns the output targets in draw order.
	Heads() []Head
	// BeginRender blocks until the backend accepts another frame.
	BeginRender() error
	// FinishRender submits the frame.
	FinishRender() error
}

// ShaderCompiler turns shader source into SPIR-V.
type ShaderCompiler interface {
	Compile(source string) ([]uint32, error)
}
