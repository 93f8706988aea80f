package gfx

import (
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/gogpu/gputypes"
)

// Channel selects the source of one sampled component.
type Channel uint8

const (
	ChannelR Channel = iota
	ChannelG
	ChannelB
	ChannelA
	ChannelZero
	ChannelOne
)

// Swizzle maps the four sampled components (r, g, b, a) to texel channels
// or constants.
type Swizzle [4]Channel

// Tiling is the texel memory arrangement.
type Tiling uint8

const (
	// TilingLinear stores rows one after another at a fixed pitch. Capture
	// surfaces are only ever linear.
	TilingLinear Tiling = iota
	TilingOptimal
)

// Texture is a 2D texture whose storage is borrowed memory. Binding never
// copies texels.
type Texture struct {
	Label   string
	Width   int
	Height  int
	Format  gputypes.TextureFormat
	Tiling  Tiling
	Swizzle Swizzle

	// Filled in by Backend.InitTexture.
	Pitch     int
	ImageSize int
	Alignment int

	image  *memory.Block
	offset int
}

// Bind points the texture at b starting offset bytes in.
func (t *Texture) Bind(b *memory.Block, offset int) {
	t.image = b
	t.offset = offset
}

// Image returns the bound block.
func (t *Texture) Image() *memory.Block {
	return t.image
}

// Offset returns the byte offset of texel (0, 0) inside the bound block.
func (t *Texture) Offset() int {
	return t.offset
}

// Texels returns the bound storage starting at texel (0, 0), or nil when
// nothing is bound.
func (t *Texture) Texels() []byte {
	if t.image == nil || t.image.Freed() {
		return nil
	}
	data := t.image.Bytes()
	if t.offset > len(data) {
		return nil
	}
	return data[t.offset:]
}

// BytesPerTexel returns the texel size of the formats this package uses.
func BytesPerTexel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRG8Unorm:
		return 2
	default:
		return 4
	}
}

// Sampler describes texture filtering.
type Sampler struct {
	AddressMode gputypes.AddressMode
	Filter      gputypes.FilterMode
}

// ClampedBilinear is the sampler used for both planes.
var ClampedBilinear = Sampler{
	AddressMode: gputypes.AddressModeClampToEdge,
	Filter:      gputypes.FilterModeLinear,
}
