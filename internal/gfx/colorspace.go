package gfx

import "image/color"

// BT.601 coefficients, shared with PixelShaderWGSL.
const (
	lumaOffset   = 0.0625
	chromaOffset = 0.5

	crToR = 1.13983
	cbToG = 0.39465
	crToG = 0.58060
	cbToB = 2.03211
)

// YUVToRGB converts normalized luma and chroma samples to RGB. The result
// is not clamped.
func YUVToRGB(y, u, v float32) (r, g, b float32) {
	yA := y - lumaOffset
	uA := u - chromaOffset
	vA := v - chromaOffset

	r = yA + crToR*vA
	g = yA - cbToG*uA - crToG*vA
	b = yA + cbToB*uA
	return r, g, b
}

// PixelRGBA converts 8-bit Y, U, V samples to an opaque RGBA pixel.
func PixelRGBA(y, u, v uint8) color.RGBA {
	r, g, b := YUVToRGB(float32(y)/255, float32(u)/255, float32(v)/255)
	return color.RGBA{R: unorm8(r), G: unorm8(g), B: unorm8(b), A: 255}
}

func unorm8(f float32) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	default:
		return uint8(f*255 + 0.5)
	}
}
