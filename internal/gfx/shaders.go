package gfx

import (
	"fmt"

	"github.com/gogpu/naga"
)

// VertexShaderWGSL passes the quad through untransformed.
const VertexShaderWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) tex_coord: vec2<f32>,
}

@vertex
fn vs_main(@location(0) in_pos: vec2<f32>, @location(1) in_tex: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(in_pos.x, in_pos.y, 0.0, 1.0);
    out.tex_coord = in_tex;
    return out;
}
`

// PixelShaderWGSL samples the luma and chroma planes and converts to RGB.
// Keep the constants in sync with YUVToRGB.
const PixelShaderWGSL = `
@group(0) @binding(0) var y_tex: texture_2d<f32>;
@group(0) @binding(1) var uv_tex: texture_2d<f32>;
@group(0) @binding(2) var plane_sampler: sampler;

@fragment
fn fs_main(@location(0) tex_coord: vec2<f32>) -> @location(0) vec4<f32> {
    let y = textureSample(y_tex, plane_sampler, tex_coord).r;
    let uv = textureSample(uv_tex, plane_sampler, tex_coord).rg;

    let y_a = y - 0.0625;
    let u_a = uv.r - 0.5;
    let v_a = uv.g - 0.5;

    let r = y_a + 1.13983 * v_a;
    let g = y_a - 0.39465 * u_a - 0.58060 * v_a;
    let b = y_a + 2.03211 * u_a;
    return vec4<f32>(r, g, b, 1.0);
}
`

// PixelSamplers are the pixel shader's texture slots in binding order.
var PixelSamplers = []string{"y_tex", "uv_tex"}

// NagaCompiler compiles WGSL to SPIR-V with naga.
type NagaCompiler struct{}

// Compile returns the SPIR-V module as little-endian words.
func (NagaCompiler) Compile(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(spirv))
	}

	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}
