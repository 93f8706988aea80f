package gfx

import (
	"math"
	"strings"
	"testing"
)

func TestYUVToRGBNeutralChromaIsGray(t *testing.T) {
	y := float32(235) / 255
	u := float32(128) / 255
	v := float32(128) / 255

	r, g, b := YUVToRGB(y, u, v)

	// 128/255 is 0.5 + 1/510, so allow for that chroma offset.
	want := float64(y) - 0.0625
	const tol = 0.01
	for name, got := range map[string]float32{"r": r, "g": g, "b": b} {
		if math.Abs(float64(got)-want) > tol {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestYUVToRGBExactNeutral(t *testing.T) {
	r, g, b := YUVToRGB(0.75, 0.5, 0.5)
	for _, c := range []float32{r, g, b} {
		if math.Abs(float64(c)-0.6875) > 1e-6 {
			t.Fatalf("rgb = %v %v %v, want 0.6875", r, g, b)
		}
	}
}

func TestPixelRGBAClamps(t *testing.T) {
	black := PixelRGBA(0, 128, 128)
	if black.R != 0 || black.G != 0 || black.B != 0 || black.A != 255 {
		t.Errorf("black = %+v", black)
	}
	white := PixelRGBA(255, 128, 128)
	if white.R < 235 || white.A != 255 {
		t.Errorf("white = %+v", white)
	}
	blue := PixelRGBA(128, 255, 128)
	if blue.B != 255 || blue.B <= blue.R {
		t.Errorf("strong Cb should saturate blue: %+v", blue)
	}
}

func TestShaderConstantsMatchConversion(t *testing.T) {
	for _, c := range []string{"0.0625", "1.13983", "0.39465", "0.58060", "2.03211"} {
		if !strings.Contains(PixelShaderWGSL, c) {
			t.Errorf("pixel shader is missing constant %s", c)
		}
	}
	for _, s := range PixelSamplers {
		if !strings.Contains(PixelShaderWGSL, "var "+s+":") {
			t.Errorf("pixel shader is missing sampler %s", s)
		}
	}
}

func TestNagaCompilerRejectsInvalidSource(t *testing.T) {
	if _, err := (NagaCompiler{}).Compile("this is not wgsl {"); err == nil {
		t.Fatal("expected compile error")
	}
}
