package display

import (
	"image"
	"image/color"
	"testing"
)

func TestEncodeRowsBGRx(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetRGBA(2, 1, color.RGBA{R: 9, G: 8, B: 7, A: 255})

	buf, stride := encodeRows(nil, img, 4, 4, false)
	if stride != 12 || len(buf) != 24 {
		t.Fatalf("stride = %d len = %d", stride, len(buf))
	}
	if buf[0] != 3 || buf[1] != 2 || buf[2] != 1 || buf[3] != 0 {
		t.Errorf("pixel (0,0) = %v", buf[0:4])
	}
	if p := buf[stride+8 : stride+12]; p[0] != 7 || p[1] != 8 || p[2] != 9 {
		t.Errorf("pixel (2,1) = %v", p)
	}
}

func TestEncodeRowsPadsBGR(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	buf, stride := encodeRows(nil, img, 3, 4, false)
	if stride != 12 || len(buf) != 12 {
		t.Errorf("stride = %d len = %d, want 12", stride, len(buf))
	}

	// The buffer is reused when it is large enough.
	again, _ := encodeRows(buf, img, 3, 4, false)
	if &again[0] != &buf[0] {
		t.Error("buffer was reallocated")
	}
}

func TestStripRows(t *testing.T) {
	// 854 BGRx pixels per row against the classic 256 KiB request limit.
	if got := stripRows(262144-putImageHeader, 854*4); got != 76 {
		t.Errorf("stripRows() = %d, want 76", got)
	}
	if stripRows(100, 0) != 0 {
		t.Error("zero stride must yield zero rows")
	}
}
