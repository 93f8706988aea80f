// Package snapshot writes capture frames to disk as headerless NV12 and
// converts them back for viewing.
package snapshot

import (
	"fmt"
	"image"
	"io"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/gfx"
)

// WriteNV12 writes the visible part of frame: Height luma rows and Height/2
// chroma rows of exactly Width bytes each, dropping the row padding.
func WriteNV12(w io.Writer, frame []byte, layout camera.Layout) (int64, error) {
	if need := (layout.Rows()-1)*layout.Pitch + layout.Width; len(frame) < need {
		return 0, fmt.Errorf("frame holds %d bytes, layout %dx%d pitch %d needs %d",
			len(frame), layout.Width, layout.Height, layout.Pitch, need)
	}

	var total int64
	for row := 0; row < layout.Rows(); row++ {
		start := row * layout.Pitch
		n, err := w.Write(frame[start : start+layout.Width])
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("row %d: %w", row, err)
		}
	}
	return total, nil
}

// FileSize is the size of a snapshot file for a width×height frame.
func FileSize(width, height int) int {
	return width*height + width*(height/2)
}

// DecodeNV12 converts a tightly packed NV12 image to RGBA.
func DecodeNV12(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("invalid NV12 size %dx%d", width, height)
	}
	if want := FileSize(width, height); len(data) < want {
		return nil, fmt.Errorf("NV12 data holds %d bytes, need %d", len(data), want)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	luma := data[:width*height]
	chroma := data[width*height:]
	for y := 0; y < height; y++ {
		crow := chroma[(y/2)*width:]
		for x := 0; x < width; x++ {
			c := (x / 2) * 2
			img.SetRGBA(x, y, gfx.PixelRGBA(luma[y*width+x], crow[c], crow[c+1]))
		}
	}
	return img, nil
}
