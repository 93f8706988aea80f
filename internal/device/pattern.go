package device

import "github.com/bryanchriswhite/DualCam/internal/camera"

// 75% SMPTE bars as 8-bit BT.601 Y, Cb, Cr.
var barColors = [7][3]uint8{
	{180, 128, 128}, // white
	{162, 44, 142},  // yellow
	{131, 156, 44},  // cyan
	{112, 72, 58},   // green
	{84, 184, 198},  // magenta
	{65, 100, 212},  // red
	{35, 212, 114},  // blue
}

// patternRows is the scratch memory drawPattern needs: bar luma, bar
// chroma, ramp luma and ramp chroma rows.
const patternRows = 4

// drawPattern renders frame n of a bar pattern that scrolls horizontally,
// with a luma ramp across the bottom quarter, straight into an NV12 frame
// with the layout's pitch. scratch holds patternRows*Pitch bytes.
func drawPattern(frame, scratch []byte, l camera.Layout, n uint64) {
	pitch := l.Pitch
	barY := scratch[0*pitch : 0*pitch+l.Width]
	barUV := scratch[1*pitch : 1*pitch+l.Width]
	rampY := scratch[2*pitch : 2*pitch+l.Width]
	rampUV := scratch[3*pitch : 3*pitch+l.Width]

	shift := int(n*4) % l.Width
	for x := 0; x < l.Width; x++ {
		bar := barColors[((x+shift)%l.Width)*7/l.Width]
		barY[x] = bar[0]
		rampY[x] = uint8(16 + x*219/l.Width)
	}
	for x := 0; x+1 < l.Width; x += 2 {
		bar := barColors[((x+shift)%l.Width)*7/l.Width]
		barUV[x], barUV[x+1] = bar[1], bar[2]
		rampUV[x], rampUV[x+1] = 128, 128
	}

	split := l.Height * 3 / 4
	for y := 0; y < l.Height; y++ {
		src := barY
		if y >= split {
			src = rampY
		}
		copy(frame[y*pitch:], src)
	}
	chroma := frame[l.LumaSize():]
	for y := 0; y < l.Height/2; y++ {
		src := barUV
		if y*2 >= split {
			src = rampUV
		}
		copy(chroma[y*pitch:], src)
	}
}

// copyPacked copies a tightly packed NV12 frame into dst at the layout's
// pitch.
func copyPacked(dst, src []byte, l camera.Layout) {
	for row := 0; row < l.Rows(); row++ {
		copy(dst[row*l.Pitch:row*l.Pitch+l.Width], src[row*l.Width:(row+1)*l.Width])
	}
}

// packedSize is the size of an unpadded NV12 frame.
func packedSize(l camera.Layout) int {
	return l.Width * l.Rows()
}
