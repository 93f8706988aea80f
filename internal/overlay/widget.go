package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget is something drawn on top of every head frame.
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img. Implementations must not keep img.
	Render(img *image.RGBA) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// Anchor selects the frame corner a widget position is relative to.
type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorTopRight
	AnchorBottomLeft
	AnchorBottomRight
	AnchorBottomCenter
)

// ParseAnchor maps a config name to an Anchor. Unknown names map to
// AnchorTopLeft.
func ParseAnchor(name string) Anchor {
	switch name {
	case "top-right":
		return AnchorTopRight
	case "bottom-left":
		return AnchorBottomLeft
	case "bottom-right":
		return AnchorBottomRight
	case "bottom-center":
		return AnchorBottomCenter
	default:
		return AnchorTopLeft
	}
}

// BaseWidget holds the state every widget shares.
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	anchor  Anchor
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates an enabled base widget.
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// SetAnchor sets the corner the position is measured from.
func (w *BaseWidget) SetAnchor(a Anchor) {
	w.anchor = a
}

// SetOpacity sets the widget's opacity, clamped to [0, 1].
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// Origin returns the top-left corner of a width×height box placed in
// bounds according to the anchor and offset.
func (w *BaseWidget) Origin(bounds image.Rectangle, width, height int) image.Point {
	switch w.anchor {
	case AnchorTopRight:
		return image.Pt(bounds.Max.X-width-w.x, bounds.Min.Y+w.y)
	case AnchorBottomLeft:
		return image.Pt(bounds.Min.X+w.x, bounds.Max.Y-height-w.y)
	case AnchorBottomRight:
		return image.Pt(bounds.Max.X-width-w.x, bounds.Max.Y-height-w.y)
	case AnchorBottomCenter:
		return image.Pt(bounds.Min.X+(bounds.Dx()-width)/2+w.x, bounds.Max.Y-height-w.y)
	default:
		return image.Pt(bounds.Min.X+w.x, bounds.Min.Y+w.y)
	}
}

// BlendImage composites src over dst at (x, y), scaling src alpha by
// opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	sb := src.Bounds()
	target := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())
	if target.Empty() {
		return
	}

	for dy := target.Min.Y; dy < target.Max.Y; dy++ {
		for dx := target.Min.X; dx < target.Max.X; dx++ {
			s := src.RGBAAt(sb.Min.X+dx-x, sb.Min.Y+dy-y)
			alpha := float64(s.A) / 255 * opacity
			if alpha <= 0 {
				continue
			}
			d := dst.RGBAAt(dx, dy)
			dst.SetRGBA(dx, dy, color.RGBA{
				R: mix(d.R, unpremultiply(s.R, s.A), alpha),
				G: mix(d.G, unpremultiply(s.G, s.A), alpha),
				B: mix(d.B, unpremultiply(s.B, s.A), alpha),
				A: uint8(float64(d.A) + (255-float64(d.A))*alpha + 0.5),
			})
		}
	}
}

// DrawRectangle blends a filled rectangle onto dst.
func DrawRectangle(dst *image.RGBA, r image.Rectangle, c color.RGBA, opacity float64) {
	tmp := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(tmp, tmp.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	BlendImage(dst, tmp, r.Min.X, r.Min.Y, opacity)
}

func mix(d, s uint8, alpha float64) uint8 {
	return uint8(float64(d)*(1-alpha) + float64(s)*alpha + 0.5)
}

// image.RGBA stores premultiplied color.
func unpremultiply(c, a uint8) uint8 {
	if a == 0 || a == 255 {
		return c
	}
	v := int(c) * 255 / int(a)
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
