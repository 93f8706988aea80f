package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextOptions configures a TextWidget.
type TextOptions struct {
	Text       string
	X, Y       int
	Anchor     Anchor
	Opacity    float64
	Color      color.RGBA
	Background *color.RGBA
	Padding    int
	// Source, when set, is called on every render and replaces Text.
	Source func() string
}

// TextWidget draws one line of fixed-width text.
type TextWidget struct {
	*BaseWidget

	mu        sync.RWMutex
	text      string
	source    func() string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

var face = basicfont.Face7x13

// NewTextWidget creates a text widget. Zero options give white text with a
// 5px padding.
func NewTextWidget(id string, opts TextOptions) (*TextWidget, error) {
	if id == "" {
		return nil, fmt.Errorf("text widget requires an id")
	}
	if opts.Text == "" && opts.Source == nil {
		return nil, fmt.Errorf("text widget %s requires text or a source", id)
	}
	if opts.Opacity == 0 {
		opts.Opacity = 1.0
	}
	if opts.Color == (color.RGBA{}) {
		opts.Color = color.RGBA{255, 255, 255, 255}
	}
	if opts.Padding == 0 {
		opts.Padding = 5
	}

	w := &TextWidget{
		BaseWidget: NewBaseWidget(id, opts.X, opts.Y, opts.Opacity),
		text:       opts.Text,
		source:     opts.Source,
		textColor:  opts.Color,
		bgColor:    opts.Background,
		padding:    opts.Padding,
	}
	w.SetAnchor(opts.Anchor)
	return w, nil
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	text := w.Text()
	if !w.IsEnabled() || text == "" {
		return nil
	}

	w.mu.RLock()
	fg, bg, pad := w.textColor, w.bgColor, w.padding
	w.mu.RUnlock()

	textWidth := font.MeasureString(face, text).Ceil()
	lineHeight := face.Metrics().Height.Ceil()
	boxW, boxH := textWidth+pad*2, lineHeight+pad*2
	at := w.Origin(img.Bounds(), boxW, boxH)

	if bg != nil {
		DrawRectangle(img, image.Rect(at.X, at.Y, at.X+boxW, at.Y+boxH), *bg, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidth, lineHeight))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: face.Metrics().Ascent},
	}
	d.DrawString(text)

	BlendImage(img, textImg, at.X+pad, at.Y+pad, w.opacity)
	return nil
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.text = text
}

// Text returns the text the next render draws.
func (w *TextWidget) Text() string {
	w.mu.RLock()
	src, text := w.source, w.text
	w.mu.RUnlock()
	if src != nil {
		return src()
	}
	return text
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bgColor = c
}
