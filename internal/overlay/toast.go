package overlay

import (
	"image"
	"image/color"
	"sync"
	"time"
)

// DefaultToastDuration is how long a toast stays visible.
const DefaultToastDuration = 3 * time.Second

// Toast shows a short message near the bottom of the frame for a while.
type Toast struct {
	text     *TextWidget
	duration time.Duration
	now      func() time.Time

	mu      sync.Mutex
	expires time.Time
}

// NewToast creates a hidden toast.
func NewToast(id string, duration time.Duration) *Toast {
	if duration <= 0 {
		duration = DefaultToastDuration
	}
	bg := color.RGBA{0, 0, 0, 255}
	text, _ := NewTextWidget(id, TextOptions{
		Text:       " ",
		Y:          24,
		Anchor:     AnchorBottomCenter,
		Opacity:    0.85,
		Background: &bg,
		Padding:    8,
	})
	return &Toast{text: text, duration: duration, now: time.Now}
}

// ID returns the widget id.
func (t *Toast) ID() string { return t.text.ID() }

// Type returns the widget type
func (t *Toast) Type() string { return "toast" }

// IsEnabled reports whether the widget is enabled.
func (t *Toast) IsEnabled() bool { return t.text.IsEnabled() }

// SetEnabled enables or disables the widget.
func (t *Toast) SetEnabled(enabled bool) { t.text.SetEnabled(enabled) }

// Show displays message for the toast duration, replacing any message
// already shown.
func (t *Toast) Show(message string) {
	t.text.SetText(message)
	t.mu.Lock()
	t.expires = t.now().Add(t.duration)
	t.mu.Unlock()
}

// Visible reports whether a message is currently shown.
func (t *Toast) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Before(t.expires)
}

// Render draws the message while it is visible.
func (t *Toast) Render(img *image.RGBA) error {
	if !t.Visible() {
		return nil
	}
	return t.text.Render(img)
}
