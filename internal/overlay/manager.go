// Package overlay draws text widgets and toasts over rendered head frames.
package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/DualCam/internal/logger"
)

// Manager handles overlay widgets and rendering
type Manager struct {
	mu      sync.RWMutex
	widgets []Widget // render order
	enabled bool
}

// NewManager creates an enabled manager with no widgets.
func NewManager() *Manager {
	return &Manager{enabled: true}
}

func (m *Manager) indexOf(id string) int {
	for i, w := range m.widgets {
		if w.ID() == id {
			return i
		}
	}
	return -1
}

// AddWidget appends a widget. Later widgets draw on top.
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(widget.ID()) >= 0 {
		return fmt.Errorf("widget with ID %s already exists", widget.ID())
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Info().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("widget with ID %s not found", id)
	}
	m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
	logger.WithComponent("overlay").Info().Str("id", id).Msg("Removed widget")
	return nil
}

// GetWidget retrieves a widget by ID
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexOf(id); i >= 0 {
		return m.widgets[i], true
	}
	return nil, false
}

// Widgets returns the widgets in render order.
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	logger.WithComponent("overlay").Info().Bool("enabled", enabled).Msg("Overlay toggled")
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img. A failing widget is logged
// and skipped.
func (m *Manager) Render(img *image.RGBA) error {
	if !m.IsEnabled() {
		return nil
	}

	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("id", widget.ID()).Msg("Failed to render widget")
		}
	}
	return nil
}

// Clear removes all widgets
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets = nil
	logger.WithComponent("overlay").Info().Msg("Cleared all widgets")
}
