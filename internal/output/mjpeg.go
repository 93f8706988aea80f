package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/logger"
)

// MJPEGOutput streams one head as Motion JPEG over HTTP.
type MJPEGOutput struct {
	head    string
	config  Config
	running bool
	mu      sync.RWMutex

	frameMu    sync.RWMutex
	lastUpdate time.Time
	buf        bytes.Buffer

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	encoded    uint64
	startTime  time.Time
}

// Stats is a snapshot of stream counters.
type Stats struct {
	Head       string    `json:"head"`
	Running    bool      `json:"running"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	TargetFPS  int       `json:"target_fps"`
	ActualFPS  float64   `json:"actual_fps"`
	Frames     uint64    `json:"frames"`
	Encoded    uint64    `json:"encoded"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update"`
	Uptime     string    `json:"uptime"`
}

// NewMJPEGOutput creates a stream for the named head.
func NewMJPEGOutput(head string, config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 85
	}
	return &MJPEGOutput{
		head:    head,
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start marks the output running. The HTTP handler is mounted separately
// via GetHTTPHandler.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output for %s already running", m.head)
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0
	m.encoded = 0

	logger.WithComponent("mjpeg").Info().
		Str("head", m.head).
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop disconnects every client.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Str("head", m.head).
		Uint64("frames", m.frameCount).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes frame and broadcasts it. Frames are only encoded
// while a client is connected. Slow clients skip frames.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("MJPEG output not running")
	}
	m.frameCount++
	m.mu.Unlock()

	if m.ClientCount() == 0 {
		return nil
	}

	m.frameMu.Lock()
	m.buf.Reset()
	if err := jpeg.Encode(&m.buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		m.frameMu.Unlock()
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := bytes.Clone(m.buf.Bytes())
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.encoded++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
	m.clientsMu.RUnlock()
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG " + m.head
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected viewers.
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// GetHTTPHandler returns the multipart stream handler.
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Str("head", m.head).Int("clients", clientCount).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Str("head", m.head).Int("clients", clientCount).Msg("Client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
					return
				}
				if _, err := w.Write(jpegData); err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}

// Stats returns the stream counters.
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	frameCount := m.frameCount
	encoded := m.encoded
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	var fps float64
	uptime := "N/A"
	if running && !startTime.IsZero() {
		elapsed := time.Since(startTime)
		if elapsed > 0 {
			fps = float64(frameCount) / elapsed.Seconds()
		}
		uptime = elapsed.Round(time.Second).String()
	}

	return Stats{
		Head:       m.head,
		Running:    running,
		Width:      m.config.Width,
		Height:     m.config.Height,
		TargetFPS:  m.config.FPS,
		ActualFPS:  fps,
		Frames:     frameCount,
		Encoded:    encoded,
		Clients:    m.ClientCount(),
		LastUpdate: lastUpdate,
		Uptime:     uptime,
	}
}
