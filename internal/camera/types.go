package camera

import (
	"github.com/bryanchriswhite/DualCam/internal/memory"
)

// Layout describes a planar luma/chroma frame in capture memory. The luma
// plane is Height rows of Pitch bytes; the interleaved UV plane follows it
// with Height/2 rows of the same pitch. Only the first Width bytes of each
// row carry pixels.
type Layout struct {
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
	Pitch  int `json:"pitch" yaml:"pitch" mapstructure:"pitch"`
}

// LumaSize is the byte size of the luma plane including row padding.
func (l Layout) LumaSize() int { return l.Pitch * l.Height }

// ChromaSize is the byte size of the UV plane including row padding.
func (l Layout) ChromaSize() int { return l.Pitch * (l.Height / 2) }

// FrameSize is the size of one capture surface.
func (l Layout) FrameSize() int { return l.LumaSize() + l.ChromaSize() }

// Rows is the number of luma plus chroma rows in a frame.
func (l Layout) Rows() int { return l.Height + l.Height/2 }

// EventType identifies a hardware notification.
type EventType int

const (
	// EventDecodeDone means the submitted target surface holds a full frame.
	EventDecodeDone EventType = iota
	// EventAttached and EventDetached report the sensor being plugged or
	// unplugged.
	EventAttached
	EventDetached
)

func (e EventType) String() string {
	switch e {
	case EventDecodeDone:
		return "decode_done"
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Event is delivered to the registered EventHandler from the device's own
// goroutine.
type Event struct {
	Type    EventType
	Surface *Surface
}

// EventHandler is the completion callback. It may run concurrently with any
// Pipeline method and must not block.
type EventHandler func(Event)

// StreamInfo is the requested stream mode.
type StreamInfo struct {
	Layout Layout
	FPS    int
}

// Mode carries session options that do not change the frame format.
type Mode struct {
	FPS int
}

// Setup is everything a driver needs to create a session.
type Setup struct {
	Stream  StreamInfo
	WorkMem *memory.Block
	Handler EventHandler
	Mode    Mode
}

// Surface is a capture target: one aligned block sized for a full frame.
type Surface struct {
	Index int
	Block *memory.Block
}

// Driver creates capture sessions.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string
	// MemReq returns the scratch memory the driver needs for a stream, or a
	// non-positive value when the mode is unsupported.
	MemReq(info StreamInfo) int
	// Init creates a closed session bound to setup.
	Init(setup Setup) (Session, error)
}

// Session is an initialized capture session.
type Session interface {
	// Open starts streaming. It returns ErrAlreadyOpen when already open.
	Open() error
	// SubmitTarget queues the surface as the next decode target. It returns
	// ErrBusy when the hardware cannot accept a target yet.
	SubmitTarget(s *Surface) error
	// Close stops streaming and releases the session.
	Close() error
}
