// Package input turns polled button state into single-shot actions.
package input

import (
	"strings"
	"sync/atomic"
)

// Buttons is a bitmask of held buttons.
type Buttons uint32

const (
	// ButtonCapture saves the displayed frame.
	ButtonCapture Buttons = 1 << iota
	// ButtonReopen re-opens the capture session.
	ButtonReopen
)

func (b Buttons) String() string {
	if b == 0 {
		return "none"
	}
	var names []string
	if b&ButtonCapture != 0 {
		names = append(names, "capture")
	}
	if b&ButtonReopen != 0 {
		names = append(names, "reopen")
	}
	if rest := b &^ (ButtonCapture | ButtonReopen); rest != 0 {
		names = append(names, "other")
	}
	return strings.Join(names, "|")
}

// Pad is polled once per render iteration. ok is false when no controller
// is connected.
type Pad interface {
	Read() (held Buttons, ok bool)
}

// EdgeDetector reports buttons that went down since the previous poll.
type EdgeDetector struct {
	prev Buttons
}

// Update records held and returns the newly pressed buttons.
func (d *EdgeDetector) Update(held Buttons) Buttons {
	pressed := held &^ d.prev
	d.prev = held
	return pressed
}

// Poll reads pad and returns the newly pressed buttons. A disconnected pad
// counts as nothing held.
func (d *EdgeDetector) Poll(pad Pad) Buttons {
	held, ok := pad.Read()
	if !ok {
		held = 0
	}
	return d.Update(held)
}

// VirtualPad is a pad driven from other goroutines, such as the API or a
// signal handler. Every Press is a separate action: poll it with Take, or
// through a Poller, rather than through an EdgeDetector, which would merge
// presses queued in consecutive polls.
type VirtualPad struct {
	queued atomic.Uint32
}

// Press queues buttons for the next Read.
func (p *VirtualPad) Press(b Buttons) {
	p.queued.Or(uint32(b))
}

// Take returns and clears the queued presses.
func (p *VirtualPad) Take() Buttons {
	return Buttons(p.queued.Swap(0))
}

// Read implements Pad. A press is seen as held for exactly one Read.
func (p *VirtualPad) Read() (Buttons, bool) {
	return p.Take(), true
}

// Poller yields the actions of one render iteration: edges of the held
// state of Pads, plus every press queued on Virtual since the last poll.
type Poller struct {
	Pads    Merge
	Virtual *VirtualPad

	edges EdgeDetector
}

// Poll returns the buttons pressed since the previous Poll.
func (p *Poller) Poll() Buttons {
	pressed := p.edges.Poll(p.Pads)
	if p.Virtual != nil {
		pressed |= p.Virtual.Take()
	}
	return pressed
}

// Merge combines pads; held buttons are OR-ed and the result is connected
// if any pad is.
type Merge []Pad

// Read implements Pad.
func (m Merge) Read() (Buttons, bool) {
	var held Buttons
	connected := false
	for _, p := range m {
		b, ok := p.Read()
		if ok {
			held |= b
			connected = true
		}
	}
	return held, connected
}
