package input

import (
	"sync"
	"testing"
)

type scriptPad struct {
	states []Buttons
	i      int
	ok     bool
}

func (p *scriptPad) Read() (Buttons, bool) {
	if p.i >= len(p.states) {
		return 0, p.ok
	}
	b := p.states[p.i]
	p.i++
	return b, p.ok
}

// TestEdgeDetectorHeldButtonFiresOnce checks a held button triggers on
// the first poll only.
func TestEdgeDetectorHeldButtonFiresOnce(t *testing.T) {
	pad := &scriptPad{ok: true, states: []Buttons{
		0, ButtonCapture, ButtonCapture, ButtonCapture, 0, ButtonCapture | ButtonReopen, ButtonReopen,
	}}
	want := []Buttons{0, ButtonCapture, 0, 0, 0, ButtonCapture | ButtonReopen, 0}

	var d EdgeDetector
	for i, w := range want {
		if got := d.Poll(pad); got != w {
			t.Errorf("poll %d = %v, want %v", i, got, w)
		}
	}
}

func TestEdgeDetectorDisconnectedPad(t *testing.T) {
	var d EdgeDetector
	d.Update(ButtonCapture)
	if got := d.Poll(&scriptPad{states: []Buttons{ButtonCapture}}); got != 0 {
		t.Errorf("disconnected poll = %v", got)
	}
	// Releasing through a disconnect re-arms the button.
	if got := d.Update(ButtonCapture); got != ButtonCapture {
		t.Errorf("press after reconnect = %v", got)
	}
}

func TestVirtualPadOneShot(t *testing.T) {
	var p VirtualPad
	var d EdgeDetector

	p.Press(ButtonCapture)
	if got := d.Poll(&p); got != ButtonCapture {
		t.Fatalf("first poll = %v", got)
	}
	if got := d.Poll(&p); got != 0 {
		t.Fatalf("second poll = %v", got)
	}
	p.Press(ButtonCapture)
	if got := d.Poll(&p); got != ButtonCapture {
		t.Fatalf("press after release = %v", got)
	}
}

func TestVirtualPadConcurrentPresses(t *testing.T) {
	var p VirtualPad
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				p.Press(ButtonCapture)
			} else {
				p.Press(ButtonReopen)
			}
		}(i)
	}
	wg.Wait()

	if got, _ := p.Read(); got != ButtonCapture|ButtonReopen {
		t.Errorf("Read() = %v", got)
	}
}

func TestMerge(t *testing.T) {
	var v VirtualPad
	v.Press(ButtonReopen)
	m := Merge{&scriptPad{}, &v, &scriptPad{ok: true, states: []Buttons{ButtonCapture}}}

	held, ok := m.Read()
	if !ok || held != ButtonCapture|ButtonReopen {
		t.Errorf("Merge.Read() = %v, %v", held, ok)
	}
	if _, ok := (Merge{&scriptPad{}}).Read(); ok {
		t.Error("merge of disconnected pads reports connected")
	}
}

func TestButtonsString(t *testing.T) {
	if s := (ButtonCapture | ButtonReopen).String(); s != "capture|reopen" {
		t.Errorf("String() = %q", s)
	}
	if s := Buttons(0).String(); s != "none" {
		t.Errorf("String() = %q", s)
	}
}

func TestPollerVirtualPressesInConsecutivePolls(t *testing.T) {
	v := &VirtualPad{}
	p := Poller{Virtual: v}

	captures := 0
	for _, press := range []bool{true, true, false} {
		if press {
			v.Press(ButtonCapture)
		}
		if p.Poll()&ButtonCapture != 0 {
			captures++
		}
	}
	if captures != 2 {
		t.Errorf("capture actions = %d, want 2", captures)
	}
}

func TestPollerPhysicalPadEdges(t *testing.T) {
	v := &VirtualPad{}
	pad := &scriptPad{ok: true, states: []Buttons{ButtonReopen, ButtonReopen, 0, ButtonReopen}}
	p := Poller{Pads: Merge{pad}, Virtual: v}

	want := []Buttons{ButtonReopen, ButtonCapture, 0, ButtonReopen}
	for i, w := range want {
		if i == 1 {
			v.Press(ButtonCapture)
		}
		if got := p.Poll(); got != w {
			t.Errorf("poll %d = %v, want %v", i, got, w)
		}
	}
}
