package console

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jroimartin/gocui"

	"rvemu/logger"
)

// Gui is the gocui front end: UART output is rendered into the
// "terminal" view and keystrokes typed into that view are queued as
// guest input. gocui owns the terminal mode here, so Suspend and
// Resume only gate the input queue.
type Gui struct {
	gui      *gocui.Gui
	termView *gocui.View

	queue chan byte

	// output goes through a channel because the view may only be
	// touched from gui.Update callbacks
	consoleOut chan byte

	suspended atomic.Bool

	stopOnce sync.Once
	quit     chan struct{}

	log *log.Logger
}

// NewGui attaches a console front end to the "terminal" view of g.
// The layout must have created the view already.
func NewGui(g *gocui.Gui, l *log.Logger) (*Gui, error) {
	if l == nil {
		l = logger.New("")
	}
	v, err := g.View("terminal")
	if err != nil {
		return nil, fmt.Errorf("console: no terminal view: %v", err)
	}
	c := &Gui{
		gui:        g,
		termView:   v,
		queue:      make(chan byte, queueSize),
		consoleOut: make(chan byte, 64),
		quit:       make(chan struct{}),
		log:        l,
	}
	c.termView.Editor = gocui.EditorFunc(
		func(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
			c.keystroke(key, ch)
		})
	c.initOutput()
	return c, nil
}

// keystroke translates a gocui editor event to the byte the guest
// expects and queues it. Drops when suspended or when the queue is
// full, same policy as the raw bridge.
func (c *Gui) keystroke(key gocui.Key, ch rune) {
	if c.suspended.Load() {
		return
	}
	var b byte
	switch {
	case ch != 0 && ch < 128:
		b = byte(ch)
	case key == gocui.KeyEnter:
		b = '\r'
	case key == gocui.KeySpace:
		b = ' '
	case key == gocui.KeyBackspace, key == gocui.KeyBackspace2:
		b = 0x08
	case key == gocui.KeyTab:
		b = '\t'
	default:
		return
	}
	select {
	case c.queue <- b:
	default:
	}
}

// initOutput starts the goroutine pumping device output into the view.
// gocui only repaints from Update callbacks, hence the indirection.
func (c *Gui) initOutput() {
	go func() {
		for {
			select {
			case b := <-c.consoleOut:
				c.gui.Update(func(g *gocui.Gui) error {
					fmt.Fprintf(c.termView, "%s", string(rune(b)))
					return nil
				})
			case <-c.quit:
				return
			}
		}
	}()
}

// HasChar reports whether queued input is pending.
func (c *Gui) HasChar() bool {
	return len(c.queue) > 0
}

// ReadChar pops one queued input byte, or 0 when the queue is empty.
func (c *Gui) ReadChar() byte {
	select {
	case b := <-c.queue:
		return b
	default:
		return 0
	}
}

// WriteChar renders one byte of device output, best effort. Carriage
// returns are dropped, the view only wants newlines.
func (c *Gui) WriteChar(b byte) {
	if b == '\r' {
		return
	}
	select {
	case c.consoleOut <- b:
	case <-c.quit:
	default:
		c.log.Printf("console: gui output overrun, dropping 0x%02x", b)
	}
}

// Suspend stops queueing keystrokes. Keys typed while suspended are
// dropped, not saved for Resume.
func (c *Gui) Suspend() {
	c.suspended.Store(true)
}

// Resume starts queueing keystrokes again.
func (c *Gui) Resume() {
	c.suspended.Store(false)
}

// Shutdown stops the output pump. The gocui main loop itself belongs
// to the caller.
func (c *Gui) Shutdown() {
	c.stopOnce.Do(func() { close(c.quit) })
}
