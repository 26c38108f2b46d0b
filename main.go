package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jroimartin/gocui"

	"rvemu/console"
	"rvemu/interrupts"
	"rvemu/logger"
	"rvemu/uart"
)

var (
	guiMode = flag.Bool("gui", false, "run the gocui front end instead of the raw terminal")
	debug   = flag.Bool("debug", false, "trace UART register traffic")
	logPath = flag.String("logfile", "", "log file path, empty logs to stderr")
)

func main() {
	flag.Parse()
	l := logger.New(*logPath)

	if *guiMode {
		runGui(l)
		return
	}
	runSimple(l)
}

// runSimple takes over the calling terminal directly through the
// console bridge. Ctrl-] exits; SIGINT and SIGTERM are handled here
// (the bridge worker masks them) and shut the console down cleanly.
func runSimple(l *log.Logger) {
	bridge := console.New(l)
	plic := interrupts.NewChanController(8)
	dev := uart.New(bridge, plic, uart.DefaultBase, interrupts.UARTIrq)
	if *debug {
		dev.Trace(l)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	quit := make(chan struct{})
	go func() {
		<-sigs
		close(quit)
	}()

	banner(dev)
	monitor(dev, plic, quit)
	bridge.Shutdown()
	if *debug {
		dev.DumpRegisters(l.Writer())
	}
}

func runGui(l *log.Logger) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln("couldn't create gui:", err)
	}
	defer g.Close()

	g.Cursor = true
	g.SetManagerFunc(layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		log.Panicln(err)
	}

	quit := make(chan struct{})
	g.Update(func(gg *gocui.Gui) error {
		return startMonitor(gg, l, quit)
	})

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Panicln(err)
	}
	close(quit)
}

// startMonitor wires the device to the gocui console once the layout
// has created the views.
func startMonitor(g *gocui.Gui, l *log.Logger, quit chan struct{}) error {
	cons, err := console.NewGui(g, l)
	if err != nil {
		return err
	}
	plic := interrupts.NewChanController(8)
	dev := uart.New(cons, plic, uart.DefaultBase, interrupts.UARTIrq)
	if *debug {
		dev.Trace(l)
	}

	seg := dev.Segment()
	status(g, "%s mapped at 0x%08x, irq %d", seg.Name, seg.Base, interrupts.UARTIrq)
	status(g, "type into the console, Ctrl-C quits")

	banner(dev)
	go func() {
		monitor(dev, plic, quit)
		cons.Shutdown()
	}()
	return nil
}

// monitor stands in for the guest: it enables the receive interrupt,
// then sits on the service tick and echoes every received byte back
// through the transmit register. Not a CPU, just enough of one to
// drive the device end to end.
func monitor(dev *uart.Device, plic *interrupts.ChanController, quit chan struct{}) {
	dev.Store8(1, uart.IERRecvAvail)

	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-quit:
			return
		case <-tick.C:
			dev.Service()
		case irq := <-plic.C:
			if irq.IRQ != interrupts.UARTIrq {
				continue
			}
			for dev.Load8(5)&uart.LSRDataAvail != 0 {
				c := dev.Load8(0)
				if c == 0x1d { // Ctrl-]
					return
				}
				dev.Store8(0, c)
				if c == '\r' {
					dev.Store8(0, '\n')
				}
			}
		}
	}
}

// banner greets through the transmit register so the output path gets
// exercised before the first keystroke.
func banner(dev *uart.Device) {
	for _, c := range "rvemu UART console\r\n" {
		dev.Store8(0, byte(c))
	}
}

// gocui layout: guest console on top, status window below.
func layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	if v, err := g.SetView("terminal", 0, 0, maxX-1, maxY-8); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Console"
		v.Editable = true
		v.Wrap = true
		if _, err := g.SetCurrentView("terminal"); err != nil {
			return err
		}
	}
	if v, err := g.SetView("status", 0, maxY-7, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Autoscroll = true
	}
	return nil
}
