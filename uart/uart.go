package uart

import (
	"fmt"
	"io"
	"log"

	"rvemu/bus"
	"rvemu/console"
	"rvemu/interrupts"
)

// DefaultBase is where the qemu virt machine maps UART0.
const DefaultBase = 0x10000000

// Register MMIO offsets (based on 16550). Offsets 0 and 1 are aliased:
// with LCR.DLAB set they address the divisor latch instead.
//
// Reference: https://www.lammertbies.nl/comm/info/serial-uart.html
const (
	regRBR = 0 // (R  [0]) Receive Buffer Register
	regTHR = 0 // (W  [0]) Transmit Holding Register
	regDLL = 0 // (RW [0]) Divisor Latch LSB (LCR.DLAB=1)
	regIER = 1 // (RW [1]) Interrupt Enable Register
	regDLM = 1 // (RW [1]) Divisor Latch MSB (LCR.DLAB=1)
	regIIR = 2 // (R  [2]) Interrupt Identity Register
	regFCR = 2 // (W  [2]) FIFO Control Register
	regLCR = 3 // (RW [3]) Line Control Register
	regMCR = 4 // (RW [4]) Modem Control Register
	regLSR = 5 // (R  [5]) Line Status Register
	regMSR = 6 // (R  [6]) Modem Status Register
	regSCR = 7 // (RW [7]) Scratch Register
)

// Register bits. Only the ones this model reacts to are listed, the
// rest of the 16550 bit zoo (parity, framing, FIFO trigger levels) is
// accepted and ignored.
const (
	// IER - interrupt enables
	IERRecvAvail   = 0x01 // received data available
	IERTxEmpty     = 0x02 // transmitter holding register empty
	IERLineStatus  = 0x04 // receiver line status
	IERModemStatus = 0x08 // modem status change
	ierMask        = 0x0f

	// IIR - synthesized interrupt identity
	IIRNoPending  = 0x01 // no interrupt pending
	IIRTxReady    = 0x02 // transmit ready
	IIRRecvAvail  = 0x04 // receive ready
	IIRLineStatus = 0x06 // read line status

	// LCR
	LCRDLAB = 0x80 // divisor latch access bit

	// LSR - synthesized line status
	LSRDataAvail = 0x01 // receive data available
	LSRTxEmpty   = 0x20 // THR is empty

	// MSR - synthesized modem status
	MSRDataSetReady  = 0x20
	MSRCarrierDetect = 0x80
)

// Device emulates a 16550-class serial console as an 8 byte wide MMIO
// segment. Received bytes come from a console front end, transmitted
// bytes go back to it, and Service raises the PLIC line while receive
// interrupts are enabled and input is pending.
//
// The register file carries no lock on purpose: Load8, Store8 and
// Service must all be driven from the single goroutine that owns the
// memory bus. The console front end is the one crossing threads and
// it does its own synchronization.
type Device struct {
	console console.Console
	plic    interrupts.Controller
	base    uint32
	irq     uint32

	com struct {
		rbr byte // last byte latched from the console
		thr byte
		ier byte
		lcr byte
		mcr byte
		scr byte
		dll byte
		dlm byte
	}

	// iir, lsr and msr are synthesized on every read, never stored

	trace *log.Logger
}

// New returns a UART mapped at base, signaling irq on plic and wired
// to the given console front end.
func New(cons console.Console, plic interrupts.Controller, base, irq uint32) *Device {
	return &Device{
		console: cons,
		plic:    plic,
		base:    base,
		irq:     irq,
	}
}

// Trace logs every register access to l. Pass nil to turn tracing off.
func (d *Device) Trace(l *log.Logger) {
	d.trace = l
}

// Segment describes the device address range for bus registration:
// 8 bytes of uncacheable I/O space.
func (d *Device) Segment() bus.Segment {
	return bus.Segment{
		Name: "UART",
		Base: d.base,
		Size: 8,
		Attr: bus.AttrIO | bus.AttrRead | bus.AttrWrite,
	}
}

// Load8 reads the register at offset. Never blocks, never fails:
// undefined offsets read as 0. Reading RBR drains at most one byte
// from the console queue; every other register read is side-effect
// free.
func (d *Device) Load8(offset uint32) byte {
	val := d.load8(offset)
	if d.trace != nil {
		d.trace.Printf("uart: 0x%04x -> 0x%02x", offset, val)
	}
	return val
}

func (d *Device) load8(offset uint32) byte {
	// DLAB repurposes offsets 0 and 1 only, the rest of the file is
	// unaffected by it
	if d.com.lcr&LCRDLAB != 0 && offset <= regDLM {
		if offset == regDLL {
			return d.com.dll
		}
		return d.com.dlm
	}
	switch offset {
	case regRBR:
		if d.console.HasChar() {
			d.com.rbr = d.console.ReadChar()
		}
		return d.com.rbr
	case regIER:
		return d.com.ier
	case regIIR:
		if d.console.HasChar() {
			return IIRLineStatus
		}
		return IIRTxReady
	case regLCR:
		return d.com.lcr
	case regMCR:
		return d.com.mcr
	case regLSR:
		val := byte(LSRTxEmpty)
		if d.console.HasChar() {
			val |= LSRDataAvail
		}
		return val
	case regMSR:
		return MSRCarrierDetect | MSRDataSetReady
	case regSCR:
		return d.com.scr
	default:
		return 0
	}
}

// Store8 writes the register at offset. Never blocks, never fails:
// read-only and undefined offsets swallow the byte. A THR store hands
// the byte straight to the console, fire and forget. FCR stores are
// accepted and do nothing at all - no FIFO is modeled and guests that
// program one must keep working unchanged.
func (d *Device) Store8(offset uint32, val byte) {
	if d.trace != nil {
		d.trace.Printf("uart: 0x%04x <- 0x%02x", offset, val)
	}
	if d.com.lcr&LCRDLAB != 0 && offset <= regDLM {
		if offset == regDLL {
			d.com.dll = val
		} else {
			d.com.dlm = val
		}
		return
	}
	switch offset {
	case regTHR:
		d.com.thr = val
		d.console.WriteChar(val)
	case regIER:
		d.com.ier = val & ierMask
	case regFCR:
		// no FIFO, ignore
	case regLCR:
		d.com.lcr = val
	case regMCR:
		d.com.mcr = val
	case regLSR, regMSR:
		// read only, ignore
	case regSCR:
		d.com.scr = val
	}
}

// Service runs one interrupt evaluation pass. Called on the bus
// goroutine once per device-polling tick. Level-triggered: while
// receive interrupts are enabled and input is pending, every call
// signals the PLIC again - latching repeats is the controller's job.
func (d *Device) Service() {
	if d.com.ier&IERRecvAvail != 0 && d.console.HasChar() {
		d.plic.SignalIRQ(d.irq)
	}
}

// DumpRegisters writes the stored register file to w, for the monitor.
func (d *Device) DumpRegisters(w io.Writer) {
	fmt.Fprintf(w, "uart: rbr %02x thr %02x ier %02x lcr %02x\n",
		d.com.rbr, d.com.thr, d.com.ier, d.com.lcr)
	fmt.Fprintf(w, "uart: mcr %02x scr %02x dll %02x dlm %02x\n",
		d.com.mcr, d.com.scr, d.com.dll, d.com.dlm)
}
