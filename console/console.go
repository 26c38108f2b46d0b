package console

/*
Host console front ends for the UART device.

Two implementations exist:
  - Bridge: takes over the process terminal (raw-ish mode) and shuttles
    bytes between stdin/stdout and the device, the way a headless
    emulator run wants it.
  - Gui: renders into a gocui view, for the full-screen monitor.

The device side only ever talks through the Console interface, so the
front end is picked once at startup and never leaks into the MMIO code.
*/

// queueSize bounds the input queue of every front end. Once full, the
// newest host byte is dropped; a human cannot outtype the guest for
// long.
const queueSize = 1024

// Console is the byte-level terminal capability consumed by the UART
// device. HasChar, ReadChar and WriteChar never block: ReadChar
// returns 0 when no input is pending, WriteChar is fire and forget.
type Console interface {
	HasChar() bool
	ReadChar() byte
	WriteChar(c byte)

	// Suspend hands the terminal back to the host and drops incoming
	// input until Resume. Shutdown stops the front end for good and
	// waits for its worker to finish.
	Suspend()
	Resume()
	Shutdown()
}
