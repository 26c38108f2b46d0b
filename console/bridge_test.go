//go:build linux

package console

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// testBridge starts a bridge over two plain pipes, returning the fd
// feeding the bridge's input and the fd receiving its echo output.
// Pipes are not terminals, so no termios fiddling happens.
func testBridge(t *testing.T) (b *Bridge, hostIn int, hostOut int) {
	t.Helper()
	var in, out [2]int
	if err := unix.Pipe(in[:]); err != nil {
		t.Fatal(err)
	}
	if err := unix.Pipe(out[:]); err != nil {
		t.Fatal(err)
	}
	b = newBridge(in[0], out[1], nil)
	t.Cleanup(func() {
		b.Shutdown()
		unix.Close(in[0])
		unix.Close(in[1])
		unix.Close(out[0])
		unix.Close(out[1])
	})
	return b, in[1], out[0]
}

func feed(t *testing.T, fd int, data ...byte) {
	t.Helper()
	if _, err := unix.Write(fd, data); err != nil {
		t.Fatalf("feeding console input: %v", err)
	}
}

// waitChar spins until the bridge has queued input, then pops one byte.
func waitChar(t *testing.T, b *Bridge) byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !b.HasChar() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for console input")
		}
		time.Sleep(time.Millisecond)
	}
	return b.ReadChar()
}

// readEcho reads one byte from the bridge's output side, failing the
// test if nothing arrives in time.
func readEcho(t *testing.T, fd int) byte {
	t.Helper()
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfds, 2000)
	if err != nil {
		t.Fatalf("polling echo output: %v", err)
	}
	if n == 0 {
		t.Fatal("timed out waiting for echo output")
	}
	var buf [1]byte
	if _, err := unix.Read(fd, buf[:]); err != nil {
		t.Fatalf("reading echo output: %v", err)
	}
	return buf[0]
}

func TestBridgeFIFOOrder(t *testing.T) {
	b, hostIn, _ := testBridge(t)

	want := []byte("serial")
	feed(t, hostIn, want...)

	for i, w := range want {
		if got := waitChar(t, b); got != w {
			t.Errorf("byte %d: got 0x%02x, want 0x%02x", i, got, w)
		}
	}
	if got := b.ReadChar(); got != 0 {
		t.Errorf("empty queue: got 0x%02x, want sentinel 0", got)
	}
}

func TestBridgeEmptyQueue(t *testing.T) {
	b, _, _ := testBridge(t)

	if b.HasChar() {
		t.Error("fresh bridge reports pending input")
	}
	if got := b.ReadChar(); got != 0 {
		t.Errorf("ReadChar on empty queue: got 0x%02x, want 0", got)
	}
}

func TestBridgeShutdownCompletes(t *testing.T) {
	b, _, _ := testBridge(t)

	// no host input ever arrives; only the wake pipe can unblock the
	// worker
	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	// a second shutdown must be a no-op, not a hang
	done2 := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done2)
	}()
	select {
	case <-done2:
	case <-time.After(2 * time.Second):
		t.Fatal("repeated shutdown did not complete")
	}
}

func TestBridgeSuspendDropsInput(t *testing.T) {
	b, hostIn, _ := testBridge(t)

	b.Suspend()
	feed(t, hostIn, 0x58)
	// give the worker time to read and discard the suspended byte
	time.Sleep(100 * time.Millisecond)

	b.Resume()
	feed(t, hostIn, 0x59)

	if got := waitChar(t, b); got != 0x59 {
		t.Errorf("after resume: got 0x%02x, want 0x59", got)
	}
	if b.HasChar() {
		t.Error("suspended byte was buffered instead of dropped")
	}
}

func TestBridgeWriteCharEcho(t *testing.T) {
	b, _, hostOut := testBridge(t)

	b.WriteChar('A')
	if got := readEcho(t, hostOut); got != 'A' {
		t.Errorf("echo: got 0x%02x, want 'A'", got)
	}
}

func TestBridgeWakeByteNotEchoed(t *testing.T) {
	b, _, hostOut := testBridge(t)

	// NUL is the reserved wake value and must be swallowed; the byte
	// after it is the first thing to reach the output
	b.WriteChar(0)
	b.WriteChar('B')
	if got := readEcho(t, hostOut); got != 'B' {
		t.Errorf("echo after wake byte: got 0x%02x, want 'B'", got)
	}
}

func TestBridgeQueueOverflowDropsNewest(t *testing.T) {
	b, hostIn, _ := testBridge(t)

	const extra = 8
	data := make([]byte, queueSize+extra)
	for i := range data {
		data[i] = byte(i)
	}
	feed(t, hostIn, data...)

	deadline := time.Now().Add(5 * time.Second)
	for len(b.queue) < queueSize {
		if time.Now().After(deadline) {
			t.Fatalf("queue never filled, %d of %d", len(b.queue), queueSize)
		}
		time.Sleep(time.Millisecond)
	}
	// let the worker consume and drop the overflow bytes
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < queueSize; i++ {
		if got, want := b.ReadChar(), byte(i); got != want {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, got, want)
		}
	}
	if b.HasChar() {
		t.Error("overflow bytes were queued instead of dropped")
	}
}

func TestBridgeInputEOF(t *testing.T) {
	b, hostIn, _ := testBridge(t)

	feed(t, hostIn, 'x')
	if got := waitChar(t, b); got != 'x' {
		t.Fatalf("got 0x%02x, want 'x'", got)
	}

	// closing the input must not kill the worker; shutdown still works
	unix.Close(hostIn)
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete after input EOF")
	}
}
