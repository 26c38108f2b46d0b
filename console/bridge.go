//go:build linux

package console

import (
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"rvemu/logger"
)

// wakeByte is the reserved wake-pipe value used by Shutdown.
// The worker drains it without echoing, every other value going
// through the pipe is an echo request.
const wakeByte = 0

const (
	ioctlReadTermios  = unix.TCGETS
	ioctlWriteTermios = unix.TCSETS
)

func sigsetAdd(set *unix.Sigset_t, sig unix.Signal) {
	set.Val[(sig-1)/64] |= 1 << (uint(sig-1) % 64)
}

// Bridge connects the process terminal to the UART device. A single
// worker goroutine (pinned to its own OS thread) blocks in poll over
// the host input fd and a wake pipe, feeding input into a bounded
// queue the device drains through ReadChar.
//
// The worker owns the blocking side exclusively; HasChar, ReadChar and
// WriteChar are safe to call from the bus goroutine at any time and
// never block.
type Bridge struct {
	inFd  int
	outFd int

	// saved terminal state, nil when inFd is not a terminal
	oldTermios *unix.Termios

	// wake pipe: worker polls the read end, Shutdown and WriteChar
	// write to the write end
	pipeR int
	pipeW int

	queue chan byte

	running   atomic.Bool
	suspended atomic.Bool

	stopOnce sync.Once
	done     chan struct{}

	log *log.Logger
}

// New starts a console bridge over the process stdin and stdout.
func New(l *log.Logger) *Bridge {
	return newBridge(int(os.Stdin.Fd()), int(os.Stdout.Fd()), l)
}

func newBridge(inFd, outFd int, l *log.Logger) *Bridge {
	if l == nil {
		l = logger.New("")
	}
	b := &Bridge{
		inFd:  inFd,
		outFd: outFd,
		queue: make(chan byte, queueSize),
		done:  make(chan struct{}),
		log:   l,
	}
	b.running.Store(true)
	b.openPipe()
	go b.mainloop()
	return b
}

// mainloop is the worker. One blocking poll per iteration, no timeout:
// the wake pipe is the only guaranteed way out, which is what makes
// Shutdown hang-free.
func (b *Bridge) mainloop() {
	runtime.LockOSThread()
	b.blockSignals()
	b.configureTerm()

	inOpen := true
	var pfds [2]unix.PollFd
	for b.running.Load() {
		pfds[0] = unix.PollFd{Fd: int32(b.pipeR), Events: unix.POLLIN}
		pfds[1] = unix.PollFd{Fd: int32(b.inFd), Events: unix.POLLIN}
		fds := pfds[:2]
		if !inOpen {
			fds = pfds[:1]
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			// a broken console cannot keep emulating
			b.log.Panicf("console: poll failed: %v", err)
		}
		if !b.running.Load() {
			break
		}
		if pfds[0].Revents&unix.POLLIN != 0 {
			var c [1]byte
			if _, err := unix.Read(b.pipeR, c[:]); err != nil {
				b.log.Printf("console: pipe: read: %v", err)
			} else if c[0] != wakeByte {
				if _, err := unix.Write(b.outFd, c[:]); err != nil {
					b.log.Printf("console: stdout: write: %v", err)
				}
			}
		}
		if !inOpen || pfds[1].Revents&(unix.POLLIN|unix.POLLHUP) == 0 {
			continue
		}
		var c [1]byte
		n, err := unix.Read(b.inFd, c[:])
		switch {
		case err != nil:
			if err != unix.EINTR && err != unix.EAGAIN {
				b.log.Printf("console: stdin: read: %v", err)
			}
		case n == 0:
			// input closed for good; keep serving the wake pipe
			inOpen = false
		case b.suspended.Load():
			// a suspended console drops input, it does not buffer
		default:
			select {
			case b.queue <- c[0]:
			default:
				// queue full, newest byte loses
			}
		}
	}

	b.restoreTerm()
	unix.Close(b.pipeR)
	unix.Close(b.pipeW)
	close(b.done)
}

// blockSignals masks termination-style signals on the worker thread so
// they are always delivered to a thread that can run handlers and
// restore the terminal. SIGSEGV stays unblocked, the Go runtime owns it.
func (b *Bridge) blockSignals() {
	var set unix.Sigset_t
	for _, sig := range []unix.Signal{
		unix.SIGTERM, unix.SIGQUIT, unix.SIGINT, unix.SIGHUP, unix.SIGUSR1,
	} {
		sigsetAdd(&set, sig)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		b.log.Panicf("console: can't set thread signal mask: %v", err)
	}
}

func (b *Bridge) openPipe() {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		b.log.Panicf("console: pipe: %v", err)
	}
	b.pipeR, b.pipeW = fds[0], fds[1]
	for _, fd := range fds {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			b.log.Panicf("console: fcntl(F_SETFD, FD_CLOEXEC): %v", err)
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, unix.O_NONBLOCK); err != nil {
			b.log.Panicf("console: fcntl(F_SETFL, O_NONBLOCK): %v", err)
		}
	}
}

// configureTerm switches the host terminal to non-canonical, non-echo
// mode. Deliberately not a full raw mode: ISIG stays on, Ctrl-C still
// reaches the process as a signal. When inFd is not a terminal (tests,
// redirected input) this is a no-op.
func (b *Bridge) configureTerm() {
	if !term.IsTerminal(b.inFd) {
		return
	}
	tio, err := unix.IoctlGetTermios(b.inFd, ioctlReadTermios)
	if err != nil {
		b.log.Panicf("console: tcgetattr: %v", err)
	}
	saved := *tio
	b.oldTermios = &saved
	tio.Lflag &^= unix.ICANON | unix.ECHO
	if err := unix.IoctlSetTermios(b.inFd, ioctlWriteTermios, tio); err != nil {
		b.log.Panicf("console: tcsetattr: %v", err)
	}
}

func (b *Bridge) restoreTerm() {
	if b.oldTermios == nil {
		return
	}
	if err := unix.IoctlSetTermios(b.inFd, ioctlWriteTermios, b.oldTermios); err != nil {
		b.log.Printf("console: tcsetattr: %v", err)
	}
}

// Suspend gives the terminal back to the host and stops queueing host
// input. The worker keeps running and keeps draining the wake pipe.
// Input arriving while suspended is dropped, not saved for Resume.
func (b *Bridge) Suspend() {
	b.restoreTerm()
	b.suspended.Store(true)
}

// Resume reclaims the terminal and starts queueing input again.
func (b *Bridge) Resume() {
	b.configureTerm()
	b.suspended.Store(false)
}

// Shutdown stops the worker and waits for it to restore the terminal
// and release the wake pipe. Always returns, whether or not the host
// ever produced input: the flag flip is followed by a wake-pipe write
// that forces the worker out of poll.
func (b *Bridge) Shutdown() {
	b.stopOnce.Do(func() {
		b.running.Store(false)
		c := [1]byte{wakeByte}
		if _, err := unix.Write(b.pipeW, c[:]); err != nil {
			b.log.Printf("console: pipe: write: %v", err)
		}
	})
	<-b.done
}

// HasChar reports whether queued input is pending.
func (b *Bridge) HasChar() bool {
	return len(b.queue) > 0
}

// ReadChar pops one queued input byte, or 0 when the queue is empty.
func (b *Bridge) ReadChar() byte {
	select {
	case c := <-b.queue:
		return c
	default:
		return 0
	}
}

// WriteChar echoes one byte to the host output stream, best effort.
// The byte travels through the wake pipe so the worker does the actual
// write. A NUL byte is indistinguishable from the shutdown wakeup and
// is swallowed without echo.
func (b *Bridge) WriteChar(c byte) {
	buf := [1]byte{c}
	if _, err := unix.Write(b.pipeW, buf[:]); err != nil {
		b.log.Printf("console: pipe: write: %v", err)
	}
}
