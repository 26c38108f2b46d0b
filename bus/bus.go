package bus

// The memory bus itself (address decoding, routing of loads and stores)
// lives with the CPU core. This package only defines what a device has
// to hand over so the bus can map it.

// Attr describes the access attributes of a memory segment.
type Attr uint16

const (
	// AttrRead - segment accepts loads
	AttrRead Attr = 1 << iota
	// AttrWrite - segment accepts stores
	AttrWrite
	// AttrIO - I/O region, never cached, side effects on access
	AttrIO
)

// Segment describes one device-backed address range for bus
// registration.
type Segment struct {
	Name string
	Base uint32
	Size uint32
	Attr Attr
}

// Device is the MMIO protocol the bus drives. Both calls are
// synchronous and must never block; offset is relative to the
// segment base.
//
// The bus is expected to call Load8/Store8 from a single goroutine.
// Devices rely on that and keep their register files unlocked.
type Device interface {
	Load8(offset uint32) byte
	Store8(offset uint32, val byte)
	Segment() Segment
}
