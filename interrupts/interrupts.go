package interrupts

/**
 * Separate package exists mainly in order to avoid cyclic imports
 * between the devices and whatever delivers their interrupts.
 */

// Interrupt type - one interrupt request as seen by the platform
// interrupt controller. The PLIC identifies sources by number only,
// priority and claim/complete handling live on the controller side.
type Interrupt struct {
	IRQ uint32
}

// Controller is the capability a device needs to request an interrupt.
// SignalIRQ never blocks and expects no acknowledgement - delivery,
// latching and deduplication are the controller's own business.
type Controller interface {
	SignalIRQ(irq uint32)
}

// PLIC source lines:

// UARTIrq : console UART interrupt source (qemu virt convention)
const UARTIrq = 10

// ChanController is a Controller backed by a buffered channel.
// The consumer side (the emulation loop) drains C at its own pace.
type ChanController struct {
	C chan Interrupt
}

// NewChanController returns a controller with room for depth pending
// requests.
func NewChanController(depth int) *ChanController {
	return &ChanController{C: make(chan Interrupt, depth)}
}

// SignalIRQ queues an interrupt request. When the channel is full the
// request is dropped - the source condition is level-triggered, so the
// next Service pass on the device raises it again.
func (c *ChanController) SignalIRQ(irq uint32) {
	select {
	case c.C <- Interrupt{IRQ: irq}:
	default:
	}
}
