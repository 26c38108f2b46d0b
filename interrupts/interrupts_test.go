package interrupts

import "testing"

func TestChanControllerDelivers(t *testing.T) {
	c := NewChanController(4)
	c.SignalIRQ(UARTIrq)

	select {
	case irq := <-c.C:
		if irq.IRQ != UARTIrq {
			t.Errorf("got irq %d, want %d", irq.IRQ, uint32(UARTIrq))
		}
	default:
		t.Fatal("no interrupt queued")
	}
}

func TestChanControllerNeverBlocks(t *testing.T) {
	c := NewChanController(2)
	// more signals than capacity must not deadlock; extras are dropped
	for i := 0; i < 10; i++ {
		c.SignalIRQ(UARTIrq)
	}
	if got := len(c.C); got != 2 {
		t.Errorf("queued %d requests, want 2", got)
	}
}
