package xtce

import "testing"

func TestBusMemoryReadWrite(t *testing.T) {
	b := NewBus()
	b.StartAccess(0x1234, AccessMemory)
	b.Write(0x42)

	b.StartAccess(0x1234, AccessMemory)
	if got := b.Read(); got != 0x42 {
		t.Fatalf("Read() = 0x%02X, want 0x42", got)
	}
	if got := b.Peek(0x1234); got != 0x42 {
		t.Errorf("Peek() = 0x%02X, want 0x42", got)
	}
}

func TestBusROMReadOnly(t *testing.T) {
	b := NewBus()
	image := make([]uint8, ROMSize)
	for i := range image {
		image[i] = uint8(i)
	}
	b.LoadROM(image)

	b.StartAccess(ROMBase+5, AccessMemory)
	if got := b.Read(); got != 5 {
		t.Fatalf("ROM read at offset 5 = 0x%02X, want 0x05", got)
	}
}

func TestBusCGAApertureRoundTrips(t *testing.T) {
	b := NewBus()
	b.StartAccess(CGABase+100, AccessMemory)
	b.Write(0xAB)

	b.StartAccess(CGABase+100, AccessMemory)
	if got := b.Read(); got != 0xAB {
		t.Fatalf("CGA aperture read = 0x%02X, want 0xAB", got)
	}
}

func TestBusIOPortDecodeRoutesToPIT(t *testing.T) {
	b := NewBus()
	b.StartAccess(0x43, AccessIOWrite) // PIT control port
	b.Write(0x36)                      // counter 0, LSB-then-MSB, mode 3, binary

	// The PIT takes one written byte per timer clock (every 4 bus ticks).
	b.StartAccess(0x40, AccessIOWrite)
	b.Write(4)
	for i := 0; i < 4; i++ {
		b.Tick()
	}
	b.StartAccess(0x40, AccessIOWrite)
	b.Write(0)
	for i := 0; i < 4; i++ {
		b.Tick()
	}

	if got := b.PIT().Read(0); got == 0 {
		t.Error("expected the PIT's counter 0 to reflect the programmed count after a bus-routed write")
	}
}

func TestBusDMAPageRegisterRoundTrips(t *testing.T) {
	b := NewBus()
	b.StartAccess(portDMAPage2, AccessIOWrite)
	b.Write(0x07)

	b.StartAccess(portDMAPage2, AccessIORead)
	if got := b.Read(); got != 0x07 {
		t.Errorf("DMA page register for channel 2 = 0x%02X, want 0x07", got)
	}
}

func TestBusInterruptAckReadsVectorFromPIC(t *testing.T) {
	b := NewBus()
	b.StartAccess(0x20, AccessIOWrite)
	b.Write(0x13) // ICW1: edge triggered, single, ICW4 needed
	b.StartAccess(0x21, AccessIOWrite)
	b.Write(0x08) // ICW2: base vector 0x08
	b.StartAccess(0x21, AccessIOWrite)
	b.Write(0x01) // ICW4: 8086 mode

	b.PIC().SetIRQLine(0, true)
	b.StartAccess(0, AccessInterruptAck)
	first := b.Read()
	second := b.Read()
	if first != 0xFF {
		t.Fatalf("first INTA byte = 0x%02X, want 0xFF", first)
	}
	if second != 0x08 {
		t.Fatalf("second INTA byte = 0x%02X, want base vector 0x08", second)
	}
}

func TestBusResetClearsRAMAndDeviceState(t *testing.T) {
	b := NewBus()
	b.StartAccess(0x10, AccessMemory)
	b.Write(0xFF)
	b.PIC().SetIRQLine(3, true)

	b.Reset()

	if got := b.Peek(0x10); got != 0 {
		t.Errorf("RAM byte after Reset = 0x%02X, want 0x00", got)
	}
	if b.InterruptPending() {
		t.Error("no interrupt should be pending immediately after Reset")
	}
}

func TestBusDMAHandshakeRequiresPassiveOrHalt(t *testing.T) {
	b := NewBus()
	b.SetPassiveOrHalt(false)
	b.DMAC().SetDMARequestLine(0, true)

	for i := 0; i < 10; i++ {
		b.Tick()
	}
	if b.dmaState == dmaIdle {
		t.Fatal("a requesting channel should have left the DMA state machine's idle state")
	}
	if b.dmaState >= dmaAEN {
		t.Error("DMA handshake should stall before address-enable while the bus is not passive/halted")
	}
}
