package xtce

import "testing"

func TestDmacAddressCountFlipFlop(t *testing.T) {
	d := NewDMAC()
	d.Write(0x0C, 0) // clear flip-flop
	d.Write(0x02, 0x34)
	d.Write(0x02, 0x12) // channel 1 address = 0x1234
	d.Write(0x03, 0xFF)
	d.Write(0x03, 0x00) // channel 1 count = 0x00FF

	if got := d.GetAddress(1); got != 0x1234 {
		t.Errorf("channel 1 address = 0x%04X, want 0x1234", got)
	}
	if got := d.GetWordCount(1); got != 0x00FF {
		t.Errorf("channel 1 word count = 0x%04X, want 0x00FF", got)
	}
}

func TestDmacRequestLineWinsArbitration(t *testing.T) {
	d := NewDMAC()
	d.SetDMARequestLine(2, true)
	if !d.GetHoldRequestLine() {
		t.Fatal("a requesting channel should win the hold request")
	}
	if d.GetActiveChannel() != 2 {
		t.Fatalf("active channel = %d, want 2", d.GetActiveChannel())
	}
	if d.GetRequestLines()&(1<<2) == 0 {
		t.Error("GetRequestLines should reflect the asserted DREQ bit")
	}
	d.DMACompleted()
	if d.GetActiveChannel() != -1 {
		t.Error("DMACompleted should release the active channel")
	}
}

func TestDmacDisableCommandBitGatesArbitration(t *testing.T) {
	d := NewDMAC()
	d.Write(0x08, 0x04) // command register: bit2 = controller disable
	d.SetDMARequestLine(2, true)
	if d.GetHoldRequestLine() {
		t.Error("a disabled controller should never grant a hold request")
	}
}

func TestDmacAutoinitializeReloadsOnTerminalCount(t *testing.T) {
	d := NewDMAC()
	d.Write(0x0C, 0)
	d.Write(0x0B, 0x58) // channel 0, single mode, read, autoinit
	d.Write(0x00, 0x00)
	d.Write(0x00, 0x00) // address = 0
	d.Write(0x01, 0x00)
	d.Write(0x01, 0x00) // count = 0 (one transfer)
	d.Write(0x09, 0x04) // request channel 0 (bit2 set = request)

	if !d.GetHoldRequestLine() || d.GetActiveChannel() != 0 {
		t.Fatal("channel 0 should be active after requesting service")
	}
	d.Service()
	if !d.IsAtTerminalCount(0) {
		t.Fatal("single-transfer count of 0 should reach terminal count immediately")
	}
	if d.GetAddress(0) != 0 || d.GetWordCount(0) != 0 {
		t.Error("autoinitialize should reload the base address/count on terminal count")
	}
}

func TestDmacModeDecode(t *testing.T) {
	d := NewDMAC()
	d.Write(0x0B, 0x46) // channel 2, single, device-to-memory (write)
	if !d.channels[2].isWriteMode() {
		t.Error("mode byte 0x46 should decode to write (device-to-memory) mode")
	}
	if d.channels[2].isReadMode() {
		t.Error("mode byte 0x46 should not also decode as read mode")
	}
}
