package xtce

import "testing"

func TestPpiPortAReadsLinesWhenInputOnReset(t *testing.T) {
	p := NewPPI() // reset mode 0x99: group A input, group B output, C input
	p.SetA(0, true)
	p.SetA(7, true)
	if !p.GetA(0) || !p.GetA(7) {
		t.Fatal("GetA should reflect asserted input lines on reset-default mode")
	}
	if got := p.Read(0); got&0x81 != 0x81 {
		t.Errorf("Read(0) = 0x%02X, want bits 0 and 7 set", got)
	}
}

func TestPpiPortBIsOutputOnReset(t *testing.T) {
	p := NewPPI()
	p.Write(1, 0x5A)
	if got := p.Read(1); got != 0x5A {
		t.Errorf("Read(1) = 0x%02X, want 0x5A (group B is output on reset)", got)
	}
}

func TestPpiPortCReadsInputLinesOnReset(t *testing.T) {
	p := NewPPI()
	p.SetC(4, true)
	p.SetC(0, true)
	got := p.Read(2)
	if got&0x11 != 0x11 {
		t.Errorf("Read(2) = 0x%02X, want bits 0 and 4 set from cLines", got)
	}
}

func TestPpiBitSetResetCommand(t *testing.T) {
	p := NewPPI()
	p.Write(3, 0x80) // mode set: all groups output, mode 0
	p.Write(3, 0x09) // bit-set command: set C bit 4
	if got := p.Read(2); got != 0x10 {
		t.Errorf("Read(2) after bit-set = 0x%02X, want 0x10", got)
	}
	p.Write(3, 0x08) // bit-reset command: clear C bit 4
	if got := p.Read(2); got != 0x00 {
		t.Errorf("Read(2) after bit-reset = 0x%02X, want 0x00", got)
	}
}

func TestPpiModeSetClearsPorts(t *testing.T) {
	p := NewPPI()
	p.Write(3, 0x80)
	p.Write(1, 0xFF)
	p.Write(3, 0x80) // re-issuing mode set should clear a/b/c
	if got := p.Read(1); got != 0 {
		t.Errorf("Read(1) after mode reset = 0x%02X, want 0x00", got)
	}
}
