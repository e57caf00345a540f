package xtce

import "testing"

func TestCgaVideoMemoryRoundTrips(t *testing.T) {
	c := NewCGA()
	c.WriteMem(0x100, 0x41)
	if got := c.ReadMem(0x100); got != 0x41 {
		t.Fatalf("ReadMem(0x100) = 0x%02X, want 0x41", got)
	}
}

func TestCgaVideoMemoryWrapsAtAperture(t *testing.T) {
	c := NewCGA()
	c.WriteMem(cgaVRAMSize, 0x7E) // one past the aperture, should wrap to 0
	if got := c.ReadMem(0); got != 0x7E {
		t.Fatalf("write at cgaVRAMSize should wrap to address 0, got ReadMem(0) = 0x%02X", got)
	}
}

func TestCgaModeRegisterSelectsHiresCharClock(t *testing.T) {
	c := NewCGA()
	c.WriteIO(cgaModeCtrl, cgaModeHiresText|cgaModeEnable)
	if c.charClockMask != cgaHCharClock-1 {
		t.Errorf("charClockMask = %d, want %d for hi-res text mode", c.charClockMask, cgaHCharClock-1)
	}
}

func TestCgaModeRegisterSelectsLoresCharClock(t *testing.T) {
	c := NewCGA()
	c.WriteIO(cgaModeCtrl, cgaModeGraphics|cgaModeEnable) // 40-column/lowres graphics: no hires bits set
	if c.charClockMask != cgaLCharClock-1 {
		t.Errorf("charClockMask = %d, want %d for low-res mode", c.charClockMask, cgaLCharClock-1)
	}
}

func TestCgaColorControlRegisterSelectsPalette(t *testing.T) {
	c := NewCGA()
	c.WriteIO(cgaColorCtrl, cgaCCBrightBit|cgaCCPaletteBit)
	if c.ccPalette != 3 {
		t.Errorf("ccPalette = %d, want 3 (palette bit + bright bit)", c.ccPalette)
	}
}

func TestCgaCrtcIndexPortIsNotReadable(t *testing.T) {
	c := NewCGA()
	if got := c.ReadIO(cgaCRTCIndex); got != 0xFF {
		t.Errorf("ReadIO(cgaCRTCIndex) = 0x%02X, want 0xFF", got)
	}
}

func TestCgaCrtcDataPortRoutesToCrtc(t *testing.T) {
	c := NewCGA()
	c.WriteIO(cgaCRTCIndex, 14) // select R14, a readable cursor address register
	c.WriteIO(cgaCRTCData, 0x07)
	if got := c.ReadIO(cgaCRTCData); got != 0x07 {
		t.Errorf("ReadIO(cgaCRTCData) = 0x%02X, want 0x07", got)
	}
}

func TestCgaStatusRegisterReflectsVerticalRetrace(t *testing.T) {
	c := NewCGA()
	regs := []struct{ index, value uint8 }{
		{0, 0x71}, {1, 0x50}, {2, 0x5A}, {3, 0x0A},
		{4, 0x1F}, {5, 0x06}, {6, 0x19}, {7, 0x1C}, {9, 0x07},
	}
	for _, r := range regs {
		c.WriteIO(cgaCRTCIndex, r.index)
		c.WriteIO(cgaCRTCData, r.value)
	}

	for i := 0; i < 300000 && !c.crtc.Status().VBlank; i++ {
		c.Tick()
	}
	if c.ReadIO(cgaStatus)&cgaStatusVerticalRetrace == 0 {
		t.Error("status register should report vertical retrace once the CRTC enters vblank")
	}
}
