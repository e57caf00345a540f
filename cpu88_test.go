package xtce

import "testing"

func TestNormalizeFlagsForcesReservedBit(t *testing.T) {
	f := normalizeFlags(0)
	if f&flagR1 == 0 {
		t.Error("reserved bit 1 should always be forced on")
	}
	f = normalizeFlags(0xFFFF)
	if f&flagR1 == 0 {
		t.Error("reserved bit 1 should stay on even when clearing all else")
	}
}

func TestParity(t *testing.T) {
	cases := []struct {
		v    uint8
		even bool
	}{
		{0x00, true},
		{0x01, false},
		{0x03, true},
		{0xFF, true},
		{0x7F, false},
	}
	for _, c := range cases {
		if got := parity(c.v); got != c.even {
			t.Errorf("parity(0x%02X) = %v, want %v", c.v, got, c.even)
		}
	}
}

func TestAluExecAddOverflow(t *testing.T) {
	// 0x7FFF + 1 in 16-bit: signed overflow, no carry.
	res, flags := aluExec(AluADD, true, 0x7FFF, 1, 0)
	if res != 0x8000 {
		t.Errorf("result = 0x%04X, want 0x8000", res)
	}
	if flags&FlagOF == 0 {
		t.Error("OF should be set on 0x7FFF+1")
	}
	if flags&FlagCF != 0 {
		t.Error("CF should be clear on 0x7FFF+1")
	}
	if flags&FlagSF == 0 {
		t.Error("SF should be set, result is negative as a signed word")
	}
}

func TestAluExecAdcWithCarryIn(t *testing.T) {
	// 0xFFFF + 0 + carry-in wraps to 0 with CF set.
	res, flags := aluExec(AluADC, true, 0xFFFF, 0, FlagCF)
	if res != 0 {
		t.Errorf("result = 0x%04X, want 0x0000", res)
	}
	if flags&FlagCF == 0 {
		t.Error("CF should be set on 0xFFFF+0+1")
	}
	if flags&FlagZF == 0 {
		t.Error("ZF should be set, result is zero")
	}
}

func TestAluExecSubBorrow(t *testing.T) {
	res, flags := aluExec(AluSUB, true, 0, 1, 0)
	if res != 0xFFFF {
		t.Errorf("result = 0x%04X, want 0xFFFF", res)
	}
	if flags&FlagCF == 0 {
		t.Error("CF (borrow) should be set on 0-1")
	}
	if flags&FlagSF == 0 {
		t.Error("SF should be set")
	}
}

func TestAluExecByteWidth(t *testing.T) {
	res, flags := aluExec(AluADD, false, 0xFF, 1, 0)
	if res != 0 {
		t.Errorf("byte-width 0xFF+1 = 0x%02X, want 0x00", res)
	}
	if flags&FlagCF == 0 {
		t.Error("CF should be set on byte overflow")
	}
	if flags&FlagZF == 0 {
		t.Error("ZF should be set")
	}
}

func TestAluExecIncPreservesCarry(t *testing.T) {
	_, flags := aluExec(AluINC, true, 0xFFFF, 1, FlagCF)
	if flags&FlagCF == 0 {
		t.Error("INC must preserve the incoming CF rather than recompute it")
	}
}

func TestAluDaaAdjustsLowNibble(t *testing.T) {
	// 0x0F with no incoming AF/CF should DAA to 0x15 with AF set.
	res, flags := aluExec(AluDAA, false, 0x0F, 0, 0)
	if res != 0x15 {
		t.Errorf("DAA(0x0F) = 0x%02X, want 0x15", res)
	}
	if flags&FlagAF == 0 {
		t.Error("AF should be set after a low-nibble DAA correction")
	}
}

func TestPrefetchQueueRingBuffer(t *testing.T) {
	var q prefetchQueue
	if q.full() || q.Len() != 0 {
		t.Fatal("fresh queue should be empty")
	}
	for i := 0; i < 4; i++ {
		if !q.hasRoom() {
			t.Fatalf("queue should have room for entry %d", i)
		}
		q.push(uint8(i), uint32(0x1000+i))
	}
	if !q.full() {
		t.Error("queue should be full after 4 pushes")
	}
	for i := 0; i < 4; i++ {
		e, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d should succeed", i)
		}
		if e.data != uint8(i) || e.address != uint32(0x1000+i) {
			t.Errorf("pop %d = %+v, want data=%d address=0x%X", i, e, i, 0x1000+i)
		}
	}
	if q.Len() != 0 {
		t.Error("queue should be empty after draining all entries")
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue should fail")
	}
}

func TestPrefetchQueueFlush(t *testing.T) {
	var q prefetchQueue
	q.push(0xAA, 0)
	q.push(0xBB, 1)
	q.flush()
	if q.Len() != 0 {
		t.Error("flush should empty the queue")
	}
}
