// keyboard.go - XT keyboard interface clock-line protocol.
//
// The XT keyboard is not memory-mapped: scancodes arrive serially and are
// shifted into PPI port A one bit at a time, gated by the clock line on
// PPI port B bit 6. Ported from the reference implementation's
// clock-line reset detection (held low long enough, then released,
// produces a 0xAA reset-complete byte).
package xtce

const (
	kbResetTicks         = 10
	kbResetByteDelayTicks = 1
	kbResetByte          = 0xAA
)

type Keyboard struct {
	clockLineState      bool
	sendReset           bool
	resetting           bool
	clockLineLowTicks   uint32
	clockLineHighTicks  uint32
}

func NewKeyboard() *Keyboard {
	k := &Keyboard{}
	k.Reset()
	return k
}

func (k *Keyboard) Reset() {
	*k = Keyboard{}
}

// SetClockLineState mirrors the PPI PB6 output line into the keyboard's
// clock input.
func (k *Keyboard) SetClockLineState(state bool) {
	if !state && k.clockLineState {
		k.resetting = false
		k.clockLineLowTicks = 0
	} else if state && !k.clockLineState {
		if k.clockLineLowTicks >= kbResetTicks {
			k.resetting = true
		}
		k.clockLineHighTicks = 0
	}
	k.clockLineState = state
}

func (k *Keyboard) Tick() {
	if !k.clockLineState {
		k.clockLineLowTicks++
	} else {
		k.clockLineHighTicks++
		if k.resetting && k.clockLineHighTicks >= kbResetByteDelayTicks {
			k.sendReset = true
			k.resetting = false
		}
	}
}

// GetScanCode returns a keyboard-originated byte (currently only the reset
// byte) if one is pending.
func (k *Keyboard) GetScanCode() (uint8, bool) {
	if k.sendReset {
		k.sendReset = false
		return kbResetByte, true
	}
	return 0, false
}
