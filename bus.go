// bus.go - system bus: physical memory, 16-bit I/O port space, and the
// per-master-tick device orchestration (CGA, PIT, keyboard, FDC, DMA
// handshake state machine).
//
// Ported from the reference Bus: a single tick() advances every device
// from one master clock, decodes the active CPU bus cycle's address into
// RAM/ROM/CGA/ports, and runs an explicit DMA request/grant state machine
// that never overlaps a CPU bus cycle with a DMA cycle.
package xtce

// BusAccessType selects what startAccess/read/write mean for the current
// cycle: a memory access, an I/O port access, or an interrupt
// acknowledge cycle.
type BusAccessType int

const (
	AccessInterruptAck BusAccessType = iota
	AccessIORead
	AccessIOWrite
	AccessMemory
)

type dmaBusState int

const (
	dmaIdle dmaBusState = iota
	dmaDREQ
	dmaHRQ
	dmaAEN
	dmaS0
	dmaS1
	dmaS2
	dmaS3
	dmaS4
	dmaDelayedT1
	dmaDelayedT2
	dmaDelayedT3
)

// PCSpeakerCallback receives the speaker gate/data state whenever it
// changes, stamped with the PIT tick count it changed on.
type PCSpeakerCallback func(pitTicks uint64, counter2Output, speakerMask bool)

type Bus struct {
	Debug bool

	ram [RAMSize]uint8
	rom [ROMSize]uint8

	address uint32
	kind    BusAccessType
	cycle   int

	dmac *DMAC
	pic  *PIC
	pit  *PIT
	ppi  *PPI
	cga  *CGA
	fdc  *FDC
	kb   *Keyboard

	dipSwitch1 uint8

	pitPhase            int
	lastCounter0Output  bool
	lastCounter1Output  bool
	counter2Output      bool
	counter2Gate        bool
	speakerMask         bool
	speakerOutput       bool
	nextSpeakerOutput   bool
	speakerCycle        int
	speakerCallback     PCSpeakerCallback

	dmaPages [4]uint8
	nmiEnabled bool

	passiveOrHalt         bool
	dmaState              dmaBusState
	lock                  bool
	previousPassiveOrHalt bool
	lastNonDMAReady       bool

	lastKbDisabled bool
	lastKbCleared  bool

	ticks uint64
}

func NewBus() *Bus {
	b := &Bus{
		dmac: NewDMAC(),
		pic:  NewPIC(),
		pit:  NewPIT(),
		ppi:  NewPPI(),
		cga:  NewCGA(),
		fdc:  NewFDC(),
		kb:   NewKeyboard(),
	}
	b.fdc.AttachDMAC(b.dmac)
	b.fdc.AttachPIC(b.pic)
	b.dipSwitch1 = 0b01101101
	b.Reset()
	return b
}

func (b *Bus) RAM() []uint8    { return b.ram[:] }
func (b *Bus) RAMSize() int    { return len(b.ram) }
func (b *Bus) ROMSize() int    { return len(b.rom) }
func (b *Bus) CGA() *CGA       { return b.cga }
func (b *Bus) PIC() *PIC       { return b.pic }
func (b *Bus) PIT() *PIT       { return b.pit }
func (b *Bus) PPI() *PPI       { return b.ppi }
func (b *Bus) FDC() *FDC       { return b.fdc }
func (b *Bus) DMAC() *DMAC     { return b.dmac }

// LoadROM copies a BIOS image into the ROM window starting at ROMBase.
// Bytes beyond ROMSize are dropped; a shorter image leaves the rest of the
// window unchanged. The image is not mirrored.
func (b *Bus) LoadROM(image []uint8) {
	n := copy(b.rom[:], image)
	_ = n
}

// Peek reads a byte from a physical address without altering bus state,
// for inspection tools.
func (b *Bus) Peek(address uint32) uint8 {
	address &= PhysicalMask
	if address >= ROMBase {
		idx := address - ROMBase
		if int(idx) < len(b.rom) {
			return b.rom[idx]
		}
		return 0xFF
	}
	if address >= CGABase && address < CGABase+CGAAperture {
		return b.cga.ReadMem(uint16(address - CGABase))
	}
	if address >= RAMSize {
		return 0xFF
	}
	return b.ram[address]
}

func (b *Bus) Reset() {
	for i := range b.ram {
		b.ram[i] = 0
	}
	b.dmac.Reset()
	b.pic.Reset()
	b.pit.Reset()
	b.ppi.Reset()
	b.fdc.Reset()
	b.kb.Reset()
	b.cga.Reset()
	b.pit.SetGate(0, true)
	b.pit.SetGate(1, true)
	b.pit.SetGate(2, true)

	b.pitPhase = 2
	b.lastCounter0Output = false
	b.lastCounter1Output = true
	b.counter2Output = false
	b.counter2Gate = false
	b.speakerMask = false
	b.speakerOutput = false
	b.dmaState = dmaIdle
	b.passiveOrHalt = true
	b.lock = false
	b.previousPassiveOrHalt = true
	b.lastNonDMAReady = true
	b.lastKbDisabled = false
	b.lastKbCleared = false
}

func (b *Bus) SetSpeakerCallback(cb PCSpeakerCallback) { b.speakerCallback = cb }

// StartAccess latches the address and access kind the CPU bus-interface
// unit is about to drive; subsequent Read/Write calls act against it
// until the next StartAccess.
func (b *Bus) StartAccess(address uint32, kind BusAccessType) {
	b.address = address
	b.kind = kind
	b.cycle = 0
}

// Tick advances every device by one master clock and runs the DMA
// handshake state machine.
func (b *Bus) Tick() {
	b.ticks++
	b.cga.Tick()
	b.pitPhase++

	if b.pitPhase == 4 {
		b.pitPhase = 0
		b.pit.Tick()

		counter0Output := b.pit.GetOutput(0)
		if b.lastCounter0Output != counter0Output {
			b.pic.SetIRQLine(0, counter0Output)
		}
		b.lastCounter0Output = counter0Output

		counter1Output := b.pit.GetOutput(1)
		if counter1Output && !b.lastCounter1Output && !b.dack0() {
			b.dmac.SetDMARequestLine(0, true)
		}
		b.lastCounter1Output = counter1Output

		counter2Output := b.pit.GetOutput(2)
		if b.counter2Output != counter2Output {
			b.counter2Output = counter2Output
			b.setSpeakerOutput()
			b.ppi.SetC(5, counter2Output)
			b.updatePPI()
		}
	}

	if b.speakerCycle != 0 {
		b.speakerCycle--
		if b.speakerCycle == 0 {
			b.speakerOutput = b.nextSpeakerOutput
			b.ppi.SetC(4, b.speakerOutput)
			b.updatePPI()
		}
	}

	if b.ticks&0xF == 0 {
		kbCleared := b.ppi.GetB(7)
		kbDisabled := !b.ppi.GetB(6)
		if kbDisabled && !b.lastKbDisabled {
			b.kb.SetClockLineState(false)
		} else if !kbDisabled && b.lastKbDisabled {
			b.kb.SetClockLineState(true)
		}

		if kbCleared && !b.lastKbCleared {
			b.pic.SetIRQLine(1, false)
			for i := 0; i < 8; i++ {
				b.ppi.SetA(i, false)
			}
		}
		b.lastKbDisabled = kbDisabled
		b.lastKbCleared = kbCleared
	}

	if b.ticks&0x3FFF == 0 {
		b.kb.Tick()
		if code, ok := b.kb.GetScanCode(); ok {
			for i := 0; i < 8; i++ {
				b.ppi.SetA(i, (code>>uint(i))&1 != 0)
			}
			b.pic.SetIRQLine(1, true)
		}
		b.fdc.Tick()
	}

	const hasDMACFix = true
	if b.kind != AccessIOWrite || (b.address&portBandMask) != ioBandDMAC || !hasDMACFix {
		b.lastNonDMAReady = b.nonDMAReady()
	}

	switch b.dmaState {
	case dmaIdle:
		if b.dmac.GetHoldRequestLine() {
			b.dmaState = dmaDREQ
		}
	case dmaDREQ:
		b.dmaState = dmaHRQ
	case dmaHRQ:
		if (b.passiveOrHalt || b.previousPassiveOrHalt) && !b.lock && b.lastNonDMAReady {
			b.dmaState = dmaAEN
		}
	case dmaAEN:
		b.dmaState = dmaS0
	case dmaS0:
		b.dmac.SetDMARequestLine(0, false)
		b.dmaState = dmaS1
	case dmaS1:
		b.dmaState = dmaS2
	case dmaS2:
		if b.dmac.GetActiveChannel() == 2 {
			addr := b.dmaAddressHigh(2) + uint32(b.dmac.GetAddress(-1))
			if b.dmac.IsReading(-1) {
				b.fdc.dmaDeviceWrite(b.ram[addr&PhysicalMask])
			} else if b.dmac.IsWriting(-1) {
				data := b.fdc.dmaDeviceRead()
				b.ram[addr&PhysicalMask] = data
			}
			b.dmac.Service()
			if b.dmac.IsAtTerminalCount(-1) {
				b.fdc.dmaDeviceEOP()
			}
		} else {
			b.dmac.Service()
		}
		b.dmaState = dmaS3
	case dmaS3:
		b.dmaState = dmaS4
	case dmaS4:
		b.dmaState = dmaDelayedT1
		b.dmac.DMACompleted()
	case dmaDelayedT1:
		b.dmaState = dmaDelayedT2
		b.cycle = 0
	case dmaDelayedT2:
		b.dmaState = dmaDelayedT3
	case dmaDelayedT3:
		b.dmaState = dmaIdle
	}
	b.previousPassiveOrHalt = b.passiveOrHalt

	b.lastNonDMAReady = b.nonDMAReady()
	b.cycle++
}

// Ready reports whether the currently latched access may complete this
// tick (both the DMA arbiter and the onboard-device wait-state logic
// must agree).
func (b *Bus) Ready() bool { return b.dmaReady() && b.nonDMAReady() }

func (b *Bus) dmaReady() bool {
	switch b.dmaState {
	case dmaS1, dmaS2, dmaS3, dmaS4, dmaDelayedT1, dmaDelayedT2:
		return false
	}
	return true
}

func (b *Bus) nonDMAReady() bool {
	if b.kind == AccessIORead || b.kind == AccessIOWrite {
		return b.cycle > 2
	}
	return true
}

func (b *Bus) dack0() bool {
	switch b.dmaState {
	case dmaS1, dmaS2, dmaS3:
		return true
	}
	return false
}

// Write performs the latched access as a write.
func (b *Bus) Write(data uint8) {
	if b.kind == AccessIOWrite {
		switch b.address & portBandMask {
		case ioBandDMAC:
			b.dmac.Write(b.address&0x0f, data)
		case ioBandPIC:
			b.pic.Write(b.address&1, data)
		case ioBandPIT:
			b.pit.Write(b.address&3, data)
		case ioBandPPI:
			b.ppi.Write(int(b.address&3), data)
			b.updatePPI()
		case ioBandPage:
			switch b.address {
			case portDMAPage0:
				b.dmaPages[0] = data
			case portDMAPage1:
				b.dmaPages[1] = data
			case portDMAPage2:
				b.dmaPages[2] = data
			case portDMAPage3:
				b.dmaPages[3] = data
			}
		case ioBandNMI:
			b.nmiEnabled = data&0x80 != 0
		case ioBandCGA:
			b.cga.WriteIO(uint16(b.address&0x0F), data)
		case ioBandFDC:
			b.fdc.WriteIO(uint16(b.address&7), data)
		}
		return
	}

	if b.address < RAMSize {
		b.ram[b.address] = data
	} else if b.address >= CGABase && b.address < CGABase+CGAAperture {
		b.cga.WriteMem(uint16(b.address-CGABase), data)
	}
}

// Read performs the latched access as a read.
func (b *Bus) Read() uint8 {
	switch b.kind {
	case AccessInterruptAck:
		return b.pic.InterruptAcknowledge()
	case AccessIORead:
		switch b.address & portBandMask {
		case ioBandDMAC:
			return b.dmac.Read(b.address & 0x0f)
		case ioBandPIC:
			return b.pic.Read(b.address & 1)
		case ioBandPIT:
			return b.pit.Read(b.address & 3)
		case ioBandPPI:
			v := b.ppi.Read(int(b.address & 3))
			b.updatePPI()
			return v
		case ioBandPage:
			switch b.address {
			case portDMAPage0:
				return b.dmaPages[0]
			case portDMAPage1:
				return b.dmaPages[1]
			case portDMAPage2:
				return b.dmaPages[2]
			case portDMAPage3:
				return b.dmaPages[3]
			}
		case ioBandCGA:
			return b.cga.ReadIO(uint16(b.address & 0x0F))
		case ioBandFDC:
			return b.fdc.ReadIO(uint16(b.address & 7))
		}
		return 0xFF
	}

	if b.address < RAMSize {
		return b.ram[b.address]
	}
	if b.address >= ROMBase {
		idx := b.address - ROMBase
		if int(idx) < len(b.rom) {
			return b.rom[idx]
		}
		return 0xFF
	}
	if b.address >= CGABase && b.address < CGABase+CGAAperture {
		return b.cga.ReadMem(uint16(b.address - CGABase))
	}
	return 0xFF
}

func (b *Bus) InterruptPending() bool { return b.pic.InterruptPending() }

func (b *Bus) SetPassiveOrHalt(v bool) { b.passiveOrHalt = v }
func (b *Bus) SetLock(v bool)          { b.lock = v }

func (b *Bus) GetIRQLines() uint8 { return b.pic.GetIRQLines() }

func (b *Bus) setSpeakerOutput() {
	o := !(b.counter2Output && b.speakerMask)
	if b.speakerCallback != nil {
		b.speakerCallback(b.pit.GetTicks(), b.counter2Output, b.speakerMask)
	}
	if b.nextSpeakerOutput != o {
		if b.speakerOutput == o {
			b.speakerCycle = 0
		} else if o {
			b.speakerCycle = 3
		} else {
			b.speakerCycle = 2
		}
		b.nextSpeakerOutput = o
	}
}

func (b *Bus) updatePPI() {
	speakerMask := b.ppi.GetB(1)
	if speakerMask != b.speakerMask {
		b.speakerMask = speakerMask
		b.setSpeakerOutput()
	}
	b.counter2Gate = b.ppi.GetB(0)
	b.pit.SetGate(2, b.counter2Gate)

	if !b.ppi.GetB(3) {
		b.ppi.SetC(0, b.dipSwitch1&0x01 != 0)
		b.ppi.SetC(1, b.dipSwitch1&0x02 != 0)
		b.ppi.SetC(2, b.dipSwitch1&0x04 != 0)
		b.ppi.SetC(3, b.dipSwitch1&0x08 != 0)
	} else {
		b.ppi.SetC(0, b.dipSwitch1&0x10 != 0)
		b.ppi.SetC(1, b.dipSwitch1&0x20 != 0)
		b.ppi.SetC(2, b.dipSwitch1&0x40 != 0)
		b.ppi.SetC(3, b.dipSwitch1&0x80 != 0)
	}
}

func (b *Bus) dmaAddressHigh(channel int) uint32 {
	return uint32(b.dmaPages[channel&3]) << 16
}
