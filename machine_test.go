package xtce

import "testing"

func TestMachineStepInstructionExecutesOne(t *testing.T) {
	m := NewMachine()
	m.ResetMachine()
	m.CPU().SetReg(RegCS, 0)
	m.CPU().SetReg(RegPC, 0)
	copy(m.RAM(), []uint8{0xF4}) // HLT

	m.StepInstruction()
	if !m.CPU().Halted() {
		t.Fatal("expected the CPU to be halted after stepping one HLT instruction")
	}
}

func TestMachineRunForStopsOnHalt(t *testing.T) {
	m := NewMachine()
	m.ResetMachine()
	m.CPU().SetReg(RegCS, 0)
	m.CPU().SetReg(RegPC, 0)
	copy(m.RAM(), []uint8{0xF4})

	result := m.RunFor(10000)
	if result != RunHalt {
		t.Fatalf("RunFor result = %v, want RunHalt", result)
	}
}

func TestMachineBreakpointStopsRunFor(t *testing.T) {
	m := NewMachine()
	m.ResetMachine()
	m.CPU().SetReg(RegCS, 0)
	m.CPU().SetReg(RegPC, 0)
	copy(m.RAM(), []uint8{0x90, 0x90, 0x90, 0xF4}) // NOP NOP NOP HLT
	m.SetBreakpoint(0, 2)

	result := m.RunFor(10000)
	if result != RunBreakpointHit {
		t.Fatalf("RunFor result = %v, want RunBreakpointHit", result)
	}
	if !m.BreakpointHit() {
		t.Error("Machine should report the breakpoint as hit")
	}
}

func TestMachineSendScanCodeRequiresClockHigh(t *testing.T) {
	m := NewMachine()
	m.ResetMachine()
	// On reset the PPI's keyboard-clock-enable line (PB6) defaults low
	// until BIOS/OS code raises it, so delivery should be suppressed.
	m.Bus().PPI().SetB(6, false)
	m.SendScanCode(0xAA)
	if m.Bus().PIC().GetIRQLines()&(1<<1) != 0 {
		t.Error("scan code delivery should be suppressed while the keyboard clock is held low")
	}

	m.Bus().PPI().SetB(6, true)
	m.Bus().PPI().Write(1, 0x40) // guest code drives PB6 high through port B
	m.SendScanCode(0xAA)
	if m.Bus().PIC().GetIRQLines()&(1<<1) == 0 {
		t.Error("expected IRQ1 to be raised once the keyboard clock line is high")
	}
}

func TestMachineLoadFloppyRejectsUnrecognizedGeometry(t *testing.T) {
	m := NewMachine()
	if m.LoadFloppy(0, make([]uint8, 123), false) {
		t.Error("an arbitrarily sized image should not be accepted as a floppy geometry")
	}
}

func TestMachineGetElapsedPITTicksLatchesBaseline(t *testing.T) {
	m := NewMachine()
	m.ResetMachine()
	m.Bus().PIT().Tick()
	m.Bus().PIT().Tick()
	m.Bus().PIT().Tick()

	elapsed := m.GetElapsedPITTicks(true)
	if elapsed != 3 {
		t.Fatalf("elapsed ticks = %d, want 3", elapsed)
	}
	if got := m.GetElapsedPITTicks(false); got != 0 {
		t.Errorf("elapsed ticks immediately after latching = %d, want 0", got)
	}
}
