// machine.go - embedding-facing API: a CPU plus its Bus, run to a tick
// budget or a single instruction boundary, with scancode injection,
// floppy loading, and breakpoint control.
//
// Ported from the reference Machine wrapper: a thin state holder around
// the CPU/bus pair exposing run_for/stepInstruction/reset/peek without
// any UI or windowing concerns.
package xtce

// RunResult reports why RunFor returned control to the caller.
type RunResult int

const (
	RunOk RunResult = iota
	RunHalt
	RunBreakpointHit
)

// MachineState mirrors the reference wrapper's coarse run/stop tracking.
type MachineState int

const (
	MachineRunning MachineState = iota
	MachineStopped
	MachineBreakpointHit
)

type Machine struct {
	cpu *CPU
	bus *Bus

	state        MachineState
	clockDivisor int
	lastPITTicks uint64
}

// NewMachine constructs a CPU wired to a fresh Bus, both reset.
func NewMachine() *Machine {
	m := &Machine{cpu: NewCPU(), bus: NewBus()}
	m.state = MachineStopped
	return m
}

func (m *Machine) Bus() *Bus { return m.bus }
func (m *Machine) CPU() *CPU { return m.cpu }

// RunFor advances the machine by the given number of master clock ticks,
// three of which make up one CPU cycle in the default configuration.
func (m *Machine) RunFor(masterTicks uint64) RunResult {
	result := RunOk
	for i := uint64(0); i < masterTicks; i++ {
		m.bus.Tick()
		m.clockDivisor++
		if m.clockDivisor < 3 {
			continue
		}
		m.clockDivisor = 0

		if m.cpu.QueueLen() > 0 {
			m.cpu.CheckInterrupts(m.bus)
		}
		m.cpu.Tick(m.bus)

		if m.cpu.BreakpointHit() {
			result = RunBreakpointHit
			break
		}
		if m.cpu.Halted() && !(m.cpu.GetFlag(FlagIF) && m.bus.InterruptPending()) {
			result = RunHalt
		}
	}
	if result == RunBreakpointHit {
		m.state = MachineBreakpointHit
	}
	return result
}

// StepInstruction executes exactly one instruction boundary and returns
// the approximate CPU cycle count it consumed.
func (m *Machine) StepInstruction() uint64 {
	m.cpu.CheckInterrupts(m.bus)
	cycles := m.cpu.Step(m.bus)
	if m.state == MachineRunning {
		m.state = MachineStopped
	}
	return uint64(cycles)
}

func (m *Machine) ResetCPU() { m.cpu.Reset() }

func (m *Machine) ResetMachine() {
	m.lastPITTicks = 0
	m.cpu.Reset()
	m.bus.Reset()
}

func (m *Machine) State() MachineState      { return m.state }
func (m *Machine) SetState(s MachineState)  { m.state = s }
func (m *Machine) IsRunning() bool          { return m.state == MachineRunning }
func (m *Machine) Stop()                    { m.state = MachineStopped }
func (m *Machine) Run()                     { m.state = MachineRunning }

func (m *Machine) RAM() []uint8          { return m.bus.RAM() }
func (m *Machine) RAMSize() int          { return m.bus.RAMSize() }
func (m *Machine) ROMSize() int          { return m.bus.ROMSize() }
func (m *Machine) PeekPhysical(a uint32) uint8 { return m.bus.Peek(a) }
func (m *Machine) FrontBuffer() []uint8  { return m.bus.CGA().FrontBuffer() }
func (m *Machine) CycleCount() uint64    { return m.cpu.CycleCount() }
func (m *Machine) Registers() [registerFileSize]uint16 { return m.cpu.Registers() }

func (m *Machine) SetBreakpoint(cs, ip uint16) { m.cpu.SetBreakpoint(cs, ip) }
func (m *Machine) ClearBreakpoint()            { m.cpu.ClearBreakpoint() }
func (m *Machine) BreakpointHit() bool         { return m.cpu.BreakpointHit() }

// SendScanCode shifts a PC/XT set-1 scancode byte into PPI port A and
// raises the keyboard IRQ line, matching the reference's direct
// bit-banged delivery path (distinct from the Bus's internal
// clock-line reset handshake). Delivery is suppressed while the guest
// holds the keyboard clock line low (PPI PB6).
func (m *Machine) SendScanCode(scancode uint8) {
	ppi := m.bus.PPI()
	if !ppi.GetB(6) {
		return
	}
	for i := 0; i < 8; i++ {
		bit := scancode&(1<<uint(i)) != 0
		ppi.SetA(i, bit)
	}
	m.bus.PIC().SetIRQLine(1, true)
}

// LoadFloppy installs a raw CHS-linear disk image into the given drive
// slot (0-3), returning false if the image size does not match a
// recognized standard PC floppy geometry.
func (m *Machine) LoadFloppy(drive int, image []uint8, writeProtected bool) bool {
	return m.bus.FDC().LoadDisk(drive, image, writeProtected)
}

// GetElapsedPITTicks returns the PIT tick count since the last call made
// with newFrame set, latching a new baseline when newFrame is true.
func (m *Machine) GetElapsedPITTicks(newFrame bool) uint64 {
	ticks := m.bus.PIT().GetTicks()
	elapsed := ticks - m.lastPITTicks
	if newFrame {
		m.lastPITTicks = ticks
	}
	return elapsed
}
