// monitor.go - interactive step/breakpoint REPL.
//
// A scaled-down terminal counterpart to the teacher's MachineMonitor: no
// GUI, no scrollback/hex-editor/scripting surface, just the register
// dump, single-step, breakpoint, and run-to-breakpoint commands a
// headless embedder needs to drive the machine from a console. Grounded
// on the teacher's Activate/Deactivate/showRegisters shape and its use
// of golang.org/x/term for raw-mode terminal I/O.
package xtce

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// Monitor drives a Machine from line-oriented commands read from an
// io.Reader, writing output to an io.Writer. "go" hands the machine to a
// background free-running goroutine (mirroring the teacher's
// Activate/Deactivate freeze-on-entry model, inverted: the REPL is the
// thing that's normally idle, and autorun is what gets frozen when the
// user interrupts it); the foreground REPL stays responsive to stop it.
type Monitor struct {
	m   *Machine
	out io.Writer

	mu      sync.Mutex
	autorun bool
}

func NewMonitor(m *Machine, out io.Writer) *Monitor {
	return &Monitor{m: m, out: out}
}

// Run reads commands from in until it returns "quit" or the reader is
// exhausted. If fd is a valid terminal file descriptor, raw mode is
// entered for the duration of the session and restored on exit.
func (mon *Monitor) Run(in io.Reader, fd int) error {
	var restore func() error
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err == nil {
			restore = func() error { return term.Restore(fd, state) }
			defer restore()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return mon.repl(in)
	})
	g.Go(func() error {
		return mon.autorunLoop(ctx)
	})
	return g.Wait()
}

// autorunLoop advances the machine in small chunks whenever the "go"
// command has set autorun, stopping on a breakpoint/halt or cancellation.
func (mon *Monitor) autorunLoop(ctx context.Context) error {
	const chunk = 30000
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mon.mu.Lock()
			running := mon.autorun
			mon.mu.Unlock()
			if !running {
				continue
			}
			result := mon.m.RunFor(chunk)
			if result != RunOk {
				mon.mu.Lock()
				mon.autorun = false
				mon.mu.Unlock()
				fmt.Fprintln(mon.out)
				if result == RunBreakpointHit {
					fmt.Fprintln(mon.out, "breakpoint hit")
				} else {
					fmt.Fprintln(mon.out, "cpu halted")
				}
				mon.showRegisters()
			}
		}
	}
}

func (mon *Monitor) repl(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	mon.printBanner()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			mon.mu.Lock()
			if mon.autorun {
				mon.autorun = false
				mon.mu.Unlock()
				fmt.Fprintln(mon.out, "stopped")
				mon.showRegisters()
				continue
			}
			mon.mu.Unlock()
			continue
		}
		if !mon.dispatch(line) {
			return nil
		}
	}
	return scanner.Err()
}

func (mon *Monitor) printBanner() {
	fmt.Fprintln(mon.out, "monitor ready - type 'h' for help")
	mon.showRegisters()
}

// dispatch executes one command line, returning false to end the session.
func (mon *Monitor) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "q", "quit":
		return false
	case "h", "help":
		mon.showHelp()
	case "r", "regs":
		mon.showRegisters()
	case "s", "step":
		cycles := mon.m.StepInstruction()
		fmt.Fprintf(mon.out, "stepped %d cycles\n", cycles)
		mon.showRegisters()
	case "g", "go":
		mon.mu.Lock()
		mon.autorun = true
		mon.mu.Unlock()
		fmt.Fprintln(mon.out, "running in background - press enter to stop")
	case "stop":
		mon.mu.Lock()
		mon.autorun = false
		mon.mu.Unlock()
		mon.showRegisters()
	case "b", "break":
		if len(args) != 2 {
			fmt.Fprintln(mon.out, "usage: break <cs-hex> <ip-hex>")
			break
		}
		cs, err1 := strconv.ParseUint(args[0], 16, 16)
		ip, err2 := strconv.ParseUint(args[1], 16, 16)
		if err1 != nil || err2 != nil {
			fmt.Fprintln(mon.out, "bad hex address")
			break
		}
		mon.m.SetBreakpoint(uint16(cs), uint16(ip))
		fmt.Fprintf(mon.out, "breakpoint set at %04X:%04X\n", cs, ip)
	case "cb":
		mon.m.ClearBreakpoint()
		fmt.Fprintln(mon.out, "breakpoint cleared")
	case "reset":
		mon.m.ResetMachine()
		fmt.Fprintln(mon.out, "machine reset")
		mon.showRegisters()
	default:
		fmt.Fprintf(mon.out, "unknown command %q (h for help)\n", cmd)
	}
	return true
}

func (mon *Monitor) showHelp() {
	fmt.Fprintln(mon.out, "r/regs            show registers")
	fmt.Fprintln(mon.out, "s/step            execute one instruction")
	fmt.Fprintln(mon.out, "g/go              run freely in the background")
	fmt.Fprintln(mon.out, "stop / <enter>    stop a background run")
	fmt.Fprintln(mon.out, "b/break CS IP     set breakpoint (hex)")
	fmt.Fprintln(mon.out, "cb                clear breakpoint")
	fmt.Fprintln(mon.out, "reset             reset machine")
	fmt.Fprintln(mon.out, "q/quit            exit monitor")
}

var registerDisplayOrder = []struct {
	name string
	reg  Register
}{
	{"AX", RegAX}, {"BX", RegBX}, {"CX", RegCX}, {"DX", RegDX},
	{"SP", RegSP}, {"BP", RegBP}, {"SI", RegSI}, {"DI", RegDI},
	{"ES", RegES}, {"CS", RegCS}, {"SS", RegSS}, {"DS", RegDS},
	{"IP", RegPC}, {"FLAGS", RegFLAGS},
}

func (mon *Monitor) showRegisters() {
	regs := mon.m.Registers()
	for i, e := range registerDisplayOrder {
		fmt.Fprintf(mon.out, "%-5s=%04X", e.name, regs[e.reg])
		if (i+1)%4 == 0 {
			fmt.Fprintln(mon.out)
		} else {
			fmt.Fprint(mon.out, "  ")
		}
	}
	fmt.Fprintln(mon.out)
	fmt.Fprintf(mon.out, "flags: %s\n", flagsString(regs[RegFLAGS]))
}

func flagsString(f uint16) string {
	bits := []struct {
		mask uint16
		set  string
		clr  string
	}{
		{FlagOF, "OV", "NV"}, {FlagDF, "DN", "UP"}, {FlagIF, "EI", "DI"},
		{FlagTF, "TR", "NT"}, {FlagSF, "NG", "PL"}, {FlagZF, "ZR", "NZ"},
		{FlagAF, "AC", "NA"}, {FlagPF, "PE", "PO"}, {FlagCF, "CY", "NC"},
	}
	parts := make([]string, len(bits))
	for i, b := range bits {
		if f&b.mask != 0 {
			parts[i] = b.set
		} else {
			parts[i] = b.clr
		}
	}
	return strings.Join(parts, " ")
}
