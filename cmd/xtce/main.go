// Command xtce is the console entrypoint for the emulator: load a BIOS
// image and up to two floppy images, then either run headless for a
// tick budget, single-step and dump registers, inspect machine state
// without running it, or drop into the interactive monitor.
//
// Subcommand shape follows the oisee-z80-optimizer command tree: one
// root command, each subcommand binding its own flag set with
// cmd.Flags().XxxVar and returning its result through RunE.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbalsom/xtce-go"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xtce",
		Short: "Cycle-stepped 8088 PC/XT emulator",
	}
	root.AddCommand(newRunCmd(), newStepCmd(), newInspectCmd(), newMonitorCmd())
	return root
}

// machineFlags holds the load-time options shared by every subcommand.
type machineFlags struct {
	rom      string
	floppy0  string
	floppy1  string
	wp0      bool
	wp1      bool
	imageDir string
	debug    bool
}

func bindMachineFlags(cmd *cobra.Command, f *machineFlags) {
	cmd.Flags().StringVar(&f.rom, "rom", "", "path to a BIOS/ROM image (required)")
	cmd.Flags().StringVar(&f.floppy0, "floppy0", "", "disk image name for drive 0, relative to --image-dir")
	cmd.Flags().StringVar(&f.floppy1, "floppy1", "", "disk image name for drive 1, relative to --image-dir")
	cmd.Flags().BoolVar(&f.wp0, "wp0", false, "mark drive 0 as write-protected")
	cmd.Flags().BoolVar(&f.wp1, "wp1", false, "mark drive 1 as write-protected")
	cmd.Flags().StringVar(&f.imageDir, "image-dir", ".", "directory floppy image names are resolved under")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "set the PIC and FDC Debug fields (no log output is produced)")
}

// buildMachine loads the ROM and any requested floppy images per f,
// returning a ready-to-run Machine.
func buildMachine(f *machineFlags) (*xtce.Machine, error) {
	if f.rom == "" {
		return nil, fmt.Errorf("--rom is required")
	}
	image, err := os.ReadFile(f.rom)
	if err != nil {
		return nil, fmt.Errorf("reading rom: %w", err)
	}

	m := xtce.NewMachine()
	m.Bus().LoadROM(image)
	m.Bus().PIC().Debug = f.debug
	m.Bus().FDC().Debug = f.debug

	store, err := xtce.NewFloppyStore(f.imageDir)
	if err != nil {
		return nil, fmt.Errorf("resolving image dir: %w", err)
	}
	if f.floppy0 != "" {
		if err := store.Load(m, 0, f.floppy0, f.wp0); err != nil {
			return nil, err
		}
	}
	if f.floppy1 != "" {
		if err := store.Load(m, 1, f.floppy1, f.wp1); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newRunCmd() *cobra.Command {
	f := &machineFlags{}
	var ticks uint64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the machine headless for a fixed number of master ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildMachine(f)
			if err != nil {
				return err
			}
			m.ResetMachine()
			result := m.RunFor(ticks)
			switch result {
			case xtce.RunHalt:
				fmt.Println("halted")
			case xtce.RunBreakpointHit:
				fmt.Println("breakpoint hit")
			default:
				fmt.Println("tick budget exhausted")
			}
			printRegisters(m)
			return nil
		},
	}
	bindMachineFlags(cmd, f)
	cmd.Flags().Uint64Var(&ticks, "ticks", 3_000_000, "master clock ticks to run before stopping")
	return cmd
}

func newStepCmd() *cobra.Command {
	f := &machineFlags{}
	var count int
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Single-step a fixed number of instructions and print registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildMachine(f)
			if err != nil {
				return err
			}
			m.ResetMachine()
			for i := 0; i < count; i++ {
				m.StepInstruction()
			}
			printRegisters(m)
			return nil
		},
	}
	bindMachineFlags(cmd, f)
	cmd.Flags().IntVar(&count, "count", 1, "number of instructions to execute")
	return cmd
}

func newInspectCmd() *cobra.Command {
	f := &machineFlags{}
	var addr uint32
	var length int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load a machine and dump registers and a physical memory range without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildMachine(f)
			if err != nil {
				return err
			}
			m.ResetMachine()
			printRegisters(m)
			if length > 0 {
				fmt.Printf("\n%08X:", addr)
				for i := 0; i < length; i++ {
					if i > 0 && i%16 == 0 {
						fmt.Printf("\n%08X:", addr+uint32(i))
					}
					fmt.Printf(" %02X", m.PeekPhysical(addr+uint32(i)))
				}
				fmt.Println()
			}
			return nil
		},
	}
	bindMachineFlags(cmd, f)
	cmd.Flags().Uint32Var(&addr, "addr", 0, "physical address to dump from")
	cmd.Flags().IntVar(&length, "length", 0, "number of bytes to dump (0 = registers only)")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	f := &machineFlags{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Load a machine and drop into the interactive step/breakpoint REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildMachine(f)
			if err != nil {
				return err
			}
			m.ResetMachine()
			mon := xtce.NewMonitor(m, os.Stdout)
			return mon.Run(os.Stdin, int(os.Stdin.Fd()))
		},
	}
	bindMachineFlags(cmd, f)
	return cmd
}

func printRegisters(m *xtce.Machine) {
	regs := m.Registers()
	order := []struct {
		name string
		reg  xtce.Register
	}{
		{"AX", xtce.RegAX}, {"BX", xtce.RegBX}, {"CX", xtce.RegCX}, {"DX", xtce.RegDX},
		{"SP", xtce.RegSP}, {"BP", xtce.RegBP}, {"SI", xtce.RegSI}, {"DI", xtce.RegDI},
		{"ES", xtce.RegES}, {"CS", xtce.RegCS}, {"SS", xtce.RegSS}, {"DS", xtce.RegDS},
		{"IP", xtce.RegPC}, {"FLAGS", xtce.RegFLAGS},
	}
	for i, e := range order {
		fmt.Printf("%-5s=%04X", e.name, regs[e.reg])
		if (i+1)%4 == 0 {
			fmt.Println()
		} else {
			fmt.Print("  ")
		}
	}
	fmt.Println()
	fmt.Printf("cycles=%d\n", m.CycleCount())
}
