// registers.go - Centralized physical memory and I/O port address map for
// the PC/XT machine.
//
// Physical address space (20-bit, 1 MiB):
//
//	0x00000 - 0xB7FFF   conventional RAM (736 KiB)
//	0xB8000 - 0xBBFFF   CGA video RAM aperture (16 KiB, not mirrored)
//	0xBC000 - 0xFDFFF   open bus
//	0xFE000 - 0xFFFFF   BIOS ROM (8 KiB)
//
// I/O port space (16-bit, decoded on the low 10 bits by this board):
//
//	0x000 - 0x00F   DMAC  (8237)
//	0x020 - 0x021   PIC   (8259)
//	0x040 - 0x043   PIT   (8253)
//	0x060 - 0x063   PPI   (8255)
//	0x081 - 0x087   DMA page registers
//	0x0A0 - 0x0A0   NMI mask register
//	0x3B0 - 0x3BF   (unused; MDA range, not populated)
//	0x3C0 - 0x3CF   CGA (CRTC index/data + mode/color/status)
//	0x3E0 - 0x3E7   FDC (765)
package xtce

const (
	RAMSize       = 0xB8000 // conventional RAM installed on this board
	CGABase       = 0xB8000
	CGAAperture   = 0x4000
	ROMBase       = 0xFE000
	ROMSize       = 0x2000
	PhysicalMask  = 0xFFFFF // 20-bit real-mode address wrap
)

// I/O port band bases, matched against (port & portBandMask).
const (
	portBandMask = 0x3E0

	ioBandDMAC  = 0x000
	ioBandPIC   = 0x020
	ioBandPIT   = 0x040
	ioBandPPI   = 0x060
	ioBandPage  = 0x080
	ioBandNMI   = 0x0A0
	ioBandCGA   = 0x3C0
	ioBandFDC   = 0x3E0
)

// DMA page register port assignments. Not contiguous on real XT hardware.
const (
	portDMAPage2 = 0x81 // channel 2 (floppy)
	portDMAPage3 = 0x82
	portDMAPage1 = 0x83
	portDMAPage0 = 0x87
)

// CGA CRTC relative register indices (within ioBandCGA).
const (
	cgaCRTCIndex = 0x4
	cgaCRTCData  = 0x5
	cgaModeCtrl  = 0x8
	cgaColorCtrl = 0x9
	cgaStatus    = 0xA
)

// FDC relative register indices (within ioBandFDC).
const (
	fdcPortDOR  = 2
	fdcPortMSR  = 4
	fdcPortData = 5
)
