package xtce

import "testing"

func selectAndSpinDrive0(f *FDC) {
	f.WriteIO(fdcPortDOR, dorResetNot|dorMotor0) // drive 0 selected, motor 0 on, not resetting
}

func TestFdcCalibrateSeeksToTrackZero(t *testing.T) {
	f := NewFDC()
	selectAndSpinDrive0(f)
	f.drives[0].cylinder = 5
	for _, b := range []uint8{0x07, 0x00} { // Recalibrate, drive 0
		f.WriteIO(fdcPortData, b)
	}
	// Recalibrate has no result phase; completion is signalled on IRQ6 and
	// ST0/PCN are collected later with Sense Interrupt Status.
	if !f.PollIRQ() {
		t.Fatal("expected calibrate completion to raise the FDC interrupt line")
	}
	if f.st0&0xC0 != 0 {
		t.Errorf("ST0 = 0x%02X, want normal termination after calibrate", f.st0)
	}
	if f.drives[0].cylinder != 0 {
		t.Errorf("drive cylinder = %d, want 0 after calibrate", f.drives[0].cylinder)
	}
}

func TestFdcSeekMovesToRequestedCylinder(t *testing.T) {
	f := NewFDC()
	selectAndSpinDrive0(f)
	for _, b := range []uint8{0x0F, 0x00, 0x14} { // Seek, drive 0 head 0, cylinder 20
		f.WriteIO(fdcPortData, b)
	}
	f.Tick() // completeSeek fires on the next tick
	if f.drives[0].cylinder != 0x14 {
		t.Fatalf("drive cylinder = %d, want 20", f.drives[0].cylinder)
	}
	if f.PollIRQ() == false {
		t.Error("seek completion should raise the FDC interrupt line")
	}
}

func TestFdcSenseInterruptReportsPollingCodeAfterReset(t *testing.T) {
	f := NewFDC()
	selectAndSpinDrive0(f)
	f.WriteIO(fdcPortData, 0x08) // Sense Interrupt Status, 1-byte command

	if f.ReadIO(fdcPortMSR)&msrDIO == 0 {
		t.Fatal("expected a result phase after Sense Interrupt")
	}
	st0 := f.ReadIO(fdcPortData)
	f.ReadIO(fdcPortData) // PCN
	if st0>>st0ICShift != uint8(fdcICPolling) {
		t.Errorf("ST0 interrupt code = %d, want fdcICPolling (no command had completed since reset)", st0>>st0ICShift)
	}
}

func TestFdcReadDataWithNoDiskReportsError(t *testing.T) {
	f := NewFDC()
	selectAndSpinDrive0(f)
	for _, b := range []uint8{0x06, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x1B, 0xFF} {
		f.WriteIO(fdcPortData, b)
	}
	if f.ReadIO(fdcPortMSR)&msrDIO == 0 {
		t.Fatal("expected an error result phase when no disk is loaded")
	}
	st0 := f.ReadIO(fdcPortData)
	if st0>>st0ICShift != uint8(fdcICAbnormal) {
		t.Errorf("ST0 interrupt code = %d, want fdcICAbnormal", st0>>st0ICShift)
	}
	st1 := f.ReadIO(fdcPortData)
	if st1&st1NoData == 0 {
		t.Errorf("ST1 = 0x%02X, want the no-data bit set", st1)
	}
}

func TestFdcWriteToWriteProtectedDiskReportsError(t *testing.T) {
	f := NewFDC()
	disk := make([]uint8, 368640)
	if !f.LoadDisk(0, disk, true) {
		t.Fatal("LoadDisk should accept a standard 360KB geometry")
	}
	selectAndSpinDrive0(f)
	for _, b := range []uint8{0x05, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x1B, 0xFF} {
		f.WriteIO(fdcPortData, b)
	}
	st0 := f.ReadIO(fdcPortData)
	if st0>>st0ICShift != uint8(fdcICAbnormal) {
		t.Fatalf("ST0 interrupt code = %d, want fdcICAbnormal for a write-protected disk", st0>>st0ICShift)
	}
	st1 := f.ReadIO(fdcPortData)
	if st1&st1NotWritable == 0 {
		t.Errorf("ST1 = 0x%02X, want the not-writable bit set", st1)
	}
}

func TestFdcReadIDReportsCurrentSectorHeader(t *testing.T) {
	f := NewFDC()
	disk := make([]uint8, 368640)
	if !f.LoadDisk(0, disk, false) {
		t.Fatal("LoadDisk should accept a standard 360KB geometry")
	}
	selectAndSpinDrive0(f)
	f.WriteIO(fdcPortData, 0x0A) // Read ID
	f.WriteIO(fdcPortData, 0x00) // drive 0, head 0

	st0 := f.ReadIO(fdcPortData)
	if st0>>st0ICShift != uint8(fdcICNormal) {
		t.Fatalf("ST0 interrupt code = %d, want fdcICNormal", st0>>st0ICShift)
	}
}
