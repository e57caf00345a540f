// floppy_io.go - host-side floppy disk image loading and saving.
//
// Disk images are raw CHS-linear byte dumps; this file is the external
// collaborator responsible for getting such a dump from a host path into
// a Machine's FDC and back. Path handling follows the teacher's
// sanitizePath convention from its file-I/O device: reject absolute
// paths and traversal, then re-verify the joined path stays under the
// configured image directory.
package xtce

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// FloppyStore resolves disk image names against a restricted host
// directory, mirroring the sandboxing the teacher applies to its guest
// file-I/O device.
type FloppyStore struct {
	baseDir string
}

func NewFloppyStore(baseDir string) (*FloppyStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &FloppyStore{baseDir: abs}, nil
}

func (s *FloppyStore) sanitizePath(name string) (string, bool) {
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", false
	}
	full := filepath.Join(s.baseDir, name)
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return full, true
}

// Load reads a disk image by name and installs it into the given drive,
// returning a descriptive error on any host I/O or geometry failure
// rather than propagating a panic into the guest machine.
func (s *FloppyStore) Load(m *Machine, drive int, name string, writeProtected bool) error {
	full, ok := s.sanitizePath(name)
	if !ok {
		return fmt.Errorf("floppy: rejected path %q", name)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("floppy: read %q: %w", name, err)
	}
	if !m.LoadFloppy(drive, data, writeProtected) {
		return fmt.Errorf("floppy: %q is not a recognized PC floppy image size (%d bytes)", name, len(data))
	}
	return nil
}

// Save writes a drive's current image back to the host under an
// advisory exclusive lock, guarding against concurrent writers clobbering
// the same image file.
func (s *FloppyStore) Save(m *Machine, drive int, name string) error {
	full, ok := s.sanitizePath(name)
	if !ok {
		return fmt.Errorf("floppy: rejected path %q", name)
	}
	image, ok := m.Bus().FDC().DriveImage(drive)
	if !ok {
		return fmt.Errorf("floppy: no image loaded in drive %d", drive)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("floppy: open %q: %w", name, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("floppy: lock %q: %w", name, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if _, err := f.Write(image); err != nil {
		return fmt.Errorf("floppy: write %q: %w", name, err)
	}
	return nil
}
