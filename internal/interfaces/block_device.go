// File: internal/interfaces/block_device.go
package interfaces

import "io"

// BlockDevice is the read-side view of one opened block device or image
// file. Implementations keep the handle open until Close.
type BlockDevice interface {
	io.ReaderAt
	io.Closer

	// Path returns the system path the device was opened from.
	Path() string

	// SectorSize returns the logical sector size in bytes.
	SectorSize() int

	// Size returns the total size of the device in bytes.
	Size() (int64, error)
}

// DeviceOpener opens block devices by path. It exists so scanning logic
// can be exercised against plain files in tests.
type DeviceOpener interface {
	Open(path string) (BlockDevice, error)
}
