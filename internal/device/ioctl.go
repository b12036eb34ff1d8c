// File: internal/device/ioctl.go
package device

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// blockDeviceSize asks the kernel for the total size of a block device
// in bytes.
func blockDeviceSize(fd uintptr) (uint64, error) {
	var devsize uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&devsize))); errno != 0 {
		return 0, errno
	}
	return devsize, nil
}

// logicalSectorSize asks the kernel for the logical sector size of a
// block device in bytes.
func logicalSectorSize(fd uintptr) (int, error) {
	var size int32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKSSZGET, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return 0, errno
	}
	return int(size), nil
}
