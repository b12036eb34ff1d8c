// File: internal/services/helpers_test.go
package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/deploymenttheory/go-bootfirm/internal/fdt"
	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice serves synthetic media as a block device.
type fakeDevice struct {
	reader     *bytes.Reader
	path       string
	sectorSize int
	readErr    error
}

func newFakeDevice(path string, media []byte, sectorSize int) *fakeDevice {
	return &fakeDevice{reader: bytes.NewReader(media), path: path, sectorSize: sectorSize}
}

func (d *fakeDevice) ReadAt(p []byte, off int64) (int, error) {
	if d.readErr != nil {
		return 0, d.readErr
	}
	return d.reader.ReadAt(p, off)
}

func (d *fakeDevice) Close() error    { return nil }
func (d *fakeDevice) Path() string    { return d.path }
func (d *fakeDevice) SectorSize() int { return d.sectorSize }
func (d *fakeDevice) Size() (int64, error) {
	return d.reader.Size(), nil
}

var _ interfaces.BlockDevice = (*fakeDevice)(nil)

// fakeOpener hands out pre-built fake devices by path.
type fakeOpener struct {
	devices map[string]*fakeDevice
}

func (o *fakeOpener) Open(path string) (interfaces.BlockDevice, error) {
	dev, ok := o.devices[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return dev, nil
}

var _ interfaces.DeviceOpener = (*fakeOpener)(nil)

// copyCall records one engine invocation.
type copyCall struct {
	sourcePath string
	targetPath string
	offset     int64
	size       int64
}

type fakeCopyEngine struct {
	calls []copyCall
	err   error
}

func (e *fakeCopyEngine) Copy(source, target *firmware.Image) error {
	if e.err != nil {
		return e.err
	}
	e.calls = append(e.calls, copyCall{
		sourcePath: source.Path(),
		targetPath: target.Path(),
		offset:     target.Offset(),
		size:       source.Size(),
	})
	return nil
}

var _ interfaces.CopyEngine = (*fakeCopyEngine)(nil)

// createTestBootSector builds a boot sector with one partition entry
// starting at the given LBA and a valid boot signature.
func createTestBootSector(lbaStart uint32) []byte {
	sector := make([]byte, types.MbrSectorSize)
	entry := sector[types.MbrPartitionTableOffset:]
	entry[0] = 0x80
	entry[1], entry[2], entry[3] = 0xFE, 0xFF, 0xFF
	entry[4] = 0x0C
	entry[5], entry[6], entry[7] = 0xFE, 0xFF, 0xFF
	binary.LittleEndian.PutUint32(entry[8:12], lbaStart)
	binary.LittleEndian.PutUint32(entry[12:16], 262144)
	sector[types.MbrBootSignatureOffset] = types.MbrBootSignature[0]
	sector[types.MbrBootSignatureOffset+1] = types.MbrBootSignature[1]
	return sector
}

func digestOf(block []byte) string {
	sum := sha256.Sum256(block)
	return hex.EncodeToString(sum[:])
}

// createTestTocImage builds a first-stage image from a fixed hashable
// block and the given payload. The trailer length counts itself plus
// the payload, so the detector's size equals len(image).
func createTestTocImage(payload []byte) (image []byte, blockDigest string) {
	block := make([]byte, types.TocBlockSize)
	for i := range block {
		block[i] = byte(i * 7)
	}
	return tocImageFromBlock(block, payload), digestOf(block)
}

func tocImageFromBlock(block, payload []byte) []byte {
	image := make([]byte, 0, len(block)+4+len(payload))
	image = append(image, block...)
	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], uint32(4+len(payload)))
	image = append(image, trailer[:]...)
	return append(image, payload...)
}

// createTestLegacyImage builds a second-stage legacy image whose
// header-declared size equals len(image).
func createTestLegacyImage(payload []byte) []byte {
	header := make([]byte, types.UImageHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], types.UImageMagic)
	binary.BigEndian.PutUint32(header[4:8], 0xcafef00d)
	binary.BigEndian.PutUint32(header[8:12], 0x5f000000)
	binary.BigEndian.PutUint32(header[12:16], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[16:20], 0x80800000)
	binary.BigEndian.PutUint32(header[20:24], 0x80800000)
	binary.BigEndian.PutUint32(header[24:28], 0xdeadbeef)
	header[28] = types.UImageOSUBoot
	header[29] = 2 // ARM
	header[30] = types.UImageTypeFirmware
	header[31] = 0 // uncompressed
	copy(header[32:], "U-Boot 2022.04")
	return append(header, payload...)
}

// createTestFitBlob builds a flattened image tree holding one U-Boot
// firmware sub-image.
func createTestFitBlob() []byte {
	builder := fdt.NewBuilder()
	images := builder.Root().AddChild("images")
	uboot := images.AddChild("uboot")
	uboot.SetString("description", "U-Boot (64-bit)")
	uboot.SetString("type", "firmware")
	uboot.SetString("os", "u-boot")
	uboot.SetU32("data-offset", 0x4)
	uboot.SetU32("data-size", 0x30000)
	return builder.Build()
}

// createTestMedia assembles a device image with a boot sector at 0 and
// the given images copied in at their offsets.
func createTestMedia(size int, bootSector []byte, images map[int64][]byte) []byte {
	media := make([]byte, size)
	copy(media, bootSector)
	for offset, image := range images {
		copy(media[offset:], image)
	}
	return media
}

// replacementImage wraps raw content as a validated whole-file image
// the way the validator would return it.
func replacementImage(path string, kind types.ImageKind, content []byte) *firmware.Image {
	return firmware.NewImage(bytes.NewReader(content), path, kind, 0, int64(len(content)))
}
