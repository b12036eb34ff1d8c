// Package types implements data structures shared by the firmware
// detection and update engine. The on-media layouts follow the AM335x
// Technical Reference Manual (chapter 26, Initialization) and the U-Boot
// image format headers (include/image.h).
package types

// ImageKind identifies which bootloader stage a firmware image carries.
// The ROM loads the first stage (called MLO in the AM335x TRM and SPL by
// U-Boot), which in turn loads the second stage (U-Boot proper).
type ImageKind int

const (
	// FirstStage is an MLO/SPL image, verified through its TOC block.
	FirstStage ImageKind = iota
	// SecondStage is a U-Boot image, packaged either with the legacy
	// header or as a FIT container.
	SecondStage
)

// String returns the human-readable name used in reports and prompts.
func (k ImageKind) String() string {
	switch k {
	case FirstStage:
		return "MLO image"
	case SecondStage:
		return "U-Boot image"
	default:
		return "unknown image"
	}
}

// ProbeOffsets are the raw-mode byte offsets the AM335x ROM searches for
// a booting image on MMC/SD media. Reference: AM335x TRM section 26.1.7.5,
// "MMC/SD cards read sector procedure in raw mode".
var ProbeOffsets = []int64{0x0, 0x20000, 0x40000, 0x60000}

// TocBlockSize is the size in bytes of the table-of-contents block that
// precedes first-stage payload data. Reference: AM335x TRM section
// 26.1.7.5.5.
const TocBlockSize = 512

// TocTrailerSize is the size in bytes of the payload length field that
// directly follows the TOC block. The field is little-endian.
const TocTrailerSize = 4

// TocDigest is the hex SHA-256 digest of the one TOC block the ROM
// accepts for raw MMC boot. The block content is invariant across valid
// first-stage images, so a content hash replaces field-by-field checks.
const TocDigest = "21a542439d495f829f448325a75a2a377bf84c107751fe77a0aeb321d1e23868"

// Legacy U-Boot image header. Reference: U-Boot include/image.h,
// struct legacy_img_hdr. All multi-byte fields are big-endian.
const (
	// UImageHeaderSize is the fixed size of the legacy header in bytes.
	UImageHeaderSize = 64
	// UImageMagic is the value of the ih_magic field (IH_MAGIC).
	UImageMagic uint32 = 0x27051956
	// UImageOSUBoot is the ih_os value for U-Boot firmware (IH_OS_U_BOOT).
	UImageOSUBoot uint8 = 17
	// UImageTypeFirmware is the ih_type value for firmware images
	// (IH_TYPE_FIRMWARE).
	UImageTypeFirmware uint8 = 5
)

// FdtMagic is the value of the first word of a flattened device tree
// blob, and therefore of a FIT image. Reference: Devicetree
// Specification v0.3, section 5.2. Big-endian on the wire.
const FdtMagic uint32 = 0xd00dfeed

// Master boot record layout. Reference: classic PC BIOS conventions;
// only the partition entries and the boot signature are consumed here.
const (
	// MbrSectorSize is the size of the sector holding the MBR.
	MbrSectorSize = 512
	// MbrPartitionTableOffset is the byte offset of the first of the
	// four partition entries.
	MbrPartitionTableOffset = 0x1BE
	// MbrPartitionEntrySize is the size of one partition entry.
	MbrPartitionEntrySize = 16
	// MbrPartitionEntryCount is the number of primary partition entries.
	MbrPartitionEntryCount = 4
	// MbrBootSignatureOffset is the byte offset of the boot signature.
	MbrBootSignatureOffset = 0x1FE
)

// MbrBootSignature is the two-byte signature marking a valid MBR.
var MbrBootSignature = [2]byte{0x55, 0xAA}

// DefaultSectorSize is assumed when the sector size of a device cannot
// be resolved from the kernel.
const DefaultSectorSize = 512
