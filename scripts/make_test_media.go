package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/deploymenttheory/go-bootfirm/internal/fdt"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/fit"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/toc"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/uimage"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

const (
	mediaSize         = 4 * 1024 * 1024
	firstPartitionLBA = 2048
	mloOffset         = 0x20000
	ubootOffset       = 0x60000
	mloPayloadSize    = 96 * 1024
	ubootPayloadSize  = 128 * 1024
	flashAddress      = 0x80800000
	legacyArchARM     = 2
	legacyCompNone    = 0
)

// fillPattern writes a deterministic byte pattern so regenerated media
// always hashes the same.
func fillPattern(buf []byte, seed byte) {
	for i := range buf {
		buf[i] = byte(i)*31 + seed
	}
}

// writeBootSector lays down an MBR with a single FAT32 partition
// starting at firstPartitionLBA.
func writeBootSector(media []byte) {
	entry := media[types.MbrPartitionTableOffset : types.MbrPartitionTableOffset+types.MbrPartitionEntrySize]
	entry[0] = 0x80
	copy(entry[1:4], []byte{0xFE, 0xFF, 0xFF})
	entry[4] = 0x0C
	copy(entry[5:8], []byte{0xFE, 0xFF, 0xFF})
	binary.LittleEndian.PutUint32(entry[8:12], firstPartitionLBA)
	binary.LittleEndian.PutUint32(entry[12:16], uint32(mediaSize/types.DefaultSectorSize-firstPartitionLBA))

	media[types.MbrBootSignatureOffset] = types.MbrBootSignature[0]
	media[types.MbrBootSignatureOffset+1] = types.MbrBootSignature[1]
}

// buildMLO builds a TOC-fronted first-stage image and returns it with
// the hex digest of its TOC block.
func buildMLO() ([]byte, string) {
	image := make([]byte, types.TocBlockSize+types.TocTrailerSize+mloPayloadSize)
	fillPattern(image[:types.TocBlockSize], 7)
	binary.LittleEndian.PutUint32(
		image[types.TocBlockSize:types.TocBlockSize+types.TocTrailerSize],
		uint32(types.TocTrailerSize+mloPayloadSize))
	fillPattern(image[types.TocBlockSize+types.TocTrailerSize:], 13)

	digest := sha256.Sum256(image[:types.TocBlockSize])
	return image, hex.EncodeToString(digest[:])
}

// buildLegacyUBoot builds a second-stage image with the legacy 64-byte
// header.
func buildLegacyUBoot() []byte {
	image := make([]byte, types.UImageHeaderSize+ubootPayloadSize)
	fillPattern(image[types.UImageHeaderSize:], 29)

	binary.BigEndian.PutUint32(image[0:4], types.UImageMagic)
	binary.BigEndian.PutUint32(image[4:8], 0xcafef00d)
	binary.BigEndian.PutUint32(image[8:12], 0x5f000000)
	binary.BigEndian.PutUint32(image[12:16], ubootPayloadSize)
	binary.BigEndian.PutUint32(image[16:20], flashAddress)
	binary.BigEndian.PutUint32(image[20:24], flashAddress)
	binary.BigEndian.PutUint32(image[24:28], 0xdeadbeef)
	image[28] = types.UImageOSUBoot
	image[29] = legacyArchARM
	image[30] = types.UImageTypeFirmware
	image[31] = legacyCompNone
	copy(image[32:64], "U-Boot 2022.04 test image")

	return image
}

// buildFitUBoot builds a second-stage FIT image with external data, the
// layout mkimage -E produces.
func buildFitUBoot() []byte {
	builder := fdt.NewBuilder()
	builder.Root().SetString("description", "U-Boot FIT test image")
	images := builder.Root().AddChild("images")
	uboot := images.AddChild("uboot")
	uboot.SetString("description", "U-Boot (ARM)")
	uboot.SetString("type", "firmware")
	uboot.SetString("os", "u-boot")
	uboot.SetU32("data-offset", 0x4)
	uboot.SetU32("data-size", ubootPayloadSize)
	blob := builder.Build()

	// External data sits after the blob, offsets relative to its
	// 4-byte aligned end.
	alignedBlob := (len(blob) + 3) &^ 3
	image := make([]byte, alignedBlob+4+ubootPayloadSize)
	copy(image, blob)
	fillPattern(image[alignedBlob+4:], 43)
	return image
}

// verifyMedia reruns the format detectors against the finished file and
// prints what they see at each probe offset.
func verifyMedia(path, tocDigest string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	probes := []struct {
		name   string
		detect func(offset int64) (types.DetectionOutcome, error)
	}{
		{"toc", func(offset int64) (types.DetectionOutcome, error) {
			return toc.NewDetectorForDigest(tocDigest).Detect(file, offset)
		}},
		{"uimage", func(offset int64) (types.DetectionOutcome, error) {
			return uimage.NewDetector().Detect(file, offset)
		}},
		{"fit", func(offset int64) (types.DetectionOutcome, error) {
			return fit.NewDetector(fdt.NewDecoder()).Detect(file, offset)
		}},
	}

	for _, offset := range types.ProbeOffsets {
		for _, probe := range probes {
			outcome, err := probe.detect(offset)
			if err != nil {
				return err
			}
			if outcome.IsMatch() {
				fmt.Printf("✓ %-7s at %#x: %s\n", probe.name, offset, outcome)
			}
		}
	}
	return nil
}

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║        BootFirm Test Media Generator                   ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()

	mediaPath := "beaglebone.img"
	useFit := false
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--fit":
			useFit = true
		case "--help", "-h":
			fmt.Println("Usage: go run scripts/make_test_media.go [media.img] [--fit]")
			fmt.Println("Default: beaglebone.img with a legacy U-Boot image")
			os.Exit(0)
		default:
			mediaPath = arg
		}
	}

	fmt.Printf("=== Building media ===\n")
	media := make([]byte, mediaSize)
	writeBootSector(media)
	fmt.Printf("✓ MBR with first partition at sector %d (%#x)\n",
		firstPartitionLBA, int64(firstPartitionLBA)*types.DefaultSectorSize)

	mlo, tocDigest := buildMLO()
	copy(media[mloOffset:], mlo)
	fmt.Printf("✓ MLO image at %#x (%d bytes)\n", int64(mloOffset), len(mlo))

	var uboot []byte
	if useFit {
		uboot = buildFitUBoot()
	} else {
		uboot = buildLegacyUBoot()
	}
	copy(media[ubootOffset:], uboot)
	fmt.Printf("✓ U-Boot image at %#x (%d bytes)\n", int64(ubootOffset), len(uboot))

	if err := os.WriteFile(mediaPath, media, 0o644); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ wrote %s (%d bytes)\n", mediaPath, mediaSize)

	fmt.Printf("\n=== Verifying media ===\n")
	if err := verifyMedia(mediaPath, tocDigest); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nThe TOC block is synthetic, so point the probe at its digest:\n")
	fmt.Printf("  export BOOTFIRM_TOC_DIGEST=%s\n", tocDigest)
	fmt.Printf("  export BOOTFIRM_SKIP_PLATFORM_CHECK=true\n")
	fmt.Printf("  bootfirm inspect %s\n", mediaPath)
}
