// File: internal/parsers/fit/fit_detector.go
package fit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

const (
	// imagesNodeName is the tree node bundling the sub-images.
	imagesNodeName = "images"
	// typeFirmware marks a sub-image carrying bootloader firmware.
	typeFirmware = "firmware"
	// osUBoot marks a sub-image belonging to U-Boot.
	osUBoot = "u-boot"

	// maxTreeSize bounds the blob allocation. FIT images bundling a
	// bootloader stay far below this.
	maxTreeSize = 64 << 20
)

// Detector probes for a second-stage image packaged as a FIT container.
// A FIT is a flattened device tree whose "images" node carries the
// sub-image payloads; payload data lives after the tree, addressed by
// per-image data-offset/data-size properties.
type Detector struct {
	decoder interfaces.DeviceTreeDecoder
}

// Compile-time check that Detector implements FormatDetector.
var _ interfaces.FormatDetector = (*Detector)(nil)

// NewDetector creates a FIT detector decoding trees with decoder.
func NewDetector(decoder interfaces.DeviceTreeDecoder) *Detector {
	return &Detector{decoder: decoder}
}

// Name identifies the detector in logs and inspect output.
func (d *Detector) Name() string {
	return "fit"
}

// Kind returns the stage a matched image belongs to.
func (d *Detector) Kind() types.ImageKind {
	return types.SecondStage
}

// Detect reads the tree blob at offset, decodes it, and walks the
// sub-images. The total image size is the aligned tree length plus the
// aligned end of the last-placed sub-image.
func (d *Detector) Detect(r io.ReaderAt, offset int64) (types.DetectionOutcome, error) {
	header := make([]byte, 8)
	n, err := r.ReadAt(header, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return types.DetectionOutcome{}, fmt.Errorf("reading tree header at %#x: %w", offset, err)
	}
	if n < 4 {
		return types.NoMatchOutcome(), nil
	}
	if binary.BigEndian.Uint32(header[0:4]) != types.FdtMagic {
		return types.NoMatchOutcome(), nil
	}
	if n < 8 {
		return types.MalformedOutcome("tree header at %#x is truncated", offset), nil
	}

	treeLen := binary.BigEndian.Uint32(header[4:8])
	if treeLen < 8 {
		return types.MalformedOutcome("tree at %#x claims %d bytes, less than its own header", offset, treeLen), nil
	}
	if treeLen > maxTreeSize {
		return types.MalformedOutcome("tree at %#x claims %d bytes, over the %d limit", offset, treeLen, maxTreeSize), nil
	}

	blob := make([]byte, treeLen)
	n, err = r.ReadAt(blob, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return types.DetectionOutcome{}, fmt.Errorf("reading tree blob at %#x: %w", offset, err)
	}
	if n < int(treeLen) {
		return types.MalformedOutcome("tree blob at %#x truncated: have %d of %d bytes", offset, n, treeLen), nil
	}

	root, err := d.decoder.Decode(blob)
	if err != nil {
		return types.MalformedOutcome("decoding image tree at %#x: %v", offset, err), nil
	}

	images, ok := root.Child(imagesNodeName)
	if !ok {
		return types.MalformedOutcome("tree at %#x has no %s node", offset, imagesNodeName), nil
	}

	var (
		largestOffset uint32
		sizeAtLargest uint32
		firmwareFound bool
	)
	for _, image := range images.Children() {
		dataOffset, ok := image.U32Property("data-offset")
		if !ok {
			return types.MalformedOutcome("sub-image %s has no data-offset", image.Name()), nil
		}
		dataSize, ok := image.U32Property("data-size")
		if !ok {
			return types.MalformedOutcome("sub-image %s has no data-size", image.Name()), nil
		}
		imageType, _ := image.StringProperty("type")
		imageOS, _ := image.StringProperty("os")

		if dataOffset > largestOffset {
			largestOffset = dataOffset
			sizeAtLargest = dataSize
		}
		if imageType == typeFirmware && imageOS == osUBoot {
			firmwareFound = true
		}
	}
	if !firmwareFound {
		return types.WrongRoleOutcome("no U-Boot firmware sub-image in tree at %#x", offset), nil
	}

	// Sub-image offsets are relative to the end of the tree.
	size := align4(int64(treeLen)) + align4(int64(largestOffset)+int64(sizeAtLargest))
	return types.MatchedOutcome(size), nil
}

// align4 rounds n up to the next multiple of 4.
func align4(n int64) int64 {
	return (n + 3) &^ 3
}
