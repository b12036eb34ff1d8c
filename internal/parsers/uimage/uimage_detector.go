// File: internal/parsers/uimage/uimage_detector.go
package uimage

import (
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// Detector probes for a second-stage image packaged with the legacy
// U-Boot header. Containers with a matching magic but the wrong OS or
// image type are reported as wrong-role rather than as misses, so a
// kernel uImage sitting in a bootloader slot is called out instead of
// silently ignored.
type Detector struct{}

// Compile-time check that Detector implements FormatDetector.
var _ interfaces.FormatDetector = (*Detector)(nil)

// NewDetector creates a legacy header detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Name identifies the detector in logs and inspect output.
func (d *Detector) Name() string {
	return "uimage"
}

// Kind returns the stage a matched image belongs to.
func (d *Detector) Kind() types.ImageKind {
	return types.SecondStage
}

// Detect parses the 64-byte header at offset and classifies it. The
// total image size is the payload size plus the header.
func (d *Detector) Detect(r io.ReaderAt, offset int64) (types.DetectionOutcome, error) {
	buf := make([]byte, types.UImageHeaderSize)
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return types.DetectionOutcome{}, fmt.Errorf("reading legacy image header at %#x: %w", offset, err)
	}
	if n < types.UImageHeaderSize {
		return types.NoMatchOutcome(), nil
	}

	header, err := ParseHeader(buf)
	if err != nil {
		return types.NoMatchOutcome(), nil
	}

	if header.Magic != types.UImageMagic {
		return types.NoMatchOutcome(), nil
	}
	if header.OS != types.UImageOSUBoot {
		return types.WrongRoleOutcome("legacy image at %#x has OS code %d, not U-Boot (%d)",
			offset, header.OS, types.UImageOSUBoot), nil
	}
	if header.Type != types.UImageTypeFirmware {
		return types.WrongRoleOutcome("legacy image at %#x has image type %d, not firmware (%d)",
			offset, header.Type, types.UImageTypeFirmware), nil
	}

	return types.MatchedOutcome(header.TotalSize()), nil
}
