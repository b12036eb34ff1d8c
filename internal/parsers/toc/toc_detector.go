// File: internal/parsers/toc/toc_detector.go
package toc

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// Detector probes for the table-of-contents block that precedes a
// first-stage (MLO) payload. The ROM only boots images whose TOC block
// is byte-identical to the reference content, so the probe hashes the
// whole block instead of inspecting individual fields.
type Detector struct {
	digest string
}

// Compile-time check that Detector implements FormatDetector.
var _ interfaces.FormatDetector = (*Detector)(nil)

// NewDetector creates a detector for the AM335x TOC block.
func NewDetector() *Detector {
	return NewDetectorForDigest(types.TocDigest)
}

// NewDetectorForDigest creates a detector accepting a TOC block with the
// given hex SHA-256 digest. Boards outside the AM335x family ship
// different TOC content.
func NewDetectorForDigest(digest string) *Detector {
	return &Detector{digest: digest}
}

// Name identifies the detector in logs and inspect output.
func (d *Detector) Name() string {
	return "toc"
}

// Kind returns the stage a matched image belongs to.
func (d *Detector) Kind() types.ImageKind {
	return types.FirstStage
}

// Detect hashes the 512-byte block at offset and, on a digest match,
// reads the little-endian payload length that follows it. The total
// image size is the payload length plus the TOC block.
func (d *Detector) Detect(r io.ReaderAt, offset int64) (types.DetectionOutcome, error) {
	buf := make([]byte, types.TocBlockSize+types.TocTrailerSize)
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return types.DetectionOutcome{}, fmt.Errorf("reading TOC block at %#x: %w", offset, err)
	}
	if n < types.TocBlockSize {
		return types.NoMatchOutcome(), nil
	}

	sum := sha256.Sum256(buf[:types.TocBlockSize])
	if hex.EncodeToString(sum[:]) != d.digest {
		return types.NoMatchOutcome(), nil
	}

	if n < types.TocBlockSize+types.TocTrailerSize {
		return types.MalformedOutcome("TOC block at %#x is not followed by a payload length", offset), nil
	}

	payloadLen := binary.LittleEndian.Uint32(buf[types.TocBlockSize:])
	return types.MatchedOutcome(int64(payloadLen) + types.TocBlockSize), nil
}
