// File: internal/interfaces/detector.go
package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// FormatDetector probes a byte source for one firmware container format.
// Detectors are stateless: identical bytes at the probe position always
// produce the identical outcome.
type FormatDetector interface {
	// Name identifies the detector in logs and inspect output.
	Name() string

	// Kind is the bootloader stage a matched image belongs to.
	Kind() types.ImageKind

	// Detect classifies the bytes of r starting at offset. Reads that
	// run off the end of the source are format mismatches, not errors;
	// the error return is reserved for I/O failures.
	Detect(r io.ReaderAt, offset int64) (types.DetectionOutcome, error)
}
