// File: internal/services/validator.go
package services

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// ImageValidator checks that caller-supplied replacement files really
// hold the bootloader stage they are about to be written as. A file
// that one of the second-stage detectors recognizes but rejects is
// refused outright rather than passed to the next detector; only a
// clean "not this format" moves on.
type ImageValidator struct {
	logger      *slog.Logger
	firstStage  interfaces.FormatDetector
	secondStage []interfaces.FormatDetector
}

// NewImageValidator builds a validator. The second-stage detectors are
// tried in the order given.
func NewImageValidator(logger *slog.Logger, firstStage interfaces.FormatDetector, secondStage ...interfaces.FormatDetector) *ImageValidator {
	return &ImageValidator{logger: logger, firstStage: firstStage, secondStage: secondStage}
}

// ValidateFirstStage checks that the file at path starts with a valid
// first-stage TOC and returns it as a whole-file image. The image
// holds the file open; release it with Close.
func (v *ImageValidator) ValidateFirstStage(path string) (*firmware.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("MLO file (%s) does not exist", path)
		}
		return nil, fmt.Errorf("MLO file: %w", err)
	}

	outcome, err := v.firstStage.Detect(file, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !outcome.IsMatch() {
		file.Close()
		if outcome.Reason != "" {
			v.logger.Debug("first-stage validation failed", "file", path, "reason", outcome.Reason)
		}
		return nil, fmt.Errorf("%s does not have a valid TOC", path)
	}

	return v.wholeFileImage(file, path, types.FirstStage)
}

// ValidateSecondStage checks that the file at path holds a second
// stage bootloader in one of the supported formats and returns it as a
// whole-file image. The image holds the file open; release it with
// Close.
func (v *ImageValidator) ValidateSecondStage(path string) (*firmware.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("U-Boot file (%s) does not exist", path)
		}
		return nil, fmt.Errorf("U-Boot file: %w", err)
	}

	for _, detector := range v.secondStage {
		outcome, err := detector.Detect(file, 0)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		switch {
		case outcome.IsMatch():
			return v.wholeFileImage(file, path, types.SecondStage)
		case outcome.Recognized():
			file.Close()
			v.logger.Debug("second-stage validation failed",
				"file", path,
				"detector", detector.Name(),
				"reason", outcome.Reason)
			return nil, fmt.Errorf("%s does not contain a U-Boot firmware image", path)
		default:
			v.logger.Debug("not this format", "file", path, "detector", detector.Name())
		}
	}

	file.Close()
	return nil, fmt.Errorf("%s is not a valid U-Boot image", path)
}

// wholeFileImage wraps an open, validated file as an image spanning
// the entire file. The on-device write later copies the whole file,
// not just the length its header declares.
func (v *ImageValidator) wholeFileImage(file *os.File, path string, kind types.ImageKind) (*firmware.Image, error) {
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sizing %s: %w", path, err)
	}
	return firmware.NewImage(file, path, kind, 0, info.Size()), nil
}
