// File: internal/services/locator.go

// Package services wires the detectors, partition scanner, and copy
// engine into the operations the command layer exposes: locating
// images on devices, validating replacement files, planning an update,
// and carrying the plan out.
package services

import (
	"fmt"
	"log/slog"

	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// FirmwareImageLocator probes raw devices for bootloader images at the
// fixed offsets the AM335x boot ROM searches.
type FirmwareImageLocator struct {
	logger    *slog.Logger
	detectors []interfaces.FormatDetector
}

// NewFirmwareImageLocator builds a locator that runs the given
// detectors, in order, at every probe offset.
func NewFirmwareImageLocator(logger *slog.Logger, detectors ...interfaces.FormatDetector) *FirmwareImageLocator {
	return &FirmwareImageLocator{logger: logger, detectors: detectors}
}

// ProbeResult is the outcome of running one detector at one offset.
type ProbeResult struct {
	Offset   int64
	Detector string
	Outcome  types.DetectionOutcome
}

// Probe runs every detector at every candidate offset and returns all
// outcomes, including the misses. Locate is the filtered form most
// callers want; this one backs diagnostic output.
func (l *FirmwareImageLocator) Probe(dev interfaces.BlockDevice) ([]ProbeResult, error) {
	results := make([]ProbeResult, 0, len(types.ProbeOffsets)*len(l.detectors))

	for _, offset := range types.ProbeOffsets {
		for _, detector := range l.detectors {
			outcome, err := detector.Detect(dev, offset)
			if err != nil {
				return nil, fmt.Errorf("probing %s at %#x: %w", dev.Path(), offset, err)
			}
			results = append(results, ProbeResult{
				Offset:   offset,
				Detector: detector.Name(),
				Outcome:  outcome,
			})
		}
	}

	return results, nil
}

// Locate probes the device at each candidate offset with every
// detector and returns the images found, in probe order. Outcomes
// other than a match are expected at almost every probe and only show
// up in debug logging.
func (l *FirmwareImageLocator) Locate(dev interfaces.BlockDevice) ([]*firmware.Image, error) {
	var images []*firmware.Image

	for _, offset := range types.ProbeOffsets {
		for _, detector := range l.detectors {
			outcome, err := detector.Detect(dev, offset)
			if err != nil {
				return nil, fmt.Errorf("probing %s at %#x: %w", dev.Path(), offset, err)
			}

			if !outcome.IsMatch() {
				if outcome.Recognized() {
					l.logger.Debug("recognized but unusable image",
						"device", dev.Path(),
						"offset", fmt.Sprintf("%#x", offset),
						"detector", detector.Name(),
						"reason", outcome.Reason)
				}
				continue
			}

			l.logger.Debug("found firmware image",
				"device", dev.Path(),
				"offset", fmt.Sprintf("%#x", offset),
				"detector", detector.Name(),
				"size", outcome.Size)
			images = append(images, firmware.NewImage(dev, dev.Path(), detector.Kind(), offset, outcome.Size))
		}
	}

	return images, nil
}
