// File: internal/services/planner.go
package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/mbr"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// ErrDifferencesFound reports that at least one on-device image does
// not match its replacement. It maps to a distinct process exit status
// so scripts can poll for outdated firmware.
var ErrDifferencesFound = errors.New("firmware images differ from the supplied replacements")

// PlannedUpdate pairs a replacement file image with the on-device
// image it should overwrite.
type PlannedUpdate struct {
	Source *firmware.Image
	Target *firmware.Image
}

// UpdatePlan is the ordered list of on-device images that need
// replacing, tagged with a run identifier for log correlation.
type UpdatePlan struct {
	RunID   uuid.UUID
	Updates []PlannedUpdate
}

// Empty reports whether the plan has nothing to do.
func (p *UpdatePlan) Empty() bool {
	return len(p.Updates) == 0
}

// UpdatePlanner cross-references the images found on each device
// against the validated replacement images and decides which on-device
// images can and should be overwritten.
type UpdatePlanner struct {
	logger  *slog.Logger
	opener  interfaces.DeviceOpener
	locator *FirmwareImageLocator
}

// NewUpdatePlanner builds a planner over the given device opener and
// locator.
func NewUpdatePlanner(logger *slog.Logger, opener interfaces.DeviceOpener, locator *FirmwareImageLocator) *UpdatePlanner {
	return &UpdatePlanner{logger: logger, opener: opener, locator: locator}
}

// Plan inspects every device and returns the updates that are both
// needed and safe. Devices without a usable partition table are
// skipped whole; images whose replacement would reach into the first
// partition are skipped one by one.
func (p *UpdatePlanner) Plan(replacements map[types.ImageKind]*firmware.Image, devicePaths []string) (*UpdatePlan, error) {
	var updates []PlannedUpdate

	for _, path := range devicePaths {
		deviceUpdates, err := p.planDevice(replacements, path)
		if err != nil {
			return nil, err
		}
		updates = append(updates, deviceUpdates...)
	}

	sort.Slice(updates, func(i, j int) bool {
		a, b := updates[i].Target, updates[j].Target
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		if a.Path() != b.Path() {
			return a.Path() < b.Path()
		}
		return a.Offset() < b.Offset()
	})

	plan := &UpdatePlan{RunID: uuid.New(), Updates: updates}
	p.logger.Debug("update plan ready", "run_id", plan.RunID, "updates", len(plan.Updates))
	return plan, nil
}

func (p *UpdatePlanner) planDevice(replacements map[types.ImageKind]*firmware.Image, path string) ([]PlannedUpdate, error) {
	dev, err := p.opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer dev.Close()

	boundary, found, err := p.partitionBoundary(dev)
	if err != nil {
		return nil, err
	}
	if !found {
		p.logger.Info("no usable partition table on device, skipping", "device", path)
		return nil, nil
	}

	located, err := p.locator.Locate(dev)
	if err != nil {
		return nil, err
	}
	if len(located) == 0 {
		p.logger.Debug("no firmware images found on device", "device", path)
	}

	var updates []PlannedUpdate
	for _, image := range located {
		if image.Offset() == 0 {
			p.logger.Error("image would overlap the MBR", "image", image)
			continue
		}

		replacement, ok := replacements[image.Kind()]
		if !ok {
			return nil, fmt.Errorf("no replacement image supplied for %s", image.Kind())
		}

		candidate, err := replacement.RebasedTo(image.Offset())
		if err != nil {
			return nil, err
		}

		if candidate.OverlapsOrExceeds(boundary) {
			p.logger.Error("image would overlap the first partition",
				"image", candidate,
				"partition_start", fmt.Sprintf("%#x", boundary))
			continue
		}

		equal, err := candidate.Equal(image)
		if err != nil {
			return nil, fmt.Errorf("comparing images on %s: %w", path, err)
		}
		if equal {
			p.logger.Debug("image is already current",
				"device", path,
				"offset", fmt.Sprintf("%#x", image.Offset()),
				"kind", image.Kind())
			continue
		}

		p.logger.Info("replacement does not match existing image",
			"kind", image.Kind(),
			"replacement", replacement.Path(),
			"device", path,
			"offset", fmt.Sprintf("%#x", image.Offset()))
		p.logHashes(candidate, image)

		updates = append(updates, PlannedUpdate{Source: replacement, Target: image})
	}

	return updates, nil
}

// partitionBoundary reads the boot sector and derives the byte offset
// of the earliest partition. A device with no valid table yields
// found=false; failing to read the sector at all is an I/O error.
func (p *UpdatePlanner) partitionBoundary(dev interfaces.BlockDevice) (int64, bool, error) {
	sector := make([]byte, types.MbrSectorSize)
	if _, err := dev.ReadAt(sector, 0); err != nil {
		return 0, false, fmt.Errorf("reading the partition table of %s: %w", dev.Path(), err)
	}

	table, err := mbr.ParseTable(sector)
	if err != nil {
		return 0, false, fmt.Errorf("parsing the partition table of %s: %w", dev.Path(), err)
	}

	boundary, found := table.FirstPartitionStart(dev.SectorSize())
	return boundary, found, nil
}

func (p *UpdatePlanner) logHashes(candidate, existing *firmware.Image) {
	newHash, err := candidate.ContentHash()
	if err != nil {
		return
	}
	existingHash, err := existing.ContentHash()
	if err != nil {
		return
	}
	p.logger.Debug("image hashes differ", "new", newHash, "existing", existingHash)
}
