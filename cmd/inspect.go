package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/mbr"
	"github.com/deploymenttheory/go-bootfirm/internal/services"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [device-or-image ...]",
	Short: "Show what each format probe finds on a device",
	Long: `Run every format detector at every boot ROM probe offset and print the
outcome, matched or not, together with the device geometry and the start
of the first partition. Useful for diagnosing why check or update does
not see an image where one is expected.

Examples:
  # Inspect the present MMC devices
  bootfirm inspect

  # Inspect a disk image
  bootfirm inspect beaglebone.img`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args)
	},
}

func runInspect(cmd *cobra.Command, devices []string) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := runPreflight(logger, cfg); err != nil {
		return err
	}

	opener := newOpener(logger, cfg)
	locator := newLocator(logger, cfg)
	out := cmd.OutOrStdout()

	for _, path := range resolveDevices(logger, cfg, devices) {
		dev, err := opener.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		err = inspectDevice(out, locator, dev)
		dev.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func inspectDevice(out io.Writer, locator *services.FirmwareImageLocator, dev interfaces.BlockDevice) error {
	if size, err := dev.Size(); err == nil {
		fmt.Fprintf(out, "%s: %d bytes, %d-byte sectors\n", dev.Path(), size, dev.SectorSize())
	} else {
		fmt.Fprintf(out, "%s: size unknown (%v), %d-byte sectors\n", dev.Path(), err, dev.SectorSize())
	}

	sector := make([]byte, types.MbrSectorSize)
	if _, err := dev.ReadAt(sector, 0); err != nil {
		return fmt.Errorf("reading the partition table of %s: %w", dev.Path(), err)
	}
	table, err := mbr.ParseTable(sector)
	if err != nil {
		return fmt.Errorf("parsing the partition table of %s: %w", dev.Path(), err)
	}
	if boundary, found := table.FirstPartitionStart(dev.SectorSize()); found {
		fmt.Fprintf(out, "  first partition starts at %#x\n", boundary)
	} else {
		fmt.Fprintf(out, "  no usable partition table\n")
	}

	results, err := locator.Probe(dev)
	if err != nil {
		return err
	}
	for _, result := range results {
		fmt.Fprintf(out, "  %-9s %-7s %s\n", fmt.Sprintf("%#x", result.Offset), result.Detector, result.Outcome)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
