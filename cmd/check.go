package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootfirm/internal/device"
	"github.com/deploymenttheory/go-bootfirm/internal/services"
)

var (
	// Replacement file selection (check command only)
	checkMLOPath   string
	checkUBootPath string

	// Devices to examine
	checkDevices []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report bootloader images that differ from the replacements",
	Long: `Probe the boot area of each device, compare every bootloader image found
there against the matching replacement file, and report the ones an
update would rewrite. Nothing is written.

Examples:
  # Compare the present MMC devices against the packaged bootloaders
  bootfirm check

  # Compare a disk image instead of real hardware
  bootfirm check --device beaglebone.img

  # Compare against locally built bootloaders
  bootfirm check --mlo build/MLO --uboot build/u-boot.img`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd)
	},
}

func runCheck(cmd *cobra.Command) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := runPreflight(logger, cfg); err != nil {
		return err
	}

	plan, err := buildPlan(logger, cfg,
		override(checkMLOPath, cfg.MLOPath),
		override(checkUBootPath, cfg.UBootPath),
		resolveDevices(logger, cfg, checkDevices))
	if err != nil {
		return err
	}

	executor := services.NewUpdateExecutor(logger, device.NewRawCopyEngine(logger), cmd.OutOrStdout(), cmd.InOrStdin())
	if err := executor.Execute(plan, services.DryRun); err != nil {
		return err
	}
	if !plan.Empty() {
		return services.ErrDifferencesFound
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	registerReplacementFlags(checkCmd.Flags(), &checkMLOPath, &checkUBootPath)
	registerDeviceFlag(checkCmd.Flags(), &checkDevices, "examine")
}
