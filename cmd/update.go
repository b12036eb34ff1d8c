package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootfirm/internal/device"
	"github.com/deploymenttheory/go-bootfirm/internal/services"
)

var (
	// Replacement file selection (update command only)
	updateMLOPath   string
	updateUBootPath string

	// Devices to update
	updateDevices []string

	// Mode selection
	updateDryRun      bool
	updateInteractive bool
	updateForce       bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Rewrite bootloader images that differ from the replacements",
	Long: `Probe the boot area of each device, compare every bootloader image found
there against the matching replacement file, and rewrite the ones that
differ.

Without a mode flag the command prompts for each write when stdout is a
terminal and falls back to a dry run otherwise, so an unattended pipe can
never rewrite a bootloader by accident.

Examples:
  # Prompt for each image that differs
  bootfirm update

  # Rewrite everything that differs without prompting
  bootfirm update --force

  # Show what would be rewritten
  bootfirm update --dry-run

  # Update a disk image with locally built bootloaders
  bootfirm update --device beaglebone.img --mlo build/MLO --uboot build/u-boot.img`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd)
	},
}

func runUpdate(cmd *cobra.Command) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := runPreflight(logger, cfg); err != nil {
		return err
	}

	action := defaultAction()
	switch {
	case updateDryRun:
		action = services.DryRun
	case updateInteractive:
		action = services.Interactive
	case updateForce:
		action = services.Force
	}
	logger.Debug("selected update mode", "action", action.String())

	plan, err := buildPlan(logger, cfg,
		override(updateMLOPath, cfg.MLOPath),
		override(updateUBootPath, cfg.UBootPath),
		resolveDevices(logger, cfg, updateDevices))
	if err != nil {
		return err
	}

	executor := services.NewUpdateExecutor(logger, device.NewRawCopyEngine(logger), cmd.OutOrStdout(), cmd.InOrStdin())
	if err := executor.Execute(plan, action); err != nil {
		return err
	}
	if !plan.Empty() {
		return services.ErrDifferencesFound
	}
	return nil
}

func init() {
	rootCmd.AddCommand(updateCmd)

	registerReplacementFlags(updateCmd.Flags(), &updateMLOPath, &updateUBootPath)
	registerDeviceFlag(updateCmd.Flags(), &updateDevices, "update")

	updateCmd.Flags().BoolVarP(&updateDryRun, "dry-run", "n", false, "only report what would be rewritten")
	updateCmd.Flags().BoolVarP(&updateInteractive, "interactive", "i", false, "ask before rewriting each image")
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "rewrite without asking")
	updateCmd.MarkFlagsMutuallyExclusive("dry-run", "interactive", "force")
}
