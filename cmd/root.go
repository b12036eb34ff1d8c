package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootfirm/internal/services"
)

var (
	// Global output flags only
	verbosity  int
	quiet      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "bootfirm",
	Short: "Check and update AM335x MMC bootloaders",
	Long: `bootfirm probes the raw boot area of AM335x MMC/SD devices, compares the
bootloader images found there against replacement files, and rewrites the
ones that differ.

It recognizes the TOC block that fronts a first-stage MLO image and both
packagings of U-Boot proper (the legacy uImage header and FIT containers),
and it refuses to write anything that would reach into the first partition.

Commands:
  check      Report bootloader images that differ from the replacements
  update     Rewrite bootloader images that differ from the replacements
  inspect    Show what each format probe finds on a device
  config     Show the effective configuration or write a starter file`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
//
// Exit status: 0 when nothing needed updating, 1 when differences were
// found (whether or not they were written), 2 on any other error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, services.ErrDifferencesFound) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log detail (repeat for debug output)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file to read instead of the default locations")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}
