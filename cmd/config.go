package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deploymenttheory/go-bootfirm/internal/config"
	"github.com/deploymenttheory/go-bootfirm/internal/fdt"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration or write a starter file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration the other commands would run with, after merging
defaults, the configuration file, and BOOTFIRM_* environment variables.`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Long: `Write a commented configuration file holding the built-in defaults. The
file goes to bootfirm.yaml in the current directory unless a path is
given. An existing file is never overwritten.`,

	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "bootfirm.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		return runConfigInit(cmd, path)
	},
}

// configView fixes the key names and order of config show output.
type configView struct {
	MLOPath           string   `yaml:"mlo_path"`
	UBootPath         string   `yaml:"uboot_path"`
	Devices           []string `yaml:"devices"`
	Model             string   `yaml:"model"`
	SkipPlatformCheck bool     `yaml:"skip_platform_check"`
	SectorSize        int      `yaml:"sector_size"`
	TocDigest         string   `yaml:"toc_digest"`
	FitDecoder        string   `yaml:"fit_decoder"`
	DtcPath           string   `yaml:"dtc_path"`
}

func runConfigShow(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rendered, err := yaml.Marshal(configView{
		MLOPath:           cfg.MLOPath,
		UBootPath:         cfg.UBootPath,
		Devices:           cfg.Devices,
		Model:             cfg.Model,
		SkipPlatformCheck: cfg.SkipPlatformCheck,
		SectorSize:        cfg.SectorSize,
		TocDigest:         cfg.TocDigest,
		FitDecoder:        cfg.FitDecoder,
		DtcPath:           cfg.DtcPath,
	})
	if err != nil {
		return fmt.Errorf("rendering configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(rendered)
	return err
}

func runConfigInit(cmd *cobra.Command, path string) error {
	var devices strings.Builder
	for _, dev := range config.DefaultDevices {
		fmt.Fprintf(&devices, "  - %s\n", dev)
	}

	content := fmt.Sprintf(`# bootfirm configuration.
# Searched for as bootfirm.yaml in the working directory, ~/.bootfirm/,
# and /etc/bootfirm/. Environment variables with the BOOTFIRM_ prefix
# override file values.

# Replacement bootloader files.
mlo_path: %s
uboot_path: %s

# Devices probed when --device is not given. Missing ones are skipped.
devices:
%s
# Substring the device tree model must contain, matched case-insensitively.
# skip_platform_check disables the root and board checks for work on
# plain image files.
model: am335x
skip_platform_check: false

# Logical sector size override. 0 asks the kernel, falling back to 512.
sector_size: 0

# SHA-256 of the only TOC block the boot ROM accepts.
toc_digest: %s

# FIT decoding: builtin, or dtc to shell out to the device tree compiler.
fit_decoder: %s
dtc_path: %s
`,
		config.DefaultMLOPath,
		config.DefaultUBootPath,
		devices.String(),
		types.TocDigest,
		config.FitDecoderBuiltin,
		fdt.DefaultDtcPath,
	)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
