package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/deploymenttheory/go-bootfirm/internal/config"
	"github.com/deploymenttheory/go-bootfirm/internal/device"
	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/logging"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/fit"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/toc"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/uimage"
	"github.com/deploymenttheory/go-bootfirm/internal/services"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// registerDeviceFlag adds the shared device selection flag to a command
// flag set.
func registerDeviceFlag(fs *pflag.FlagSet, devices *[]string, verb string) {
	fs.StringArrayVarP(devices, "device", "d", nil, "device to "+verb+" (repeatable; default from configuration)")
}

// registerReplacementFlags adds the shared replacement file flags.
func registerReplacementFlags(fs *pflag.FlagSet, mloPath, ubootPath *string) {
	fs.StringVarP(mloPath, "mlo", "m", "", "replacement MLO file (default from configuration)")
	fs.StringVarP(ubootPath, "uboot", "u", "", "replacement U-Boot file (default from configuration)")
}

// newLogger builds the process logger from the global output flags.
func newLogger() *slog.Logger {
	return logging.New(os.Stderr, verbosity, quiet)
}

// loadConfig reads the configuration honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

// newDetectors builds the format detectors in probe order. The TOC probe
// runs first because a first-stage image is the cheapest to recognize,
// then the legacy U-Boot header, then FIT.
func newDetectors(cfg *config.Config) []interfaces.FormatDetector {
	return []interfaces.FormatDetector{
		toc.NewDetectorForDigest(cfg.TocDigest),
		uimage.NewDetector(),
		fit.NewDetector(cfg.DeviceTreeDecoder()),
	}
}

func newLocator(logger *slog.Logger, cfg *config.Config) *services.FirmwareImageLocator {
	return services.NewFirmwareImageLocator(logger, newDetectors(cfg)...)
}

// newValidator builds the replacement file validator. Second-stage
// detection tries FIT before the legacy header so that a FIT image with
// stray legacy bytes further in is still classified as FIT.
func newValidator(logger *slog.Logger, cfg *config.Config) *services.ImageValidator {
	return services.NewImageValidator(logger,
		toc.NewDetectorForDigest(cfg.TocDigest),
		fit.NewDetector(cfg.DeviceTreeDecoder()),
		uimage.NewDetector(),
	)
}

func newOpener(logger *slog.Logger, cfg *config.Config) *device.Opener {
	if cfg.SectorSize > 0 {
		return device.NewOpenerWithSectorSize(logger, cfg.SectorSize)
	}
	return device.NewOpener(logger)
}

// runPreflight enforces the root and board checks unless the
// configuration disables them for work on image files.
func runPreflight(logger *slog.Logger, cfg *config.Config) error {
	if cfg.SkipPlatformCheck {
		logger.Warn("skipping root and platform checks")
		return nil
	}
	preflight := device.NewPreflight(cfg.Model)
	if err := preflight.RequireRoot(); err != nil {
		return err
	}
	return preflight.RequireSupportedModel()
}

// resolveDevices returns the devices to work on: the explicit flag values
// when given, otherwise the configured devices that actually exist.
func resolveDevices(logger *slog.Logger, cfg *config.Config, overrides []string) []string {
	if len(overrides) > 0 {
		return overrides
	}
	devices := cfg.PresentDevices()
	if len(devices) == 0 {
		logger.Warn("none of the configured devices are present", "configured", cfg.Devices)
	}
	return devices
}

// override returns flag when set, otherwise the configured fallback.
func override(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

// buildPlan validates both replacement files and plans updates for the
// given devices. The replacement file handles are closed before
// returning; executing the plan reopens everything by path.
func buildPlan(logger *slog.Logger, cfg *config.Config, mloPath, ubootPath string, devicePaths []string) (*services.UpdatePlan, error) {
	validator := newValidator(logger, cfg)

	mlo, err := validator.ValidateFirstStage(mloPath)
	if err != nil {
		return nil, err
	}
	defer mlo.Close()

	uboot, err := validator.ValidateSecondStage(ubootPath)
	if err != nil {
		return nil, err
	}
	defer uboot.Close()

	replacements := map[types.ImageKind]*firmware.Image{
		types.FirstStage:  mlo,
		types.SecondStage: uboot,
	}
	planner := services.NewUpdatePlanner(logger, newOpener(logger, cfg), newLocator(logger, cfg))
	return planner.Plan(replacements, devicePaths)
}

// defaultAction picks the update mode used when no mode flag is given.
// Interactive prompting needs a terminal on stdout; anything else gets
// the safe dry run.
func defaultAction() services.Action {
	if info, err := os.Stdout.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return services.Interactive
	}
	return services.DryRun
}
