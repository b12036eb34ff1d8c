// File: internal/config/config.go

// Package config loads tool configuration from a config file,
// environment variables, and built-in defaults, in that order of
// increasing precedence for the environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-bootfirm/internal/fdt"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

const (
	// DefaultMLOPath is where Debian-family u-boot packages install
	// the first-stage image.
	DefaultMLOPath = "/usr/lib/u-boot/am335x_evm/MLO"

	// DefaultUBootPath is where Debian-family u-boot packages install
	// the second-stage image.
	DefaultUBootPath = "/usr/lib/u-boot/am335x_evm/u-boot.img"

	// FitDecoderBuiltin selects the in-process device tree decoder.
	FitDecoderBuiltin = "builtin"

	// FitDecoderDtc selects decoding through the dtc executable.
	FitDecoderDtc = "dtc"
)

// DefaultDevices are the MMC device nodes BeagleBones can boot from.
var DefaultDevices = []string{"/dev/mmcblk0", "/dev/mmcblk1"}

// Config holds all tool settings.
type Config struct {
	MLOPath           string   `mapstructure:"mlo_path"`
	UBootPath         string   `mapstructure:"uboot_path"`
	Devices           []string `mapstructure:"devices"`
	Model             string   `mapstructure:"model"`
	SectorSize        int      `mapstructure:"sector_size"`
	SkipPlatformCheck bool     `mapstructure:"skip_platform_check"`
	TocDigest         string   `mapstructure:"toc_digest"`
	FitDecoder        string   `mapstructure:"fit_decoder"`
	DtcPath           string   `mapstructure:"dtc_path"`
}

// Load reads configuration. When configFile is empty the usual
// locations are searched and a missing file just means defaults; an
// explicitly named file must exist.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("bootfirm")
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bootfirm")
		v.AddConfigPath("/etc/bootfirm")
	}

	v.SetDefault("mlo_path", DefaultMLOPath)
	v.SetDefault("uboot_path", DefaultUBootPath)
	v.SetDefault("devices", DefaultDevices)
	v.SetDefault("model", "am335x")
	v.SetDefault("sector_size", 0)
	v.SetDefault("skip_platform_check", false)
	v.SetDefault("toc_digest", types.TocDigest)
	v.SetDefault("fit_decoder", FitDecoderBuiltin)
	v.SetDefault("dtc_path", fdt.DefaultDtcPath)

	v.SetEnvPrefix("BOOTFIRM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.FitDecoder {
	case FitDecoderBuiltin, FitDecoderDtc:
	default:
		return fmt.Errorf("unknown fit_decoder %q (want %q or %q)",
			c.FitDecoder, FitDecoderBuiltin, FitDecoderDtc)
	}
	if c.SectorSize < 0 {
		return fmt.Errorf("sector_size must not be negative, got %d", c.SectorSize)
	}
	if len(c.TocDigest) != 64 {
		return fmt.Errorf("toc_digest must be 64 hex characters, got %d", len(c.TocDigest))
	}
	return nil
}

// PresentDevices returns the configured devices that exist on this
// system. Boards routinely run with only one of the two MMC slots
// populated.
func (c *Config) PresentDevices() []string {
	var present []string
	for _, path := range c.Devices {
		if _, err := os.Stat(path); err == nil {
			present = append(present, path)
		}
	}
	return present
}

// DeviceTreeDecoder builds the tree decoder the configuration selects.
func (c *Config) DeviceTreeDecoder() interfaces.DeviceTreeDecoder {
	if c.FitDecoder == FitDecoderDtc {
		return fdt.NewDtcDecoder(c.DtcPath)
	}
	return fdt.NewDecoder()
}
