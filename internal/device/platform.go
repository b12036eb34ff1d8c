// File: internal/device/platform.go
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// DefaultModelPath is where the kernel exposes the board model string
// from the device tree.
const DefaultModelPath = "/proc/device-tree/model"

var (
	// ErrNotRoot is returned when the process lacks the privileges
	// needed for raw device access.
	ErrNotRoot = errors.New("this program must be run as root")

	// ErrUnsupportedPlatform is returned when the running board is not
	// one this tool knows the boot layout of.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Preflight holds the checks gating any direct device access.
type Preflight struct {
	modelPath      string
	modelSubstring string
	euid           func() int
}

// NewPreflight builds the standard checks. The board passes when its
// device-tree model string contains modelSubstring, compared case
// insensitively.
func NewPreflight(modelSubstring string) *Preflight {
	return &Preflight{
		modelPath:      DefaultModelPath,
		modelSubstring: strings.ToLower(modelSubstring),
		euid:           os.Geteuid,
	}
}

// RequireRoot checks that the process runs with an effective UID of 0.
// Raw MMC device nodes are not readable otherwise.
func (p *Preflight) RequireRoot() error {
	if p.euid() != 0 {
		return ErrNotRoot
	}
	return nil
}

// RequireSupportedModel checks the board model exported by the kernel.
func (p *Preflight) RequireSupportedModel() error {
	raw, err := os.ReadFile(p.modelPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: this device has no device tree and cannot be an %s board",
			ErrUnsupportedPlatform, p.modelSubstring)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", p.modelPath, err)
	}

	if !strings.Contains(strings.ToLower(string(raw)), p.modelSubstring) {
		return fmt.Errorf("%w: this does not appear to be an %s device",
			ErrUnsupportedPlatform, p.modelSubstring)
	}
	return nil
}
