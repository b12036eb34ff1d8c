// File: internal/device/copy.go
package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
)

// ErrShortTransfer reports a copy that stopped before moving every
// byte of the source image. The destination is torn at that point.
var ErrShortTransfer = errors.New("short firmware transfer")

// RawCopyEngine writes firmware images onto raw devices with
// sendfile(2) and forces the result to stable storage before reporting
// success.
type RawCopyEngine struct {
	logger *slog.Logger

	// sync flushes the destination. Swapped out in tests to observe
	// ordering.
	sync func(*os.File) error
}

var _ interfaces.CopyEngine = (*RawCopyEngine)(nil)

// NewRawCopyEngine returns a copy engine that flushes through
// fsync(2).
func NewRawCopyEngine(logger *slog.Logger) *RawCopyEngine {
	return &RawCopyEngine{
		logger: logger,
		sync:   func(f *os.File) error { return f.Sync() },
	}
}

// Copy overwrites the target image's byte range with the full content
// of the source image. The byte count transferred is the source size;
// a target whose on-device range was sized differently is simply
// replaced from its offset onward.
func (e *RawCopyEngine) Copy(source, target *firmware.Image) error {
	src, err := os.Open(source.Path())
	if err != nil {
		return fmt.Errorf("opening source %s: %w", source.Path(), err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target.Path(), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening target %s: %w", target.Path(), err)
	}
	defer dst.Close()

	if _, err := dst.Seek(target.Offset(), io.SeekStart); err != nil {
		return fmt.Errorf("seeking %s to %#x: %w", target.Path(), target.Offset(), err)
	}

	// One bulk transfer, no retry loop. A partial write leaves the
	// target torn either way, so a short count is treated the same as
	// an I/O error.
	offset := source.Offset()
	n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &offset, int(source.Size()))
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", source.Path(), target.Path(), err)
	}
	if int64(n) != source.Size() {
		return fmt.Errorf("%w: %s received %d of %d bytes",
			ErrShortTransfer, target.Path(), n, source.Size())
	}

	if err := e.sync(dst); err != nil {
		return fmt.Errorf("flushing %s: %w", target.Path(), err)
	}

	e.logger.Debug("wrote firmware image",
		"source", source.Path(),
		"target", target.Path(),
		"offset", fmt.Sprintf("%#x", target.Offset()),
		"bytes", source.Size())
	return nil
}
