// File: internal/interfaces/copy_engine.go
package interfaces

import "github.com/deploymenttheory/go-bootfirm/internal/firmware"

// CopyEngine overwrites one firmware image with the content of
// another.
type CopyEngine interface {
	// Copy replaces the target image's byte range with the source
	// image's content. It returns only after the write is stable.
	Copy(source, target *firmware.Image) error
}
