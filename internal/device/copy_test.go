// File: internal/device/copy_test.go
package device

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootfirm/internal/firmware"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

func TestRawCopyEngine_Copy(t *testing.T) {
	content := make([]byte, 100000)
	for i := range content {
		content[i] = byte(i * 31)
	}
	sourcePath := createTestDeviceFile(t, "MLO", content)

	// Target "device" with sentinel bytes so untouched ranges are
	// visible.
	target := bytes.Repeat([]byte{0xEE}, 0x20000+len(content)+4096)
	targetPath := createTestDeviceFile(t, "mmcblk0", target)

	source, err := firmware.FromFile(sourcePath, types.FirstStage)
	require.NoError(t, err)
	defer source.Close()

	destination := firmware.NewImage(nil, targetPath, types.FirstStage, 0x20000, int64(len(content)))

	engine := NewRawCopyEngine(discardLogger())

	var syncedWithDataInPlace bool
	engine.sync = func(f *os.File) error {
		written, readErr := os.ReadFile(targetPath)
		if readErr != nil {
			return readErr
		}
		syncedWithDataInPlace = bytes.Equal(written[0x20000:0x20000+len(content)], content)
		return f.Sync()
	}

	require.NoError(t, engine.Copy(source, destination))
	assert.True(t, syncedWithDataInPlace, "flush must happen after the data is written")

	updated, err := os.ReadFile(targetPath)
	require.NoError(t, err)

	assert.Equal(t, content, updated[0x20000:0x20000+len(content)])
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 0x20000), updated[:0x20000])
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 4096), updated[0x20000+len(content):])
}

func TestRawCopyEngine_CopyFromDeviceRange(t *testing.T) {
	content := []byte("second stage payload")
	media := bytes.Repeat([]byte{0x00}, 0x1000)
	copy(media[0x400:], content)
	sourcePath := createTestDeviceFile(t, "mmcblk0", media)
	targetPath := createTestDeviceFile(t, "mmcblk1", make([]byte, 0x1000))

	source := firmware.NewImage(nil, sourcePath, types.SecondStage, 0x400, int64(len(content)))
	destination := firmware.NewImage(nil, targetPath, types.SecondStage, 0x200, int64(len(content)))

	engine := NewRawCopyEngine(discardLogger())
	require.NoError(t, engine.Copy(source, destination))

	updated, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Equal(t, content, updated[0x200:0x200+len(content)])
}

func TestRawCopyEngine_CopyMissingSource(t *testing.T) {
	targetPath := createTestDeviceFile(t, "mmcblk0", make([]byte, 512))

	source := firmware.NewImage(nil, filepath.Join(t.TempDir(), "absent"), types.FirstStage, 0, 512)
	destination := firmware.NewImage(nil, targetPath, types.FirstStage, 0, 512)

	err := NewRawCopyEngine(discardLogger()).Copy(source, destination)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening source")
}

func TestRawCopyEngine_CopyMissingTarget(t *testing.T) {
	sourcePath := createTestDeviceFile(t, "MLO", make([]byte, 512))

	source := firmware.NewImage(nil, sourcePath, types.FirstStage, 0, 512)
	destination := firmware.NewImage(nil, filepath.Join(t.TempDir(), "absent"), types.FirstStage, 0, 512)

	err := NewRawCopyEngine(discardLogger()).Copy(source, destination)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening target")
}
