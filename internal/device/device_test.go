// File: internal/device/device_test.go
package device

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestDeviceFile writes a file standing in for a raw device.
func createTestDeviceFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// createTestSysfs lays out the sysfs queue entry for a device name.
func createTestSysfs(t *testing.T, deviceName, blockSize string) string {
	t.Helper()
	root := t.TempDir()
	queueDir := filepath.Join(root, "class", "block", deviceName, "queue")
	require.NoError(t, os.MkdirAll(queueDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(queueDir, "logical_block_size"), []byte(blockSize), 0o644))
	return root
}

func TestOpener_OpenResolvesSectorSizeFromSysfs(t *testing.T) {
	path := createTestDeviceFile(t, "mmcblk0", make([]byte, 4096))
	sysfsRoot := createTestSysfs(t, "mmcblk0", "4096\n")

	opener := &Opener{logger: discardLogger(), sysfsRoot: sysfsRoot}

	dev, err := opener.Open(path)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, path, dev.Path())
	assert.Equal(t, 4096, dev.SectorSize())
}

func TestOpener_OpenDefaultsSectorSize(t *testing.T) {
	path := createTestDeviceFile(t, "mmcblk1", make([]byte, 4096))

	opener := &Opener{logger: discardLogger(), sysfsRoot: t.TempDir()}

	dev, err := opener.Open(path)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, types.DefaultSectorSize, dev.SectorSize())
}

func TestOpener_OpenForcedSectorSize(t *testing.T) {
	path := createTestDeviceFile(t, "mmcblk0", make([]byte, 4096))

	opener := NewOpenerWithSectorSize(discardLogger(), 4096)

	dev, err := opener.Open(path)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, 4096, dev.SectorSize())
}

func TestOpener_OpenMissingDevice(t *testing.T) {
	opener := NewOpener(discardLogger())

	_, err := opener.Open(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestOpener_SysfsSectorSizeRejectsGarbage(t *testing.T) {
	sysfsRoot := createTestSysfs(t, "mmcblk0", "not-a-number\n")
	opener := &Opener{logger: discardLogger(), sysfsRoot: sysfsRoot}

	_, err := opener.sysfsSectorSize("/dev/mmcblk0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestDevice_ReadAtAndSize(t *testing.T) {
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i)
	}
	path := createTestDeviceFile(t, "mmcblk0", content)

	opener := &Opener{logger: discardLogger(), sysfsRoot: t.TempDir()}
	dev, err := opener.Open(path)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, 16)
	n, err := dev.ReadAt(buf, 512)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, content[512:528], buf)

	size, err := dev.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)
}
