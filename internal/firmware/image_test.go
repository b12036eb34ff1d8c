// File: internal/firmware/image_test.go
package firmware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// createTestMedia builds a buffer with recognizable content planted at
// the given offset.
func createTestMedia(offset int64, content []byte) []byte {
	media := make([]byte, offset+int64(len(content))+1024)
	copy(media[offset:], content)
	return media
}

func testContent(size int) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i * 13)
	}
	return content
}

type countingReaderAt struct {
	reader io.ReaderAt
	calls  int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.calls++
	return c.reader.ReadAt(p, off)
}

func TestImage_Accessors(t *testing.T) {
	media := createTestMedia(0x20000, testContent(4096))
	image := NewImage(bytes.NewReader(media), "/dev/mmcblk0", types.FirstStage, 0x20000, 4096)

	assert.Equal(t, "/dev/mmcblk0", image.Path())
	assert.Equal(t, types.FirstStage, image.Kind())
	assert.Equal(t, int64(0x20000), image.Offset())
	assert.Equal(t, int64(4096), image.Size())
	assert.Equal(t, int64(0x21000), image.End())
	assert.Equal(t, "MLO image at 0x20000 (4096 bytes) on /dev/mmcblk0", image.String())
}

func TestImage_ContentHash(t *testing.T) {
	content := testContent(2048)
	media := createTestMedia(0x40000, content)

	image := NewImage(bytes.NewReader(media), "/dev/mmcblk1", types.SecondStage, 0x40000, 2048)

	digest, err := image.ContentHash()
	require.NoError(t, err)

	expected := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(expected[:]), digest)
}

func TestImage_ContentHashIsComputedOnce(t *testing.T) {
	media := createTestMedia(0, testContent(512))
	counting := &countingReaderAt{reader: bytes.NewReader(media)}
	image := NewImage(counting, "mlo.img", types.FirstStage, 0, 512)

	first, err := image.ContentHash()
	require.NoError(t, err)
	readsAfterFirst := counting.calls
	require.NotZero(t, readsAfterFirst)

	second, err := image.ContentHash()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, readsAfterFirst, counting.calls)
}

func TestImage_ContentHashShortSource(t *testing.T) {
	image := NewImage(bytes.NewReader(make([]byte, 100)), "short.img", types.FirstStage, 0, 512)

	_, err := image.ContentHash()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 100 are readable")
}

func TestImage_Equal(t *testing.T) {
	content := testContent(4096)

	tests := []struct {
		name          string
		a             *Image
		b             *Image
		expectedEqual bool
	}{
		{
			name:          "Identical content at different offsets on different devices",
			a:             NewImage(bytes.NewReader(createTestMedia(0x20000, content)), "/dev/mmcblk0", types.FirstStage, 0x20000, 4096),
			b:             NewImage(bytes.NewReader(createTestMedia(0x60000, content)), "/dev/mmcblk1", types.FirstStage, 0x60000, 4096),
			expectedEqual: true,
		},
		{
			name: "Single flipped byte",
			a:    NewImage(bytes.NewReader(createTestMedia(0, content)), "a.img", types.SecondStage, 0, 4096),
			b: func() *Image {
				mutated := make([]byte, len(content))
				copy(mutated, content)
				mutated[2000] ^= 0x01
				return NewImage(bytes.NewReader(createTestMedia(0, mutated)), "b.img", types.SecondStage, 0, 4096)
			}(),
			expectedEqual: false,
		},
		{
			name:          "Same content but different lengths",
			a:             NewImage(bytes.NewReader(createTestMedia(0, content)), "a.img", types.SecondStage, 0, 4096),
			b:             NewImage(bytes.NewReader(createTestMedia(0, content)), "b.img", types.SecondStage, 0, 2048),
			expectedEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equal, err := tt.a.Equal(tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedEqual, equal)
		})
	}
}

func TestImage_OverlapRelations(t *testing.T) {
	media := createTestMedia(0x20000, testContent(0x1000))
	image := NewImage(bytes.NewReader(media), "/dev/mmcblk0", types.SecondStage, 0x20000, 0x1000)

	// The image spans [0x20000, 0x21000).
	assert.True(t, image.OverlapsOrExceeds(0x20fff))
	assert.True(t, image.Exceeds(0x20fff))

	assert.True(t, image.OverlapsOrExceeds(0x21000))
	assert.False(t, image.Exceeds(0x21000))

	assert.False(t, image.OverlapsOrExceeds(0x21001))
	assert.False(t, image.Exceeds(0x21001))
}

func TestImage_OverlapAgainstAnotherImage(t *testing.T) {
	reader := bytes.NewReader(createTestMedia(0, testContent(0x1000)))

	lower := NewImage(reader, "/dev/mmcblk0", types.FirstStage, 0x20000, 0x20000)
	adjacent := NewImage(reader, "/dev/mmcblk0", types.SecondStage, 0x40000, 0x1000)
	clear := NewImage(reader, "/dev/mmcblk0", types.SecondStage, 0x40001, 0x1000)

	assert.True(t, lower.OverlapsOrExceeds(adjacent.Offset()))
	assert.False(t, lower.Exceeds(adjacent.Offset()))
	assert.False(t, lower.OverlapsOrExceeds(clear.Offset()))
}

func TestImage_RebasedTo(t *testing.T) {
	content := testContent(4096)
	media := createTestMedia(0, content)
	image := NewImage(bytes.NewReader(media), "u-boot.img", types.SecondStage, 0, 4096)

	originalHash, err := image.ContentHash()
	require.NoError(t, err)

	rebased, err := image.RebasedTo(0x60000)
	require.NoError(t, err)

	assert.Equal(t, int64(0x60000), rebased.Offset())
	assert.Equal(t, int64(0x61000), rebased.End())
	assert.Equal(t, image.Size(), rebased.Size())
	assert.Equal(t, image.Kind(), rebased.Kind())
	assert.Equal(t, image.Path(), rebased.Path())

	// The original value is untouched.
	assert.Equal(t, int64(0), image.Offset())

	// Rebasing moves the placement, not the content.
	rebasedHash, err := rebased.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, originalHash, rebasedHash)

	again, err := rebased.RebasedTo(0x60000)
	require.NoError(t, err)
	assert.Equal(t, rebased.Offset(), again.Offset())
	assert.Equal(t, rebased.End(), again.End())
}

func TestImage_RebasedToNegativeOffset(t *testing.T) {
	image := NewImage(bytes.NewReader(testContent(64)), "u-boot.img", types.SecondStage, 0, 64)

	_, err := image.RebasedTo(-1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestFromFile(t *testing.T) {
	content := testContent(100000)
	path := filepath.Join(t.TempDir(), "MLO")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	image, err := FromFile(path, types.FirstStage)
	require.NoError(t, err)
	defer image.Close()

	assert.Equal(t, path, image.Path())
	assert.Equal(t, types.FirstStage, image.Kind())
	assert.Equal(t, int64(0), image.Offset())
	assert.Equal(t, int64(100000), image.Size())

	digest, err := image.ContentHash()
	require.NoError(t, err)
	expected := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(expected[:]), digest)
}

func TestFromFile_Missing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "absent"), types.FirstStage)
	require.Error(t, err)
}
