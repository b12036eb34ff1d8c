// File: internal/services/validator_test.go
package services

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootfirm/internal/fdt"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/fit"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/toc"
	"github.com/deploymenttheory/go-bootfirm/internal/parsers/uimage"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

func writeTestFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func newTestValidator(tocDigest string) *ImageValidator {
	return NewImageValidator(discardLogger(),
		toc.NewDetectorForDigest(tocDigest),
		fit.NewDetector(fdt.NewDecoder()),
		uimage.NewDetector(),
	)
}

func TestImageValidator_ValidateFirstStage(t *testing.T) {
	content, tocDigest := createTestTocImage([]byte("first stage payload"))
	path := writeTestFile(t, "MLO", content)

	image, err := newTestValidator(tocDigest).ValidateFirstStage(path)
	require.NoError(t, err)
	defer image.Close()

	assert.Equal(t, path, image.Path())
	assert.Equal(t, types.FirstStage, image.Kind())
	assert.Equal(t, int64(0), image.Offset())
	assert.Equal(t, int64(len(content)), image.Size())
}

func TestImageValidator_ValidateFirstStageRejectsWrongContent(t *testing.T) {
	_, tocDigest := createTestTocImage(nil)
	path := writeTestFile(t, "MLO", []byte("not a bootloader at all"))

	_, err := newTestValidator(tocDigest).ValidateFirstStage(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not have a valid TOC")
}

func TestImageValidator_ValidateFirstStageMissingFile(t *testing.T) {
	_, tocDigest := createTestTocImage(nil)

	path := filepath.Join(t.TempDir(), "MLO")
	_, err := newTestValidator(tocDigest).ValidateFirstStage(path)
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("MLO file (%s) does not exist", path), err.Error())
}

func TestImageValidator_ValidateSecondStageLegacy(t *testing.T) {
	content := createTestLegacyImage(make([]byte, 2048))
	path := writeTestFile(t, "u-boot.img", content)

	_, tocDigest := createTestTocImage(nil)
	image, err := newTestValidator(tocDigest).ValidateSecondStage(path)
	require.NoError(t, err)
	defer image.Close()

	assert.Equal(t, types.SecondStage, image.Kind())
	assert.Equal(t, int64(len(content)), image.Size())
}

func TestImageValidator_ValidateSecondStageFit(t *testing.T) {
	path := writeTestFile(t, "u-boot.img", createTestFitBlob())

	_, tocDigest := createTestTocImage(nil)
	image, err := newTestValidator(tocDigest).ValidateSecondStage(path)
	require.NoError(t, err)
	defer image.Close()

	assert.Equal(t, types.SecondStage, image.Kind())
}

func TestImageValidator_ValidateSecondStageRejectsRecognizedButBroken(t *testing.T) {
	_, tocDigest := createTestTocImage(nil)

	tests := []struct {
		name    string
		content []byte
	}{
		{
			// FIT magic with a tree length reaching past the file.
			// The detector recognizes the format and rejects it, so
			// the legacy detector never gets a say.
			name: "Truncated image tree",
			content: func() []byte {
				buf := make([]byte, 48)
				binary.BigEndian.PutUint32(buf[0:4], types.FdtMagic)
				binary.BigEndian.PutUint32(buf[4:8], 4096)
				return buf
			}(),
		},
		{
			// A legacy header for a Linux kernel, not a bootloader.
			name: "Legacy image with the wrong OS",
			content: func() []byte {
				content := createTestLegacyImage(make([]byte, 128))
				content[28] = 5 // Linux
				return content
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, "u-boot.img", tt.content)

			_, err := newTestValidator(tocDigest).ValidateSecondStage(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "does not contain a U-Boot firmware image")
		})
	}
}

func TestImageValidator_ValidateSecondStageRejectsUnknownContent(t *testing.T) {
	_, tocDigest := createTestTocImage(nil)
	path := writeTestFile(t, "u-boot.img", []byte("neither format matches this"))

	_, err := newTestValidator(tocDigest).ValidateSecondStage(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a valid U-Boot image")
}

func TestImageValidator_ValidateSecondStageMissingFile(t *testing.T) {
	_, tocDigest := createTestTocImage(nil)

	path := filepath.Join(t.TempDir(), "u-boot.img")
	_, err := newTestValidator(tocDigest).ValidateSecondStage(path)
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("U-Boot file (%s) does not exist", path), err.Error())
}
