// File: internal/firmware/image.go

// Package firmware defines the image value passed between the locator,
// planner, and copy engine. An Image names a byte range on a backing
// source (a raw block device or a bootloader file), the kind of
// bootloader stage it holds, and where that range sits on the device.
package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// Image is one firmware image. Values are immutable; RebasedTo returns
// a fresh value instead of mutating.
type Image struct {
	reader io.ReaderAt
	path   string
	kind   types.ImageKind
	offset int64
	size   int64

	// contentOffset is where the image bytes live on the backing
	// source. It stays fixed across rebasing so a rebased image still
	// hashes the content it was built from.
	contentOffset int64

	hash string
}

// NewImage describes size bytes at offset on the source behind r. The
// path is carried for reporting and for reopening the source when the
// image is written out.
func NewImage(r io.ReaderAt, path string, kind types.ImageKind, offset, size int64) *Image {
	return &Image{
		reader:        r,
		path:          path,
		kind:          kind,
		offset:        offset,
		size:          size,
		contentOffset: offset,
	}
}

// FromFile describes the whole of the file at path as a single image
// starting at offset 0. The file stays open for hashing; release it
// with Close once the image is no longer needed.
func FromFile(path string, kind types.ImageKind) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sizing %s: %w", path, err)
	}

	return NewImage(file, path, kind, 0, info.Size()), nil
}

// Path returns the device or file the image lives on.
func (i *Image) Path() string {
	return i.path
}

// Kind returns the bootloader stage the image holds.
func (i *Image) Kind() types.ImageKind {
	return i.kind
}

// Offset returns the byte offset of the image on its device.
func (i *Image) Offset() int64 {
	return i.offset
}

// Size returns the image length in bytes.
func (i *Image) Size() int64 {
	return i.size
}

// End returns the first byte offset past the image.
func (i *Image) End() int64 {
	return i.offset + i.size
}

// ContentHash returns the SHA-256 of the image bytes as a hex string.
// The digest is computed on first use and reused afterwards.
func (i *Image) ContentHash() (string, error) {
	if i.hash != "" {
		return i.hash, nil
	}
	if i.reader == nil {
		return "", fmt.Errorf("%s: image has no backing source to hash", i.path)
	}

	hasher := sha256.New()
	section := io.NewSectionReader(i.reader, i.contentOffset, i.size)
	n, err := io.Copy(hasher, section)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", i.path, err)
	}
	if n != i.size {
		return "", fmt.Errorf("%s: image claims %d bytes but only %d are readable", i.path, i.size, n)
	}

	i.hash = hex.EncodeToString(hasher.Sum(nil))
	return i.hash, nil
}

// Equal reports whether two images hold byte-identical content. Only
// the content hashes are compared, never paths or offsets.
func (i *Image) Equal(other *Image) (bool, error) {
	ours, err := i.ContentHash()
	if err != nil {
		return false, err
	}
	theirs, err := other.ContentHash()
	if err != nil {
		return false, err
	}
	return ours == theirs, nil
}

// OverlapsOrExceeds reports whether the image's byte range reaches or
// passes the given offset. Pass another image's Offset to test whether
// this image would run into it.
func (i *Image) OverlapsOrExceeds(offset int64) bool {
	return i.offset+i.size >= offset
}

// Exceeds is the strict variant of OverlapsOrExceeds: it reports
// whether the byte range passes the given offset.
func (i *Image) Exceeds(offset int64) bool {
	return i.offset+i.size > offset
}

// RebasedTo returns a copy of the image placed at a different device
// offset. The copy reads its content from the original range, so
// hashing behaves the same before and after.
func (i *Image) RebasedTo(offset int64) (*Image, error) {
	if offset < 0 {
		return nil, fmt.Errorf("new offset %d must not be negative", offset)
	}

	rebased := *i
	rebased.offset = offset
	return &rebased, nil
}

// Close releases the backing source when the image owns one that can
// be closed. Images built over a caller-owned reader are unaffected.
func (i *Image) Close() error {
	if closer, ok := i.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// String renders the image the way update reports refer to it.
func (i *Image) String() string {
	return fmt.Sprintf("%s at %#x (%d bytes) on %s", i.kind, i.offset, i.size, i.path)
}
