// File: internal/parsers/uimage/uimage_header.go
package uimage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// Header is the legacy U-Boot image header. All integer fields are
// big-endian on the wire. Layout per U-Boot include/image.h:
//
//	0x00  u32  magic (0x27051956)
//	0x04  u32  header CRC
//	0x08  u32  creation timestamp
//	0x0C  u32  payload size in bytes
//	0x10  u32  load address
//	0x14  u32  entry point
//	0x18  u32  payload CRC
//	0x1C  u8   operating system
//	0x1D  u8   architecture
//	0x1E  u8   image type
//	0x1F  u8   compression
//	0x20  32s  image name, NUL padded
type Header struct {
	Magic        uint32
	HeaderCRC    uint32
	Timestamp    uint32
	DataSize     uint32
	LoadAddress  uint32
	EntryPoint   uint32
	DataCRC      uint32
	OS           uint8
	Architecture uint8
	Type         uint8
	Compression  uint8
	Name         string
}

// ParseHeader parses the fixed 64-byte legacy header from data. It only
// decodes the layout; semantic checks (magic, role fields) belong to the
// detector.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < types.UImageHeaderSize {
		return nil, fmt.Errorf("data too small for legacy image header: %d bytes", len(data))
	}

	h := &Header{
		Magic:        binary.BigEndian.Uint32(data[0:4]),
		HeaderCRC:    binary.BigEndian.Uint32(data[4:8]),
		Timestamp:    binary.BigEndian.Uint32(data[8:12]),
		DataSize:     binary.BigEndian.Uint32(data[12:16]),
		LoadAddress:  binary.BigEndian.Uint32(data[16:20]),
		EntryPoint:   binary.BigEndian.Uint32(data[20:24]),
		DataCRC:      binary.BigEndian.Uint32(data[24:28]),
		OS:           data[28],
		Architecture: data[29],
		Type:         data[30],
		Compression:  data[31],
	}

	name := data[32:types.UImageHeaderSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	h.Name = string(name)

	return h, nil
}

// TotalSize returns the size of the whole image: the payload plus the
// fixed header.
func (h *Header) TotalSize() int64 {
	return int64(h.DataSize) + types.UImageHeaderSize
}
