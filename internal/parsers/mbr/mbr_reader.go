// File: internal/parsers/mbr/mbr_reader.go
package mbr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// ErrShortSector reports a boot sector smaller than the fixed MBR size.
// A device too small to hold its own boot sector is an I/O level
// problem, never a "no partitions" answer.
var ErrShortSector = errors.New("short boot sector")

// Entry is one primary partition entry. CHS fields are carried raw;
// only the LBA values matter on media this tool touches.
//
//	0x00  u8   status
//	0x01  3b   CHS start, packed
//	0x04  u8   partition type
//	0x05  3b   CHS end, packed
//	0x08  u32  LBA of first sector, little-endian
//	0x0C  u32  sector count, little-endian
type Entry struct {
	Status      uint8
	Type        uint8
	LBAStart    uint32
	SectorCount uint32

	empty bool
}

// Empty reports whether the entry slot was all zeroes.
func (e Entry) Empty() bool {
	return e.empty
}

// Table is a parsed master boot record.
type Table struct {
	signatureValid bool
	entries        []Entry
}

// ParseTable parses the boot sector of a device. The caller hands in
// the first types.MbrSectorSize bytes.
func ParseTable(sector []byte) (*Table, error) {
	if len(sector) < types.MbrSectorSize {
		return nil, fmt.Errorf("%w: have %d of %d bytes", ErrShortSector, len(sector), types.MbrSectorSize)
	}

	table := &Table{
		signatureValid: sector[types.MbrBootSignatureOffset] == types.MbrBootSignature[0] &&
			sector[types.MbrBootSignatureOffset+1] == types.MbrBootSignature[1],
	}

	for i := 0; i < types.MbrPartitionEntryCount; i++ {
		start := types.MbrPartitionTableOffset + i*types.MbrPartitionEntrySize
		raw := sector[start : start+types.MbrPartitionEntrySize]

		entry := Entry{empty: allZero(raw)}
		if !entry.empty {
			entry.Status = raw[0]
			entry.Type = raw[4]
			entry.LBAStart = binary.LittleEndian.Uint32(raw[8:12])
			entry.SectorCount = binary.LittleEndian.Uint32(raw[12:16])
		}
		table.entries = append(table.entries, entry)
	}

	return table, nil
}

// SignatureValid reports whether the boot signature was present.
func (t *Table) SignatureValid() bool {
	return t.signatureValid
}

// Entries returns all four entry slots in table order.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

// FirstPartitionStart returns the byte offset of the earliest-starting
// partition. The second return is false when the table gives no usable
// boundary, either because the boot signature is missing or because
// every entry slot is empty.
func (t *Table) FirstPartitionStart(sectorSize int) (int64, bool) {
	if !t.signatureValid {
		return 0, false
	}

	var (
		lowest uint32
		found  bool
	)
	for _, entry := range t.entries {
		if entry.Empty() {
			continue
		}
		if !found || entry.LBAStart < lowest {
			lowest = entry.LBAStart
			found = true
		}
	}
	if !found {
		return 0, false
	}

	return int64(lowest) * int64(sectorSize), true
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
