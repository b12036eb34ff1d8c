// File: internal/fdt/decoder.go

// Package fdt decodes flattened device tree blobs into the queryable
// tree form consumed by FIT detection. The wire format follows the
// Devicetree Specification v0.3, chapter 5.
package fdt

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// Structure block tokens. Reference: Devicetree Specification v0.3,
// section 5.4.1. All tokens and header fields are big-endian.
const (
	tokenBeginNode uint32 = 0x1
	tokenEndNode   uint32 = 0x2
	tokenProp      uint32 = 0x3
	tokenNop       uint32 = 0x4
	tokenEnd       uint32 = 0x9
)

// headerSize is the size of the fixed fdt_header structure.
const headerSize = 40

// Node is one decoded device tree node.
type Node struct {
	name       string
	properties map[string][]byte
	children   []*Node
	byName     map[string]*Node
}

// Compile-time check that Node implements DeviceTreeNode.
var _ interfaces.DeviceTreeNode = (*Node)(nil)

func newNode(name string) *Node {
	return &Node{
		name:       name,
		properties: make(map[string][]byte),
		byName:     make(map[string]*Node),
	}
}

// Name returns the node name; the root node's name is empty.
func (n *Node) Name() string {
	return n.name
}

// Child returns the named direct child node.
func (n *Node) Child(name string) (interfaces.DeviceTreeNode, bool) {
	child, ok := n.byName[name]
	return child, ok
}

// Children returns the direct child nodes in blob order.
func (n *Node) Children() []interfaces.DeviceTreeNode {
	children := make([]interfaces.DeviceTreeNode, len(n.children))
	for i, child := range n.children {
		children[i] = child
	}
	return children
}

// U32Property returns the first cell of the named property.
func (n *Node) U32Property(name string) (uint32, bool) {
	value, ok := n.properties[name]
	if !ok || len(value) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(value[:4]), true
}

// StringProperty returns the named property with its terminating NUL
// stripped.
func (n *Node) StringProperty(name string) (string, bool) {
	value, ok := n.properties[name]
	if !ok {
		return "", false
	}
	if len(value) > 0 && value[len(value)-1] == 0 {
		value = value[:len(value)-1]
	}
	return string(value), true
}

// Decoder parses device tree blobs in process.
type Decoder struct{}

// Compile-time check that Decoder implements DeviceTreeDecoder.
var _ interfaces.DeviceTreeDecoder = (*Decoder)(nil)

// NewDecoder creates an in-process blob decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses blob and returns its root node.
func (d *Decoder) Decode(blob []byte) (interfaces.DeviceTreeNode, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("blob too small for device tree header: %d bytes", len(blob))
	}

	magic := binary.BigEndian.Uint32(blob[0:4])
	if magic != types.FdtMagic {
		return nil, fmt.Errorf("invalid device tree magic: got %#x, want %#x", magic, types.FdtMagic)
	}

	totalSize := binary.BigEndian.Uint32(blob[4:8])
	if int64(totalSize) > int64(len(blob)) {
		return nil, fmt.Errorf("device tree blob truncated: header claims %d bytes, have %d", totalSize, len(blob))
	}
	if totalSize < headerSize {
		return nil, fmt.Errorf("device tree total size %d smaller than its header", totalSize)
	}
	blob = blob[:totalSize]

	offStruct := binary.BigEndian.Uint32(blob[8:12])
	offStrings := binary.BigEndian.Uint32(blob[12:16])
	sizeStrings := binary.BigEndian.Uint32(blob[32:36])
	sizeStruct := binary.BigEndian.Uint32(blob[36:40])

	if int64(offStruct)+int64(sizeStruct) > int64(len(blob)) {
		return nil, fmt.Errorf("structure block out of range: offset %d size %d", offStruct, sizeStruct)
	}
	if int64(offStrings)+int64(sizeStrings) > int64(len(blob)) {
		return nil, fmt.Errorf("strings block out of range: offset %d size %d", offStrings, sizeStrings)
	}

	structBlock := blob[offStruct : offStruct+sizeStruct]
	stringsBlock := blob[offStrings : offStrings+sizeStrings]

	return parseStructBlock(structBlock, stringsBlock)
}

// parseStructBlock walks the token stream of the structure block and
// builds the node tree.
func parseStructBlock(block, stringsBlock []byte) (*Node, error) {
	var (
		root  *Node
		stack []*Node
		pos   int
	)

	for {
		if pos+4 > len(block) {
			return nil, fmt.Errorf("structure block ends mid-token at offset %d", pos)
		}
		token := binary.BigEndian.Uint32(block[pos : pos+4])
		pos += 4

		switch token {
		case tokenBeginNode:
			name, next, err := readNodeName(block, pos)
			if err != nil {
				return nil, err
			}
			pos = next

			node := newNode(name)
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("second root node %q in structure block", name)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
				parent.byName[name] = node
			}
			stack = append(stack, node)

		case tokenEndNode:
			if len(stack) == 0 {
				return nil, fmt.Errorf("node end token without a matching begin at offset %d", pos-4)
			}
			stack = stack[:len(stack)-1]

		case tokenProp:
			if len(stack) == 0 {
				return nil, fmt.Errorf("property token outside any node at offset %d", pos-4)
			}
			if pos+8 > len(block) {
				return nil, fmt.Errorf("structure block ends mid-property at offset %d", pos)
			}
			valueLen := binary.BigEndian.Uint32(block[pos : pos+4])
			nameOff := binary.BigEndian.Uint32(block[pos+4 : pos+8])
			pos += 8

			if pos+int(valueLen) > len(block) {
				return nil, fmt.Errorf("property value of %d bytes overruns structure block", valueLen)
			}
			value := make([]byte, valueLen)
			copy(value, block[pos:pos+int(valueLen)])
			pos = align4(pos + int(valueLen))

			name, err := readString(stringsBlock, int(nameOff))
			if err != nil {
				return nil, fmt.Errorf("resolving property name: %w", err)
			}
			stack[len(stack)-1].properties[name] = value

		case tokenNop:

		case tokenEnd:
			if len(stack) != 0 {
				return nil, fmt.Errorf("end token with %d unterminated nodes", len(stack))
			}
			if root == nil {
				return nil, fmt.Errorf("structure block holds no root node")
			}
			return root, nil

		default:
			return nil, fmt.Errorf("unknown structure token %#x at offset %d", token, pos-4)
		}
	}
}

// readNodeName reads the NUL-terminated name following a begin-node
// token and returns the 4-byte-aligned position after it.
func readNodeName(block []byte, pos int) (string, int, error) {
	end := pos
	for end < len(block) && block[end] != 0 {
		end++
	}
	if end == len(block) {
		return "", 0, fmt.Errorf("unterminated node name at offset %d", pos)
	}
	return string(block[pos:end]), align4(end + 1), nil
}

// readString reads a NUL-terminated string from the strings block.
func readString(stringsBlock []byte, off int) (string, error) {
	if off >= len(stringsBlock) {
		return "", fmt.Errorf("string offset %d outside strings block of %d bytes", off, len(stringsBlock))
	}
	end := off
	for end < len(stringsBlock) && stringsBlock[end] != 0 {
		end++
	}
	if end == len(stringsBlock) {
		return "", fmt.Errorf("unterminated string at offset %d", off)
	}
	return string(stringsBlock[off:end]), nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
