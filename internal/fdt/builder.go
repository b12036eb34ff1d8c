// File: internal/fdt/builder.go
package fdt

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-bootfirm/internal/types"
)

// Builder assembles a minimal flattened device tree blob, version 17,
// with an empty memory reservation block. It backs the synthetic
// test-media generator and the package tests; it is not a general dtc
// replacement.
type Builder struct {
	root *BuilderNode
}

// BuilderNode is one node under construction.
type BuilderNode struct {
	name     string
	props    []builderProp
	children []*BuilderNode
}

type builderProp struct {
	name  string
	value []byte
}

// NewBuilder creates a builder holding an empty root node.
func NewBuilder() *Builder {
	return &Builder{root: &BuilderNode{}}
}

// Root returns the root node.
func (b *Builder) Root() *BuilderNode {
	return b.root
}

// AddChild appends a named child node and returns it.
func (n *BuilderNode) AddChild(name string) *BuilderNode {
	child := &BuilderNode{name: name}
	n.children = append(n.children, child)
	return child
}

// SetU32 sets a single-cell property.
func (n *BuilderNode) SetU32(name string, value uint32) *BuilderNode {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	return n.SetBytes(name, buf)
}

// SetString sets a NUL-terminated string property.
func (n *BuilderNode) SetString(name, value string) *BuilderNode {
	return n.SetBytes(name, append([]byte(value), 0))
}

// SetBytes sets a raw property value.
func (n *BuilderNode) SetBytes(name string, value []byte) *BuilderNode {
	n.props = append(n.props, builderProp{name: name, value: value})
	return n
}

// Build serializes the tree into a blob.
func (b *Builder) Build() []byte {
	strings := &stringTable{offsets: make(map[string]uint32)}
	structBlock := appendNode(nil, b.root, strings)
	structBlock = appendUint32(structBlock, tokenEnd)

	// Empty reservation block: one all-zero terminator entry.
	const rsvmapSize = 16
	offRsvmap := uint32(headerSize)
	offStruct := offRsvmap + rsvmapSize
	offStrings := offStruct + uint32(len(structBlock))
	totalSize := offStrings + uint32(len(strings.data))

	blob := make([]byte, 0, totalSize)
	blob = appendUint32(blob, types.FdtMagic)
	blob = appendUint32(blob, totalSize)
	blob = appendUint32(blob, offStruct)
	blob = appendUint32(blob, offStrings)
	blob = appendUint32(blob, offRsvmap)
	blob = appendUint32(blob, 17) // version
	blob = appendUint32(blob, 16) // last compatible version
	blob = appendUint32(blob, 0)  // boot CPU
	blob = appendUint32(blob, uint32(len(strings.data)))
	blob = appendUint32(blob, uint32(len(structBlock)))
	blob = append(blob, make([]byte, rsvmapSize)...)
	blob = append(blob, structBlock...)
	blob = append(blob, strings.data...)
	return blob
}

func appendNode(out []byte, node *BuilderNode, strings *stringTable) []byte {
	out = appendUint32(out, tokenBeginNode)
	out = append(out, node.name...)
	out = append(out, 0)
	out = pad4(out)

	for _, prop := range node.props {
		out = appendUint32(out, tokenProp)
		out = appendUint32(out, uint32(len(prop.value)))
		out = appendUint32(out, strings.intern(prop.name))
		out = append(out, prop.value...)
		out = pad4(out)
	}
	for _, child := range node.children {
		out = appendNode(out, child, strings)
	}

	return appendUint32(out, tokenEndNode)
}

type stringTable struct {
	data    []byte
	offsets map[string]uint32
}

func (t *stringTable) intern(s string) uint32 {
	if off, ok := t.offsets[s]; ok {
		return off
	}
	off := uint32(len(t.data))
	t.offsets[s] = off
	t.data = append(t.data, s...)
	t.data = append(t.data, 0)
	return off
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

func pad4(out []byte) []byte {
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}
