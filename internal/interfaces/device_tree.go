// File: internal/interfaces/device_tree.go
package interfaces

// DeviceTreeDecoder turns a flattened device tree blob into a queryable
// tree. FIT detection depends only on this capability, not on how the
// decoding happens; implementations may parse in process or shell out
// to dtc.
type DeviceTreeDecoder interface {
	Decode(blob []byte) (DeviceTreeNode, error)
}

// DeviceTreeNode is one node of a decoded device tree.
type DeviceTreeNode interface {
	// Name returns the node name; the root node's name is empty.
	Name() string

	// Child returns the named direct child node.
	Child(name string) (DeviceTreeNode, bool)

	// Children returns the direct child nodes in tree order.
	Children() []DeviceTreeNode

	// U32Property returns the named property as an unsigned 32-bit
	// value. Where the decoded form holds a list of cells, the first
	// element is returned.
	U32Property(name string) (uint32, bool)

	// StringProperty returns the named property as a string.
	StringProperty(name string) (string, bool)
}
