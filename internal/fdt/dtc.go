// File: internal/fdt/dtc.go
package fdt

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
)

// DefaultDtcPath is where the device tree compiler lives on target
// images.
const DefaultDtcPath = "/usr/bin/dtc"

// DtcDecoder decodes blobs by piping them through the external dtc
// tool: dtb to dts, then dts to yaml, parsed with yaml.v3. Older dtc
// builds cannot emit yaml from dtb directly, hence the two stages.
type DtcDecoder struct {
	path string
}

// Compile-time check that DtcDecoder implements DeviceTreeDecoder.
var _ interfaces.DeviceTreeDecoder = (*DtcDecoder)(nil)

// NewDtcDecoder creates a decoder invoking the dtc binary at path.
// An empty path selects DefaultDtcPath.
func NewDtcDecoder(path string) *DtcDecoder {
	if path == "" {
		path = DefaultDtcPath
	}
	return &DtcDecoder{path: path}
}

// Decode runs the dtc pipeline over blob and adapts the yaml document
// into a queryable tree.
func (d *DtcDecoder) Decode(blob []byte) (interfaces.DeviceTreeNode, error) {
	decompile := exec.Command(d.path, "-I", "dtb", "-O", "dts", "-o", "-", "-")
	convert := exec.Command(d.path, "-I", "dts", "-O", "yaml", "-o", "-", "-")

	decompile.Stdin = bytes.NewReader(blob)
	pipe, err := decompile.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("connecting dtc pipeline: %w", err)
	}
	convert.Stdin = pipe

	var out, decompileErr, convertErr bytes.Buffer
	decompile.Stderr = &decompileErr
	convert.Stdout = &out
	convert.Stderr = &convertErr

	if err := decompile.Start(); err != nil {
		return nil, fmt.Errorf("starting dtc decompile: %w", err)
	}
	if err := convert.Start(); err != nil {
		_ = decompile.Wait()
		return nil, fmt.Errorf("starting dtc yaml conversion: %w", err)
	}
	if err := decompile.Wait(); err != nil {
		_ = convert.Wait()
		return nil, fmt.Errorf("dtc decompile failed: %v (%s)", err, strings.TrimSpace(decompileErr.String()))
	}
	if err := convert.Wait(); err != nil {
		return nil, fmt.Errorf("dtc yaml conversion failed: %v (%s)", err, strings.TrimSpace(convertErr.String()))
	}

	return parseDtcYaml(out.Bytes())
}

// parseDtcYaml adapts dtc yaml output into the tree interface. The
// document holds a sequence of trees; only the first tree is consumed.
func parseDtcYaml(doc []byte) (interfaces.DeviceTreeNode, error) {
	var parsed yaml.Node
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("parsing dtc yaml output: %w", err)
	}
	if parsed.Kind != yaml.DocumentNode || len(parsed.Content) == 0 {
		return nil, fmt.Errorf("dtc yaml output holds no document")
	}

	trees := parsed.Content[0]
	if trees.Kind != yaml.SequenceNode || len(trees.Content) == 0 {
		return nil, fmt.Errorf("dtc yaml output holds no tree")
	}
	rootMapping := trees.Content[0]
	if rootMapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("dtc yaml tree root is not a mapping")
	}

	return &yamlNode{name: "", mapping: rootMapping}, nil
}

// yamlNode adapts one dtc yaml mapping to the tree interface. Mapping
// values that are themselves mappings are child nodes; everything else
// is a property.
type yamlNode struct {
	name    string
	mapping *yaml.Node
}

// Compile-time check that yamlNode implements DeviceTreeNode.
var _ interfaces.DeviceTreeNode = (*yamlNode)(nil)

// Name returns the node name; the root node's name is empty.
func (n *yamlNode) Name() string {
	return n.name
}

// Child returns the named direct child node.
func (n *yamlNode) Child(name string) (interfaces.DeviceTreeNode, bool) {
	for i := 0; i+1 < len(n.mapping.Content); i += 2 {
		key, value := n.mapping.Content[i], n.mapping.Content[i+1]
		if key.Value == name && value.Kind == yaml.MappingNode {
			return &yamlNode{name: name, mapping: value}, true
		}
	}
	return nil, false
}

// Children returns the direct child nodes in document order.
func (n *yamlNode) Children() []interfaces.DeviceTreeNode {
	var children []interfaces.DeviceTreeNode
	for i := 0; i+1 < len(n.mapping.Content); i += 2 {
		key, value := n.mapping.Content[i], n.mapping.Content[i+1]
		if value.Kind == yaml.MappingNode {
			children = append(children, &yamlNode{name: key.Value, mapping: value})
		}
	}
	return children
}

// U32Property returns the named property as an unsigned 32-bit value.
// dtc emits cell data as nested sequences; the first scalar wins.
func (n *yamlNode) U32Property(name string) (uint32, bool) {
	value, ok := n.property(name)
	if !ok {
		return 0, false
	}
	scalar, ok := firstScalar(value)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(scalar.Value), 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(parsed), true
}

// StringProperty returns the named property as a string.
func (n *yamlNode) StringProperty(name string) (string, bool) {
	value, ok := n.property(name)
	if !ok {
		return "", false
	}
	scalar, ok := firstScalar(value)
	if !ok {
		return "", false
	}
	return scalar.Value, true
}

func (n *yamlNode) property(name string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(n.mapping.Content); i += 2 {
		key, value := n.mapping.Content[i], n.mapping.Content[i+1]
		if key.Value == name && value.Kind != yaml.MappingNode {
			return value, true
		}
	}
	return nil, false
}

// firstScalar unwraps nested sequences down to their first scalar.
func firstScalar(node *yaml.Node) (*yaml.Node, bool) {
	for node != nil && node.Kind == yaml.SequenceNode {
		if len(node.Content) == 0 {
			return nil, false
		}
		node = node.Content[0]
	}
	if node == nil || node.Kind != yaml.ScalarNode {
		return nil, false
	}
	return node, true
}
