// Package bundle reads the host bundle manifest of the sensor device.
//
// The manifest is an XML document. It declares the published methods with
// their parameters and carries the device parameter tree the host passes to
// Mount and Activate:
//
//	<bundle name="keyence">
//	  <parameters>
//	    <host>192.168.0.10</host>
//	    <port>8500</port>
//	    <pose><calibration><yaw>90</yaw></calibration></pose>
//	  </parameters>
//	  <methods>
//	    <method name="triggerImageObj">
//	      <param type="Number" name="object_found"/>
//	    </method>
//	  </methods>
//	</bundle>
//
// Methods are collected wherever they appear in the document.
package bundle

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Manifest errors.
var (
	ErrInvalidManifest = errors.New("invalid bundle manifest")
	ErrNoParameters    = errors.New("manifest has no parameters section")
)

// RootElement is the expected document element.
const RootElement = "bundle"

// ParametersElement holds the device parameter tree.
const ParametersElement = "parameters"

// Node is a generic XML element.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Attr returns the value of the named attribute.
func (n Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first direct child with the given name.
func (n Node) Child(name string) (Node, bool) {
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return Node{}, false
}

// walk visits n and all its descendants in document order.
func (n Node) walk(fn func(Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

// Param is one method parameter.
type Param struct {
	Type string
	Name string
}

func (p Param) String() string {
	return p.Type + " " + p.Name
}

// Method is a published method signature.
type Method struct {
	Name   string
	Params []Param
}

func (m Method) String() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		parts[i] = p.String()
	}
	return m.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Manifest is a parsed bundle manifest.
type Manifest struct {
	// Name is the bundle name attribute.
	Name string

	// Methods in document order. A later duplicate replaces an earlier one.
	Methods []Method

	root Node
}

// Parse reads a manifest.
func Parse(r io.Reader) (*Manifest, error) {
	var root Node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if root.XMLName.Local != RootElement {
		return nil, fmt.Errorf("%w: root element is <%s>, want <%s>", ErrInvalidManifest, root.XMLName.Local, RootElement)
	}

	m := &Manifest{root: root}
	m.Name, _ = root.Attr("name")

	index := make(map[string]int)
	var err error
	root.walk(func(n Node) {
		if err != nil || n.XMLName.Local != "method" {
			return
		}
		name, ok := n.Attr("name")
		if !ok || name == "" {
			err = fmt.Errorf("%w: method without a name", ErrInvalidManifest)
			return
		}
		method := Method{Name: name}
		for _, c := range n.Children {
			c.walk(func(p Node) {
				if p.XMLName.Local != "param" {
					return
				}
				typ, _ := p.Attr("type")
				pname, _ := p.Attr("name")
				method.Params = append(method.Params, Param{Type: typ, Name: pname})
			})
		}
		if i, dup := index[name]; dup {
			m.Methods[i] = method
			return
		}
		index[name] = len(m.Methods)
		m.Methods = append(m.Methods, method)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ParseBytes reads a manifest from memory.
func ParseBytes(data []byte) (*Manifest, error) {
	return Parse(bytes.NewReader(data))
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Method returns the named method.
func (m *Manifest) Method(name string) (Method, bool) {
	for _, method := range m.Methods {
		if method.Name == name {
			return method, true
		}
	}
	return Method{}, false
}

// ParamTree converts the parameters section into the map the session
// decodes. Elements with children become nested maps; leaf elements become
// their trimmed text, or their value attribute when present. Repeated leaf
// elements are joined with commas.
func (m *Manifest) ParamTree() (map[string]any, error) {
	var section Node
	found := false
	m.root.walk(func(n Node) {
		if !found && n.XMLName.Local == ParametersElement {
			section, found = n, true
		}
	})
	if !found {
		return nil, ErrNoParameters
	}
	return treeOf(section), nil
}

func treeOf(n Node) map[string]any {
	tree := make(map[string]any, len(n.Children))
	for _, c := range n.Children {
		key := c.XMLName.Local
		if len(c.Children) > 0 {
			tree[key] = treeOf(c)
			continue
		}
		val, ok := c.Attr("value")
		if !ok {
			val = strings.TrimSpace(c.Text)
		}
		if prev, dup := tree[key].(string); dup {
			val = prev + "," + val
		}
		tree[key] = val
	}
	return tree
}
