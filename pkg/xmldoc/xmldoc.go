// Package xmldoc provides a small namespace-aware XML element tree used by
// the package and model codecs.
//
// The tree keeps every element and attribute it encounters, including ones a
// consumer does not recognize, so that documents can be round-tripped without
// losing foreign markup. Well-formedness errors are fatal for the document
// being parsed; schema-level surprises are left for consumers to skip.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedXML indicates the document is not well-formed XML.
var ErrMalformedXML = errors.New("malformed XML")

// Attr is a single attribute. Space is the namespace URI, empty for
// unqualified attributes (the common case in 3MF documents).
type Attr struct {
	Space string
	Name  string
	Value string
}

// Element is one node of the document tree.
type Element struct {
	Space    string // namespace URI
	Name     string // local name
	Attrs    []Attr // in document/insertion order
	Text     string // concatenated character data
	Children []*Element
}

// Attr returns the value of the named unqualified attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Space == "" && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the value of the named attribute, or def if absent.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets an unqualified attribute, keeping insertion order stable.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Attrs {
		if a.Space == "" && a.Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Add appends a new child element and returns it.
func (e *Element) Add(space, name string) *Element {
	child := &Element{Space: space, Name: name}
	e.Children = append(e.Children, child)
	return child
}

// Find returns the first direct child with the given namespace and name.
func (e *Element) Find(space, name string) *Element {
	for _, c := range e.Children {
		if c.Space == space && c.Name == name {
			return c
		}
	}
	return nil
}

// FindAll returns all direct children with the given namespace and name.
func (e *Element) FindAll(space, name string) []*Element {
	var result []*Element
	for _, c := range e.Children {
		if c.Space == space && c.Name == name {
			result = append(result, c)
		}
	}
	return result
}

// Parse reads a complete XML document and returns its root element.
func Parse(data []byte) (*Element, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var root *Element
	var stack []*Element

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			element := &Element{Space: tok.Name.Space, Name: tok.Name.Local}
			for _, a := range tok.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue // namespace declarations are regenerated on output
				}
				element.Attrs = append(element.Attrs, Attr{
					Space: a.Name.Space,
					Name:  a.Name.Local,
					Value: a.Value,
				})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedXML)
				}
				root = element
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, element)
			}
			stack = append(stack, element)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(tok)
			}
			// Comments, directives and processing instructions are dropped.
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedXML)
	}
	return root, nil
}

// Marshal serializes the tree to a standalone XML document. The root's
// namespace becomes the default namespace; any other namespaces in the tree
// get prefixes in order of first appearance. Attribute order is insertion
// order and no indentation is emitted.
func Marshal(root *Element) ([]byte, error) {
	if root == nil {
		return nil, errors.New("nil root element")
	}

	prefixes := map[string]string{}
	if root.Space != "" {
		prefixes[root.Space] = ""
	}
	collectNamespaces(root, prefixes)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	writeElement(&buf, root, prefixes, true)
	return buf.Bytes(), nil
}

// wellKnownPrefixes maps namespace URIs to their conventional prefix.
var wellKnownPrefixes = map[string]string{
	"http://schemas.microsoft.com/3dmanufacturing/material/2015/02": "m",
}

func collectNamespaces(e *Element, prefixes map[string]string) {
	if e.Space != "" {
		if _, ok := prefixes[e.Space]; !ok {
			if p, ok := wellKnownPrefixes[e.Space]; ok {
				prefixes[e.Space] = p
			} else {
				prefixes[e.Space] = fmt.Sprintf("ns%d", len(prefixes))
			}
		}
	}
	for _, c := range e.Children {
		collectNamespaces(c, prefixes)
	}
}

func writeElement(buf *bytes.Buffer, e *Element, prefixes map[string]string, isRoot bool) {
	name := qualifiedName(e, prefixes)
	buf.WriteByte('<')
	buf.WriteString(name)

	if isRoot {
		// Declare the default namespace first, then prefixed ones in
		// deterministic (first appearance) order.
		if e.Space != "" {
			buf.WriteString(` xmlns="`)
			xmlEscape(buf, e.Space)
			buf.WriteByte('"')
		}
		for _, decl := range namespaceDecls(e, prefixes) {
			buf.WriteString(" xmlns:")
			buf.WriteString(decl.prefix)
			buf.WriteString(`="`)
			xmlEscape(buf, decl.space)
			buf.WriteByte('"')
		}
	}

	for _, a := range e.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		xmlEscape(buf, a.Value)
		buf.WriteByte('"')
	}

	if len(e.Children) == 0 && e.Text == "" {
		buf.WriteString("/>")
		return
	}

	buf.WriteByte('>')
	if e.Text != "" {
		xmlEscape(buf, e.Text)
	}
	for _, c := range e.Children {
		writeElement(buf, c, prefixes, false)
	}
	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteByte('>')
}

type nsDecl struct {
	prefix string
	space  string
}

// namespaceDecls returns the prefixed namespace declarations needed by the
// tree, in deterministic order of first appearance.
func namespaceDecls(root *Element, prefixes map[string]string) []nsDecl {
	var decls []nsDecl
	seen := map[string]bool{}
	var walk func(e *Element)
	walk = func(e *Element) {
		if e.Space != "" && !seen[e.Space] {
			seen[e.Space] = true
			if p := prefixes[e.Space]; p != "" {
				decls = append(decls, nsDecl{prefix: p, space: e.Space})
			}
		}
		for _, c := range e.Children {
			walk(c)
		}
	}
	walk(root)
	return decls
}

func qualifiedName(e *Element, prefixes map[string]string) string {
	if e.Space == "" {
		return e.Name
	}
	if prefix := prefixes[e.Space]; prefix != "" {
		return prefix + ":" + e.Name
	}
	return e.Name
}

func xmlEscape(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(s))
}
