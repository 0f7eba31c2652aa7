// Package objtree parses the XML object markup used by older scheduled
// messages into a generic node tree. It performs no semantic interpretation.
package objtree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Node types of the object markup grammar
const (
	TypeObject        = "object"
	TypeClass         = "class"
	TypePrimitive     = "primitive"
	TypeSpecialObject = "special-object"
)

// ErrMalformed is matched by every MalformedMarkupError
var ErrMalformed = errors.New("objtree: malformed markup")

// MalformedMarkupError wraps a parse failure with its input position
type MalformedMarkupError struct {
	Line   int
	Column int
	Err    error
}

func (e *MalformedMarkupError) Error() string {
	return fmt.Sprintf("malformed markup at line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *MalformedMarkupError) Unwrap() error { return e.Err }

// Is lets callers match on ErrMalformed
func (e *MalformedMarkupError) Is(target error) bool { return target == ErrMalformed }

// Node is one element of the object markup.
// Type is the element name; character data is dropped.
type Node struct {
	Type       string
	Attributes map[string]string
	Children   []*Node
}

// Attr returns the named attribute or the empty string
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attributes[name]
}

// ChildrenOfType returns the direct children with the given element name
func (n *Node) ChildrenOfType(typ string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the first descendant (or n itself) of the given type in
// document order, or nil
func (n *Node) Find(typ string) *Node {
	if n == nil {
		return nil
	}
	if n.Type == typ {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(typ); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every descendant of the given type in document order,
// excluding n itself
func (n *Node) FindAll(typ string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Type == typ {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// Decode parses a markup document into its root node
func Decode(raw []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	// Legacy writers declare encodings like ISO-8859-1; element and
	// attribute names stay ASCII so bytes pass through unchanged.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		root  *Node
		stack []*Node
	)

	malformed := func(err error) error {
		line, col := dec.InputPos()
		return &MalformedMarkupError{Line: line, Column: col, Err: err}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{
				Type:       t.Name.Local,
				Attributes: make(map[string]string, len(t.Attr)),
			}
			for _, a := range t.Attr {
				node.Attributes[a.Name.Local] = a.Value
			}

			if len(stack) == 0 {
				if root != nil {
					return nil, malformed(fmt.Errorf("multiple root elements: <%s> after <%s>", node.Type, root.Type))
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			// encoding/xml already rejects mismatched end tags
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) != 0 {
		return nil, malformed(fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Type))
	}
	if root == nil {
		return nil, malformed(errors.New("document has no root element"))
	}

	return root, nil
}
