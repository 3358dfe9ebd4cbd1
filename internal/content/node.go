// Package content models the structured rich-text tree stored in every note.
//
// A tree is a Document holding block nodes (Paragraph) which in turn hold inline
// nodes (Text). The set of node kinds is closed: Parse and Validate reject any other
// tag. Trees are values; edits build a new tree rather than mutating one in place.
package content

import (
	"errors"
	"fmt"
)

// Kind is the wire tag of a node.
type Kind string

const (
	KindDocument  Kind = "doc"
	KindParagraph Kind = "paragraph"
	KindText      Kind = "text"
)

// ErrMalformedContent is wrapped by every validation failure.
var ErrMalformedContent = errors.New("malformed content")

// Node is implemented by Document, Paragraph and Text only.
type Node interface {
	Kind() Kind
	sealed()
}

// Block nodes may appear directly under a Document.
type Block interface {
	Node
	block()
}

// Inline nodes may appear inside a Paragraph.
type Inline interface {
	Node
	inline()
}

type Document struct {
	Children []Block
}

type Paragraph struct {
	Children []Inline
}

// Text holds a run of characters. An empty string marks a caret position.
type Text struct {
	Value string
}

func (Document) Kind() Kind  { return KindDocument }
func (Paragraph) Kind() Kind { return KindParagraph }
func (Text) Kind() Kind      { return KindText }

func (Document) sealed()  {}
func (Paragraph) sealed() {}
func (Text) sealed()      {}

func (Paragraph) block() {}
func (Text) inline()     {}

// Doc builds a Document from blocks.
func Doc(children ...Block) Document {
	return Document{Children: append([]Block(nil), children...)}
}

// Para builds a Paragraph from inline nodes.
func Para(children ...Inline) Paragraph {
	return Paragraph{Children: append([]Inline(nil), children...)}
}

// Txt builds a Text node.
func Txt(value string) Text {
	return Text{Value: value}
}

// ValidationError points at the offending node using a JSON-ish path
// such as "content[0].content[2]".
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedContent, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %s", ErrMalformedContent, e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrMalformedContent
}

func malformed(path, reason string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(reason, args...)}
}

// Validate checks the nesting rules of a tree. The root must be a non-empty Document.
func Validate(root Node) error {
	var doc Document
	switch n := root.(type) {
	case Document:
		doc = n
	case *Document:
		if n == nil {
			return malformed("", "document is required")
		}
		doc = *n
	case nil:
		return malformed("", "document is required")
	default:
		return malformed("", "root must be %q, got %q", KindDocument, kindOf(root))
	}

	if len(doc.Children) == 0 {
		return malformed("content", "document must contain at least one block")
	}
	for i, child := range doc.Children {
		path := fmt.Sprintf("content[%d]", i)
		switch block := child.(type) {
		case Paragraph:
			if err := validateParagraph(path, block); err != nil {
				return err
			}
		case *Paragraph:
			if block == nil {
				return malformed(path, "missing block")
			}
			if err := validateParagraph(path, *block); err != nil {
				return err
			}
		case nil:
			return malformed(path, "missing block")
		default:
			return malformed(path, "%q is not a block node", kindOf(child))
		}
	}
	return nil
}

func validateParagraph(path string, p Paragraph) error {
	for i, child := range p.Children {
		childPath := fmt.Sprintf("%s.content[%d]", path, i)
		switch child.(type) {
		case Text, *Text:
			if t, ok := child.(*Text); ok && t == nil {
				return malformed(childPath, "missing inline node")
			}
		case nil:
			return malformed(childPath, "missing inline node")
		default:
			return malformed(childPath, "%q is not an inline node", kindOf(child))
		}
	}
	return nil
}

// Equal reports whether two trees have the same shape and text.
func Equal(a, b Node) bool {
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case Document:
		y, ok := b.(Document)
		if !ok || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	case Paragraph:
		y, ok := b.(Paragraph)
		if !ok || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	case Text:
		y, ok := b.(Text)
		return ok && x.Value == y.Value
	default:
		return false
	}
}

func deref(n Node) Node {
	switch v := n.(type) {
	case *Document:
		if v == nil {
			return nil
		}
		return *v
	case *Paragraph:
		if v == nil {
			return nil
		}
		return *v
	case *Text:
		if v == nil {
			return nil
		}
		return *v
	}
	return n
}

func kindOf(n Node) Kind {
	if d := deref(n); d != nil {
		return d.Kind()
	}
	return ""
}
