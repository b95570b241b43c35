// Package document models the rich-text documents stored in task titles and
// bodies. Only the "type", "text" and "content" properties of a node are
// interpreted; everything else is ignored.
package document

import (
	"encoding/json"
	"strings"
)

// Node is one element of a document tree. The set of implementations is
// closed; use a Visitor to fold over a tree.
type Node interface {
	Accept(v Visitor)
	Children() []Node
}

// Text is a leaf carrying characters.
type Text struct {
	Value string
}

// Paragraph is a block of inline nodes.
type Paragraph struct {
	Content []Node
}

// List is a bulletList, orderedList or taskList.
type List struct {
	Kind    string
	Content []Node
}

// ListItem is a listItem or taskItem.
type ListItem struct {
	Kind    string
	Content []Node
}

// Heading is a heading block of any level.
type Heading struct {
	Content []Node
}

// Unknown is every other node type, including the "doc" root.
type Unknown struct {
	Type    string
	Content []Node
}

// Visitor has one method per node kind.
type Visitor interface {
	VisitText(Text)
	VisitParagraph(Paragraph)
	VisitList(List)
	VisitListItem(ListItem)
	VisitHeading(Heading)
	VisitUnknown(Unknown)
}

func (n Text) Accept(v Visitor)      { v.VisitText(n) }
func (n Paragraph) Accept(v Visitor) { v.VisitParagraph(n) }
func (n List) Accept(v Visitor)      { v.VisitList(n) }
func (n ListItem) Accept(v Visitor)  { v.VisitListItem(n) }
func (n Heading) Accept(v Visitor)   { v.VisitHeading(n) }
func (n Unknown) Accept(v Visitor)   { v.VisitUnknown(n) }

func (Text) Children() []Node        { return nil }
func (n Paragraph) Children() []Node { return n.Content }
func (n List) Children() []Node      { return n.Content }
func (n ListItem) Children() []Node  { return n.Content }
func (n Heading) Children() []Node   { return n.Content }
func (n Unknown) Children() []Node   { return n.Content }

// Walk visits n and then its descendants depth-first.
func Walk(n Node, v Visitor) {
	if n == nil {
		return
	}
	n.Accept(v)
	for _, c := range n.Children() {
		Walk(c, v)
	}
}

// Parse decodes a serialized document. Invalid JSON yields an error; JSON
// values that are not objects or arrays yield an empty tree.
func Parse(raw []byte) (Node, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return fromValue(v), nil
}

// fromValue turns a decoded JSON value into a node. Arrays become an
// anonymous Unknown container so top-level fragments are walked too.
func fromValue(v any) Node {
	switch x := v.(type) {
	case map[string]any:
		return fromObject(x)
	case []any:
		return Unknown{Content: fromArray(x)}
	default:
		return Unknown{}
	}
}

func fromArray(items []any) []Node {
	out := make([]Node, 0, len(items))
	for _, it := range items {
		out = append(out, fromValue(it))
	}
	return out
}

// fromObject maps an object to its node kind. A "text" property on a node
// that is not itself a text leaf becomes its first child, so the text is
// still read before the node's content.
func fromObject(obj map[string]any) Node {
	typ, _ := obj["type"].(string)

	var children []Node
	switch c := obj["content"].(type) {
	case []any:
		children = fromArray(c)
	case map[string]any:
		children = []Node{fromObject(c)}
	}

	raw, hasText := obj["text"]
	text, _ := raw.(string)

	if strings.EqualFold(typ, "text") && hasText && len(children) == 0 {
		return Text{Value: text}
	}
	if hasText {
		children = append([]Node{Text{Value: text}}, children...)
	}

	switch strings.ToLower(typ) {
	case "paragraph":
		return Paragraph{Content: children}
	case "heading":
		return Heading{Content: children}
	case "bulletlist", "orderedlist", "tasklist":
		return List{Kind: typ, Content: children}
	case "listitem", "taskitem":
		return ListItem{Kind: typ, Content: children}
	}
	return Unknown{Type: typ, Content: children}
}
