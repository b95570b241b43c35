package document

import (
	"encoding/json"
	"strings"
)

type textCollector struct {
	b strings.Builder
}

func (c *textCollector) VisitText(n Text) {
	c.b.WriteString(n.Value)
	c.b.WriteByte(' ')
}
func (c *textCollector) VisitParagraph(Paragraph) {}
func (c *textCollector) VisitList(List)           {}
func (c *textCollector) VisitListItem(ListItem)   {}
func (c *textCollector) VisitHeading(Heading)     {}
func (c *textCollector) VisitUnknown(Unknown)     {}

// PlainText joins every text leaf of the tree with single spaces.
func PlainText(n Node) string {
	var c textCollector
	Walk(n, &c)
	return strings.TrimSpace(c.b.String())
}

// PlainTextOf parses raw and returns its plain text. Empty or invalid input
// yields "".
func PlainTextOf(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	n, err := Parse(raw)
	if err != nil {
		return ""
	}
	return PlainText(n)
}

type kindProbe struct {
	heading bool
	list    bool
}

func (p *kindProbe) VisitText(Text)           {}
func (p *kindProbe) VisitParagraph(Paragraph) {}
func (p *kindProbe) VisitList(List)           { p.list = true }
func (p *kindProbe) VisitListItem(ListItem)   { p.list = true }
func (p *kindProbe) VisitHeading(Heading)     { p.heading = true }
func (p *kindProbe) VisitUnknown(Unknown)     {}

func probe(raw []byte) kindProbe {
	var p kindProbe
	if n, err := Parse(raw); err == nil {
		Walk(n, &p)
	}
	return p
}

// ContainsHeading reports whether the serialized document has a heading node.
func ContainsHeading(raw []byte) bool { return probe(raw).heading }

// ContainsList reports whether the serialized document has a list or list item.
func ContainsList(raw []byte) bool { return probe(raw).list }

// IndexText is the searchable projection of a task: title text, a newline,
// then content text.
func IndexText(title, content []byte) string {
	return PlainTextOf(title) + "\n" + PlainTextOf(content)
}

// FallbackTitle builds a one-paragraph document from legacy plain text.
func FallbackTitle(text string) json.RawMessage {
	inline := []any{}
	if strings.TrimSpace(text) != "" {
		inline = append(inline, map[string]any{"type": "text", "text": text})
	}
	doc := map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{"type": "paragraph", "content": inline},
		},
	}
	b, _ := json.Marshal(doc)
	return b
}
