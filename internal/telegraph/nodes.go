// Package telegraph mirrors changelog entries to telegra.ph pages.
package telegraph

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedAttrs are the only HTML attributes carried into a node tree.
var allowedAttrs = map[string]bool{
	"href": true,
	"src":  true,
}

// Node is either a text leaf (Element == nil) or an element.
type Node struct {
	Text    string
	Element *Element
}

// Element is a tagged node with its allow-listed attributes and children.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []Node
}

// Text returns a text leaf.
func Text(s string) Node {
	return Node{Text: s}
}

// Elem returns an element node.
func Elem(tag string, attrs map[string]string, children ...Node) Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return Node{Element: &Element{Tag: tag, Attrs: attrs, Children: children}}
}

// IsText reports whether n is a text leaf.
func (n Node) IsText() bool {
	return n.Element == nil
}

// HTMLToNodes converts an HTML fragment into Telegraph nodes.
//
// Top-level text runs are wrapped in a single <p>; <br> is dropped and does
// not break a run. Whitespace-only runs survive only between inline elements.
// Every other element keeps its tag, allow-listed attributes and the
// recursively converted children, where text stays a plain leaf.
func HTMLToNodes(fragment string) ([]Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

	parsed, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil, fmt.Errorf("parse html fragment: %w", err)
	}

	return convert(parsed, true), nil
}

// blockTags separate paragraphs, so whitespace next to them carries no meaning.
var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Ul: true, atom.Ol: true,
	atom.Li: true, atom.Blockquote: true, atom.Pre: true, atom.Hr: true,
	atom.Figure: true, atom.Figcaption: true, atom.Aside: true, atom.Table: true,
	atom.Iframe: true,
}

func isBlock(n *html.Node) bool {
	return n == nil || blockTags[n.DataAtom]
}

func convert(siblings []*html.Node, topLevel bool) []Node {
	var (
		out  []Node
		run  strings.Builder
		prev *html.Node
	)

	// next is the element that ends the run, nil at the end of the siblings.
	flush := func(next *html.Node) {
		if run.Len() == 0 {
			return
		}
		text := run.String()
		run.Reset()

		if !topLevel {
			out = append(out, Text(text))
			return
		}
		// whitespace at an edge or beside a block is layout, between inline
		// elements it is a word break
		if strings.TrimSpace(text) == "" && (isBlock(prev) || isBlock(next)) {
			return
		}
		out = append(out, Elem("p", nil, Text(text)))
	}

	for _, n := range siblings {
		switch n.Type {
		case html.TextNode:
			run.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Br {
				continue
			}
			flush(n)
			out = append(out, Node{Element: &Element{
				Tag:      n.Data,
				Attrs:    filterAttrs(n.Attr),
				Children: convert(children(n), false),
			}})
			prev = n
		}
	}
	flush(nil)

	return out
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func filterAttrs(attrs []html.Attribute) map[string]string {
	kept := map[string]string{}
	for _, a := range attrs {
		if a.Namespace == "" && allowedAttrs[a.Key] {
			kept[a.Key] = a.Val
		}
	}
	return kept
}

// Serialize turns nodes into the plain maps and strings the createPage
// content field expects.
func Serialize(nodes []Node) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, serializeNode(n))
	}
	return out
}

func serializeNode(n Node) any {
	if n.IsText() {
		return n.Text
	}
	return map[string]any{
		"tag":      n.Element.Tag,
		"attrs":    n.Element.Attrs,
		"children": Serialize(n.Element.Children),
	}
}
