package extractor

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FragmentClass is the class value that marks the item container. Matching is
// exact string equality on the whole attribute, so <div class="kako today">
// is not a fragment.
const FragmentClass = "kako"

// Fragment is the item container subtree of a parsed page.
type Fragment struct {
	node *html.Node
}

// Node returns the container element.
func (f *Fragment) Node() *html.Node {
	return f.node
}

// ParseDocument parses HTML leniently; unclosed tags and missing html/body
// elements are repaired by the tokenizer.
func ParseDocument(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// FindItemFragment returns the first <div class="kako"> in document order.
func FindItemFragment(doc *html.Node) (*Fragment, bool) {
	if doc == nil {
		return nil, false
	}

	n := findFirst(doc, isItemContainer)
	if n == nil {
		return nil, false
	}
	return &Fragment{node: n}, true
}

func isItemContainer(n *html.Node) bool {
	if !isHTMLElement(n, atom.Div) {
		return false
	}
	class, ok := getAttributeValue(n, "class")
	return ok && class == FragmentClass
}

// findFirst walks depth first and stops at the first match.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func isHTMLElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.Namespace == "" && n.DataAtom == a
}

func getAttributeValue(n *html.Node, attrName string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == attrName {
			return attr.Val, true
		}
	}
	return "", false
}
