package htmlutil

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Parse parses a document permissively, invalid UTF-8 sequences are replaced before parsing
// so that text nodes always decode cleanly.
func Parse(document string) (*html.Node, error) {
	return html.Parse(strings.NewReader(strings.ToValidUTF8(document, "�")))
}

// GetText returns the concatenated text of every text node below node, like the DOM's textContent.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// DirectText returns only the text nodes that are immediate children of node.
func DirectText(node *html.Node) string {
	var buffer bytes.Buffer
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			buffer.WriteString(child.Data)
		}
	}
	return buffer.String()
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims text and replaces every whitespace run with a single space.
func CollapseWhitespace(text string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(text), " ")
}

// FindFirst walks the tree in document order and returns the first node matching match.
func FindFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	if match(root) {
		return root
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		found := FindFirst(child, match)
		if found != nil {
			return found
		}
	}
	return nil
}

// Ancestor climbs up to levels parents from node, stopping early at the root.
func Ancestor(node *html.Node, levels int) *html.Node {
	for i := 0; i < levels && node.Parent != nil; i++ {
		node = node.Parent
	}
	return node
}

// RemoveElements detaches every element with one of the given tag names.
func RemoveElements(root *html.Node, tags ...string) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, tag := range tags {
				if n.Data == tag {
					doomed = append(doomed, n)
					return
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}
