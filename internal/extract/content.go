// Package extract reduces portal html into text that can be handed to a language model.
package extract

import (
	"strings"

	"fleetassist-backend/pkg/htmlutil"

	"golang.org/x/net/html"
)

// DefaultAnchorPhrase appears once on every contract detail page, right inside the block that
// holds the contract's details.
const DefaultAnchorPhrase = "Versie aanmaken of muteren"

// Extractor finds the block around AnchorPhrase by climbing Levels parents from the first
// element whose own text contains it.
type Extractor struct {
	AnchorPhrase string
	Levels       int
}

func DefaultExtractor() Extractor {
	return Extractor{
		AnchorPhrase: DefaultAnchorPhrase,
		Levels:       4,
	}
}

// Content extracts text with the default extractor.
func Content(document string) string {
	return DefaultExtractor().Content(document)
}

// Content returns the whitespace collapsed text of the anchored block, or of the whole body
// (scripts and styles excluded) when the anchor phrase does not occur.
func (e Extractor) Content(document string) string {
	root, err := htmlutil.Parse(document)
	if err != nil {
		return htmlutil.CollapseWhitespace(document)
	}

	if e.AnchorPhrase != "" {
		anchor := htmlutil.FindFirst(root, func(n *html.Node) bool {
			return n.Type == html.ElementNode && ownTextContains(n, e.AnchorPhrase)
		})
		if anchor != nil {
			return htmlutil.CollapseWhitespace(htmlutil.GetText(htmlutil.Ancestor(anchor, e.Levels)))
		}
	}

	return bodyText(root)
}

func ownTextContains(n *html.Node, phrase string) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode && strings.Contains(child.Data, phrase) {
			return true
		}
	}
	return false
}

func bodyText(root *html.Node) string {
	htmlutil.RemoveElements(root, "script", "style")
	body := htmlutil.FindFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "body"
	})
	if body == nil {
		body = root
	}
	return htmlutil.CollapseWhitespace(htmlutil.GetText(body))
}
