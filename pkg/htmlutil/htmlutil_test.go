package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestCollapseWhitespace(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "", expected: ""},
		{input: "  a  ", expected: "a"},
		{input: "a\n\t b", expected: "a b"},
		{input: " kenteken   AB-123-C\n", expected: "kenteken AB-123-C"},
	}

	for _, row := range table {
		require.Equal(t, row.expected, CollapseWhitespace(row.input))
	}
}

func TestAncestorStopsAtRoot(t *testing.T) {
	doc, err := Parse(`<div id="outer"><p><b>x</b></p></div>`)
	require.NoError(t, err)

	bold := FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "b"
	})
	require.NotNil(t, bold)

	require.Equal(t, "p", Ancestor(bold, 1).Data)
	require.Equal(t, "div", Ancestor(bold, 2).Data)
	require.Equal(t, html.DocumentNode, Ancestor(bold, 100).Type)
}

func TestRemoveElements(t *testing.T) {
	doc, err := Parse(`<body>a<script>var x = 1;</script>b<style>p{}</style>c</body>`)
	require.NoError(t, err)

	RemoveElements(doc, "script", "style")
	require.Equal(t, "abc", GetText(doc))
}

func TestDirectText(t *testing.T) {
	doc, err := Parse(`<div id="d">one<span>two</span>three</div>`)
	require.NoError(t, err)

	div := FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div"
	})
	require.Equal(t, "onethree", DirectText(div))
	require.Equal(t, "onetwothree", GetText(div))
}
