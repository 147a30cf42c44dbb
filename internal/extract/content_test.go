package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentAnchored(t *testing.T) {
	document := `<html><body>
<nav>Menu Uitloggen</nav>
<section id="details">
  <h2>Contract   42</h2>
  <div>
    <div>
      <div>
        <p><span>Versie aanmaken of muteren</span></p>
      </div>
    </div>
    <dl><dt>Kilometers</dt><dd>30.000 per jaar</dd></dl>
  </div>
</section>
<footer>Copyright</footer>
</body></html>`

	// span -> p -> div -> div -> div
	require.Equal(t,
		"Versie aanmaken of muteren Kilometers30.000 per jaar",
		Content(document),
	)
}

func TestContentAnchoredFourLevels(t *testing.T) {
	document := `<html><body><main><article id="container">Leasecontract <b>AB-123-C</b>
<div><div><div><em>Versie aanmaken of muteren</em></div></div></div>
</article><aside>elsewhere</aside></main></body></html>`

	require.Equal(t,
		"Leasecontract AB-123-C Versie aanmaken of muteren",
		Content(document),
	)
}

func TestContentFallback(t *testing.T) {
	document := `<html><head><title>Portal</title><style>body { color: red }</style></head>
<body>
  <script>var secret = "x";</script>
  <h1>Contract   details</h1>
  <p>Eigen risico:
     € 250</p>
  <style>.x{}</style>
</body></html>`

	require.Equal(t, "Contract details Eigen risico: € 250", Content(document))
}

func TestContentMalformed(t *testing.T) {
	require.Equal(t, "open tags everywhere", Content("<div><p>open <b>tags</div> everywhere"))
	require.Equal(t, "", Content(""))
}

func TestContentCustomAnchor(t *testing.T) {
	e := Extractor{AnchorPhrase: "Kenteken", Levels: 1}
	require.Equal(t,
		"Kenteken AB-123-C",
		e.Content(`<html><body><p>ignored</p><div><span>Kenteken</span> AB-123-C</div></body></html>`),
	)
}

func TestContentInvalidUTF8(t *testing.T) {
	require.Equal(t, "caf� ok", Content("<body>caf\xe9 ok</body>"))
}
