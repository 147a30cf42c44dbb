package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"fleetassist-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"golang.org/x/net/html"
)

// SummaryStatus tells apart the ways a contracts list can come up empty.
type SummaryStatus int

const (
	StatusOK SummaryStatus = iota
	// StatusEmptyHTML: there was no html (or implausibly little) to look at.
	StatusEmptyHTML
	// StatusNoAnchors: the html has no link into a contract at all.
	StatusNoAnchors
	// StatusNoValidLinks: there are contract links but none point at a single contract.
	StatusNoValidLinks
)

const (
	msgEmptyHTML    = "Geen contractenlijst gevonden (lege of te korte HTML)."
	msgNoAnchors    = "Geen contracten gevonden op de pagina."
	msgNoValidLinks = "Geen geldige contractlinks gevonden."
)

// minListLength is the size under which a list response cannot contain a table.
const minListLength = 100

// maxRowDepth bounds the climb from a link to its table row.
const maxRowDepth = 5

var contractLinkRegex = regexp.MustCompile(`/contracts/\d+$`)

type Record struct {
	Text string
	URL  string
}

func (r Record) String() string {
	return fmt.Sprintf("CONTRACT: %s | URL: %s", r.Text, r.URL)
}

// RecordSummary is the list of contracts in document order, deduplicated by URL.
type RecordSummary struct {
	Status  SummaryStatus
	Records []Record
}

// String renders the summary as it is presented to the language model, one record per line or
// a message explaining why there are none.
func (s RecordSummary) String() string {
	switch s.Status {
	case StatusEmptyHTML:
		return msgEmptyHTML
	case StatusNoAnchors:
		return msgNoAnchors
	case StatusNoValidLinks:
		return msgNoValidLinks
	}

	lines := make([]string, len(s.Records))
	for i, r := range s.Records {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

type updateEffects struct {
	Effects struct {
		HTML *string `json:"html"`
	} `json:"effects"`
	Components []struct {
		Effects struct {
			HTML *string `json:"html"`
		} `json:"effects"`
	} `json:"components"`
}

// listHTML unwraps the html fragment of a component update response, anything else is
// assumed to be html already.
func listHTML(raw string) string {
	var res updateEffects
	if json.Unmarshal([]byte(raw), &res) != nil {
		return raw
	}
	if len(res.Components) > 0 && res.Components[0].Effects.HTML != nil {
		return *res.Components[0].Effects.HTML
	}
	if res.Effects.HTML != nil {
		return *res.Effects.HTML
	}
	return raw
}

// ParseContracts reads the contracts out of a list page or a component update response.
func ParseContracts(raw string) RecordSummary {
	document := listHTML(raw)
	if len(document) < minListLength {
		return RecordSummary{Status: StatusEmptyHTML}
	}

	root, err := htmlutil.Parse(document)
	if err != nil {
		return RecordSummary{Status: StatusEmptyHTML}
	}
	doc := goquery.NewDocumentFromNode(root)

	anchors := doc.Find("a[href*='/contracts/']")
	if anchors.Length() == 0 {
		return RecordSummary{Status: StatusNoAnchors}
	}

	seen := map[string]bool{}
	var records []Record
	anchors.Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !contractLinkRegex.MatchString(href) || seen[href] {
			return
		}
		seen[href] = true

		row := enclosingRow(a.Get(0))
		records = append(records, Record{
			Text: htmlutil.CollapseWhitespace(htmlutil.GetText(row)),
			URL:  href,
		})
	})

	if len(records) == 0 {
		return RecordSummary{Status: StatusNoValidLinks}
	}
	return RecordSummary{Status: StatusOK, Records: records}
}

// enclosingRow climbs towards the nearest <tr>, giving up after maxRowDepth parents.
func enclosingRow(node *html.Node) *html.Node {
	for depth := 0; depth < maxRowDepth; depth++ {
		if node.Type == html.ElementNode && node.Data == "tr" {
			return node
		}
		if node.Parent == nil {
			return node
		}
		node = node.Parent
	}
	return node
}

// Closest returns up to n records ordered by how well their text matches query.
func (s RecordSummary) Closest(query string, n int) []Record {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || n <= 0 {
		return nil
	}

	type scored struct {
		record Record
		score  float64
	}
	var candidates []scored
	for _, r := range s.Records {
		candidates = append(candidates, scored{record: r, score: similarity(query, strings.ToLower(r.Text))})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var out []Record
	for i := 0; i < len(candidates) && i < n; i++ {
		out = append(out, candidates[i].record)
	}
	return out
}

// similarity scores text by its best matching word, exact substrings always win.
func similarity(query, text string) float64 {
	if strings.Contains(text, query) {
		return 1
	}
	best := 0.0
	for _, word := range strings.Fields(text) {
		score := matchr.JaroWinkler(query, word, false)
		if score > best {
			best = score
		}
	}
	return best
}
