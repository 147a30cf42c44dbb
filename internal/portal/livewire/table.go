package livewire

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fleetassist-backend/internal/portal"

	"github.com/PuerkitoBio/goquery"
)

const report_table_update = "table.update"

// UpdateTable loads the page at pageUrl and pushes updates into the first component whose
// state declares all of the updated properties, returning the update response.
//
// When the page cannot be loaded, is a login page, or renders no matching component the page
// result itself is returned so that callers can still work with the server rendered html.
func (a Authenticator) UpdateTable(ctx context.Context, transport Transport, pageUrl string, updates map[string]any) portal.FetchResult {
	page := transport.Fetch(ctx, pageUrl)
	if !page.Success || page.IsLoginPage || !HasMarker(page.Body) {
		return page
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		a.tel.ReportBroken(report_table_update, fmt.Errorf("parse page: %w", err), pageUrl)
		return page
	}

	properties := make([]string, 0, len(updates))
	for property := range updates {
		properties = append(properties, property)
	}
	sort.Strings(properties)

	snapshot, ok := findSnapshotWith(doc, properties)
	if !ok {
		a.tel.ReportWarning(report_table_update, "no component declares properties", properties, pageUrl)
		return page
	}

	updateUrl, err := UpdateURL(page.FinalURL)
	if err != nil {
		a.tel.ReportBroken(report_table_update, err, page.FinalURL)
		return page
	}

	token := CSRFToken(doc)
	res := transport.PostJSON(
		ctx,
		updateUrl,
		PropertyRequest(token, snapshot, updates),
		Headers(token, page.FinalURL),
	)
	if !res.Success {
		a.tel.ReportWarning(report_table_update, res.Error, updateUrl)
	}
	return res
}
