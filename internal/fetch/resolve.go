package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDownloadPage is the Companies House page listing the current basic
// data product snapshots.
const DefaultDownloadPage = "https://download.companieshouse.gov.uk/en_output.html"

// resolveTimeout bounds the download-page fetch, which is a small HTML page.
const resolveTimeout = 30 * time.Second

var oneFilePattern = regexp.MustCompile(`BasicCompanyDataAsOneFile-\d{4}-\d{2}-\d{2}\.zip$`)

// LatestSnapshotURL scrapes the download page for the current one-file
// snapshot link and returns it resolved to an absolute URL. The snapshot name
// carries its publication date, so the link changes month to month and cannot
// be hardcoded.
func LatestSnapshotURL(ctx context.Context, pageURL string, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", &Error{URL: pageURL, Message: "invalid URL", Cause: err}
	}

	client := &http.Client{Timeout: resolveTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &Error{URL: pageURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{URL: pageURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{URL: pageURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", &Error{URL: pageURL, Message: "failed to parse download page", Cause: err}
	}

	var snapshot string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if oneFilePattern.MatchString(href) {
			snapshot = href
			return false
		}
		return true
	})
	if snapshot == "" {
		return "", &Error{URL: pageURL, Message: "no one-file snapshot link found on download page"}
	}

	ref, err := url.Parse(snapshot)
	if err != nil {
		return "", &Error{URL: pageURL, Message: "snapshot link is not a valid URL", Cause: err}
	}
	return base.ResolveReference(ref).String(), nil
}
