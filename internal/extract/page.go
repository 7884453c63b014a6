package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML helpers exposed to extraction scripts as the `page` module. Scripts
// stay in charge of what to extract; these cover the parsing drudgery.

// metaRefreshContent matches "<delay>; url=<target>" with optional quoting.
var metaRefreshContent = regexp.MustCompile(`^\s*(\d+)\s*;\s*[Uu][Rr][Ll]\s*=\s*(.+?)\s*$`)

// jsRedirectPatterns are tried in priority order; the first pattern that
// matches anywhere in the document wins. A syntactically broken candidate
// simply fails its pattern and is invisible to the scan.
var jsRedirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:(?:window|document|top)\s*\.\s*)?location\s*\.\s*href\s*=\s*["']([^"']+)["']`),
	regexp.MustCompile(`location\s*\.\s*replace\s*\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`location\s*\.\s*assign\s*\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`(?:(?:window|document|top)\s*\.\s*)?location\s*=\s*["']([^"']+)["']`),
}

func parseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// PageTitle returns the trimmed text of the first <title> element.
func PageTitle(body []byte) string {
	doc, err := parseDocument(body)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// PageLinks returns every a[href] value in document order.
func PageLinks(body []byte) []string {
	doc, err := parseDocument(body)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})

	return links
}

// PageBase returns the document's <base href>, empty when absent.
func PageBase(body []byte) string {
	doc, err := parseDocument(body)
	if err != nil {
		return ""
	}

	href, _ := doc.Find("base[href]").First().Attr("href")
	return href
}

// PageMetaRefresh detects a <meta http-equiv="refresh"> directive and
// returns its delay and target. The http-equiv match is case-insensitive;
// the target may be bare or quoted.
func PageMetaRefresh(body []byte) (delay int, target string, ok bool) {
	doc, err := parseDocument(body)
	if err != nil {
		return 0, "", false
	}

	doc.Find("meta").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(equiv, "refresh") {
			return true
		}

		content, _ := sel.Attr("content")
		m := metaRefreshContent.FindStringSubmatch(content)
		if m == nil {
			return true
		}

		parsed, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			return true
		}

		delay = parsed
		target = strings.Trim(m[2], `'"`)
		ok = target != ""

		return !ok
	})

	return delay, target, ok
}

// PageJSRedirect detects a scripted location change. Mechanisms are ranked:
// .href assignment beats replace() beats assign() beats a bare location
// assignment, regardless of document order.
func PageJSRedirect(body []byte) (target string, ok bool) {
	text := string(body)
	for _, pattern := range jsRedirectPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
