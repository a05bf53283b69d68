// Package content turns raw page HTML into normalized text, link, image, and
// metadata views for downstream analysis.
package content

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// minSectionChars is the text length above which a content section is
// considered substantial enough for the simplified XML view.
const minSectionChars = 100

// ProcessingError indicates invalid input to the processor. It is never
// retried; callers surface it immediately.
type ProcessingError struct {
	Reason string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("content processing: %s", e.Reason)
}

// Link is an absolute outgoing link with its anchor text.
type Link struct {
	URL  string
	Text string
}

// Image is an absolute image URL with its alt text.
type Image struct {
	URL string
	Alt string
}

// Metadata carries page-level title and description.
type Metadata struct {
	Title       string
	Description string
}

// Result is every view the processor produces from one page.
type Result struct {
	Text        string
	CleanedHTML string
	SectionsXML string
	Links       []Link
	Images      []Image
	Metadata    Metadata
}

// Processor extracts normalized views from raw HTML. Malformed markup is
// auto-repaired by the parser and degrades extraction instead of failing it.
type Processor struct {
	logger *zap.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger *zap.Logger) *Processor {
	return &Processor{logger: logger}
}

// noiseSelector matches elements stripped before any extraction: script-like
// content plus hidden, cookie-banner, ad, and social-share chrome.
const noiseSelector = `script, style, iframe, noscript, [hidden], [style*="display:none"], [style*="display: none"],` +
	` [class*="cookie"], [id*="cookie"], [class*="advert"], [id*="advert"], [class*="ad-"],` +
	` [class*="social-share"], [class*="share-button"]`

// Process parses html resolved against baseURL and produces all views.
func (p *Processor) Process(rawHTML, baseURL string) (Result, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return Result{}, &ProcessingError{Reason: "html content is empty"}
	}
	if strings.TrimSpace(baseURL) == "" {
		return Result{}, &ProcessingError{Reason: "base url is empty"}
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return Result{}, &ProcessingError{Reason: fmt.Sprintf("base url %q is invalid", baseURL)}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		// goquery repairs malformed HTML; a reader error here means the
		// input itself is unusable.
		return Result{}, &ProcessingError{Reason: fmt.Sprintf("parse html: %v", err)}
	}

	meta := extractMetadata(doc)
	doc.Find(noiseSelector).Remove()

	return Result{
		Text:        normalizeWhitespace(doc.Find("body").Text()),
		CleanedHTML: cleanHTML(doc),
		SectionsXML: sectionsXML(doc),
		Links:       p.extractLinks(doc, base),
		Images:      extractImages(doc, base),
		Metadata:    meta,
	}, nil
}

func extractMetadata(doc *goquery.Document) Metadata {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).First().Attr("content")
		title = strings.TrimSpace(title)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	description, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	description = strings.TrimSpace(description)
	if description == "" {
		description, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
		description = strings.TrimSpace(description)
	}

	return Metadata{Title: title, Description: description}
}

func (p *Processor) extractLinks(doc *goquery.Document, base *url.URL) []Link {
	seen := make(map[string]struct{})
	var links []Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := resolve(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, Link{
			URL:  abs,
			Text: normalizeWhitespace(a.Text()),
		})
	})
	return links
}

func extractImages(doc *goquery.Document, base *url.URL) []Image {
	seen := make(map[string]struct{})
	var images []Image
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		abs := resolve(base, src)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		alt, _ := img.Attr("alt")
		images = append(images, Image{URL: abs, Alt: strings.TrimSpace(alt)})
	})
	return images
}

// resolve makes href absolute against base and filters out non-http(s)
// schemes (mailto:, javascript:, tel:, data:).
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// cleanHTML serializes the body with presentation and scripting attributes
// removed (style, class, id, on* handlers, data-*).
func cleanHTML(doc *goquery.Document) string {
	body := doc.Find("body")
	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if key == "style" || key == "class" || key == "id" {
					continue
				}
				if strings.HasPrefix(key, "on") || strings.HasPrefix(key, "data-") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})
	out, err := body.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// sectionsXML groups substantial content blocks into a simplified XML
// document, falling back to the whole body when no block qualifies.
func sectionsXML(doc *goquery.Document) string {
	var sections []string
	doc.Find("article, section, main, div").Each(func(_ int, s *goquery.Selection) {
		text := normalizeWhitespace(ownText(s))
		if len(text) > minSectionChars {
			sections = append(sections, text)
		}
	})
	if len(sections) == 0 {
		if body := normalizeWhitespace(doc.Find("body").Text()); body != "" {
			sections = append(sections, body)
		}
	}

	var b strings.Builder
	b.WriteString("<content>")
	for _, section := range sections {
		b.WriteString("<section>")
		b.WriteString(escapeXML(section))
		b.WriteString("</section>")
	}
	b.WriteString("</content>")
	return b.String()
}

// ownText collects text from the node's direct children only, so nested
// containers are not double counted.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, node := range s.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			collectShallowText(child, &b)
		}
	}
	return b.String()
}

// collectShallowText descends through inline elements but stops at block
// containers, which produce their own sections.
func collectShallowText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
		return
	}
	if n.Type != html.ElementNode {
		return
	}
	switch n.Data {
	case "article", "section", "main", "div":
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectShallowText(child, b)
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
