// Package extractor locates the exam item container on a page and turns it
// into a models.ItemRecord.
//
// The record text is built by four scans over the container, always in the
// same order: item links, statement and answer choices, images. Each scan
// walks every matching descendant, so an element can contribute to more than
// one scan.
package extractor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
	"github.com/pollenjp/ipa-shiken-fetcher/models"
)

// Class values of the containers inside the item fragment.
const (
	ClassStatement  = "mondai"
	ClassTitle      = "anslink"
	ClassBackground = "ansbg"
)

const choiceSelector = "ul > li"

// Extractor builds item records. Its only state is the logger that reports
// skipped elements, so one Extractor can serve any number of pages.
type Extractor struct {
	logger logger.Logger
}

// New returns an Extractor. A nil logger discards skip reports.
func New(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{logger: log}
}

// ExtractPage parses the page and extracts the record of its first item
// fragment. found is false when the page has no fragment. Invalid UTF-8 in
// the page is replaced with U+FFFD first, so the record survives JSON
// encoding unchanged.
func (e *Extractor) ExtractPage(page models.Page) (record models.ItemRecord, found bool, err error) {
	doc, err := ParseDocument(strings.NewReader(strings.ToValidUTF8(page.HTML, "\uFFFD")))
	if err != nil {
		return models.ItemRecord{}, false, err
	}

	fragment, ok := FindItemFragment(doc)
	if !ok {
		return models.ItemRecord{}, false, nil
	}

	return e.Extract(fragment, page.URL), true, nil
}

// Extract assembles the record for fragment, resolving links against base.
func (e *Extractor) Extract(fragment *Fragment, base *url.URL) models.ItemRecord {
	root := goquery.NewDocumentFromNode(fragment.Node()).Selection

	var text, title segments
	e.scanURLs(root, "a", "href", base, &text)
	e.scanContainers(root, &text, &title)
	e.scanURLs(root, "img", "src", base, &text)

	return models.ItemRecord{
		Title: title.String(),
		Text:  text.String(),
	}
}

// scanURLs appends one resolved URL line per descendant tag carrying attr.
func (e *Extractor) scanURLs(root *goquery.Selection, tag, attr string, base *url.URL, text *segments) {
	root.Find(tag).Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr(attr)
		if !ok {
			e.logger.Debug("element without attribute skipped",
				logger.String("tag", tag),
				logger.String("attr", attr))
			return
		}

		resolved, err := Resolve(base, raw)
		if err != nil {
			e.logger.Debug("unresolvable reference skipped",
				logger.String("tag", tag),
				logger.String(attr, raw),
				logger.Error(err))
			return
		}

		text.line(resolved)
	})
}

// scanContainers handles the statement, title and answer choice divs.
func (e *Extractor) scanContainers(root *goquery.Selection, text, title *segments) {
	root.Find("div").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")

		switch class {
		case ClassStatement:
			text.line(s.Text())
		case ClassTitle:
			title.add(s.Text())
		case ClassBackground:
			s.Find(choiceSelector).Each(func(i int, li *goquery.Selection) {
				text.line(strconv.Itoa(i+1) + ". " + li.Text())
			})
		}
	})
}

// segments is an append-only list joined once at the end.
type segments []string

func (s *segments) add(v string) {
	*s = append(*s, v)
}

func (s *segments) line(v string) {
	*s = append(*s, v, "\n")
}

func (s segments) String() string {
	return strings.Join(s, "")
}
