package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is the subset of an HTML tree the extractors rely on.
type Document interface {
	Find(selector string) Selection
}

type Selection interface {
	Find(selector string) Selection
	First() Selection
	Attr(name string) (string, bool)
	Text() string
	Texts() []string
	Len() int
}

// NewDocument parses html with goquery. Input that cannot be read yields an
// empty document, so callers never have to handle a parse error.
func NewDocument(html string) Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return goqueryDocument{doc: doc}
}

type goqueryDocument struct {
	doc *goquery.Document
}

func (d goqueryDocument) Find(selector string) Selection {
	return goquerySelection{sel: d.doc.Find(selector)}
}

type goquerySelection struct {
	sel *goquery.Selection
}

func (s goquerySelection) Find(selector string) Selection {
	return goquerySelection{sel: s.sel.Find(selector)}
}

func (s goquerySelection) First() Selection {
	return goquerySelection{sel: s.sel.First()}
}

func (s goquerySelection) Attr(name string) (string, bool) {
	return s.sel.Attr(name)
}

func (s goquerySelection) Text() string {
	return s.sel.Text()
}

func (s goquerySelection) Texts() []string {
	return s.sel.Map(func(_ int, el *goquery.Selection) string {
		return el.Text()
	})
}

func (s goquerySelection) Len() int {
	return s.sel.Length()
}
