package parser

// Parser turns a fetched product page into a product record.
type Parser interface {
	ParseProductPage(html string, provider string) Record
}

// Record is the best-effort product data found on a page. Absent numeric
// fields stay None; absent text fields are empty.
type Record struct {
	Name      string
	Price     Option[float64]
	ListPrice Option[float64]
	Category  string
	Discount  string
}

// Page carries a parsed document through the extraction cascades.
type Page struct {
	Doc        Document
	Structured Option[StructuredProduct]
	Provider   string
}

func NewPage(html, provider string) *Page {
	doc := NewDocument(html)
	return &Page{
		Doc:        doc,
		Structured: structuredFromDocument(doc),
		Provider:   provider,
	}
}
