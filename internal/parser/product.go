package parser

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/maltedev/price-monitor/internal/normalize"
	"github.com/maltedev/price-monitor/internal/provider"
)

// ProductParser extracts product records from arbitrary storefront pages by
// running an ordered cascade of strategies per field.
type ProductParser struct {
	titleMetaSelector      string
	metaPriceSelectors     []string
	priceFragmentSelectors []string
	salePriceSelector      string
	listPriceSelector      string
	breadcrumbSelectors    []string
	breadcrumbItems        string
	categoryMetaSelector   string
	discountSelectors      []string
	discountPattern        *regexp.Regexp
	vtexSellingSelector    string
	vtexListSelector       string
}

func NewProductParser() *ProductParser {
	return &ProductParser{
		titleMetaSelector: `meta[property="og:title"]`,
		metaPriceSelectors: []string{
			`meta[property="product:price:amount"]`,
			`meta[itemprop="price"]`,
			`meta[name="twitter:data1"]`,
			`meta[name="twitter:label1"]`,
			`meta[property="og:price:amount"]`,
		},
		priceFragmentSelectors: []string{
			`[data-price]`,
			`.price`,
			`.product-price`,
			`[itemprop="price"]`,
		},
		salePriceSelector: `.best-price, .sale-price`,
		listPriceSelector: `.list-price, .old-price`,
		breadcrumbSelectors: []string{
			`[data-breadcrumb]`,
			`nav[aria-label*="breadcrumb"]`,
			`.breadcrumb`,
			`[itemtype*="Breadcrumb"]`,
		},
		breadcrumbItems:      `a, span, li`,
		categoryMetaSelector: `meta[property="product:category"]`,
		discountSelectors: []string{
			`.discount`,
			`.product-discount`,
			`[data-discount]`,
		},
		discountPattern:     regexp.MustCompile(`(\d{1,3})\s*%`),
		vtexSellingSelector: `.vtex-product-price-1-x-sellingPriceValue`,
		vtexListSelector:    `.vtex-product-price-1-x-listPriceValue`,
	}
}

// ParseProductPage never fails: empty or malformed input yields an empty record.
func (p *ProductParser) ParseProductPage(html string, providerLabel string) Record {
	page := NewPage(html, providerLabel)

	rec := Record{
		Name:      FirstOf(page, p.nameStrategies()...).OrElse(""),
		ListPrice: FirstOf(page, p.listPriceStrategies()...),
		Category:  FirstOf(page, p.categoryStrategies()...).OrElse(""),
	}
	rec.Price = FirstOf(page, append(p.priceStrategies(), constant(rec.ListPrice))...)
	rec.Discount = FirstOf(page, p.discountStrategies(rec.Price, rec.ListPrice)...).OrElse("")
	return rec
}

func (p *ProductParser) nameStrategies() []Strategy[string] {
	return []Strategy[string]{
		structuredText(func(sp StructuredProduct) string { return sp.Name }),
		metaContent[string](p.titleMetaSelector, textValue),
		firstText[string]("h1", textValue),
	}
}

func (p *ProductParser) listPriceStrategies() []Strategy[float64] {
	return []Strategy[float64]{
		structuredPrice(func(sp StructuredProduct) Option[float64] { return sp.SpecPrice }),
		structuredPrice(func(sp StructuredProduct) Option[float64] { return sp.OfferPrice }),
		firstText(p.listPriceSelector, priceText),
	}
}

func (p *ProductParser) priceStrategies() []Strategy[float64] {
	strategies := []Strategy[float64]{
		structuredPrice(func(sp StructuredProduct) Option[float64] { return sp.OfferPrice }),
	}
	for _, sel := range p.metaPriceSelectors {
		strategies = append(strategies, metaContent(sel, priceText))
	}
	for _, sel := range p.priceFragmentSelectors {
		strategies = append(strategies, attrOrText(sel, "data-price", priceText))
	}
	return append(strategies, firstText(p.salePriceSelector, priceText))
}

func (p *ProductParser) categoryStrategies() []Strategy[string] {
	strategies := []Strategy[string]{
		structuredText(func(sp StructuredProduct) string { return sp.Category }),
		structuredText(func(sp StructuredProduct) string { return sp.Breadcrumbs }),
	}
	for _, sel := range p.breadcrumbSelectors {
		strategies = append(strategies, p.domBreadcrumb(sel))
	}
	return append(strategies, metaContent[string](p.categoryMetaSelector, textValue))
}

func (p *ProductParser) discountStrategies(price, listPrice Option[float64]) []Strategy[string] {
	var strategies []Strategy[string]
	for _, sel := range p.discountSelectors {
		strategies = append(strategies, attrOrText(sel, "data-discount", p.percentText))
	}
	return append(strategies,
		func(*Page) Option[string] { return discountFrom(price, listPrice) },
		p.vtexDiscount,
	)
}

// domBreadcrumb joins the item texts of the first container matching sel.
func (p *ProductParser) domBreadcrumb(sel string) Strategy[string] {
	return func(page *Page) Option[string] {
		container := page.Doc.Find(sel).First()
		if container.Len() == 0 {
			return None[string]()
		}
		var parts []string
		for _, t := range container.Find(p.breadcrumbItems).Texts() {
			t = normalize.CleanText(t)
			if t == "" || (len(parts) > 0 && parts[len(parts)-1] == t) {
				continue
			}
			parts = append(parts, t)
		}
		if len(parts) == 0 {
			return textValue(container.Text())
		}
		return Some(strings.Join(parts, " > "))
	}
}

func (p *ProductParser) percentText(raw string) Option[string] {
	m := p.discountPattern.FindStringSubmatch(normalize.CleanText(raw))
	if m == nil {
		return None[string]()
	}
	return Some(m[1] + "%")
}

// vtexDiscount compares the selling and list price widgets VTEX stores render.
func (p *ProductParser) vtexDiscount(page *Page) Option[string] {
	if !provider.IsPlatform(page.Provider, "vtex") {
		return None[string]()
	}
	selling := priceText(page.Doc.Find(p.vtexSellingSelector).First().Text())
	list := priceText(page.Doc.Find(p.vtexListSelector).First().Text())
	return discountFrom(selling, list)
}

// ComputeDiscount formats the percentage saved on listPrice, or "" when
// there is no positive discount.
func ComputeDiscount(price, listPrice float64) string {
	if price <= 0 || listPrice <= price {
		return ""
	}
	pct := math.Round((listPrice - price) / listPrice * 100)
	if pct <= 0 {
		return ""
	}
	return fmt.Sprintf("%d%%", int(pct))
}

func discountFrom(price, listPrice Option[float64]) Option[string] {
	pv, ok1 := price.Get()
	lv, ok2 := listPrice.Get()
	if !ok1 || !ok2 {
		return None[string]()
	}
	if d := ComputeDiscount(pv, lv); d != "" {
		return Some(d)
	}
	return None[string]()
}

func constant[T any](v Option[T]) Strategy[T] {
	return func(*Page) Option[T] { return v }
}

func structuredText(field func(StructuredProduct) string) Strategy[string] {
	return func(page *Page) Option[string] {
		sp, ok := page.Structured.Get()
		if !ok {
			return None[string]()
		}
		return textValue(field(sp))
	}
}

func structuredPrice(field func(StructuredProduct) Option[float64]) Strategy[float64] {
	return func(page *Page) Option[float64] {
		sp, ok := page.Structured.Get()
		if !ok {
			return None[float64]()
		}
		return field(sp)
	}
}

func metaContent[T any](sel string, convert func(string) Option[T]) Strategy[T] {
	return func(page *Page) Option[T] {
		content, ok := page.Doc.Find(sel).First().Attr("content")
		if !ok {
			return None[T]()
		}
		return convert(content)
	}
}

func firstText[T any](sel string, convert func(string) Option[T]) Strategy[T] {
	return func(page *Page) Option[T] {
		s := page.Doc.Find(sel).First()
		if s.Len() == 0 {
			return None[T]()
		}
		return convert(s.Text())
	}
}

// attrOrText prefers the attribute value and falls back to the element text.
func attrOrText[T any](sel, attr string, convert func(string) Option[T]) Strategy[T] {
	return func(page *Page) Option[T] {
		s := page.Doc.Find(sel).First()
		if s.Len() == 0 {
			return None[T]()
		}
		if v, ok := s.Attr(attr); ok {
			if out := convert(v); out.IsSome() {
				return out
			}
		}
		return convert(s.Text())
	}
}

func textValue(raw string) Option[string] {
	if s := normalize.CleanText(raw); s != "" {
		return Some(s)
	}
	return None[string]()
}

func priceText(raw string) Option[float64] {
	if v, ok := normalize.ParsePrice(normalize.CleanText(raw)); ok {
		return Some(v)
	}
	return None[float64]()
}
