package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ldScript(body string) string {
	return `<script type="application/ld+json">` + body + `</script>`
}

func TestExtractStructuredProduct(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		found     bool
		wantName  string
		wantPrice float64
		hasPrice  bool
	}{
		{
			name:      "single product object",
			html:      ldScript(`{"@type":"Product","name":"Widget","offers":{"price":"199.90"}}`),
			found:     true,
			wantName:  "Widget",
			wantPrice: 199.90,
			hasPrice:  true,
		},
		{
			name:      "array with product second",
			html:      ldScript(`[{"@type":"Organization","name":"Shop"},{"@type":"Product","name":"Lamp","offers":[{"price":1500}]}]`),
			found:     true,
			wantName:  "Lamp",
			wantPrice: 1500,
			hasPrice:  true,
		},
		{
			name:     "graph container and type list",
			html:     ldScript(`{"@context":"https://schema.org","@graph":[{"@type":["Thing","Product"],"name":"Chair"}]}`),
			found:    true,
			wantName: "Chair",
		},
		{
			name:      "broken block before valid block",
			html:      ldScript(`{"@type":"Product","name":`) + ldScript(`{"@type":"Product","name":"Table","offers":{"lowPrice":"$ 2.500"}}`),
			found:     true,
			wantName:  "Table",
			wantPrice: 2500,
			hasPrice:  true,
		},
		{
			name:  "no product type",
			html:  ldScript(`{"@type":"WebSite","name":"Shop"}`),
			found: false,
		},
		{
			name:  "no blocks",
			html:  `<html><body><h1>Nothing</h1></body></html>`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, ok := ExtractStructuredProduct(tt.html).Get()
			require.Equal(t, tt.found, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantName, sp.Name)
			price, hasPrice := sp.OfferPrice.Get()
			assert.Equal(t, tt.hasPrice, hasPrice)
			if tt.hasPrice {
				assert.InDelta(t, tt.wantPrice, price, 0.0001)
			}
		})
	}
}

func TestExtractStructuredProductFields(t *testing.T) {
	html := ldScript(`{
		"@type": "Product",
		"name": "  Sofa   Gris ",
		"category": ["Living", "Sofas"],
		"offers": {"price": 90000, "priceSpecification": {"price": "120.000"}}
	}`) + ldScript(`{
		"@type": "BreadcrumbList",
		"itemListElement": [
			{"@type": "ListItem", "position": 1, "name": "Inicio"},
			{"@type": "ListItem", "position": 2, "item": {"name": "Muebles"}}
		]
	}`)

	sp, ok := ExtractStructuredProduct(html).Get()
	require.True(t, ok)

	assert.Equal(t, "Sofa Gris", sp.Name)
	assert.Equal(t, "Living > Sofas", sp.Category)
	assert.Equal(t, "Inicio > Muebles", sp.Breadcrumbs)
	assert.Equal(t, 90000.0, sp.OfferPrice.OrElse(0))
	assert.Equal(t, 120000.0, sp.SpecPrice.OrElse(0))
}

func TestExtractStructuredProductBreadcrumbsKey(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "plain breadcrumbs string",
			html: ldScript(`{"@type":"Product","name":"Taza","breadcrumbs":"  Cocina >  Tazas "}`),
			want: "Cocina > Tazas",
		},
		{
			name: "breadcrumbs list",
			html: ldScript(`{"@type":"Product","name":"Taza","breadcrumbs":["Cocina","Tazas"]}`),
			want: "Cocina > Tazas",
		},
		{
			name: "BreadcrumbList block wins",
			html: ldScript(`{"@type":"Product","name":"Taza","breadcrumbs":"Otros"}`) +
				ldScript(`{"@type":"BreadcrumbList","itemListElement":[{"name":"Bazar"}]}`),
			want: "Bazar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, ok := ExtractStructuredProduct(tt.html).Get()
			require.True(t, ok)
			assert.Equal(t, tt.want, sp.Breadcrumbs)
		})
	}
}

func TestParseProductPageCategoryFromBreadcrumbsKey(t *testing.T) {
	html := ldScript(`{"@type":"Product","name":"Taza","breadcrumbs":"Cocina > Tazas","offers":{"price":"1.500"}}`)

	rec := NewProductParser().ParseProductPage(html, "")

	assert.Equal(t, "Cocina > Tazas", rec.Category)
}
