package parser

import (
	"encoding/json"
	"strings"

	"github.com/maltedev/price-monitor/internal/normalize"
)

const jsonLDSelector = `script[type="application/ld+json"]`

// StructuredProduct is what a schema.org Product block declares about the page.
type StructuredProduct struct {
	Name        string
	Category    string
	Breadcrumbs string
	OfferPrice  Option[float64]
	SpecPrice   Option[float64]
}

// ExtractStructuredProduct returns the first JSON-LD node typed Product.
// Blocks that fail to decode are skipped.
func ExtractStructuredProduct(html string) Option[StructuredProduct] {
	return structuredFromDocument(NewDocument(html))
}

func structuredFromDocument(doc Document) Option[StructuredProduct] {
	var (
		product     map[string]any
		breadcrumbs string
	)

	for _, block := range doc.Find(jsonLDSelector).Texts() {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &data); err != nil {
			continue
		}
		for _, node := range flattenNodes(data) {
			switch {
			case product == nil && hasType(node, "Product"):
				product = node
			case breadcrumbs == "" && hasType(node, "BreadcrumbList"):
				breadcrumbs = breadcrumbTrail(node)
			}
		}
	}

	if product == nil {
		return None[StructuredProduct]()
	}

	sp := StructuredProduct{
		Name:        normalize.CleanText(stringValue(product["name"])),
		Category:    joinTrail(product["category"]),
		Breadcrumbs: breadcrumbs,
	}
	if bc, ok := product["breadcrumb"]; ok {
		if trail := breadcrumbValue(bc); trail != "" {
			sp.Breadcrumbs = trail
		}
	}
	if sp.Breadcrumbs == "" {
		sp.Breadcrumbs = joinTrail(product["breadcrumbs"])
	}
	if offer := firstObject(product["offers"]); offer != nil {
		sp.OfferPrice = priceValue(offer["price"])
		if !sp.OfferPrice.IsSome() {
			sp.OfferPrice = priceValue(offer["lowPrice"])
		}
		if spec := firstObject(offer["priceSpecification"]); spec != nil {
			sp.SpecPrice = priceValue(spec["price"])
		}
	}
	return Some(sp)
}

// flattenNodes lists every object in a block, unwrapping arrays and @graph.
func flattenNodes(data any) []map[string]any {
	var nodes []map[string]any
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			nodes = append(nodes, flattenNodes(item)...)
		}
	case map[string]any:
		nodes = append(nodes, v)
		if graph, ok := v["@graph"]; ok {
			nodes = append(nodes, flattenNodes(graph)...)
		}
	}
	return nodes
}

func hasType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func firstObject(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func priceValue(v any) Option[float64] {
	switch p := v.(type) {
	case float64:
		return Some(p)
	case string:
		if f, ok := normalize.ParsePrice(p); ok {
			return Some(f)
		}
	}
	return None[float64]()
}

// joinTrail accepts a plain string or a list of strings.
func joinTrail(v any) string {
	switch c := v.(type) {
	case string:
		return normalize.CleanText(c)
	case []any:
		var parts []string
		for _, item := range c {
			if s := normalize.CleanText(stringValue(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " > ")
	}
	return ""
}

func breadcrumbValue(v any) string {
	if m, ok := v.(map[string]any); ok {
		return breadcrumbTrail(m)
	}
	return joinTrail(v)
}

func breadcrumbTrail(list map[string]any) string {
	items, _ := list["itemListElement"].([]any)
	var parts []string
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringValue(item["name"])
		if name == "" {
			if inner, ok := item["item"].(map[string]any); ok {
				name = stringValue(inner["name"])
			}
		}
		if name = normalize.CleanText(name); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " > ")
}
