// Package resolver evaluates ordered field-location rules against parsed
// documents. It is shared by every extraction backend so the resolution
// semantics exist in exactly one place.
package resolver

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/user/extractor-service/internal/domain"
)

// Document is a parsed HTML page. The same node tree backs both the CSS
// (goquery) and XPath (htmlquery) lookups, so excluded-element identity
// holds across locator kinds.
type Document struct {
	doc  *goquery.Document
	root *html.Node
}

// Parse builds a Document from raw page source.
func Parse(source string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{doc: goquery.NewDocumentFromNode(root), root: root}, nil
}

// find returns every node matched by the rule, in document order.
func (d *Document) find(rule domain.FieldRule) []*html.Node {
	switch rule.Kind {
	case domain.LocatorCSS:
		return d.doc.Find(rule.Locator).Nodes
	case domain.LocatorXPath:
		nodes, err := htmlquery.QueryAll(d.root, rule.Locator)
		if err != nil {
			return nil
		}
		return nodes
	default:
		return nil
	}
}

// ExcludedSet is the set of elements exclusion rules matched; the resolver
// skips these when collecting field values.
type ExcludedSet map[*html.Node]struct{}

// Excluded evaluates exclusion rules against the document. Invalid rules are
// skipped rather than failing the run.
func (d *Document) Excluded(rules []domain.FieldRule) ExcludedSet {
	set := make(ExcludedSet)
	for _, rule := range rules {
		if rule.Locator == "" || !rule.Kind.Valid() {
			continue
		}
		for _, n := range d.find(rule) {
			set[n] = struct{}{}
		}
	}
	return set
}

func nodeValue(n *html.Node, attribute string) string {
	if attribute != "" {
		return cleanText(htmlquery.SelectAttr(n, attribute))
	}
	return cleanText(htmlquery.InnerText(n))
}

var textCleaner = strings.NewReplacer("\n", " ", "\t", " ")

func cleanText(s string) string {
	return strings.TrimSpace(textCleaner.Replace(s))
}
