package resolver

import (
	"strings"

	"github.com/user/extractor-service/internal/domain"
)

// Resolve walks the rules in list order and returns the value of the first
// rule that yields at least one non-empty, non-excluded element. Values of
// multiple matched elements are joined with a single space. A fully
// exhausted rule list returns ("", false); that is a recoverable condition,
// the caller records the section as missing.
func Resolve(rules []domain.FieldRule, doc *Document, excluded ExcludedSet) (string, bool) {
	for _, rule := range rules {
		if rule.Locator == "" || !rule.Kind.Valid() {
			continue
		}
		values := collect(rule, doc, excluded)
		if len(values) > 0 {
			return strings.Join(values, " "), true
		}
	}
	return "", false
}

// ResolveList is Resolve for multi-valued fields (keywords): the first
// matching rule contributes one entry per matched element instead of a
// joined string.
func ResolveList(rules []domain.FieldRule, doc *Document, excluded ExcludedSet) ([]string, bool) {
	for _, rule := range rules {
		if rule.Locator == "" || !rule.Kind.Valid() {
			continue
		}
		values := collect(rule, doc, excluded)
		if len(values) > 0 {
			return values, true
		}
	}
	return nil, false
}

func collect(rule domain.FieldRule, doc *Document, excluded ExcludedSet) []string {
	nodes := doc.find(rule)
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, skip := excluded[n]; skip {
			continue
		}
		if v := nodeValue(n, rule.Attribute); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// ExtractFields runs the full field-resolution pass for one request against
// a parsed document. Sections whose rule lists exhaust are accumulated into
// MissingSections; keywords are optional and never marked missing.
func ExtractFields(cfg *domain.SourceConfig, doc *Document, req domain.ExtractionRequest) *domain.ExtractionResult {
	excluded := doc.Excluded(cfg.Excludes)
	missing := domain.NewSectionSet()

	header, ok := Resolve(cfg.Header, doc, excluded)
	if !ok {
		missing.Add(domain.SectionHeader)
	}
	body, ok := Resolve(cfg.Body, doc, excluded)
	if !ok {
		missing.Add(domain.SectionBody)
	}
	author, ok := Resolve(cfg.Author, doc, excluded)
	if !ok {
		missing.Add(domain.SectionAuthor)
	}
	rawDate, ok := Resolve(cfg.Date, doc, excluded)
	if !ok {
		missing.Add(domain.SectionDate)
	}
	keywords, _ := ResolveList(cfg.Keywords, doc, excluded)

	parsedDate := ""
	if rawDate != "" {
		parsedDate = ParseDate(cfg.DateRegex, rawDate)
	}

	return &domain.ExtractionResult{
		ArticleID:       req.ArticleID,
		NewspaperID:     cfg.NewspaperID,
		Header:          header,
		Body:            body,
		Author:          author,
		RawDate:         rawDate,
		ParsedDate:      parsedDate,
		Language:        cfg.Language,
		Keywords:        keywords,
		Preamble:        req.Preamble,
		Sector:          req.Sector,
		Link:            req.URL,
		MissingSections: missing,
	}
}
