package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/resolver"
)

const articlePage = `<html><head>
<meta property="og:title" content="Meta Headline">
</head><body>
<h1 class="headline">Main   Headline</h1>
<div class="content">
  <p>First paragraph.</p>
  <p>Second paragraph.</p>
  <p class="ad">Subscribe now!</p>
</div>
<span class="byline">Jane Reporter</span>
<time datetime="2024-03-05T10:00:00Z">5 March 2024</time>
<a class="tag">economy</a>
<a class="tag">markets</a>
</body></html>`

func parsePage(t *testing.T) *resolver.Document {
	t.Helper()
	doc, err := resolver.Parse(articlePage)
	require.NoError(t, err)
	return doc
}

func TestResolveFirstRuleWins(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{
		{Kind: domain.LocatorCSS, Locator: "h2.missing"},
		{Kind: domain.LocatorCSS, Locator: "h1.headline"},
		{Kind: domain.LocatorCSS, Locator: ".byline"},
	}

	value, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Main   Headline", value)
}

func TestResolveJoinsAllMatches(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".content p"}}

	value, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, "First paragraph. Second paragraph. Subscribe now!", value)
}

func TestResolveSkipsExcludedElements(t *testing.T) {
	doc := parsePage(t)
	excluded := doc.Excluded([]domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "p.ad"}})
	rules := []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".content p"}}

	value, ok := resolver.Resolve(rules, doc, excluded)
	require.True(t, ok)
	assert.Equal(t, "First paragraph. Second paragraph.", value)
}

func TestResolveAllMatchesExcludedExhaustsRule(t *testing.T) {
	doc := parsePage(t)
	excluded := doc.Excluded([]domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".content p"}})
	rules := []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".content p"}}

	_, ok := resolver.Resolve(rules, doc, excluded)
	assert.False(t, ok)
}

func TestResolveAttributeValue(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{
		{Kind: domain.LocatorCSS, Locator: `meta[property="og:title"]`, Attribute: "content"},
	}

	value, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Meta Headline", value)
}

func TestResolveXPathRule(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{
		{Kind: domain.LocatorXPath, Locator: `//span[@class="byline"]`},
	}

	value, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Jane Reporter", value)
}

func TestResolveExclusionAppliesAcrossLocatorKinds(t *testing.T) {
	doc := parsePage(t)
	// Exclude via XPath, resolve via CSS; both views share the node tree.
	excluded := doc.Excluded([]domain.FieldRule{{Kind: domain.LocatorXPath, Locator: `//p[@class="ad"]`}})
	rules := []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".content p"}}

	value, ok := resolver.Resolve(rules, doc, excluded)
	require.True(t, ok)
	assert.Equal(t, "First paragraph. Second paragraph.", value)
}

func TestResolveIsIdempotent(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "h1.headline"}}

	first, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	second, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestResolveSkipsInvalidRules(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{
		{Kind: "regex", Locator: "h1"},
		{Kind: domain.LocatorCSS, Locator: ""},
		{Kind: domain.LocatorCSS, Locator: "h1.headline"},
	}

	value, ok := resolver.Resolve(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, "Main   Headline", value)
}

func TestResolveListKeywords(t *testing.T) {
	doc := parsePage(t)
	rules := []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "a.tag"}}

	values, ok := resolver.ResolveList(rules, doc, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"economy", "markets"}, values)
}

func testConfig() *domain.SourceConfig {
	return &domain.SourceConfig{
		NewspaperID:   77,
		Language:      "en",
		ExecutionMode: domain.ModeStatic,
		Header:        []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "h1.headline"}},
		Body:          []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".content p"}},
		Author:        []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".byline"}},
		Date:          []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "time", Attribute: "datetime"}},
		Keywords:      []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "a.tag"}},
		Excludes:      []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "p.ad"}},
	}
}

func TestExtractFieldsFullDocument(t *testing.T) {
	doc := parsePage(t)
	req := domain.ExtractionRequest{NewspaperID: 77, ArticleID: 1001, URL: "https://news.example/a/1001"}

	res := resolver.ExtractFields(testConfig(), doc, req)

	assert.Equal(t, int64(1001), res.ArticleID)
	assert.Equal(t, int64(77), res.NewspaperID)
	assert.Equal(t, "Main   Headline", res.Header)
	assert.Equal(t, "First paragraph. Second paragraph.", res.Body)
	assert.Equal(t, "Jane Reporter", res.Author)
	assert.Equal(t, "2024-03-05T10:00:00Z", res.RawDate)
	assert.Equal(t, "2024-03-05T10:00:00Z", res.ParsedDate)
	assert.Equal(t, []string{"economy", "markets"}, res.Keywords)
	assert.Equal(t, "https://news.example/a/1001", res.Link)
	assert.True(t, res.MissingSections.Empty())
}

func TestExtractFieldsMarksMissingSections(t *testing.T) {
	doc, err := resolver.Parse(`<html><body><h1 class="headline">Only a headline</h1></body></html>`)
	require.NoError(t, err)

	res := resolver.ExtractFields(testConfig(), doc, domain.ExtractionRequest{ArticleID: 1})

	assert.Equal(t, []string{"author", "body", "date"}, res.MissingSections.Sorted())
	assert.Equal(t, "Only a headline", res.Header)
	// Keywords are optional and never marked missing.
	assert.False(t, res.MissingSections.Has("keywords"))
	assert.Empty(t, res.Keywords)
}

func TestExtractFieldsKeepsRawDateWhenUnparseable(t *testing.T) {
	doc, err := resolver.Parse(`<html><body>
<h1 class="headline">H</h1><div class="content"><p>B</p></div>
<span class="byline">A</span><time>sometime before dawn</time>
</body></html>`)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Date = []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "time"}}
	res := resolver.ExtractFields(cfg, doc, domain.ExtractionRequest{ArticleID: 1})

	assert.Equal(t, "sometime before dawn", res.RawDate)
	assert.Empty(t, res.ParsedDate)
	assert.False(t, res.MissingSections.Has(domain.SectionDate))
}
