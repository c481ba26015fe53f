package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/extractor-service/internal/domain"
)

const configDoc = `{
  "newspaperID": 42,
  "name": "Daily Ledger",
  "language": "en",
  "executionMode": "browser",
  "login": 1,
  "useIpProxy": 1,
  "betweenWait": 7,
  "header": [
    {"type": "css", "name": "h1.title"},
    {"type": "xpath", "name": "//meta[@property='og:title']", "attribute": "content"}
  ],
  "body": [{"type": "css", "name": ".article-body p"}],
  "author": [{"type": "css", "name": ".byline"}],
  "date": [{"type": "css", "name": "time", "attribute": "datetime"}],
  "keywords": [{"type": "css", "name": "a.tag"}],
  "excludes": [{"type": "css", "name": ".related"}],
  "dateRegex": ["(?P<date>\\d{4}-\\d{2}-\\d{2})"]
}`

func TestParseSourceConfig(t *testing.T) {
	cfg, err := domain.ParseSourceConfig([]byte(configDoc))
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.NewspaperID)
	assert.Equal(t, domain.ModeBrowser, cfg.ExecutionMode)
	assert.True(t, cfg.RequiresLogin())
	assert.True(t, cfg.ProxyEnabled())
	assert.Equal(t, 7*time.Second, cfg.PageWait())
	require.Len(t, cfg.Header, 2)
	assert.Equal(t, domain.LocatorXPath, cfg.Header[1].Kind)
	assert.Equal(t, "content", cfg.Header[1].Attribute)
}

func TestParseSourceConfigRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"no newspaperID":  `{"executionMode":"browser","header":[{"type":"css","name":"h1"}],"body":[{"type":"css","name":"p"}]}`,
		"bad mode":        `{"newspaperID":1,"executionMode":"selenium","header":[{"type":"css","name":"h1"}],"body":[{"type":"css","name":"p"}]}`,
		"no header rules": `{"newspaperID":1,"executionMode":"browser","body":[{"type":"css","name":"p"}]}`,
		"no body rules":   `{"newspaperID":1,"executionMode":"browser","header":[{"type":"css","name":"h1"}]}`,
		"bad locator":     `{"newspaperID":1,"executionMode":"browser","header":[{"type":"regex","name":"h1"}],"body":[{"type":"css","name":"p"}]}`,
		"empty locator":   `{"newspaperID":1,"executionMode":"browser","header":[{"type":"css","name":""}],"body":[{"type":"css","name":"p"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.ParseSourceConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSectionSetJSONRoundTrip(t *testing.T) {
	set := domain.NewSectionSet(domain.SectionDate, domain.SectionBody)

	out, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["body","date"]`, string(out))

	var back domain.SectionSet
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.Has(domain.SectionBody))
	assert.True(t, back.Has(domain.SectionDate))
	assert.False(t, back.Has(domain.SectionHeader))
}

func TestAuthStepDecoding(t *testing.T) {
	doc := `{
	  "loginUrl": "https://news.example/login",
	  "afterLoginUrl": "https://news.example/account",
	  "siteIdentifier": {"type": "css", "name": ".paywall"},
	  "steps": [
	    {"step": 1, "action": "CLICK", "type": "css", "name": "#submit"},
	    {"step": 0, "action": "TYPE", "type": "css", "name": "#user", "key": "username"}
	  ]
	}`

	var cfg domain.AuthConfig
	require.NoError(t, json.Unmarshal([]byte(doc), &cfg))
	require.Len(t, cfg.Steps, 2)
	assert.Equal(t, domain.ActionClick, cfg.Steps[0].Action)
	assert.Equal(t, "username", cfg.Steps[1].CredentialKey)
	require.NotNil(t, cfg.SiteIdentifier)
	assert.Equal(t, ".paywall", cfg.SiteIdentifier.Locator)
}
