package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ExecutionMode selects which extraction backend serves a source.
type ExecutionMode string

const (
	ModeBrowser ExecutionMode = "browser"
	ModeStatic  ExecutionMode = "static-html"
)

func (m ExecutionMode) Valid() bool {
	return m == ModeBrowser || m == ModeStatic
}

// LocatorKind is how a FieldRule locates elements in a document.
type LocatorKind string

const (
	LocatorCSS   LocatorKind = "css"
	LocatorXPath LocatorKind = "xpath"
)

func (k LocatorKind) Valid() bool {
	return k == LocatorCSS || k == LocatorXPath
}

// FieldRule is one ordered instruction for locating a piece of article
// content. Rules are evaluated in list order and the first rule producing
// non-empty text wins; configuration order encodes trust order.
type FieldRule struct {
	Kind      LocatorKind `json:"type"`
	Locator   string      `json:"name"`
	Attribute string      `json:"attribute,omitempty"`
}

// SourceConfig is the per-publication extraction document, parsed eagerly
// from the configuration store. It is read-only to the extraction core and
// never cached beyond a single run.
type SourceConfig struct {
	NewspaperID   int64         `json:"newspaperID"`
	Name          string        `json:"name"`
	Language      string        `json:"language"`
	ExecutionMode ExecutionMode `json:"executionMode"`
	Login         int           `json:"login"`
	UseIPProxy    int           `json:"useIpProxy"`
	BetweenWait   int           `json:"betweenWait"`
	Header        []FieldRule   `json:"header"`
	Body          []FieldRule   `json:"body"`
	Author        []FieldRule   `json:"author"`
	Date          []FieldRule   `json:"date"`
	Keywords      []FieldRule   `json:"keywords"`
	Excludes      []FieldRule   `json:"excludes"`
	DateRegex     []string      `json:"dateRegex"`
}

// RequiresLogin reports whether the source sits behind an authentication wall.
func (c *SourceConfig) RequiresLogin() bool { return c.Login == 1 }

// ProxyEnabled reports whether the source asks for outbound proxy use.
func (c *SourceConfig) ProxyEnabled() bool { return c.UseIPProxy == 1 }

// PageWait is the pacing delay between requests of one batch session.
func (c *SourceConfig) PageWait() time.Duration {
	if c.BetweenWait <= 0 {
		return 0
	}
	return time.Duration(c.BetweenWait) * time.Second
}

// ParseSourceConfig decodes a raw configuration document and rejects it
// before any extraction begins if it is malformed.
func ParseSourceConfig(doc []byte) (*SourceConfig, error) {
	var cfg SourceConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("decode source config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the extraction core relies on.
func (c *SourceConfig) Validate() error {
	if c.NewspaperID == 0 {
		return errors.New("source config: newspaperID is required")
	}
	if !c.ExecutionMode.Valid() {
		return fmt.Errorf("source config %d: unknown execution mode %q", c.NewspaperID, c.ExecutionMode)
	}
	if len(c.Header) == 0 {
		return fmt.Errorf("source config %d: header rules are required", c.NewspaperID)
	}
	if len(c.Body) == 0 {
		return fmt.Errorf("source config %d: body rules are required", c.NewspaperID)
	}
	for section, rules := range map[string][]FieldRule{
		SectionHeader: c.Header,
		SectionBody:   c.Body,
		SectionAuthor: c.Author,
		SectionDate:   c.Date,
		"keywords":    c.Keywords,
		"excludes":    c.Excludes,
	} {
		for i, r := range rules {
			if !r.Kind.Valid() {
				return fmt.Errorf("source config %d: %s rule %d: unknown locator kind %q", c.NewspaperID, section, i, r.Kind)
			}
			if r.Locator == "" {
				return fmt.Errorf("source config %d: %s rule %d: empty locator", c.NewspaperID, section, i)
			}
		}
	}
	return nil
}
