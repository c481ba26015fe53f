package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Section names tracked by the extraction pipeline. A section whose entire
// rule list fails to match is recorded into ExtractionResult.MissingSections.
const (
	SectionHeader = "header"
	SectionBody   = "body"
	SectionAuthor = "author"
	SectionDate   = "date"
)

// ExtractionRequest is a single article to extract. Requests are created by
// API callers, by the dispatcher stream, or by the reparse workflow, and are
// immutable once dispatched.
type ExtractionRequest struct {
	NewspaperID int64  `json:"newspaper_id"`
	ArticleID   int64  `json:"article_id"`
	URL         string `json:"url"`
	Date        string `json:"date,omitempty"`
	Headline    string `json:"headline,omitempty"`
	Preamble    string `json:"preamble,omitempty"`
	Sector      string `json:"sector,omitempty"`
	Publish     bool   `json:"publish"`
}

// ExtractionResult holds the structured fields pulled out of one article.
// ParsedDate is RFC 3339 or empty; an empty ParsedDate with a non-empty
// RawDate means the date was found but could not be parsed.
type ExtractionResult struct {
	ArticleID       int64      `json:"article_id"`
	NewspaperID     int64      `json:"newspaper_id"`
	Header          string     `json:"header"`
	Body            string     `json:"body"`
	Author          string     `json:"author"`
	RawDate         string     `json:"date"`
	ParsedDate      string     `json:"std_date"`
	Language        string     `json:"language"`
	Keywords        []string   `json:"keywords"`
	Preamble        string     `json:"preamble,omitempty"`
	Sector          string     `json:"sector,omitempty"`
	Link            string     `json:"link"`
	MissingSections SectionSet `json:"missing_sections,omitempty"`
}

// SectionSet is a set of section names.
type SectionSet map[string]struct{}

func NewSectionSet(names ...string) SectionSet {
	s := make(SectionSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s SectionSet) Add(name string)      { s[name] = struct{}{} }
func (s SectionSet) Has(name string) bool { _, ok := s[name]; return ok }
func (s SectionSet) Empty() bool          { return len(s) == 0 }

// Sorted returns the section names in lexical order.
func (s SectionSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s SectionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *SectionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewSectionSet(names...)
	return nil
}

// FailureSnapshot is the request metadata stored alongside a failed article
// so the reparse workflow can rebuild the request without the original caller.
type FailureSnapshot struct {
	URL      string `json:"url"`
	Preamble string `json:"preamble,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Headline string `json:"headline,omitempty"`
}

// FailedArticleRecord tracks an article whose extraction produced one or more
// missing sections. ArticleID is the unique key; repeated failures increment
// RetryCount via upsert and a successful reparse flips IsResolved.
type FailedArticleRecord struct {
	ArticleID      int64           `json:"article_id"`
	NewspaperID    int64           `json:"newspaper_id"`
	FirstFailureAt time.Time       `json:"first_failure_at"`
	LastUpdatedAt  time.Time       `json:"last_updated_at"`
	IsResolved     bool            `json:"is_resolved"`
	RetryCount     int             `json:"retry_count"`
	Snapshot       FailureSnapshot `json:"info"`
}

// Request rebuilds an ExtractionRequest from the stored snapshot metadata.
// Reparse requests never re-publish.
func (r *FailedArticleRecord) Request() ExtractionRequest {
	return ExtractionRequest{
		NewspaperID: r.NewspaperID,
		ArticleID:   r.ArticleID,
		URL:         r.Snapshot.URL,
		Headline:    r.Snapshot.Headline,
		Preamble:    r.Snapshot.Preamble,
		Sector:      r.Snapshot.Sector,
		Publish:     false,
	}
}
