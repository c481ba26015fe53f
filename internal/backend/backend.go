// Package backend implements the extraction backends behind one capability
// contract. Field resolution, date parsing and failure capture live in their
// own packages; the variants here only differ in how they acquire documents
// and drive authentication.
package backend

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/resolver"
)

var (
	// ErrAuthUnsupported is returned by session operations a backend
	// variant cannot perform.
	ErrAuthUnsupported = errors.New("authentication is not supported by this backend")
	// ErrLoginRequiresBrowser is the fatal configuration error for a
	// login-protected source configured in static mode.
	ErrLoginRequiresBrowser = errors.New("login is required for this source: switch it to browser execution mode or fix the login flag")
	// ErrAuthFailed aborts a request or batch before any field resolution.
	ErrAuthFailed = errors.New("authentication failed")
)

// Session is one live page/transport context a backend operates on. A batch
// reuses one session across all its requests to amortize login cost.
type Session interface {
	Navigate(ctx context.Context, url string) error
	PageSource(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Type(ctx context.Context, rule domain.FieldRule, text string) error
	Click(ctx context.Context, rule domain.FieldRule) error
	SetCookies(ctx context.Context, rawCookies, cookieDomain string) error
	Has(ctx context.Context, rule domain.FieldRule) (bool, error)
	Close()
}

// Backend is the extraction capability contract. All variants may record a
// failure snapshot as a side effect of partial extraction failure; that
// logic is delegated to the capture package, not duplicated per variant.
type Backend interface {
	Mode() domain.ExecutionMode
	NewSession(ctx context.Context) (Session, error)
	Authenticate(ctx context.Context, s Session) (bool, error)
	ExtractOne(ctx context.Context, s Session, req domain.ExtractionRequest) (*domain.ExtractionResult, error)
	ExtractBatch(ctx context.Context, s Session, reqs []domain.ExtractionRequest) ([]*domain.ExtractionResult, error)
	IsProtected(ctx context.Context, s Session) bool
}

// runState aggregates partial failures across one extraction run so a single
// configuration alert covers the whole batch.
type runState struct {
	missing  domain.SectionSet
	affected []int64
}

func newRunState() *runState {
	return &runState{missing: domain.NewSectionSet()}
}

func (rs *runState) observe(req domain.ExtractionRequest, res *domain.ExtractionResult) {
	if res.MissingSections.Empty() {
		return
	}
	for section := range res.MissingSections {
		rs.missing.Add(section)
	}
	rs.affected = append(rs.affected, req.ArticleID)
}

// extractFrom navigates the session to the request URL, resolves all fields
// against the fetched document and captures failure evidence when sections
// are missing. Shared by both variants.
func extractFrom(ctx context.Context, s Session, cfg *domain.SourceConfig, req domain.ExtractionRequest,
	rec *capture.Recorder, metrics *monitoring.Metrics, logger *zap.Logger) (*domain.ExtractionResult, error) {

	logger.Info("started crawling article",
		zap.Int64("article_id", req.ArticleID), zap.String("url", req.URL))

	if err := s.Navigate(ctx, req.URL); err != nil {
		metrics.IncErrors("fetch_failed")
		return nil, err
	}
	source, err := s.PageSource(ctx)
	if err != nil {
		metrics.IncErrors("fetch_failed")
		return nil, err
	}
	doc, err := resolver.Parse(source)
	if err != nil {
		metrics.IncErrors("parse_failed")
		return nil, err
	}

	res := resolver.ExtractFields(cfg, doc, req)
	metrics.IncExtracted(string(cfg.ExecutionMode))

	if !res.MissingSections.Empty() {
		for section := range res.MissingSections {
			metrics.IncMissingSection(section)
		}
		rec.Record(ctx, cfg, req, source, res.MissingSections)
	}
	return res, nil
}
