// Package capture snapshots raw documents on partial extraction failure and
// replays them later without re-fetching over the network. Both extraction
// backends delegate here; the capture logic exists once.
package capture

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/notify"
)

// FailedArticleStore tracks failure records keyed by article id.
type FailedArticleStore interface {
	// Upsert inserts a new record with retry count 1 or increments the
	// retry count of an existing one. Safe to repeat.
	Upsert(ctx context.Context, rec *domain.FailedArticleRecord) error
	// MarkResolved flips the record after a clean reparse without touching
	// the retry count.
	MarkResolved(ctx context.Context, articleID int64) error
	Get(ctx context.Context, articleID int64) (*domain.FailedArticleRecord, error)
	ListUnresolved(ctx context.Context, newspaperID int64) ([]*domain.FailedArticleRecord, error)
}

// SnapshotStore keeps the raw document text per article.
type SnapshotStore interface {
	Write(articleID int64, source string) error
	Read(articleID int64) (string, error)
}

// Recorder captures failure evidence during an extraction run and raises a
// single configuration alert per run.
type Recorder struct {
	failed   FailedArticleStore
	snaps    SnapshotStore
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewRecorder(failed FailedArticleStore, snaps SnapshotStore, notifier notify.Notifier, logger *zap.Logger) *Recorder {
	return &Recorder{failed: failed, snaps: snaps, notifier: notifier, logger: logger}
}

// Record stores the page source and upserts the failure record for one
// request with missing sections. The snapshot always overwrites the previous
// one for the same article.
func (r *Recorder) Record(ctx context.Context, cfg *domain.SourceConfig, req domain.ExtractionRequest, pageSource string, missing domain.SectionSet) {
	if err := r.snaps.Write(req.ArticleID, pageSource); err != nil {
		r.logger.Error("failed to store page snapshot",
			zap.Int64("article_id", req.ArticleID), zap.Error(err))
	}

	rec := &domain.FailedArticleRecord{
		ArticleID:   req.ArticleID,
		NewspaperID: req.NewspaperID,
		Snapshot: domain.FailureSnapshot{
			URL:      req.URL,
			Preamble: req.Preamble,
			Sector:   req.Sector,
			Headline: req.Headline,
		},
	}
	if err := r.failed.Upsert(ctx, rec); err != nil {
		r.logger.Error("failed to upsert failure record",
			zap.Int64("article_id", req.ArticleID), zap.Error(err))
	}

	r.logger.Warn("partial extraction failure captured",
		zap.Int64("article_id", req.ArticleID),
		zap.Int64("newspaper_id", req.NewspaperID),
		zap.Strings("missing_sections", missing.Sorted()))
}

// AlertRun raises one configuration alert for a run that recorded partial
// failures, listing the affected articles.
func (r *Recorder) AlertRun(ctx context.Context, cfg *domain.SourceConfig, missing domain.SectionSet, affected []int64) {
	if missing.Empty() || len(affected) == 0 {
		return
	}
	r.notifier.Alert(ctx, "extraction configuration mismatch", map[string]any{
		"newspaper_id":     cfg.NewspaperID,
		"newspaper_name":   cfg.Name,
		"missing_sections": missing.Sorted(),
		"articles":         affected,
	})
}
