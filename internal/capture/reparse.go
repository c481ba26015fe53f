package capture

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/resolver"
)

// ConfigStore reads the per-source configuration document.
type ConfigStore interface {
	GetSourceConfig(ctx context.Context, newspaperID int64) (*domain.SourceConfig, error)
}

// ReparseOutcome reports resolution status for one reparsed article. Status
// is always reported, even for single-source calls.
type ReparseOutcome struct {
	ArticleID int64                    `json:"article_id"`
	Resolved  bool                     `json:"resolved"`
	Missing   []string                 `json:"missing_sections,omitempty"`
	Skipped   string                   `json:"skipped,omitempty"`
	Result    *domain.ExtractionResult `json:"result,omitempty"`
}

// Reparser reruns field resolution against stored snapshots. It never
// touches the network and never re-publishes articles.
type Reparser struct {
	failed  FailedArticleStore
	snaps   SnapshotStore
	configs ConfigStore
	logger  *zap.Logger
}

func NewReparser(failed FailedArticleStore, snaps SnapshotStore, configs ConfigStore, logger *zap.Logger) *Reparser {
	return &Reparser{failed: failed, snaps: snaps, configs: configs, logger: logger}
}

// Reparse replays every unresolved failed article of one source against the
// current (presumably corrected) configuration.
func (rp *Reparser) Reparse(ctx context.Context, newspaperID int64) ([]ReparseOutcome, error) {
	cfg, err := rp.configs.GetSourceConfig(ctx, newspaperID)
	if err != nil {
		return nil, err
	}
	records, err := rp.failed.ListUnresolved(ctx, newspaperID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ReparseOutcome, 0, len(records))
	for _, rec := range records {
		outcomes = append(outcomes, rp.ReparseRecord(ctx, cfg, rec))
	}
	return outcomes, nil
}

// ReparseRecord replays a single failure record against the stored document.
// A run with zero missing sections marks the record resolved; a run that
// still misses sections increments the retry count again. A record already
// resolved that resolves again is simply re-marked, without a new snapshot
// write or retry increment.
func (rp *Reparser) ReparseRecord(ctx context.Context, cfg *domain.SourceConfig, rec *domain.FailedArticleRecord) ReparseOutcome {
	outcome := ReparseOutcome{ArticleID: rec.ArticleID}

	source, err := rp.snaps.Read(rec.ArticleID)
	if err != nil {
		outcome.Skipped = fmt.Sprintf("snapshot unavailable: %v", err)
		rp.logger.Warn("reparse skipped, snapshot unavailable",
			zap.Int64("article_id", rec.ArticleID), zap.Error(err))
		return outcome
	}
	doc, err := resolver.Parse(source)
	if err != nil {
		outcome.Skipped = fmt.Sprintf("snapshot unparseable: %v", err)
		return outcome
	}

	res := resolver.ExtractFields(cfg, doc, rec.Request())
	outcome.Result = res
	outcome.Missing = res.MissingSections.Sorted()

	if res.MissingSections.Empty() {
		outcome.Resolved = true
		if markErr := rp.failed.MarkResolved(ctx, rec.ArticleID); markErr != nil {
			rp.logger.Error("failed to mark article resolved",
				zap.Int64("article_id", rec.ArticleID), zap.Error(markErr))
		}
		return outcome
	}

	// Still unresolved; count the attempt.
	if upsertErr := rp.failed.Upsert(ctx, rec); upsertErr != nil {
		rp.logger.Error("failed to update failure record",
			zap.Int64("article_id", rec.ArticleID), zap.Error(upsertErr))
	}
	return outcome
}
