package capture_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/domain"
)

type memFailedStore struct {
	records map[int64]*domain.FailedArticleRecord
}

func newMemFailedStore() *memFailedStore {
	return &memFailedStore{records: make(map[int64]*domain.FailedArticleRecord)}
}

func (s *memFailedStore) Upsert(_ context.Context, rec *domain.FailedArticleRecord) error {
	if existing, ok := s.records[rec.ArticleID]; ok {
		existing.RetryCount++
		existing.IsResolved = false
		return nil
	}
	stored := *rec
	stored.RetryCount = 1
	s.records[rec.ArticleID] = &stored
	return nil
}

func (s *memFailedStore) MarkResolved(_ context.Context, articleID int64) error {
	if rec, ok := s.records[articleID]; ok {
		rec.IsResolved = true
	}
	return nil
}

func (s *memFailedStore) Get(_ context.Context, articleID int64) (*domain.FailedArticleRecord, error) {
	return s.records[articleID], nil
}

func (s *memFailedStore) ListUnresolved(_ context.Context, newspaperID int64) ([]*domain.FailedArticleRecord, error) {
	var out []*domain.FailedArticleRecord
	for _, rec := range s.records {
		if rec.NewspaperID == newspaperID && !rec.IsResolved {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memSnapshotStore struct {
	snaps map[int64]string
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snaps: make(map[int64]string)}
}

func (s *memSnapshotStore) Write(articleID int64, source string) error {
	s.snaps[articleID] = source
	return nil
}

func (s *memSnapshotStore) Read(articleID int64) (string, error) {
	source, ok := s.snaps[articleID]
	if !ok {
		return "", fmt.Errorf("no snapshot for article %d", articleID)
	}
	return source, nil
}

type staticConfigStore struct {
	cfg *domain.SourceConfig
}

func (s *staticConfigStore) GetSourceConfig(context.Context, int64) (*domain.SourceConfig, error) {
	return s.cfg, nil
}

const snapshotPage = `<html><body>
<h1>Old headline</h1>
<div class="article-text"><p>Recovered body.</p></div>
<span class="byline">S. Writer</span>
<time>2024-02-01</time>
</body></html>`

// correctedConfig matches snapshotPage; the body selector was the one
// originally misconfigured.
func correctedConfig() *domain.SourceConfig {
	return &domain.SourceConfig{
		NewspaperID:   9,
		ExecutionMode: domain.ModeStatic,
		Header:        []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "h1"}},
		Body:          []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".article-text p"}},
		Author:        []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: ".byline"}},
		Date:          []domain.FieldRule{{Kind: domain.LocatorCSS, Locator: "time"}},
	}
}

func failedRecord(articleID int64) *domain.FailedArticleRecord {
	return &domain.FailedArticleRecord{
		ArticleID:   articleID,
		NewspaperID: 9,
		Snapshot:    domain.FailureSnapshot{URL: fmt.Sprintf("https://news.example/a/%d", articleID)},
	}
}

func TestReparseResolvesRecordWithoutRetryIncrement(t *testing.T) {
	failed := newMemFailedStore()
	snaps := newMemSnapshotStore()
	require.NoError(t, failed.Upsert(context.Background(), failedRecord(501)))
	require.NoError(t, snaps.Write(501, snapshotPage))

	rp := capture.NewReparser(failed, snaps, &staticConfigStore{cfg: correctedConfig()}, zap.NewNop())
	outcomes, err := rp.Reparse(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.True(t, outcomes[0].Resolved)
	assert.Empty(t, outcomes[0].Missing)
	require.NotNil(t, outcomes[0].Result)
	assert.Equal(t, "Recovered body.", outcomes[0].Result.Body)

	rec, err := failed.Get(context.Background(), 501)
	require.NoError(t, err)
	assert.True(t, rec.IsResolved)
	assert.Equal(t, 1, rec.RetryCount, "a successful reparse must not count as a retry")
}

func TestReparseStillMissingCountsTheAttempt(t *testing.T) {
	failed := newMemFailedStore()
	snaps := newMemSnapshotStore()
	require.NoError(t, failed.Upsert(context.Background(), failedRecord(502)))
	require.NoError(t, snaps.Write(502, `<html><body><h1>Only headline</h1></body></html>`))

	rp := capture.NewReparser(failed, snaps, &staticConfigStore{cfg: correctedConfig()}, zap.NewNop())
	outcomes, err := rp.Reparse(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.False(t, outcomes[0].Resolved)
	assert.Equal(t, []string{"author", "body", "date"}, outcomes[0].Missing)

	rec, err := failed.Get(context.Background(), 502)
	require.NoError(t, err)
	assert.False(t, rec.IsResolved)
	assert.Equal(t, 2, rec.RetryCount)
}

func TestReparseSkipsRecordWithoutSnapshot(t *testing.T) {
	failed := newMemFailedStore()
	require.NoError(t, failed.Upsert(context.Background(), failedRecord(503)))

	rp := capture.NewReparser(failed, newMemSnapshotStore(), &staticConfigStore{cfg: correctedConfig()}, zap.NewNop())
	outcomes, err := rp.Reparse(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.False(t, outcomes[0].Resolved)
	assert.Contains(t, outcomes[0].Skipped, "snapshot unavailable")

	rec, err := failed.Get(context.Background(), 503)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RetryCount, "a skipped reparse must not count as a retry")
}

func TestReparseIgnoresResolvedRecords(t *testing.T) {
	failed := newMemFailedStore()
	snaps := newMemSnapshotStore()
	require.NoError(t, failed.Upsert(context.Background(), failedRecord(504)))
	require.NoError(t, snaps.Write(504, snapshotPage))
	require.NoError(t, failed.MarkResolved(context.Background(), 504))

	rp := capture.NewReparser(failed, snaps, &staticConfigStore{cfg: correctedConfig()}, zap.NewNop())
	outcomes, err := rp.Reparse(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestReparseRecordOnResolvedRecordIsIdempotent(t *testing.T) {
	failed := newMemFailedStore()
	snaps := newMemSnapshotStore()
	require.NoError(t, failed.Upsert(context.Background(), failedRecord(506)))
	require.NoError(t, snaps.Write(506, snapshotPage))
	require.NoError(t, failed.MarkResolved(context.Background(), 506))

	rp := capture.NewReparser(failed, snaps, &staticConfigStore{cfg: correctedConfig()}, zap.NewNop())
	rec, err := failed.Get(context.Background(), 506)
	require.NoError(t, err)

	outcome := rp.ReparseRecord(context.Background(), correctedConfig(), rec)
	assert.True(t, outcome.Resolved)

	after, err := failed.Get(context.Background(), 506)
	require.NoError(t, err)
	assert.True(t, after.IsResolved)
	assert.Equal(t, 1, after.RetryCount, "re-resolving must not touch the retry count")
}

func TestReparseRequestNeverRepublishes(t *testing.T) {
	rec := failedRecord(505)
	rec.Snapshot.Headline = "Budget approved"
	rec.Snapshot.Sector = "politics"

	req := rec.Request()
	assert.False(t, req.Publish)
	assert.Equal(t, rec.Snapshot.URL, req.URL)
	assert.Equal(t, "politics", req.Sector)
}
