package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/extractor-service/internal/domain"
)

// PostgresStore handles interactions with the PostgreSQL database: extracted
// articles, failed-article records, remediation records and the per-source
// configuration documents.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// SaveArticle upserts one extraction result keyed by article id.
func (s *PostgresStore) SaveArticle(ctx context.Context, res *domain.ExtractionResult) error {
	keywords, err := json.Marshal(res.Keywords)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO articles (article_id, newspaper_id, header, body, author, raw_date, parsed_date, language, keywords, link, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::timestamptz, $8, $9, $10, NOW())
		 ON CONFLICT (article_id) DO UPDATE SET
		   header = EXCLUDED.header, body = EXCLUDED.body, author = EXCLUDED.author,
		   raw_date = EXCLUDED.raw_date, parsed_date = EXCLUDED.parsed_date,
		   language = EXCLUDED.language, keywords = EXCLUDED.keywords,
		   link = EXCLUDED.link, updated_at = NOW()`,
		res.ArticleID, res.NewspaperID, res.Header, res.Body, res.Author,
		res.RawDate, res.ParsedDate, res.Language, keywords, res.Link,
	)
	if err != nil {
		return fmt.Errorf("save article %d: %w", res.ArticleID, err)
	}
	return nil
}

// Upsert records a partial extraction failure. A first failure inserts with
// retry_count 1; repeats refresh last_updated_at and increment retry_count
// exactly once per call. is_resolved stays false on this path.
func (s *PostgresStore) Upsert(ctx context.Context, rec *domain.FailedArticleRecord) error {
	info, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO failed_articles (article_id, newspaper_id, first_failure_at, last_updated_at, is_resolved, retry_count, info)
		 VALUES ($1, $2, NOW(), NOW(), FALSE, 1, $3)
		 ON CONFLICT (article_id) DO UPDATE SET
		   last_updated_at = NOW(),
		   is_resolved = FALSE,
		   retry_count = failed_articles.retry_count + 1,
		   info = EXCLUDED.info`,
		rec.ArticleID, rec.NewspaperID, info,
	)
	if err != nil {
		return fmt.Errorf("upsert failed article %d: %w", rec.ArticleID, err)
	}
	return nil
}

// MarkResolved flips is_resolved after a clean reparse run. The retry count
// is left untouched; a successful run is not a retry.
func (s *PostgresStore) MarkResolved(ctx context.Context, articleID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE failed_articles SET is_resolved = TRUE, last_updated_at = NOW() WHERE article_id = $1`,
		articleID,
	)
	if err != nil {
		return fmt.Errorf("mark article %d resolved: %w", articleID, err)
	}
	return nil
}

// Get returns the failure record for one article, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, articleID int64) (*domain.FailedArticleRecord, error) {
	rec, err := scanFailedArticle(s.db.QueryRow(ctx,
		`SELECT article_id, newspaper_id, first_failure_at, last_updated_at, is_resolved, retry_count, info
		 FROM failed_articles WHERE article_id = $1`, articleID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListUnresolved returns the unresolved failure records for one source.
func (s *PostgresStore) ListUnresolved(ctx context.Context, newspaperID int64) ([]*domain.FailedArticleRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT article_id, newspaper_id, first_failure_at, last_updated_at, is_resolved, retry_count, info
		 FROM failed_articles WHERE newspaper_id = $1 AND NOT is_resolved`, newspaperID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved for newspaper %d: %w", newspaperID, err)
	}
	defer rows.Close()

	var records []*domain.FailedArticleRecord
	for rows.Next() {
		rec, scanErr := scanFailedArticle(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFailedArticle(row rowScanner) (*domain.FailedArticleRecord, error) {
	var rec domain.FailedArticleRecord
	var info []byte
	if err := row.Scan(&rec.ArticleID, &rec.NewspaperID, &rec.FirstFailureAt,
		&rec.LastUpdatedAt, &rec.IsResolved, &rec.RetryCount, &info); err != nil {
		return nil, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("decode failure snapshot %d: %w", rec.ArticleID, err)
		}
	}
	return &rec, nil
}

// UpsertRemediation records an enrichment result that was rejected by the
// validation gate or produced no result, keyed by (article, source).
func (s *PostgresStore) UpsertRemediation(ctx context.Context, articleID, newspaperID int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO remediation_articles (article_id, newspaper_id, retry_attempt, updated_at)
		 VALUES ($1, $2, 1, NOW())
		 ON CONFLICT (article_id, newspaper_id) DO UPDATE SET
		   retry_attempt = remediation_articles.retry_attempt + 1, updated_at = NOW()`,
		articleID, newspaperID,
	)
	if err != nil {
		return fmt.Errorf("upsert remediation %d: %w", articleID, err)
	}
	return nil
}

// SaveEnrichment persists an accepted enrichment payload.
func (s *PostgresStore) SaveEnrichment(ctx context.Context, articleID, newspaperID int64, header, link, sector string, payload []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO enrichments (article_id, newspaper_id, header, link, sector, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (article_id) DO UPDATE SET
		   header = EXCLUDED.header, link = EXCLUDED.link, sector = EXCLUDED.sector,
		   payload = EXCLUDED.payload, created_at = NOW()`,
		articleID, newspaperID, header, link, sector, payload,
	)
	if err != nil {
		return fmt.Errorf("save enrichment %d: %w", articleID, err)
	}
	return nil
}
