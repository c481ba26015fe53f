// Package dispatch routes extraction requests to the right backend for
// their source, persists the results and hands published articles to the
// messaging layer.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/backend"
	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/notify"
	"github.com/user/extractor-service/internal/proxy"
	"github.com/user/extractor-service/internal/queue"
)

// SourceStore loads per-source configuration and authentication material.
type SourceStore interface {
	GetSourceConfig(ctx context.Context, newspaperID int64) (*domain.SourceConfig, error)
	GetAuthState(ctx context.Context, newspaperID int64) (*domain.AuthState, error)
	GetCredentials(ctx context.Context, newspaperID int64) (map[string]string, error)
}

// ArticleStore persists extraction results.
type ArticleStore interface {
	SaveArticle(ctx context.Context, res *domain.ExtractionResult) error
}

// Dispatcher owns backend selection and the full lifecycle of one
// extraction run: load config, build backend, authenticate, extract,
// persist, publish.
type Dispatcher struct {
	sources   SourceStore
	articles  ArticleStore
	recorder  *capture.Recorder
	publisher *queue.Publisher
	notifier  notify.Notifier
	metrics   *monitoring.Metrics
	proxies   *proxy.Manager
	timeout   time.Duration
	logger    *zap.Logger
}

func NewDispatcher(sources SourceStore, articles ArticleStore, rec *capture.Recorder,
	pub *queue.Publisher, n notify.Notifier, m *monitoring.Metrics, pm *proxy.Manager,
	timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sources:   sources,
		articles:  articles,
		recorder:  rec,
		publisher: pub,
		notifier:  n,
		metrics:   m,
		proxies:   pm,
		timeout:   timeout,
		logger:    logger,
	}
}

// ExtractOne runs a single request end to end.
func (d *Dispatcher) ExtractOne(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	results, err := d.runGroup(ctx, req.NewspaperID, []domain.ExtractionRequest{req})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("article %d produced no result", req.ArticleID)
	}
	return results[0], nil
}

// ExtractBatch groups requests by source, preserving the first-seen order of
// sources, and runs each group on one shared backend session. A group that
// fails does not abort the others.
func (d *Dispatcher) ExtractBatch(ctx context.Context, reqs []domain.ExtractionRequest) []*domain.ExtractionResult {
	groups := make(map[int64][]domain.ExtractionRequest)
	var order []int64
	for _, req := range reqs {
		if _, seen := groups[req.NewspaperID]; !seen {
			order = append(order, req.NewspaperID)
		}
		groups[req.NewspaperID] = append(groups[req.NewspaperID], req)
	}

	var results []*domain.ExtractionResult
	for _, newspaperID := range order {
		group := groups[newspaperID]
		groupResults, err := d.runGroup(ctx, newspaperID, group)
		if err != nil {
			d.logger.Error("source group failed",
				zap.Int64("newspaper_id", newspaperID), zap.Int("articles", len(group)), zap.Error(err))
		}
		results = append(results, groupResults...)
	}
	return results
}

func (d *Dispatcher) runGroup(ctx context.Context, newspaperID int64, reqs []domain.ExtractionRequest) ([]*domain.ExtractionResult, error) {
	cfg, err := d.sources.GetSourceConfig(ctx, newspaperID)
	if err != nil {
		d.metrics.IncErrors("config_load_failed")
		return nil, fmt.Errorf("load config for source %d: %w", newspaperID, err)
	}

	b, err := d.backendFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	session, err := b.NewSession(ctx)
	if err != nil {
		d.metrics.IncErrors("session_failed")
		return nil, fmt.Errorf("open session for source %d: %w", newspaperID, err)
	}
	defer session.Close()

	if ok, err := b.Authenticate(ctx, session); !ok {
		if err == nil {
			err = backend.ErrAuthFailed
		}
		return nil, err
	}

	results, err := b.ExtractBatch(ctx, session, reqs)

	byArticle := make(map[int64]domain.ExtractionRequest, len(reqs))
	for _, req := range reqs {
		byArticle[req.ArticleID] = req
	}
	for _, res := range results {
		d.persist(ctx, byArticle[res.ArticleID], res)
	}
	return results, err
}

// backendFor selects the backend variant for the source's execution mode.
// A login-protected source configured for static extraction is a fatal
// configuration error, alerted before it can silently produce partials.
func (d *Dispatcher) backendFor(ctx context.Context, cfg *domain.SourceConfig) (backend.Backend, error) {
	switch cfg.ExecutionMode {
	case domain.ModeStatic:
		if cfg.RequiresLogin() {
			d.metrics.IncErrors("config_invalid")
			d.notifier.Alert(ctx, "source misconfigured", map[string]any{
				"newspaper_id": cfg.NewspaperID,
				"error":        backend.ErrLoginRequiresBrowser.Error(),
			})
			return nil, backend.ErrLoginRequiresBrowser
		}
		return backend.NewStatic(cfg, d.recorder, d.metrics, d.proxies, d.timeout, d.logger), nil

	case domain.ModeBrowser:
		var (
			auth  *domain.AuthState
			creds map[string]string
		)
		if cfg.RequiresLogin() {
			var err error
			if auth, err = d.sources.GetAuthState(ctx, cfg.NewspaperID); err != nil {
				return nil, fmt.Errorf("load auth state for source %d: %w", cfg.NewspaperID, err)
			}
			if creds, err = d.sources.GetCredentials(ctx, cfg.NewspaperID); err != nil {
				return nil, fmt.Errorf("load credentials for source %d: %w", cfg.NewspaperID, err)
			}
		}
		return backend.NewBrowser(cfg, auth, creds, d.recorder, d.metrics, d.proxies, d.timeout, d.logger), nil

	default:
		return nil, fmt.Errorf("unknown execution mode %q for source %d", cfg.ExecutionMode, cfg.NewspaperID)
	}
}

// StreamHandler adapts the dispatcher to the queue consumer. Message bodies
// are either one request object or an array of them.
func (d *Dispatcher) StreamHandler() queue.Handler {
	return func(ctx context.Context, body string) error {
		var reqs []domain.ExtractionRequest
		if err := json.Unmarshal([]byte(body), &reqs); err != nil {
			var single domain.ExtractionRequest
			if err := json.Unmarshal([]byte(body), &single); err != nil {
				return fmt.Errorf("decode extraction request: %w", err)
			}
			reqs = []domain.ExtractionRequest{single}
		}
		d.ExtractBatch(ctx, reqs)
		return nil
	}
}

func (d *Dispatcher) persist(ctx context.Context, req domain.ExtractionRequest, res *domain.ExtractionResult) {
	if err := d.articles.SaveArticle(ctx, res); err != nil {
		d.metrics.IncErrors("db_save_failed")
		d.logger.Error("failed to save article",
			zap.Int64("article_id", res.ArticleID), zap.Error(err))
		return
	}
	if req.Publish && d.publisher != nil {
		if _, err := d.publisher.Publish(ctx, res); err != nil {
			d.metrics.IncErrors("publish_failed")
			d.logger.Error("failed to publish article",
				zap.Int64("article_id", res.ArticleID), zap.Error(err))
		}
	}
}
