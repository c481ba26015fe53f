package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/proxy"
)

// Static extracts from server-rendered pages over plain HTTP. It cannot drive
// login flows; sources that require one must run in browser mode, which the
// dispatcher enforces before a Static backend is ever built.
type Static struct {
	cfg      *domain.SourceConfig
	client   *http.Client
	recorder *capture.Recorder
	metrics  *monitoring.Metrics
	proxies  *proxy.Manager
	logger   *zap.Logger
}

func NewStatic(cfg *domain.SourceConfig, rec *capture.Recorder, m *monitoring.Metrics,
	pm *proxy.Manager, timeout time.Duration, logger *zap.Logger) *Static {

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyEnabled() {
		if p := pm.GetProxy(); p != "" {
			if proxyURL, err := url.Parse(p); err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}
	return &Static{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout, Transport: transport},
		recorder: rec,
		metrics:  m,
		proxies:  pm,
		logger:   logger,
	}
}

func (b *Static) Mode() domain.ExecutionMode { return domain.ModeStatic }

func (b *Static) NewSession(ctx context.Context) (Session, error) {
	return &staticSession{client: b.client, userAgent: b.proxies.GetUserAgent()}, nil
}

func (b *Static) Authenticate(ctx context.Context, s Session) (bool, error) {
	if b.cfg.RequiresLogin() {
		return false, ErrLoginRequiresBrowser
	}
	return true, nil
}

func (b *Static) IsProtected(ctx context.Context, s Session) bool { return false }

func (b *Static) ExtractOne(ctx context.Context, s Session, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	return extractFrom(ctx, s, b.cfg, req, b.recorder, b.metrics, b.logger)
}

func (b *Static) ExtractBatch(ctx context.Context, s Session, reqs []domain.ExtractionRequest) ([]*domain.ExtractionResult, error) {
	run := newRunState()
	results := make([]*domain.ExtractionResult, 0, len(reqs))

	for i, req := range reqs {
		if i > 0 {
			select {
			case <-time.After(b.cfg.PageWait()):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		res, err := b.ExtractOne(ctx, s, req)
		if err != nil {
			b.logger.Warn("article extraction failed",
				zap.Int64("article_id", req.ArticleID), zap.String("url", req.URL), zap.Error(err))
			continue
		}
		run.observe(req, res)
		results = append(results, res)
	}

	if !run.missing.Empty() {
		b.recorder.AlertRun(ctx, b.cfg, run.missing, run.affected)
	}
	return results, nil
}

type staticSession struct {
	client    *http.Client
	userAgent string
	url       string
	source    string
}

func (s *staticSession) Navigate(ctx context.Context, pageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.url = pageURL
	s.source = string(body)
	return nil
}

func (s *staticSession) PageSource(ctx context.Context) (string, error) { return s.source, nil }
func (s *staticSession) CurrentURL(ctx context.Context) (string, error) { return s.url, nil }

func (s *staticSession) Type(ctx context.Context, rule domain.FieldRule, text string) error {
	return ErrAuthUnsupported
}

func (s *staticSession) Click(ctx context.Context, rule domain.FieldRule) error {
	return ErrAuthUnsupported
}

func (s *staticSession) SetCookies(ctx context.Context, rawCookies, cookieDomain string) error {
	return ErrAuthUnsupported
}

func (s *staticSession) Has(ctx context.Context, rule domain.FieldRule) (bool, error) {
	return false, nil
}

func (s *staticSession) Close() {}
