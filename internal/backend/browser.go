package backend

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/proxy"
)

// Browser extracts through a headless Chrome instance via chromedp. One
// Browser is built per source config; sessions are created per run so a
// batch shares the login and the page pacing.
type Browser struct {
	cfg      *domain.SourceConfig
	auth     *domain.AuthState
	creds    map[string]string
	machine  *Machine
	recorder *capture.Recorder
	metrics  *monitoring.Metrics
	proxies  *proxy.Manager
	timeout  time.Duration
	logger   *zap.Logger
}

func NewBrowser(cfg *domain.SourceConfig, auth *domain.AuthState, creds map[string]string,
	rec *capture.Recorder, m *monitoring.Metrics, pm *proxy.Manager,
	timeout time.Duration, logger *zap.Logger) *Browser {
	return &Browser{
		cfg:      cfg,
		auth:     auth,
		creds:    creds,
		machine:  NewMachine(logger),
		recorder: rec,
		metrics:  m,
		proxies:  pm,
		timeout:  timeout,
		logger:   logger,
	}
}

func (b *Browser) Mode() domain.ExecutionMode { return domain.ModeBrowser }

func (b *Browser) NewSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", ""),
		chromedp.Flag("disable-dev-shm-usage", ""),
		chromedp.UserAgent(b.proxies.GetUserAgent()),
	)
	if b.cfg.ProxyEnabled() {
		if p := b.proxies.GetProxy(); p != "" {
			opts = append(opts, chromedp.ProxyServer(p))
		}
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// Forces the browser process to start now so session setup failures
	// surface here rather than on the first navigation.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, err
	}
	return &browserSession{
		ctx:         taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		timeout:     b.timeout,
	}, nil
}

func (b *Browser) Authenticate(ctx context.Context, s Session) (bool, error) {
	if !b.cfg.RequiresLogin() {
		return true, nil
	}
	phase, err := b.machine.Login(ctx, s, b.auth, b.creds)
	if phase != PhaseVerified {
		b.metrics.IncErrors("auth_failed")
		b.logger.Warn("authentication failed",
			zap.Int64("newspaper_id", b.cfg.NewspaperID), zap.Error(err))
		return false, err
	}
	return true, nil
}

// IsProtected probes the current page for the configured paywall marker.
// True means the session lost its authentication mid-batch.
func (b *Browser) IsProtected(ctx context.Context, s Session) bool {
	if !b.cfg.RequiresLogin() || b.auth == nil || b.auth.Config == nil || b.auth.Config.SiteIdentifier == nil {
		return false
	}
	present, err := s.Has(ctx, *b.auth.Config.SiteIdentifier)
	if err != nil {
		b.logger.Warn("paywall probe failed", zap.Error(err))
		return false
	}
	return present
}

func (b *Browser) ExtractOne(ctx context.Context, s Session, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	return extractFrom(ctx, s, b.cfg, req, b.recorder, b.metrics, b.logger)
}

// ExtractBatch reuses one authenticated session for the whole batch. Between
// requests it honors the per-source pacing delay and re-authenticates when
// the paywall marker reappears. One request failing does not abort the rest;
// a failed re-authentication does.
func (b *Browser) ExtractBatch(ctx context.Context, s Session, reqs []domain.ExtractionRequest) ([]*domain.ExtractionResult, error) {
	run := newRunState()
	results := make([]*domain.ExtractionResult, 0, len(reqs))

	for i, req := range reqs {
		if i > 0 {
			select {
			case <-time.After(b.cfg.PageWait()):
			case <-ctx.Done():
				return results, ctx.Err()
			}
			if b.IsProtected(ctx, s) {
				if ok, err := b.Authenticate(ctx, s); !ok {
					if err == nil {
						err = ErrAuthFailed
					}
					return results, err
				}
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

type browserSession struct {
	ctx         context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func (s *browserSession) run(parent context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-parent.Done():
		cancel()
		return parent.Err()
	}
}

func (s *browserSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
}

func (s *browserSession) PageSource(ctx context.Context) (string, error) {
	var htmlContent string
	err := s.run(ctx, chromedp.OuterHTML("html", &htmlContent))
	return htmlContent, err
}

func (s *browserSession) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *browserSession) Type(ctx context.Context, rule domain.FieldRule, text string) error {
	return s.run(ctx, chromedp.SendKeys(rule.Locator, text, queryOption(rule.Kind)))
}

func (s *browserSession) Click(ctx context.Context, rule domain.FieldRule) error {
	return s.run(ctx, chromedp.Click(rule.Locator, queryOption(rule.Kind)))
}

func (s *browserSession) Has(ctx context.Context, rule domain.FieldRule) (bool, error) {
	var count int
	err := s.run(ctx, chromedp.Evaluate(hasExpr(rule), &count))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// hasExpr builds a JS element-count expression for the rule so both locator
// kinds probe with one round trip.
func hasExpr(rule domain.FieldRule) string {
	locator := strings.ReplaceAll(rule.Locator, `\`, `\\`)
	locator = strings.ReplaceAll(locator, `"`, `\"`)
	if rule.Kind == domain.LocatorXPath {
		return `document.evaluate("` + locator + `", document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength`
	}
	return `document.querySelectorAll("` + locator + `").length`
}

// SetCookies replays a stored "name=value; name=value" cookie string into
// the browser for the given domain.
func (s *browserSession) SetCookies(ctx context.Context, rawCookies, cookieDomain string) error {
	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		for _, pair := range strings.Split(rawCookies, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, value, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			err := network.SetCookie(strings.TrimSpace(name), strings.TrimSpace(value)).
				WithDomain(cookieDomain).
				WithPath("/").
				Do(c)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *browserSession) Close() {
	s.taskCancel()
	s.allocCancel()
}

func queryOption(kind domain.LocatorKind) chromedp.QueryOption {
	if kind == domain.LocatorXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
