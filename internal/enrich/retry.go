package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/notify"
)

// ErrKeysExhausted means every key in the pool hit its quota during one
// generation. The pool index is already reset when this is returned.
var ErrKeysExhausted = errors.New("all enrichment API keys exhausted")

// KeyPool is an ordered pool of API keys with a forward-only cursor. The
// cursor never wraps silently: advancing past the last key resets it to the
// first and reports exhaustion, so the caller decides what a full cycle
// means.
type KeyPool struct {
	mu    sync.Mutex
	keys  []string
	index int
}

func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{keys: keys}
}

func (p *KeyPool) Size() int { return len(p.keys) }

// Current returns the key under the cursor.
func (p *KeyPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.index]
}

// Advance moves the cursor to the next key. When the pool is exhausted it
// resets the cursor to the first key and returns ok=false.
func (p *KeyPool) Advance() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", false
	}
	p.index++
	if p.index >= len(p.keys) {
		p.index = 0
		return "", false
	}
	return p.keys[p.index], true
}

// Generator wraps a ModelClient with key rotation. Quota errors rotate to
// the next key and retry; any other model error is final. The attempt loop
// is bounded independently of pool size.
type Generator struct {
	pool        *KeyPool
	client      ModelClient
	notifier    notify.Notifier
	logger      *zap.Logger
	maxAttempts int
}

func NewGenerator(pool *KeyPool, client ModelClient, n notify.Notifier, maxAttempts int, logger *zap.Logger) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Generator{pool: pool, client: client, notifier: n, logger: logger, maxAttempts: maxAttempts}
}

// Generate runs the prompt through the model, rotating keys on quota errors.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		out, err := g.client.Generate(ctx, g.pool.Current(), prompt)
		if err == nil {
			return out, nil
		}
		if !isQuotaExhausted(err) {
			return "", err
		}
		lastErr = err
		g.logger.Warn("enrichment key hit its quota, rotating",
			zap.Int("attempt", attempt), zap.Error(err))

		if _, ok := g.pool.Advance(); !ok {
			g.notifier.Alert(ctx, "enrichment key pool exhausted", map[string]any{
				"keys":  g.pool.Size(),
				"error": err.Error(),
			})
			return "", ErrKeysExhausted
		}
	}
	return "", errors.Join(errors.New("enrichment attempts exhausted"), lastErr)
}

// isQuotaExhausted matches the provider's rate and quota error signatures.
func isQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted")
}
