package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/domain"
	"github.com/user/extractor-service/internal/monitoring"
)

// Analysis is the structure the model is asked to return.
type Analysis struct {
	Sector   string   `json:"sector"`
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
	Score    float64  `json:"score"`
}

// Store is the persistence surface the processor needs.
type Store interface {
	SaveEnrichment(ctx context.Context, articleID, newspaperID int64, header, link, sector string, payload []byte) error
	UpsertRemediation(ctx context.Context, articleID, newspaperID int64) error
}

// Processor consumes extracted articles, enriches them through the model and
// gates the output on the validation score. Articles the model cannot score
// above the threshold land in the remediation table instead of being saved.
type Processor struct {
	gen       *Generator
	store     Store
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	threshold float64
}

func NewProcessor(gen *Generator, store Store, m *monitoring.Metrics, threshold float64, logger *zap.Logger) *Processor {
	return &Processor{gen: gen, store: store, metrics: m, logger: logger, threshold: threshold}
}

// Handle is the stream handler for extracted-article messages. Model and
// parsing failures are terminal for the message: the article is routed to
// remediation and the message is considered processed.
func (p *Processor) Handle(ctx context.Context, body string) error {
	var res domain.ExtractionResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return fmt.Errorf("decode extraction result: %w", err)
	}
	if res.ArticleID == 0 {
		return fmt.Errorf("extraction result without article_id")
	}

	out, err := p.gen.Generate(ctx, buildPrompt(&res))
	if err != nil {
		p.logger.Warn("enrichment generation failed, routing to remediation",
			zap.Int64("article_id", res.ArticleID), zap.Error(err))
		return p.remediate(ctx, &res, "no_result")
	}

	analysis, err := parseAnalysis(out)
	if err != nil {
		p.logger.Warn("model returned an unparseable analysis",
			zap.Int64("article_id", res.ArticleID), zap.Error(err))
		return p.remediate(ctx, &res, "no_result")
	}
	if analysis.Score <= p.threshold {
		p.logger.Info("analysis below validation threshold",
			zap.Int64("article_id", res.ArticleID), zap.Float64("score", analysis.Score))
		return p.remediate(ctx, &res, "remediation")
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	if err := p.store.SaveEnrichment(ctx, res.ArticleID, res.NewspaperID, res.Header, res.Link, analysis.Sector, payload); err != nil {
		p.metrics.IncErrors("db_save_failed")
		return err
	}
	p.metrics.IncEnrichment("accepted")
	p.logger.Info("article enriched",
		zap.Int64("article_id", res.ArticleID), zap.Float64("score", analysis.Score))
	return nil
}

func (p *Processor) remediate(ctx context.Context, res *domain.ExtractionResult, outcome string) error {
	if err := p.store.UpsertRemediation(ctx, res.ArticleID, res.NewspaperID); err != nil {
		p.metrics.IncErrors("db_save_failed")
		return err
	}
	p.metrics.IncEnrichment(outcome)
	return nil
}

func buildPrompt(res *domain.ExtractionResult) string {
	var b strings.Builder
	b.WriteString("Analyze the following news article and respond with a single JSON object ")
	b.WriteString(`containing "sector" (string), "keywords" (array of strings), "summary" (string) `)
	b.WriteString(`and "score" (number from 0 to 10 rating how confident you are in the analysis). `)
	b.WriteString("Respond with the JSON object only.\n\n")
	if res.Sector != "" {
		fmt.Fprintf(&b, "Expected sector: %s\n", res.Sector)
	}
	fmt.Fprintf(&b, "Headline: %s\n\n", res.Header)
	fmt.Fprintf(&b, "Article:\n%s\n", res.Body)
	return b.String()
}

// parseAnalysis tolerates markdown code fences around the JSON object.
func parseAnalysis(out string) (*Analysis, error) {
	trimmed := strings.TrimSpace(out)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var a Analysis
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}
