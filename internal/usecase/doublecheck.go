package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"relator-ai/internal/domain"
	"relator-ai/internal/infra/tracer"
)

// Audit kinds accepted by Verify.
const (
	AuditTopics      = "topics"
	AuditAnalysis    = "analysis"
	AuditDispositivo = "dispositivo"
)

const auditSystemPrompt = `Você é um revisor técnico de minutas de decisões trabalhistas.
Reexamine o resultado produzido por outro modelo em relação ao material de apoio.
Responda somente com JSON no formato:
{"corrections": [{"type": "remove|add|merge|reclassify|modify|improve", "description": "...", "originalText": "...", "correctedText": "..."}], "confidence": 0.0, "summary": "..."}
Se o resultado estiver correto, responda com "corrections" vazio e confidence alta.`

// DoubleChecker runs a second, independent model pass auditing a primary
// call's output. It is strictly best-effort: whatever goes wrong here is
// logged and reported as "no corrections", never surfaced to the primary
// operation.
type DoubleChecker struct {
	provider domain.LLMProvider
	model    string
	metrics  *TokenMetrics
	logger   *slog.Logger
}

// NewDoubleChecker builds a verifier over the given provider. model, when
// non-empty, overrides the provider's configured model for audit calls.
// Audit tokens count against metrics (may be nil) alongside primary calls.
func NewDoubleChecker(provider domain.LLMProvider, model string, metrics *TokenMetrics, logger *slog.Logger) *DoubleChecker {
	return &DoubleChecker{provider: provider, model: model, metrics: metrics, logger: logger}
}

// Verify audits primaryOutput against supportingContext and returns the
// model's correction list. On any failure the report is empty, not nil,
// so callers can treat the result uniformly.
func (d *DoubleChecker) Verify(ctx context.Context, kind, primaryOutput, supportingContext string) *domain.CorrectionsReport {
	empty := &domain.CorrectionsReport{
		Corrections: []domain.Correction{},
		Confidence:  defaultAuditConfidence,
	}
	if d == nil || d.provider == nil {
		return empty
	}

	ctx, span := tracer.StartSpan(ctx, "usecase.double_check",
		trace.WithAttributes(tracer.StringAttr("audit.kind", kind)))
	defer span.End()

	prompt := fmt.Sprintf("Tipo de verificação: %s\n\nResultado a revisar:\n%s\n\nMaterial de apoio:\n%s",
		kind, primaryOutput, supportingContext)

	req := BuildChatRequest(d.provider,
		[]domain.Message{domain.UserMessage(prompt)},
		domain.CallOptions{System: auditSystemPrompt, Model: d.model},
	)

	resp, err := ExecuteWithRetry(ctx, LLMRetryPolicy(), func(ctx context.Context) (*domain.ChatResponse, error) {
		return d.provider.Chat(ctx, req)
	})
	if err != nil {
		d.logger.Warn("double-check call failed, skipping audit",
			"kind", kind, "provider", d.provider.Name(), "error", err)
		tracer.RecordError(span, err)
		return empty
	}

	// Tokens were spent even when the response turns out unusable.
	if d.metrics != nil {
		usage := resp.Usage
		if usage.Total() == 0 {
			usage = EstimateUsage(req, resp.Message.Content)
		}
		d.metrics.Record(usage)
	}

	report, err := ParseCorrections(resp.Message.Content)
	if err != nil {
		d.logger.Warn("double-check response unusable, skipping audit",
			"kind", kind, "error", err)
		tracer.RecordError(span, err)
		return empty
	}

	d.logger.Info("double-check completed",
		"kind", kind,
		"corrections", len(report.Corrections),
		"confidence", report.Confidence)
	tracer.SetOK(span)
	return report
}
