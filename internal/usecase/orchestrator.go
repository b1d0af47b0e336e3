package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"relator-ai/internal/domain"
	"relator-ai/internal/infra/tracer"
)

// Prompts for the drafting operations. The user-facing material is in
// Portuguese because the produced decisions are.
const (
	extractTopicsSystem = `Você é um assistente de magistrado trabalhista. Extraia da petição inicial e da contestação os tópicos (pedidos e questões) a decidir.
Responda somente com JSON: {"topics": [{"title": "...", "category": "preliminar|prejudicial|mérito", "summary": "..."}]}`

	orderTopicsSystem = `Ordene os tópicos a seguir na sequência processual correta: preliminares, prejudiciais, mérito.
Responda somente com JSON: {"order": [índices 1-based na nova sequência]}`

	analyzeTopicSystem = `Você é um assistente de magistrado trabalhista. Analise o tópico indicado à luz dos autos.
Responda somente com JSON: {"topic": "...", "thesis": "...", "grounds": ["..."], "outcome": "procedente|improcedente|parcialmente procedente", "confidence": 0.0, "citations": ["..."]}`

	dispositivoSystem = `Você é um assistente de magistrado trabalhista. Redija o dispositivo (parte conclusiva) da sentença a partir das análises decididas, em linguagem formal forense.`

	importModelsSystem = `O documento a seguir contém modelos de fundamentação reutilizáveis. Separe cada modelo.
Responda somente com JSON: {"models": [{"title": "...", "category": "preliminar|prejudicial|mérito", "body": "..."}]}`
)

// Orchestrator exposes the high-level drafting operations. Each one
// assembles a request, runs it through the retry executor against the
// configured provider chain, validates the model's output, and updates
// the token metrics.
type Orchestrator struct {
	provider       domain.LLMProvider
	metrics        *TokenMetrics
	checker        *DoubleChecker
	logger         *slog.Logger
	thinkingBudget int
	retryPolicy    RetryPolicy
}

func NewOrchestrator(provider domain.LLMProvider, metrics *TokenMetrics, checker *DoubleChecker, thinkingBudget int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:       provider,
		metrics:        metrics,
		checker:        checker,
		logger:         logger,
		thinkingBudget: thinkingBudget,
		retryPolicy:    LLMRetryPolicy(),
	}
}

// Metrics exposes the accumulator for status reporting.
func (o *Orchestrator) Metrics() *TokenMetrics { return o.metrics }

// CallAI performs one resilient model call and returns the response text.
func (o *Orchestrator) CallAI(ctx context.Context, messages []domain.Message, opts domain.CallOptions) (string, error) {
	if o.provider == nil {
		return "", domain.NewDomainError("orchestrator", domain.ErrAIUnavailable, "no provider configured")
	}

	ctx, span := tracer.StartSpan(ctx, "usecase.call_ai",
		trace.WithAttributes(tracer.StringAttr("llm.provider", o.provider.Name())))
	defer span.End()

	req := BuildChatRequest(o.provider, messages, opts)

	policy := o.retryPolicy
	policy.Timeout = opts.Timeout
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.logger.Warn("retrying model call", "attempt", attempt, "delay", delay, "error", err)
	}

	resp, err := ExecuteWithRetry(ctx, policy, func(ctx context.Context) (*domain.ChatResponse, error) {
		return o.provider.Chat(ctx, req)
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	text := strings.TrimSpace(resp.Message.Content)

	if !opts.SkipMetrics {
		usage := resp.Usage
		if usage.Total() == 0 {
			usage = EstimateUsage(req, text)
		}
		o.metrics.Record(usage)
	}

	span.SetAttributes(
		tracer.IntAttr("llm.input_tokens", resp.Usage.InputTokens),
		tracer.IntAttr("llm.output_tokens", resp.Usage.OutputTokens),
	)
	tracer.SetOK(span)
	return text, nil
}

// ExtractTopics pulls the list of legal topics to decide out of the case
// documents. When a double-checker is configured, its correction report
// accompanies the result; audit failures never block the extraction.
func (o *Orchestrator) ExtractTopics(ctx context.Context, caseText string) ([]domain.Topic, *domain.CorrectionsReport, error) {
	text, err := o.CallAI(ctx, caseDocumentMessages(caseText), domain.CallOptions{
		System:         extractTopicsSystem,
		ThinkingBudget: o.thinkingBudget,
	})
	if err != nil {
		return nil, nil, err
	}

	topics, err := ParseTopics(text)
	if err != nil {
		return nil, nil, err
	}

	var report *domain.CorrectionsReport
	if o.checker != nil {
		report = o.checker.Verify(ctx, AuditTopics, text, caseText)
	}
	return topics, report, nil
}

// OrderTopics asks the model for the procedural ordering of topics and
// applies it. Any failure degrades to the input order: misordering is
// acceptable, losing or blocking on topics is not.
func (o *Orchestrator) OrderTopics(ctx context.Context, topics []domain.Topic) []domain.Topic {
	if len(topics) < 2 {
		return topics
	}

	var sb strings.Builder
	for i, t := range topics {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, t.Category, t.Title)
	}

	text, err := o.CallAI(ctx, []domain.Message{domain.UserMessage(sb.String())}, domain.CallOptions{
		System:           orderTopicsSystem,
		DisableReasoning: true,
	})
	if err != nil {
		o.logger.Warn("topic ordering call failed, keeping original order", "error", err)
		return topics
	}
	return ResolveTopicOrder(topics, text)
}

// AnalyzeTopic produces the structured legal analysis for one topic.
func (o *Orchestrator) AnalyzeTopic(ctx context.Context, topic domain.Topic, caseText string) (*domain.LegalAnalysis, error) {
	prompt := fmt.Sprintf("Tópico: %s (%s)\n%s", topic.Title, topic.Category, topic.Summary)
	messages := append(caseDocumentMessages(caseText), domain.UserMessage(prompt))

	text, err := o.CallAI(ctx, messages, domain.CallOptions{
		System:         analyzeTopicSystem,
		ThinkingBudget: o.thinkingBudget,
	})
	if err != nil {
		return nil, err
	}
	return ParseLegalAnalysis(text)
}

// GenerateDispositivo drafts the operative clause from the decided
// analyses. The output is free text, not JSON.
func (o *Orchestrator) GenerateDispositivo(ctx context.Context, analyses []domain.LegalAnalysis) (string, *domain.CorrectionsReport, error) {
	var sb strings.Builder
	for _, a := range analyses {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", a.Topic, a.Thesis, a.Outcome)
	}

	text, err := o.CallAI(ctx, []domain.Message{domain.UserMessage(sb.String())}, domain.CallOptions{
		System:         dispositivoSystem,
		ThinkingBudget: o.thinkingBudget,
	})
	if err != nil {
		return "", nil, err
	}

	var report *domain.CorrectionsReport
	if o.checker != nil {
		report = o.checker.Verify(ctx, AuditDispositivo, text, sb.String())
	}
	return text, report, nil
}

// ImportModels splits a bulk document of reusable decision templates.
func (o *Orchestrator) ImportModels(ctx context.Context, documentText string) ([]domain.ModelTemplate, error) {
	text, err := o.CallAI(ctx, caseDocumentMessages(documentText), domain.CallOptions{
		System:           importModelsSystem,
		DisableReasoning: true,
	})
	if err != nil {
		return nil, err
	}
	return ParseModelTemplates(text)
}

// caseDocumentMessages wraps the case material as a block-typed user
// message so the request builder can mark it cache-eligible across the
// several calls of one drafting session.
func caseDocumentMessages(caseText string) []domain.Message {
	return []domain.Message{{
		Role: domain.RoleUser,
		Blocks: []domain.ContentBlock{
			domain.TextBlock(caseText),
			domain.TextBlock("Considere o material acima."),
		},
	}}
}
