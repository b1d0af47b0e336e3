package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"relator-ai/internal/domain"
	"relator-ai/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// APIError is a provider HTTP error carrying the status code so the retry
// executor can classify it without string matching.
type APIError struct {
	StatusCode int
	Body       string
	Err        error // mapped domain sentinel, or nil
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: API error %d: %s", e.Err, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus implements the status interface consumed by the retry executor.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// doJSONRequest performs a JSON POST request and returns the response body.
// It handles: create request, set headers, execute, read body (with limit),
// and check HTTP status code. Returns an *APIError for non-200 responses.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// mapHTTPError maps an HTTP status code + response body to an *APIError
// wrapping a domain sentinel. The sentinel drives user-facing messages and
// retry classification.
func mapHTTPError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}

	switch {
	case statusCode == http.StatusTooManyRequests: // 429
		apiErr.Err = domain.ErrRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		apiErr.Err = domain.ErrAuthInvalid
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		apiErr.Err = domain.ErrContextOverflow
	case statusCode == 529:
		apiErr.Err = domain.ErrOverloaded
	case statusCode >= 500:
		apiErr.Err = domain.ErrOverloaded
	}

	return apiErr
}

// StatusCodeOf extracts the HTTP status from a provider error chain, or 0.
func StatusCodeOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// logChatCompleted logs the standard debug message after a successful LLM chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.Total(),
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.input_tokens", usage.InputTokens),
		tracer.IntAttr("llm.output_tokens", usage.OutputTokens),
		tracer.IntAttr("llm.cache_read_tokens", usage.CacheReadTokens),
		tracer.IntAttr("llm.cache_creation_tokens", usage.CacheCreationTokens),
	)
}
