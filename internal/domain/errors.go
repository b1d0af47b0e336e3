package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrAIUnavailable    = fmt.Errorf("nenhum provedor de IA disponível")
	ErrEmptyMessage     = fmt.Errorf("mensagem vazia")
	ErrGenerating       = fmt.Errorf("já existe uma geração em andamento")
	ErrChatStore        = fmt.Errorf("chat store operation failed")

	// Resilience errors.
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrOverloaded       = fmt.Errorf("provider overloaded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrContextOverflow  = fmt.Errorf("context window exceeded")
	ErrRetriesExhausted = fmt.Errorf("retries exhausted")
	ErrCancelled        = fmt.Errorf("operation cancelled")
	ErrAttemptTimeout   = fmt.Errorf("operation timed out")

	// Validation errors.
	ErrNoJSONFound   = fmt.Errorf("no JSON found in model output")
	ErrInvalidShape  = fmt.Errorf("model output does not match expected shape")
	ErrMalformedJSON = fmt.Errorf("malformed JSON in model output")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g. "Chat.Send")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeAIUnavailable    ErrorCode = "AI_UNAVAILABLE"
	CodeEmptyMessage     ErrorCode = "EMPTY_MESSAGE"
	CodeGenerating       ErrorCode = "GENERATION_IN_PROGRESS"
	CodeChatStore        ErrorCode = "CHAT_STORE"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeOverloaded       ErrorCode = "OVERLOADED"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
	CodeCancelled        ErrorCode = "CANCELLED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeNoJSONFound      ErrorCode = "NO_JSON_FOUND"
	CodeInvalidShape     ErrorCode = "INVALID_SHAPE"
	CodeMalformedJSON    ErrorCode = "MALFORMED_JSON"
)

var errorCodeMap = map[error]ErrorCode{
	ErrProviderNotFound: CodeProviderNotFound,
	ErrAIUnavailable:    CodeAIUnavailable,
	ErrEmptyMessage:     CodeEmptyMessage,
	ErrGenerating:       CodeGenerating,
	ErrChatStore:        CodeChatStore,
	ErrRateLimit:        CodeRateLimit,
	ErrOverloaded:       CodeOverloaded,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrContextOverflow:  CodeContextOverflow,
	ErrRetriesExhausted: CodeRetriesExhausted,
	ErrCancelled:        CodeCancelled,
	ErrAttemptTimeout:   CodeTimeout,
	ErrNoJSONFound:      CodeNoJSONFound,
	ErrInvalidShape:     CodeInvalidShape,
	ErrMalformedJSON:    CodeMalformedJSON,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// UserMessageFor maps a terminal error to the short message shown to the
// user: retry guidance for exhausted transient failures, credential guidance
// for permanent ones, and a distinct notice for cancellation. Never includes
// a stack trace or raw provider payload.
func UserMessageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "Operação cancelada."
	case errors.Is(err, ErrAttemptTimeout):
		return "A operação excedeu o tempo limite. Tente novamente."
	case errors.Is(err, ErrRetriesExhausted), errors.Is(err, ErrRateLimit), errors.Is(err, ErrOverloaded):
		return "O serviço de IA está instável no momento. Tente novamente em instantes."
	case errors.Is(err, ErrAuthInvalid):
		return "Falha de autenticação com o provedor de IA. Verifique suas credenciais."
	case errors.Is(err, ErrEmptyMessage):
		return "Mensagem vazia"
	case errors.Is(err, ErrAIUnavailable):
		return "IA não disponível. Configure um provedor."
	case errors.Is(err, ErrNoJSONFound), errors.Is(err, ErrInvalidShape), errors.Is(err, ErrMalformedJSON):
		return "A resposta do modelo veio em formato inesperado. Tente novamente."
	default:
		return "Não foi possível concluir a operação. Verifique os dados e tente novamente."
	}
}
