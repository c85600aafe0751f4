package graphql

import (
	stderrors "errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/tallyhq/ledgergate/errors"
)

// Wire error codes. Every error that escapes the pipeline carries exactly
// one of these.
const (
	CodeQueryTooComplex   = "QUERY_TOO_COMPLEX"
	CodeQueryCostExceeded = "QUERY_COST_EXCEEDED"
	CodeInputSizeExceeded = "INPUT_SIZE_EXCEEDED"
	CodeBadUserInput      = "BAD_USER_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
)

const maxMessageBytes = 512

// statusCodes maps wire codes to HTTP status codes.
var statusCodes = map[string]int{
	CodeQueryTooComplex:   http.StatusUnprocessableEntity,
	CodeQueryCostExceeded: http.StatusUnprocessableEntity,
	CodeInputSizeExceeded: http.StatusRequestEntityTooLarge,
	CodeBadUserInput:      http.StatusBadRequest,
	CodeUnauthorized:      http.StatusUnauthorized,
	CodeForbidden:         http.StatusForbidden,
	CodeNotFound:          http.StatusNotFound,
	CodeConflict:          http.StatusConflict,
	CodeRateLimited:       http.StatusTooManyRequests,
	CodeInternal:          http.StatusInternalServerError,
}

// clientFaultCodes keep their message even in hardened mode. They describe
// what the caller sent, never how the server is built.
var clientFaultCodes = map[string]bool{
	CodeBadUserInput:      true,
	CodeInputSizeExceeded: true,
	CodeQueryTooComplex:   true,
	CodeQueryCostExceeded: true,
	CodeRateLimited:       true,
	CodeNotFound:          true,
	CodeConflict:          true,
	CodeForbidden:         true,
	CodeUnauthorized:      true,
}

// ValidationError is one (fieldPath, message) pair from structural or
// schema validation.
type ValidationError struct {
	FieldPath string `json:"fieldPath"`
	Message   string `json:"message"`
}

// RequestError is a pipeline-stage rejection carrying its wire code. Stages
// return it directly; Normalize passes it through unchanged apart from
// hardening.
type RequestError struct {
	Code       string
	Message    string
	Validation []ValidationError
}

func (e *RequestError) Error() string {
	return e.Message
}

// APIError is the bounded wire shape for every error leaving the gateway.
type APIError struct {
	Code             string            `json:"code"`
	StatusCode       int               `json:"statusCode"`
	RequestID        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	Message          string            `json:"message"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

// Normalizer converts arbitrary pipeline errors into APIErrors. In hardened
// mode, messages for non-client-fault codes collapse to a generic string and
// passed-through messages are scrubbed of path-like and stack-like content.
type Normalizer struct {
	Hardened bool
}

// Normalize maps err to the wire shape. It never returns nil for a non-nil
// err and never panics on exotic error types.
func (n Normalizer) Normalize(err error, requestID string) *APIError {
	apiErr := &APIError{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}

	var reqErr *RequestError
	switch {
	case stderrors.As(err, &reqErr):
		apiErr.Code = reqErr.Code
		apiErr.Message = reqErr.Message
		apiErr.ValidationErrors = reqErr.Validation

	case stderrors.Is(err, errors.ErrUnauthorized):
		apiErr.Code = CodeUnauthorized
		apiErr.Message = "authentication required"

	case stderrors.Is(err, errors.ErrForbidden):
		apiErr.Code = CodeForbidden
		apiErr.Message = "access denied"

	case stderrors.Is(err, errors.ErrNotFound):
		apiErr.Code = CodeNotFound
		apiErr.Message = "resource not found"

	case stderrors.Is(err, errors.ErrConflict):
		apiErr.Code = CodeConflict
		apiErr.Message = "resource conflict"

	case stderrors.Is(err, errors.ErrRateLimited):
		apiErr.Code = CodeRateLimited
		apiErr.Message = "rate limit exceeded"

	default:
		apiErr.Code = CodeInternal
		apiErr.Message = err.Error()
	}

	apiErr.StatusCode = statusCodes[apiErr.Code]

	if n.Hardened {
		if !clientFaultCodes[apiErr.Code] {
			apiErr.Message = "an internal error occurred"
		} else {
			apiErr.Message = scrub(apiErr.Message)
			for i := range apiErr.ValidationErrors {
				apiErr.ValidationErrors[i].Message = scrub(apiErr.ValidationErrors[i].Message)
			}
		}
	}

	apiErr.Message = truncate(apiErr.Message, maxMessageBytes)
	return apiErr
}

// GQLError renders the APIError as a gqlerror for the response envelope.
func (e *APIError) GQLError() *gqlerror.Error {
	ext := map[string]interface{}{
		"code":       e.Code,
		"statusCode": e.StatusCode,
		"requestId":  e.RequestID,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
	}
	if len(e.ValidationErrors) > 0 {
		ext["validationErrors"] = e.ValidationErrors
	}
	return &gqlerror.Error{
		Message:    e.Message,
		Extensions: ext,
	}
}

var (
	// Absolute or relative filesystem paths with at least two segments,
	// including Windows drive paths.
	pathPattern = regexp.MustCompile(`(?:[A-Za-z]:)?(?:/|\\|\./|\.\./)[\w.\-~]+(?:[/\\][\w.\-~]+)+`)
	// Lines that look like Go stack frames or goroutine headers.
	stackLinePattern = regexp.MustCompile(`(?m)^\s*(?:goroutine \d+|at .+|.+\.go:\d+).*$`)
	framePattern     = regexp.MustCompile(`\S+\.go:\d+(?::\d+)?`)
)

// scrub removes filesystem-path-like substrings and stack-trace-like lines
// from a message that is allowed through hardened mode.
func scrub(msg string) string {
	msg = stackLinePattern.ReplaceAllString(msg, "")
	msg = framePattern.ReplaceAllString(msg, "[redacted]")
	msg = pathPattern.ReplaceAllString(msg, "[redacted]")

	lines := strings.Split(msg, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// truncate bounds msg to limit bytes, backing up to a rune boundary so the
// cut never produces invalid UTF-8.
func truncate(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
