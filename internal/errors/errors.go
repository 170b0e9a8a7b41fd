package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory groups errors by how callers should react to them
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryAuth          ErrorCategory = "auth"
	CategoryConflict      ErrorCategory = "conflict"
)

// AppError is an errbuilder error plus the HTTP mapping the API responds with.
// It is rendered through ErrorResponse, never through the embedded builder.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory
	HTTPStatus int
	Timestamp  time.Time
	RequestID  string
	StackTrace string

	fields map[string]string
}

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   ErrorCategory     `json:"category"`
	HTTPStatus int               `json:"http_status"`
	RequestID  string            `json:"request_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]string `json:"details,omitempty"`
	StackTrace string            `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", codeLabel(e.ErrBuilder), e.ErrBuilder.Msg)
}

// codeLabel is the tag shown in front of the message by AppError.Error
func codeLabel(b *errbuilder.ErrBuilder) string {
	switch b.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		return "VALIDATION_ERROR"
	case errbuilder.CodeUnavailable:
		return "NETWORK_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		return "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		return "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeInternal:
		return "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		return "CONFIGURATION_ERROR"
	case errbuilder.CodeNotFound:
		return "NOT_FOUND"
	case errbuilder.CodeUnauthenticated:
		return "UNAUTHENTICATED"
	case errbuilder.CodePermissionDenied:
		return "PERMISSION_DENIED"
	case errbuilder.CodeAborted:
		return "CONFLICT"
	}
	return "UNKNOWN_ERROR"
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Fields returns the key/value details attached at construction
func (e *AppError) Fields() map[string]string {
	return e.fields
}

// Response builds the client-facing body. Internal errors keep their details
// to the logs, and stack traces only leave the process outside release mode.
func (e *AppError) Response() ErrorResponse {
	resp := ErrorResponse{
		Code:       codeLabel(e.ErrBuilder),
		Message:    e.ErrBuilder.Msg,
		Category:   e.Category,
		HTTPStatus: e.HTTPStatus,
		RequestID:  e.RequestID,
		Timestamp:  e.Timestamp,
	}
	if e.Category != CategoryInternal && len(e.fields) > 0 {
		resp.Details = e.fields
	}
	if debugMode() {
		resp.StackTrace = e.StackTrace
	}
	return resp
}

// MarshalJSON shadows the embedded builder's marshaller, which dereferences a
// nil cause.
func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Response())
}

// NewAppError attaches a category and HTTP status to an errbuilder error
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// build finishes b with cause and fields and wraps it. Empty field values are dropped.
func build(b *errbuilder.ErrBuilder, cause error, category ErrorCategory, status int, fields map[string]string) *AppError {
	if cause != nil {
		b = b.WithCause(cause)
	}

	kept := make(map[string]string, len(fields))
	m := errbuilder.ErrorMap{}
	for k, v := range fields {
		if v == "" {
			continue
		}
		kept[k] = v
		m.Set(k, errors.New(v))
	}
	if len(kept) > 0 {
		b = b.WithDetails(errbuilder.NewErrDetails(m))
	} else {
		kept = nil
	}

	appErr := NewAppError(b, category, status)
	appErr.fields = kept
	return appErr
}

// NewValidationError reports bad request input. The first detail, if any, is
// attached as validation_details.
func NewValidationError(message string, details ...interface{}) *AppError {
	var detail string
	if len(details) > 0 {
		detail = fmt.Sprintf("%v", details[0])
	}
	return build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(message), nil,
		CategoryValidation, http.StatusBadRequest, map[string]string{"validation_details": detail})
}

// NewValidationErrorWithMap reports several invalid query parameters at once
func NewValidationErrorWithMap(validationErrors map[string]string) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("Multiple validation errors"), nil,
		CategoryValidation, http.StatusBadRequest, validationErrors)
}

func NewNetworkError(message string, cause error) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(message), cause,
		CategoryNetwork, http.StatusBadGateway, nil)
}

func NewTimeoutError(message string, cause error) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeDeadlineExceeded).WithMsg(message), cause,
		CategoryTimeout, http.StatusGatewayTimeout, nil)
}

// NewRateLimitError reports a throttled call; retryAfter is passed through as given
func NewRateLimitError(retryAfter string) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeResourceExhausted).WithMsg("Rate limit exceeded"), nil,
		CategoryRateLimit, http.StatusTooManyRequests, map[string]string{"retry_after": retryAfter})
}

// NewExternalAPIError wraps a failed call to an upstream API such as JIRA
func NewExternalAPIError(apiName string, cause error) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(apiName+" API error"), cause,
		CategoryExternalAPI, http.StatusBadGateway, map[string]string{"api_name": apiName})
}

// NewInternalError hides message from the client behind a generic one. A stack
// trace is captured outside release mode.
func NewInternalError(message string, cause error) *AppError {
	appErr := build(errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("Internal server error"), cause,
		CategoryInternal, http.StatusInternalServerError, map[string]string{"internal_details": message})
	if debugMode() {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

func NewConfigurationError(message string, cause error) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg("Configuration error"), cause,
		CategoryConfiguration, http.StatusInternalServerError, map[string]string{"config_details": message})
}

// NewConfigurationErrorWithMap lists every invalid setting found during validation
func NewConfigurationErrorWithMap(invalid map[string]string) *AppError {
	msg := fmt.Sprintf("Invalid configuration: %d setting(s)", len(invalid))
	return build(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg(msg), nil,
		CategoryConfiguration, http.StatusInternalServerError, invalid)
}

// NewNotFoundError reports a missing resource, e.g. ("developer", "Alice")
func NewNotFoundError(resource, id string) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg(resource+" not found"), nil,
		CategoryNotFound, http.StatusNotFound, map[string]string{resource: id})
}

func NewUnauthorizedError(message string, cause error) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeUnauthenticated).WithMsg(message), cause,
		CategoryAuth, http.StatusUnauthorized, nil)
}

// NewForbiddenError is for a caller that authenticated but may not do this
func NewForbiddenError(message string) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodePermissionDenied).WithMsg(message), nil,
		CategoryAuth, http.StatusForbidden, nil)
}

// NewConflictError reports a request that collides with work already in progress
func NewConflictError(message string, cause error) *AppError {
	return build(errbuilder.New().WithCode(errbuilder.CodeAborted).WithMsg(message), cause,
		CategoryConflict, http.StatusConflict, nil)
}

func debugMode() bool {
	mode := gin.Mode()
	return mode == gin.DebugMode || mode == gin.TestMode
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	return string(buf[:runtime.Stack(buf, false)])
}

// requestID is the ID assigned by the monitoring middleware, or the raw header
func requestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// render writes err as an ErrorResponse tagged with the request's ID
func render(c *gin.Context, err *AppError) {
	resp := err.Response()
	resp.RequestID = requestID(c)
	c.JSON(err.HTTPStatus, resp)
}

// ErrorHandler renders the last error attached to the gin context as JSON
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		appErr := ToAppError(last.Err)
		LogError(c, appErr)
		render(c, appErr)
	}
}

// RecoveryHandler turns a panic into a 500 response. Register it before
// ErrorHandler so it also covers rendering.
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(fmt.Sprintf("Panic recovered: %v", recovered), fmt.Errorf("%v", recovered))
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		render(c, appErr)
	})
}

// network failures that arrive as plain errors from net/http
var networkMarkers = []string{"connection refused", "no such host", "network is unreachable"}

// ToAppError classifies err. AppErrors anywhere in the chain are returned
// unchanged and anything unrecognised becomes an internal error.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var ebErr *errbuilder.ErrBuilder
	if errors.As(err, &ebErr) {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return NewTimeoutError("Request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("Request deadline exceeded", err)
	}

	msg := err.Error()
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return NewNetworkError("Network connection failed", err)
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs err with the request it failed. Client mistakes log at warn,
// upstream trouble at info, everything else at error.
func LogError(c *gin.Context, err *AppError) {
	logger := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", requestID(c),
	)

	var args []any
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound, CategoryAuth, CategoryConflict:
		if details := err.fields; len(details) > 0 {
			args = append(args, "details", details)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			args = append(args, "cause", cause.Error())
		}
	}

	msg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound, CategoryAuth, CategoryConflict:
		logger.Warn(msg, args...)
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		logger.Info(msg, args...)
	default:
		logger.Error(msg, args...)
	}

	if err.StackTrace != "" && debugMode() {
		logger.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether err is worth another attempt: upstream,
// network, timeout and rate limit failures are.
func IsRetryableError(err error) bool {
	switch ToAppError(err).Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	}
	return false
}

// SafeClose closes closer and logs a failure instead of returning it
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", resourceName, "error", err)
	}
}

// SafeExecute runs fn and hands any panic to panicHandler, or logs it when
// panicHandler is nil
func SafeExecute(fn func(), panicHandler func(interface{})) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if panicHandler != nil {
			panicHandler(r)
			return
		}
		slog.Error("Panic in safe execution", "panic", r)
	}()

	fn()
}
