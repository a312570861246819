package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kjstillabower/route-weather-service/internal/validation"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the category label of upstreamErrorsTotal.
const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryNotFound      ErrorCategory = "not_found"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx   ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryIncomplete    ErrorCategory = "incomplete_payload"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// Upstream status codes take precedence over the sentinel the error is wrapped in.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryTimeout
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
			return ErrorCategoryInvalidAPIKey
		case se.Code == http.StatusNotFound:
			return ErrorCategoryNotFound
		case se.Code == http.StatusTooManyRequests:
			return ErrorCategoryRateLimited
		case se.Code >= 500:
			return ErrorCategoryUpstream5xx
		default:
			return ErrorCategoryUpstream4xx
		}
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}
	if errors.Is(err, validation.ErrCityEmpty) || errors.Is(err, validation.ErrCityTooLong) ||
		errors.Is(err, validation.ErrCityInvalidChars) {
		return ErrorCategoryValidation
	}

	errStr := err.Error()
	if strings.Contains(errStr, "http request failed") || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	if strings.Contains(errStr, "payload has no") {
		return ErrorCategoryIncomplete
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorCategoryNotFound
	}

	return ErrorCategoryUnknown
}
