package anthropicprovider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"toolrunner/internal/llm/core"
)

const shouldRetryHeader = "x-should-retry"

// isRetryableProviderError reports whether repeating the call may succeed.
// An explicit x-should-retry header from the API overrides the status code.
func isRetryableProviderError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.Response != nil {
			switch apiErr.Response.Header.Get(shouldRetryHeader) {
			case "true":
				return true
			case "false":
				return false
			}
		}
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
			return true
		}
		return apiErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryAfter reads the wait the API asked for, in whole seconds.
func retryAfter(err error) time.Duration {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0
	}
	secs, convErr := strconv.Atoi(strings.TrimSpace(apiErr.Response.Header.Get("retry-after")))
	if convErr != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// classifyFailure marks wrapped transient when cause is worth retrying.
func classifyFailure(cause, wrapped error) error {
	if !isRetryableProviderError(cause) {
		return wrapped
	}
	return core.TransientAfter(wrapped, retryAfter(cause))
}
