package instagram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a structured Graph API error response.
type APIError struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph error %d (code %d, subcode %d): %s", e.HTTPStatus, e.Code, e.Subcode, e.Message)
}

func parseAPIError(status int, body []byte) error {
	var wrapper struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Error.Message == "" {
		return &APIError{HTTPStatus: status, Message: strings.TrimSpace(string(body))}
	}
	wrapper.Error.HTTPStatus = status
	return &wrapper.Error
}

// IsRateLimited reports whether err is a request/rate-limit class error. The
// publish flow never takes these at face value: the call may have committed
// before the limiter rejected the response.
func IsRateLimited(err error) bool {
	apiErr := asAPIError(err)
	if apiErr == nil {
		return false
	}
	switch apiErr.Code {
	case 4, 17, 32, 613: // application, user, page and custom rate limits
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "request limit")
}

// IsNotYetVisible reports the transient "object does not exist" condition
// seen while a freshly created container propagates to the status endpoint.
func IsNotYetVisible(err error) bool {
	apiErr := asAPIError(err)
	if apiErr == nil {
		return false
	}
	return apiErr.Code == 100 && apiErr.Subcode == 33
}

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
