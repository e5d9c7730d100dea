package twilio

import (
	"fmt"
	"net/http"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/json"
)

// APIError is the error body Twilio returns with non-2xx responses.
type APIError struct {
	Status   int    `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	apiErr.Status = status
	return apiErr
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *APIError) asError(resource string) *errors.Error {
	wrapped := errors.Wrap(e, errors.ErrorTypeUpstreamFetch, fmt.Sprintf("API returned status %d", e.Status)).
		WithDetail("resource", resource).
		WithDetail("status", e.Status)
	if e.Code != 0 {
		wrapped.WithDetail("code", e.Code)
	}
	if e.MoreInfo != "" {
		wrapped.WithDetail("more_info", e.MoreInfo)
	}
	return wrapped
}
