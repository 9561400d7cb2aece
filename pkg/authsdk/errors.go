package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Messages match the wording users of the service already see.
var (
	ErrMissingCredentials     = errors.New("Username or Password missing...")
	ErrAuthenticationRequired = errors.New("Authentication required")
	ErrInvalidToken           = errors.New("Invalid token")
	ErrProviderNotSupported   = errors.New("provider not supported")

	// ErrInvalidRefreshResponse is returned when a refresh succeeds at the
	// HTTP level but carries no token or expiry.
	ErrInvalidRefreshResponse = errors.New("authsdk: refresh response missing token or expires")
)

// ProviderError reports an auth provider missing from the configuration.
type ProviderError struct {
	Provider string
}

func (e *ProviderError) Error() string {
	return "Provider " + e.Provider + " not supported."
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderNotSupported
}

// APIError is a non-2xx response from the auth service.
type APIError struct {
	StatusCode int

	// Code is the server's "error" field.
	Code string

	// Message is the server's "message" field.
	Message string

	// Details holds field validation errors keyed by field name.
	Details map[string][]string

	// Body is the raw response body.
	Body []byte
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "auth service: HTTP %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(": " + e.Code)
	}
	if e.Message != "" && e.Message != e.Code {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// Unauthorized reports whether the service rejected the credential.
func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// Conflict reports a 409, which validation endpoints use for "already taken".
func (e *APIError) Conflict() bool { return e.StatusCode == http.StatusConflict }

// errorResponse is the service's error body.
type errorResponse struct {
	Error            string          `json:"error"`
	Message          string          `json:"message"`
	Status           int             `json:"status"`
	ValidationErrors json.RawMessage `json:"validationErrors"`
}

// parseErrorResponse turns a non-2xx response into an *APIError. Returns nil
// if the response indicates success.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       body,
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message

		if len(errResp.ValidationErrors) > 0 {
			var details map[string][]string
			if err := json.Unmarshal(errResp.ValidationErrors, &details); err == nil {
				apiErr.Details = details
			}
		}
	}

	if apiErr.Code == "" && apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
