package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes used in result envelopes, logs and internal error handling.
const (
	// Input errors.
	ErrCodeInvalidInput = "INVALID_INPUT"

	// Session errors: the browser could not be launched, crashed, or the
	// retry policy was exhausted.
	ErrCodeSession      = "SESSION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"

	// Extraction errors.
	ErrCodeExtraction = "EXTRACTION_FAILED"
	ErrCodeAgent      = "AGENT_FAILED"
	ErrCodeAgentParse = "AGENT_PARSE"

	// LLM backend errors raised while the agent is running.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"

	// Server-side errors.
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse is the body of HTTP requests rejected before any extraction
// (auth, rate limit, malformed JSON). Like Failure, it is keyed on "error".
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToResponse converts an internal error to an API-facing ErrorResponse.
func (e *ScrapeError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Code: e.Code}
}

// CodeOf returns the code of the outermost ScrapeError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// Describe renders err as a human-readable message without error codes.
// Nested ScrapeErrors contribute their Message; any other error in the chain
// contributes its Error() text, which already includes whatever it wraps.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var parts []string
	for err != nil {
		se, ok := err.(*ScrapeError)
		if !ok {
			parts = append(parts, err.Error())
			break
		}
		if se.Message != "" {
			parts = append(parts, se.Message)
		}
		err = se.Err
	}
	return strings.Join(parts, ": ")
}
