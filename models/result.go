package models

import "strings"

// Result is the outcome of one extraction. Exactly one of PageResult,
// TextResult or Failure is produced per request; the presence of the
// "error" key in the encoded form is the only success discriminator.
type Result interface {
	// OK reports whether the result is a success variant.
	OK() bool
	isResult()
}

// AssumedStatus is the status reported by direct extractions. The browser
// does not expose the real HTTP status, so a successful navigation is
// reported as 200 regardless of what the server answered.
const AssumedStatus = 200

// PageResult is the direct strategy's success shape.
type PageResult struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Title  string `json:"title"`
	HTML   string `json:"html"`
}

// TextResult is the agent strategy's success shape. Title is nil when the
// agent's answer could not be decoded and Text carries the raw answer.
type TextResult struct {
	Title *string `json:"title,omitempty"`
	Text  string  `json:"text"`
}

// Failure is the error shape shared by both strategies.
type Failure struct {
	Code    string `json:"-"`
	Message string `json:"error"`
}

func (PageResult) OK() bool { return true }
func (TextResult) OK() bool { return true }
func (Failure) OK() bool    { return false }

func (PageResult) isResult() {}
func (TextResult) isResult() {}
func (Failure) isResult()    {}

// FailureFrom converts any error into a Failure. Errors without a code are
// reported as INTERNAL_ERROR. The message is never empty: an error with no
// text is described by its code.
func FailureFrom(err error) Failure {
	if err == nil {
		return Failure{Code: ErrCodeInternal, Message: "unknown error"}
	}
	code := CodeOf(err)
	msg := Describe(err)
	if strings.TrimSpace(msg) == "" {
		msg = "unknown error (" + code + ")"
	}
	return Failure{Code: code, Message: msg}
}
