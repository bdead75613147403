package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/use-agent/urlgrab/models"
)

// Validate checks req before any session exists.
func Validate(req *models.ExtractionRequest) *models.Failure {
	if err := req.Validate(); err != nil {
		f := models.FailureFrom(err)
		return &f
	}
	return nil
}

// Normalize calls fn and guarantees a Result: a panic becomes a Failure
// carrying the panic message, and a nil result becomes a Failure too.
func Normalize(fn func() models.Result) (res models.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = models.Failure{Code: models.ErrCodeInternal, Message: fmt.Sprint(r)}
		}
	}()
	res = fn()
	if res == nil {
		return models.Failure{Code: models.ErrCodeInternal, Message: "extractor returned no result"}
	}
	return res
}

// Emit writes r as exactly one newline-terminated JSON object. When r
// cannot be encoded, an {"error": ...} line is written in its place.
func Emit(w io.Writer, r models.Result) error {
	var buf bytes.Buffer
	if err := encodeLine(&buf, r); err != nil {
		buf.Reset()
		fallback := models.Failure{Code: models.ErrCodeInternal, Message: "failed to encode result: " + err.Error()}
		if err := encodeLine(&buf, fallback); err != nil {
			return err
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	// Markup and page text are emitted as is, not as < escapes.
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// ExitCode maps a result to the process exit status.
func ExitCode(r models.Result) int {
	if r != nil && r.OK() {
		return 0
	}
	return 1
}
