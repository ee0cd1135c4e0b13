package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/loopfactory/fleetdash/internal/errors"
)

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All -o json output uses this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// ErrCodeUnknown is reported for errors that carry no code.
const ErrCodeUnknown = "UNKNOWN"

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: true,
		Data:    data,
	})
}

// WriteJSONFromError converts a Go error to a JSON error response. data
// carries whatever was produced before the failure and may be nil.
func WriteJSONFromError(w io.Writer, err error, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: false,
		Data:    data,
		Error:   ErrorToJSON(err),
	})
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError. Structured errors keep
// their code and suggestion, and the wrapped cause goes into details.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var fdErr *errors.Error
	if stderrors.As(err, &fdErr) {
		out := &JSONError{
			Code:       fdErr.Code,
			Message:    fdErr.Message,
			Suggestion: fdErr.Suggestion,
		}
		if out.Code == "" {
			out.Code = ErrCodeUnknown
		}
		if fdErr.Cause != nil {
			out.Details = map[string]interface{}{"cause": fdErr.Cause.Error()}
		}
		return out
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}
