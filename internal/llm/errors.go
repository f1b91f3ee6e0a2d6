package llm

import "errors"

// ErrInvalidJSON marks a model response that could not be parsed as JSON.
var ErrInvalidJSON = errors.New("invalid json from model")

// PermanentError indicates an error that will not resolve with retries:
// malformed model output, blocked content, unsupported input.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TransientError indicates a retryable fault: rate limits, timeouts,
// transient network or model errors. The retry middleware treats any error
// that is not permanent as transient, so wrapping is informational but lets
// callers mark a fault explicitly at the boundary where it is classified.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
