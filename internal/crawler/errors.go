package crawler

import (
	"errors"
	"fmt"
)

// Error taxonomy for a crawl. Per-URL errors never escape the pipeline; they are
// classified with errors.Is and folded into Stats.
var (
	ErrTransport     = errors.New("transport error")
	ErrParse         = errors.New("parse error")
	ErrStorage       = errors.New("storage error")
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidConfig = errors.New("invalid crawl configuration")
)

// TransportError describes a failed fetch. StatusCode is zero when no response
// was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
