package cloud

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a 404 and a 2xx `null` body: the key has never
	// been written.
	ErrNotFound    = errors.New("cloud: key not found")
	ErrContentType = errors.New("cloud: unexpected content type")
	ErrRejected    = errors.New("cloud: upload rejected")
	ErrNoFilePath  = errors.New("cloud: file endpoint needs a path")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("cloud: %s: status %d: %s", e.Op, e.Status, e.Body)
}
