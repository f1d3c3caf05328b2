// Package blob stores a single document, such as the JSON user list, on local disk or in S3.
package blob

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read when the document has not been written yet.
var ErrNotExist = errors.New("blob does not exist")

// Store reads and replaces one document as a whole.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	// Location describes where the document lives, for logging.
	Location() string
}
