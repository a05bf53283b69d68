// Package blob stores raw page snapshots and returns their URIs.
package blob

import "context"

// Store writes raw artifacts and returns a URI for later retrieval.
type Store interface {
	Save(ctx context.Context, objectName string, data []byte) (string, error)
}
