// Package media stages captured photos on local disk and uploads them to
// remote storage once the job they document has been completed.
package media

import (
	"context"
	"errors"
	"io"
	"path"

	"github.com/garnizeh/fieldops/pkg/models"
)

var ErrNotStaged = errors.New("photo is not staged")

// Store is remote photo storage.
type Store interface {
	// Put writes the object and returns its remote URL.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey is the remote key of a photo: jobs/<job>/<type>/<photo><ext>.
func ObjectKey(p models.Photo) string {
	return path.Join("jobs", p.JobID, string(p.Type), p.ID+path.Ext(p.LocalURI))
}
