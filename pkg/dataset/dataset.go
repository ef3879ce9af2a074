// Package dataset defines access to the project dataset filesystem.
//
// Stores answer two questions for the wait coordinators: does a path exist,
// and can it be copied to local disk. The REST-backed API is the default;
// deployments that expose the dataset filesystem through an S3 gateway can
// use the s3 subpackage instead.
package dataset

import (
	"context"
	"path"
	"strings"
	"time"
)

// Store abstracts the dataset filesystem.
//
// Implementations should be safe for concurrent use.
type Store interface {
	// Exists reports whether path exists. A missing path is not an error.
	Exists(ctx context.Context, path string) (bool, error)

	// Download copies path into localDir and returns the absolute local path.
	// An empty localDir means the current working directory. An existing
	// local file is replaced only when overwrite is set, otherwise ErrExists
	// is returned.
	Download(ctx context.Context, path, localDir string, overwrite bool) (string, error)
}

// Backend identifies a Store implementation.
type Backend string

const (
	// BackendREST talks to the platform dataset endpoints.
	BackendREST Backend = "rest"

	// BackendS3 reads the dataset filesystem through an S3 gateway.
	BackendS3 Backend = "s3"
)

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}

// Entry is the metadata of one dataset path.
type Entry struct {
	// Path is the full dataset path.
	Path string

	// Name is the last path element.
	Name string

	// Size is the file size in bytes; zero for directories.
	Size int64

	// Dir is set for directories.
	Dir bool

	// Owner is the owning user, if reported.
	Owner string

	// ModifiedAt is when the path was last modified, if reported.
	ModifiedAt time.Time
}

// ProjectRoot is the dataset prefix under which every project lives.
const ProjectRoot = "/Projects"

// AbsPath converts p to an absolute dataset path. Absolute paths are kept
// as-is; relative paths are placed under /Projects/<project>/.
func AbsPath(project, p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(ProjectRoot, project, p)
}
