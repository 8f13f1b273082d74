// Package remote provides the object storage a tracked dataset is pushed to
// and fetched from.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// ObjectStorage abstracts the data remote. Implementations include S3 and the
// local filesystem.
type ObjectStorage interface {
	// Upload copies localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath, replacing it only once the
	// whole object has been received.
	Download(ctx context.Context, objectPath, localPath string) error

	Exists(ctx context.Context, objectPath string) (bool, error)
}

// Open picks the backend from the remote URL:
//
//	s3://bucket/prefix   S3 (or any S3-compatible store via cfg.Endpoint)
//	file:///abs/dir      local directory
//	some/dir             local directory
func Open(ctx context.Context, remoteURL string, cfg S3Config) (ObjectStorage, error) {
	if remoteURL == "" {
		return nil, errors.New("no data remote configured")
	}

	u, err := url.Parse(remoteURL)
	if err != nil || u.Scheme == "" {
		return NewLocalStorage(remoteURL)
	}

	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("s3 remote %q has no bucket", remoteURL)
		}
		return NewS3Storage(ctx, u.Host, strings.Trim(u.Path, "/"), cfg)
	case "file":
		return NewLocalStorage(u.Path)
	default:
		return nil, fmt.Errorf("unsupported remote scheme %q", u.Scheme)
	}
}
