package storage

import (
	"context"
	"time"
)

// Provider stores archived sample files.
type Provider interface {
	// CheckBucket makes sure the bucket exists, creating it if needed.
	CheckBucket(ctx context.Context) error

	// Upload stores the local file at path under objectKey.
	Upload(ctx context.Context, objectKey, path string) error

	// GeneratePresignedURL returns a temporary download link for objectKey.
	GeneratePresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// ObjectKey names the archive of a sample file for meterID taken at t, e.g.
// meter-1/20240301T093005Z-power.csv.
func ObjectKey(meterID, file string, t time.Time) string {
	return meterID + "/" + t.UTC().Format("20060102T150405Z") + "-" + file
}
