package storage

import (
	"context"
	"path/filepath"
	"time"

	"github.com/autopeer-io/broute/pkg/log"
)

// LinkExpiry is how long the download link logged after an upload stays valid.
const LinkExpiry = 24 * time.Hour

// Archive uploads the sample file at path for meterID and logs a download
// link. It returns the object key.
func Archive(ctx context.Context, p Provider, meterID, path string, now time.Time) (string, error) {
	if err := p.CheckBucket(ctx); err != nil {
		return "", err
	}

	key := ObjectKey(meterID, filepath.Base(path), now)
	if err := p.Upload(ctx, key, path); err != nil {
		return "", err
	}

	link, err := p.GeneratePresignedURL(ctx, key, LinkExpiry)
	if err != nil {
		log.Warn("Archived sample file without download link", "key", key, "err", err)
		return key, nil
	}
	log.Info("Archived sample file", "key", key, "url", link)
	return key, nil
}
