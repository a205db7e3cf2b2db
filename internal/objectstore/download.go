package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/arbor"
)

// DownloadResult is the outcome of fetching one object
type DownloadResult struct {
	Key       string
	LocalPath string
	Size      int64
	Err       error
}

// DownloadPrefix fetches every object under prefix into destDir/<prefix>.
// destDir must exist. One failed file does not stop the others.
func DownloadPrefix(ctx context.Context, store Store, prefix, destDir string, logger arbor.ILogger) ([]DownloadResult, error) {
	info, err := os.Stat(destDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("destination directory does not exist: %s", destDir)
	}

	dirName := strings.TrimSuffix(prefix, "/")
	listPrefix := prefix
	if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	target := filepath.Join(destDir, filepath.FromSlash(dirName))
	if err := os.MkdirAll(target, 0755); err != nil {
		return nil, err
	}

	objects, err := store.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		logger.Warn().Str("prefix", listPrefix).Msg("No files found under prefix")
		return nil, nil
	}
	logger.Info().Int("files", len(objects)).Str("prefix", listPrefix).Msg("Downloading")

	results := make([]DownloadResult, 0, len(objects))
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		local := filepath.Join(target, path.Base(obj.Key))
		res := DownloadResult{Key: obj.Key, LocalPath: local, Size: obj.Size}
		if err := store.Download(ctx, obj.Key, local); err != nil {
			res.Err = err
			logger.Error().Err(err).Str("key", obj.Key).Msg("Download failed")
		} else {
			logger.Info().Str("key", obj.Key).Str("size", humanize.Bytes(uint64(obj.Size))).Msg("Downloaded")
		}
		results = append(results, res)
	}
	return results, nil
}

// FailedDownloads returns the results that carry an error
func FailedDownloads(results []DownloadResult) []DownloadResult {
	var failed []DownloadResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
