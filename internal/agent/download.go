package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/lamim/remexec/internal/transport"
)

// downloadBlockSize is the copy buffer used while streaming a download to
// disk.
const downloadBlockSize = 8192

// DownloadFile streams a backend file into the local save directory.
// Backend files do not survive the session, so results should be pulled
// down as soon as they matter. The local file is created only after the
// backend has answered 200, so a missing remote path leaves nothing behind.
func (s *Service) DownloadFile(ctx context.Context, remotePath, localName string) *DownloadResult {
	endpoint := "/files/download?path=" + url.QueryEscape(remotePath)

	body, outcome := s.dispatcher.Stream(ctx, endpoint, transport.TierLong)
	if !outcome.OK() {
		if outcome.Kind == transport.OutcomeHTTPError && outcome.Status == http.StatusNotFound {
			return &DownloadResult{Error: fmt.Sprintf("File not found: %s", remotePath)}
		}
		return &DownloadResult{Error: fmt.Sprintf("Download failed: %s", outcome.ErrorDetail())}
	}
	defer func() {
		if err := body.Close(); err != nil {
			s.logger.Warn("Failed to close download stream", "error", err)
		}
	}()

	if localName == "" {
		localName = filepath.Base(remotePath)
	}
	localPath := filepath.Join(s.cfg.Storage.SaveDir, localName)

	out, err := os.Create(localPath)
	if err != nil {
		return &DownloadResult{Error: fmt.Sprintf("failed to create local file: %v", err)}
	}

	written, copyErr := io.CopyBuffer(out, body, make([]byte, downloadBlockSize))
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		// A partial file is worse than none: the caller would mistake it for
		// the real download.
		_ = os.Remove(localPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return &DownloadResult{Error: fmt.Sprintf("download interrupted: %v", copyErr)}
	}

	s.logger.Info("File downloaded", "remote", remotePath, "local", localPath, "bytes", written)

	return &DownloadResult{
		Success:   true,
		LocalPath: localPath,
		SizeMB:    roundMB(written),
		SavedAt:   time.Now(),
	}
}

func roundMB(bytes int64) float64 {
	mb := float64(bytes) / (1024 * 1024)
	return float64(int(mb*100+0.5)) / 100
}
