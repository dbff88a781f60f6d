package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/niteshatinception/for-monday/internal/errclass"
	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/monday"
	"github.com/niteshatinception/for-monday/internal/retry"
)

// ColumnLimitNotifier tells the triggering user the destination column is
// full. Implemented by internal/notify.
type ColumnLimitNotifier interface {
	NotifyColumnLimit(ctx context.Context, token string, userID, itemID int64, fileName string) error
}

const mimeProbeAttempts = 10

// allowedMIMEPrefixes is the transferable content allow-list: documents,
// images, audio and video.
var allowedMIMEPrefixes = []string{
	"image/",
	"audio/",
	"video/",
	"text/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.oasis.opendocument",
	"application/zip",
	"application/x-zip-compressed",
	"application/rtf",
	"application/json",
	"application/csv",
}

// Transferer performs the real download-validate-upload cycle against the
// platform API. Its Transfer method is the pipeline's TransferFunc.
type Transferer struct {
	client     *monday.Client
	notifier   ColumnLimitNotifier
	httpClient *http.Client
	scratchDir string
	logger     zerolog.Logger

	sleep func(time.Duration)
}

func NewTransferer(client *monday.Client, notifier ColumnLimitNotifier, scratchDir string, logger *zerolog.Logger) *Transferer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "transfer").Logger()
	}
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Transferer{
		client:     client,
		notifier:   notifier,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		scratchDir: scratchDir,
		logger:     base,
		sleep:      time.Sleep,
	}
}

// Transfer moves one file onto the destination column. Every step is a
// possible failure point; the scratch file is removed unconditionally.
func (t *Transferer) Transfer(ctx context.Context, task *models.TransferTask) (string, error) {
	asset, err := retry.Execute(ctx, func(ctx context.Context) (*monday.Asset, error) {
		return t.client.ResolveAsset(ctx, task.Token, task.File.AssetID)
	}, retry.Options{CheckPublicURL: true, Sleep: t.sleep})
	if err != nil {
		return "", fmt.Errorf("resolve public url for asset %d: %w", task.File.AssetID, err)
	}

	contentType := t.probeContentType(ctx, asset.PublicURL)
	if contentType != "" && !allowedContentType(contentType) {
		// Definitive header verdict: reject before spending the download.
		return "", errclass.New(errclass.KindUnsupportedType,
			fmt.Sprintf("unsupported content type %q for file %s", contentType, task.File.Name))
	}

	scratch, err := t.download(ctx, asset, task)
	if scratch != "" {
		// The whole per-transfer scratch directory goes, success or failure.
		defer func() {
			if rmErr := os.RemoveAll(filepath.Dir(scratch)); rmErr != nil {
				t.logger.Warn().Err(rmErr).Str("path", scratch).Msg("failed to remove scratch file")
			}
		}()
	}
	if err != nil {
		return "", err
	}

	if contentType == "" {
		// Header probe never got through; sniff the downloaded bytes instead
		// of failing outright.
		if detected, detErr := mimetype.DetectFile(scratch); detErr == nil {
			contentType = detected.String()
		}
		if !allowedContentType(contentType) {
			return "", errclass.New(errclass.KindUnsupportedType,
				fmt.Sprintf("unsupported content type %q for file %s", contentType, task.File.Name))
		}
	}

	if err := t.client.AddFileToColumn(ctx, task.Token, task.DestItemID, task.DestColumn, scratch); err != nil {
		if errclass.KindOf(err) == errclass.KindColumnLimit {
			// Business rule, not a pipeline failure: the user gets a
			// notification and the task retires cleanly.
			if t.notifier != nil {
				if nErr := t.notifier.NotifyColumnLimit(ctx, task.Token, task.UserID, task.SourceItemID, task.File.Name); nErr != nil {
					t.logger.Error().Err(nErr).Str("file", task.File.Name).Msg("column limit notification failed")
				}
			}
			return models.OutcomeNotified, nil
		}
		return "", fmt.Errorf("upload %s to column %s: %w", task.File.Name, task.DestColumn, err)
	}

	return models.OutcomeCompleted, nil
}

// probeContentType asks the signed URL for its Content-Type. The platform's
// CDN intermittently answers 403 right after issuing a URL, so that status is
// probed again with an increasing delay. An empty return means the caller
// should fall back to content sniffing.
func (t *Transferer) probeContentType(ctx context.Context, url string) string {
	for attempt := 1; attempt <= mimeProbeAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return ""
		}
		resp, err := t.httpClient.Do(req)
		if err != nil {
			return ""
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden {
			t.sleep(time.Duration(attempt) * 500 * time.Millisecond)
			continue
		}
		if resp.StatusCode >= 400 {
			return ""
		}

		ct := resp.Header.Get("Content-Type")
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return strings.TrimSpace(ct)
	}
	return ""
}

// download streams the asset to a scratch file and returns its path. The path
// is returned even on error so the caller can clean up a partial file.
func (t *Transferer) download(ctx context.Context, asset *monday.Asset, task *models.TransferTask) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.PublicURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download asset %s: %w", asset.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download asset %s: unexpected status %d", asset.ID, resp.StatusCode)
	}

	// The scratch file keeps the original name: the upload endpoint takes the
	// destination filename from the local path.
	name := task.File.Name
	if name == "" {
		name = asset.Name
	}
	dir, err := os.MkdirTemp(t.scratchDir, "transfer_")
	if err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	path := filepath.Join(dir, sanitizeName(name, asset.FileExtension))
	out, err := os.Create(path)
	if err != nil {
		return path, fmt.Errorf("create scratch file: %w", err)
	}

	_, err = io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return path, fmt.Errorf("stream asset %s to scratch: %w", asset.ID, err)
	}
	return path, nil
}

// sanitizeName strips path components from the asset name and ensures an
// extension, since downstream naming derives from this file.
func sanitizeName(name, fallbackExt string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	if filepath.Ext(name) == "" && fallbackExt != "" {
		if !strings.HasPrefix(fallbackExt, ".") {
			fallbackExt = "." + fallbackExt
		}
		name += fallbackExt
	}
	return name
}

func allowedContentType(ct string) bool {
	if ct == "" {
		return false
	}
	ct = strings.ToLower(ct)
	for _, prefix := range allowedMIMEPrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
