package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/eringen/storefront/content"
	"github.com/eringen/storefront/poll"
)

// ErrUpload wraps failures in the stage, transfer and materialize phases.
var ErrUpload = errors.New("platform: upload failed")

// UploadObserver is told how each Upload call ended.
type UploadObserver interface {
	ObserveUpload(outcome string, elapsed time.Duration)
}

const (
	UploadReady   = "ready"
	UploadPending = "pending"
	UploadFailed  = "failed"
)

type noopUploadObserver struct{}

func (noopUploadObserver) ObserveUpload(string, time.Duration) {}

// Asset is the result of an upload. URL is empty when the file was not READY
// within the polling budget.
type Asset struct {
	ID       string     `json:"id"`
	URL      string     `json:"url"`
	Status   FileStatus `json:"status"`
	Filename string     `json:"filename"`
	MimeType string     `json:"mimeType"`
	Size     int64      `json:"size"`
}

type UploaderOptions struct {
	MaxAttempts int
	Interval    time.Duration
	// HTTPClient performs the byte transfer to the staged target. The
	// platform bearer token is never sent there.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   UploadObserver
}

type Uploader struct {
	client      *Client
	maxAttempts int
	interval    time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
	observer    UploadObserver
}

// NewUploader returns an Uploader using client for the platform calls and
// its own HTTP client for the staged transfer.
func NewUploader(client *Client, opts UploaderOptions) *Uploader {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopUploadObserver{}
	}
	return &Uploader{
		client:      client,
		maxAttempts: opts.MaxAttempts,
		interval:    opts.Interval,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
}

// Upload stages, transfers and materializes one file, then polls until it is
// READY. A file that is still pending when the budget runs out is returned
// with an empty URL and no error. Upload is not idempotent.
func (u *Uploader) Upload(ctx context.Context, data []byte, filename, mimeType string) (asset Asset, err error) {
	start := time.Now()
	defer func() {
		outcome := UploadPending
		switch {
		case err != nil:
			outcome = UploadFailed
		case asset.URL != "":
			outcome = UploadReady
		}
		u.observer.ObserveUpload(outcome, time.Since(start))
	}()

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Asset{}, fmt.Errorf("%w: filename is required", ErrUpload)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	asset = Asset{Filename: filename, MimeType: mimeType, Size: int64(len(data))}

	target, err := u.client.StageUpload(ctx, filename, mimeType, asset.Size)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: stage %s: %w", ErrUpload, filename, err)
	}
	if err := u.transfer(ctx, target, data, filename, mimeType); err != nil {
		return Asset{}, fmt.Errorf("%w: transfer %s: %w", ErrUpload, filename, err)
	}
	file, err := u.client.CreateFile(ctx, target.ResourceURL, filename, mimeType)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: create %s: %w", ErrUpload, filename, err)
	}
	asset.ID = file.ID
	asset.Status = file.Status
	if asset.Status == "" {
		asset.Status = FileStatusUploaded
	}

	last := file
	got, err := poll.Until(ctx, u.maxAttempts, u.interval, func(ctx context.Context) (File, bool, error) {
		f, err := u.client.File(ctx, file.ID)
		if errors.Is(err, content.ErrNotFound) {
			// The node can lag behind fileCreate.
			return File{}, false, nil
		}
		if err != nil {
			return File{}, false, err
		}
		last = f
		switch f.Status {
		case FileStatusFailed:
			return f, false, fmt.Errorf("file %s: %w", f.ID, ErrAssetFailed)
		case FileStatusReady:
			return f, f.URL != "", nil
		}
		return f, false, nil
	})
	if last.Status != "" {
		asset.Status = last.Status
	}
	switch {
	case err == nil:
		asset.URL = got.URL
		asset.Status = FileStatusReady
		u.logger.Info("asset ready", "id", asset.ID, "filename", filename)
	case errors.Is(err, ErrAssetFailed):
		asset.Status = FileStatusFailed
		return asset, err
	case errors.Is(err, poll.ErrExhausted):
		u.logger.Warn("asset not ready within budget", "id", asset.ID, "status", asset.Status, "attempts", u.maxAttempts)
	default:
		u.logger.Warn("asset status check failed", "id", asset.ID, "error", err)
	}
	return asset, nil
}

// transfer posts the staged parameters, in the order received, followed by
// the file part.
func (u *Uploader) transfer(ctx context.Context, target StagedTarget, data []byte, filename, mimeType string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range target.Parameters {
		if err := w.WriteField(p.Name, p.Value); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
