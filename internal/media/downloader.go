package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/memohai/ledgerchat/internal/webhook"
)

// Downloader resolves provider media ids and streams the bytes into scratch.
type Downloader struct {
	meta     MetadataClient
	http     *http.Client
	token    string
	scratch  *Scratch
	maxBytes int64
	logger   *slog.Logger
}

// NewDownloader builds a Downloader. token is sent as a bearer credential on
// the file GET; the metadata client authenticates itself.
func NewDownloader(log *slog.Logger, meta MetadataClient, httpClient *http.Client, token string, scratch *Scratch) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Downloader{
		meta:     meta,
		http:     httpClient,
		token:    token,
		scratch:  scratch,
		maxBytes: MaxAssetBytes,
		logger:   log.With(slog.String("service", "media")),
	}
}

// FetchMediaURL looks up the download location of mediaID.
func (d *Downloader) FetchMediaURL(ctx context.Context, mediaID string) (MediaURL, error) {
	if strings.TrimSpace(mediaID) == "" {
		return MediaURL{}, &MetadataError{MediaID: mediaID, Reason: "media id is required"}
	}
	if d.meta == nil {
		return MediaURL{}, &MetadataError{MediaID: mediaID, Reason: "metadata client not configured"}
	}
	loc, err := d.meta.GetMediaURL(ctx, mediaID)
	if err != nil {
		var me *MetadataError
		if errors.As(err, &me) {
			return MediaURL{}, err
		}
		return MediaURL{}, &MetadataError{MediaID: mediaID, Reason: "lookup failed", Err: err}
	}
	if strings.TrimSpace(loc.URL) == "" {
		return MediaURL{}, &MetadataError{MediaID: mediaID, Reason: "response has no url"}
	}
	return loc, nil
}

// Download streams url into the scratch directory under a kind-specific
// subdirectory. A blank mimeType is sniffed from the payload.
func (d *Downloader) Download(ctx context.Context, url, mimeType string, kind webhook.Kind) (Asset, error) {
	if d.scratch == nil {
		return Asset{}, &DownloadError{URL: url, Reason: "scratch directory not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Asset{}, &DownloadError{URL: url, Reason: "build request", Err: err}
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return Asset{}, &DownloadError{URL: url, Reason: "transport", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Asset{}, &DownloadError{URL: url, StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}
	if resp.ContentLength > d.maxBytes {
		return Asset{}, &DownloadError{URL: url, Reason: "content too large", Err: ErrAssetTooLarge}
	}

	body := bufio.NewReaderSize(resp.Body, sniffBytes)
	if strings.TrimSpace(mimeType) == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	if strings.TrimSpace(mimeType) == "" || baseMime(mimeType) == "application/octet-stream" {
		head, _ := body.Peek(sniffBytes)
		if len(head) > 0 {
			mimeType = mimetype.Detect(head).String()
		}
	}

	key := path.Join(kindDir(kind), uuid.NewString()+ExtensionFor(mimeType, kind))
	localPath, written, err := d.scratch.Put(ctx, key, body, d.maxBytes)
	if err != nil {
		return Asset{}, &DownloadError{URL: url, Reason: "write", Err: err}
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		_ = d.scratch.Delete(ctx, key)
		return Asset{}, &DownloadError{
			URL:    url,
			Reason: fmt.Sprintf("partial transfer: got %d of %d bytes", written, resp.ContentLength),
		}
	}

	d.logger.Debug("media downloaded",
		slog.String("kind", kind.String()),
		slog.String("mime_type", mimeType),
		slog.Int64("size_bytes", written),
	)
	return Asset{
		LocalPath: localPath,
		MimeType:  baseMime(mimeType),
		Kind:      kind,
		SizeBytes: written,
	}, nil
}

// Fetch resolves mediaID and downloads it.
func (d *Downloader) Fetch(ctx context.Context, mediaID string, kind webhook.Kind) (Asset, error) {
	loc, err := d.FetchMediaURL(ctx, mediaID)
	if err != nil {
		return Asset{}, err
	}
	asset, err := d.Download(ctx, loc.URL, loc.MimeType, kind)
	if err != nil {
		return Asset{}, err
	}
	asset.ExternalID = mediaID
	return asset, nil
}

var extensionsByMime = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"audio/ogg":       ".ogg",
	"audio/opus":      ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/aac":       ".aac",
	"audio/amr":       ".amr",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

// ExtensionFor picks a file extension from the mime type, falling back to a
// per-kind default when the type is unknown.
func ExtensionFor(mimeType string, kind webhook.Kind) string {
	if ext, ok := extensionsByMime[baseMime(mimeType)]; ok {
		return ext
	}
	switch kind {
	case webhook.KindAudio:
		return ".ogg"
	case webhook.KindImage:
		return ".jpg"
	case webhook.KindVideo:
		return ".mp4"
	default:
		return ".bin"
	}
}

func baseMime(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
}

func kindDir(kind webhook.Kind) string {
	if kind.IsMedia() {
		return kind.String()
	}
	return "other"
}
