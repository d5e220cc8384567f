package media

import (
	"errors"
	"fmt"
)

var (
	// ErrMediaMetadata is matched by every *MetadataError.
	ErrMediaMetadata = errors.New("media metadata unavailable")
	// ErrMediaDownload is matched by every *DownloadError.
	ErrMediaDownload = errors.New("media download failed")
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
)

// MetadataError reports a failed media URL lookup.
type MetadataError struct {
	MediaID string
	Reason  string
	Err     error
}

func (e *MetadataError) Error() string {
	msg := fmt.Sprintf("media metadata %s: %s", e.MediaID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MetadataError) Unwrap() error { return e.Err }

func (e *MetadataError) Is(target error) bool { return target == ErrMediaMetadata }

// DownloadError reports a failed or partial media transfer.
type DownloadError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *DownloadError) Error() string {
	msg := "media download: " + e.Reason
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool { return target == ErrMediaDownload }
