package media

import (
	"context"

	"github.com/memohai/ledgerchat/internal/webhook"
)

// Asset is a downloaded attachment addressable on local disk.
type Asset struct {
	ExternalID string       `json:"external_id"`
	LocalPath  string       `json:"local_path"`
	MimeType   string       `json:"mime_type"`
	Kind       webhook.Kind `json:"kind"`
	SizeBytes  int64        `json:"size_bytes"`
}

// MediaURL is the transient download location resolved from a media id.
type MediaURL struct {
	URL      string
	MimeType string
}

// MetadataClient resolves a provider media id to its download URL.
type MetadataClient interface {
	GetMediaURL(ctx context.Context, mediaID string) (MediaURL, error)
}
