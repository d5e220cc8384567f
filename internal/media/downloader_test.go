package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/memohai/ledgerchat/internal/webhook"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeMeta struct {
	loc MediaURL
	err error
}

func (f fakeMeta) GetMediaURL(context.Context, string) (MediaURL, error) {
	return f.loc, f.err
}

func newTestDownloader(t *testing.T, meta MetadataClient) *Downloader {
	t.Helper()
	scratch, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDownloader(log, meta, nil, "secret-token", scratch)
}

func TestExtensionFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime string
		kind webhook.Kind
		want string
	}{
		{"image/png", webhook.KindImage, ".png"},
		{"image/jpeg", webhook.KindImage, ".jpg"},
		{"", webhook.KindImage, ".jpg"},
		{"audio/ogg; codecs=opus", webhook.KindAudio, ".ogg"},
		{"audio/mpeg", webhook.KindAudio, ".mp3"},
		{"", webhook.KindAudio, ".ogg"},
		{"video/mp4", webhook.KindVideo, ".mp4"},
		{"application/x-unknown", webhook.KindVideo, ".mp4"},
		{"", webhook.Kind("document"), ".bin"},
		{"IMAGE/PNG", webhook.KindImage, ".png"},
	}
	for _, tt := range tests {
		if got := ExtensionFor(tt.mime, tt.kind); got != tt.want {
			t.Errorf("ExtensionFor(%q, %q) = %q, want %q", tt.mime, tt.kind, got, tt.want)
		}
	}
}

func TestDownload_WritesAssetWithBearer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Write(pngHeader)
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil)
	asset, err := d.Download(context.Background(), srv.URL+"/file", "", webhook.KindImage)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if asset.MimeType != "image/png" {
		t.Fatalf("sniffed mime = %q, want image/png", asset.MimeType)
	}
	if filepath.Ext(asset.LocalPath) != ".png" {
		t.Fatalf("unexpected extension in %q", asset.LocalPath)
	}
	if filepath.Base(filepath.Dir(asset.LocalPath)) != "image" {
		t.Fatalf("asset not under kind dir: %q", asset.LocalPath)
	}
	data, err := os.ReadFile(asset.LocalPath)
	if err != nil {
		t.Fatalf("read asset: %v", err)
	}
	if len(data) != len(pngHeader) || asset.SizeBytes != int64(len(pngHeader)) {
		t.Fatalf("unexpected asset size %d / %d", len(data), asset.SizeBytes)
	}
}

func TestDownload_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil)
	_, err := d.Download(context.Background(), srv.URL, "audio/ogg", webhook.KindAudio)
	if !errors.Is(err, ErrMediaDownload) {
		t.Fatalf("expected ErrMediaDownload, got %v", err)
	}
	var de *DownloadError
	if !errors.As(err, &de) || de.StatusCode != http.StatusNotFound {
		t.Fatalf("expected DownloadError with status 404, got %v", err)
	}
}

func TestDownload_OversizeLeavesNoFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, strings.Repeat("a", 64))
	}))
	defer srv.Close()

	d := newTestDownloader(t, nil)
	d.maxBytes = 16
	_, err := d.Download(context.Background(), srv.URL, "audio/ogg", webhook.KindAudio)
	if !errors.Is(err, ErrMediaDownload) || !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected oversize download error, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(d.scratch.Root(), "audio"))
	if len(entries) != 0 {
		t.Fatalf("expected empty kind dir, found %d entries", len(entries))
	}
}

func TestFetchMediaURL_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		meta MetadataClient
		id   string
	}{
		{name: "blank id", meta: fakeMeta{}, id: " "},
		{name: "collaborator error", meta: fakeMeta{err: errors.New("status 401")}, id: "m1"},
		{name: "missing url", meta: fakeMeta{loc: MediaURL{MimeType: "image/png"}}, id: "m1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newTestDownloader(t, tt.meta)
			_, err := d.FetchMediaURL(context.Background(), tt.id)
			if !errors.Is(err, ErrMediaMetadata) {
				t.Fatalf("expected ErrMediaMetadata, got %v", err)
			}
		})
	}
}

func TestFetch_SetsExternalID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		io.WriteString(w, "OggS-voice-note")
	}))
	defer srv.Close()

	d := newTestDownloader(t, fakeMeta{loc: MediaURL{URL: srv.URL, MimeType: "audio/ogg"}})
	asset, err := d.Fetch(context.Background(), "media-42", webhook.KindAudio)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if asset.ExternalID != "media-42" || asset.Kind != webhook.KindAudio {
		t.Fatalf("unexpected asset %+v", asset)
	}
	if filepath.Ext(asset.LocalPath) != ".ogg" {
		t.Fatalf("unexpected extension in %q", asset.LocalPath)
	}
}
