// Package whatsapp is a small client for the WhatsApp Cloud API: outbound
// text and button messages plus media URL lookup.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/ledgerchat/internal/media"
	"github.com/memohai/ledgerchat/internal/reply"
)

var ErrNoMessageID = errors.New("whatsapp response has no message id")

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("whatsapp API %d", e.StatusCode)
	}
	return fmt.Sprintf("whatsapp API %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Config holds the Cloud API credentials.
type Config struct {
	BaseURL       string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
}

// Client talks to graph.facebook.com on behalf of one phone number.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(log *slog.Logger, cfg Config, httpClient *http.Client) *Client {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: log.With(slog.String("service", "whatsapp")),
	}
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type interactiveButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type interactiveBody struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []interactiveButton `json:"buttons"`
	} `json:"action"`
}

type sendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textBody        `json:"text,omitempty"`
	Interactive      *interactiveBody `json:"interactive,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers an outbound reply, choosing the text or interactive form.
// It returns the provider-assigned message id.
func (c *Client) Send(ctx context.Context, out reply.Outbound) (string, error) {
	if out.Interactive() {
		return c.SendInteractive(ctx, out.To, out.Body, out.Buttons)
	}
	return c.SendText(ctx, out.To, out.Body)
}

func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

func (c *Client) SendInteractive(ctx context.Context, to, body string, buttons []reply.Button) (string, error) {
	ib := &interactiveBody{Type: "button"}
	ib.Body.Text = body
	for _, b := range buttons {
		var btn interactiveButton
		btn.Type = "reply"
		btn.Reply.ID = b.ID
		btn.Reply.Title = b.Label
		ib.Action.Buttons = append(ib.Action.Buttons, btn)
	}
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      ib,
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp sendResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", ErrNoMessageID
	}
	return resp.Messages[0].ID, nil
}

type mediaResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// GetMediaURL resolves a media id to its short-lived download URL.
func (c *Client) GetMediaURL(ctx context.Context, mediaID string) (media.MediaURL, error) {
	url := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return media.MediaURL{}, fmt.Errorf("build request: %w", err)
	}
	var resp mediaResponse
	if err := c.do(req, &resp); err != nil {
		return media.MediaURL{}, &media.MetadataError{MediaID: mediaID, Reason: "lookup failed", Err: err}
	}
	if resp.URL == "" {
		return media.MediaURL{}, &media.MetadataError{MediaID: mediaID, Reason: "response has no url"}
	}
	return media.MediaURL{URL: resp.URL, MimeType: resp.MimeType}, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
