// Package content maps inbound messages of any kind to the text the
// pipeline acts on, plus the media reference when one must be fetched.
package content

import (
	"strings"

	"github.com/memohai/ledgerchat/internal/webhook"
)

const audioMarkerPrefix = "[audio:"

// Normalized is the actionable payload of one inbound message.
type Normalized struct {
	Text      string
	MediaRef  string
	MediaKind webhook.Kind
	MimeType  string
	// ReplyID is the id of the selected interactive button, if any.
	ReplyID string
	// RequiresMedia is set when Text is only a placeholder and the media
	// itself has to be processed to obtain content.
	RequiresMedia bool
}

// Empty reports whether there is nothing to act on.
func (n Normalized) Empty() bool {
	return strings.TrimSpace(n.Text) == "" && !n.RequiresMedia && n.ReplyID == ""
}

// Func extracts candidate text from a message; "" means no match.
type Func func(msg webhook.InboundMessage) string

// Fallbacks is the ordered chain consulted when the kind-specific extraction
// yields nothing.
var Fallbacks = []Func{
	ButtonText,
	ButtonPayload,
	ReplyTitle,
	Caption,
}

// Extract dispatches on the message kind and falls back to Fallbacks.
// Unknown kinds produce an empty result.
func Extract(msg webhook.InboundMessage) Normalized {
	if !msg.Kind.Known() {
		return Normalized{}
	}
	out := Normalized{MimeType: msg.MimeType}
	switch msg.Kind {
	case webhook.KindText:
		out.Text = msg.RawText
	case webhook.KindAudio:
		if ref := strings.TrimSpace(msg.MediaRef); ref != "" {
			out.Text = AudioPlaceholder(ref)
			out.MediaRef = ref
			out.MediaKind = webhook.KindAudio
			out.RequiresMedia = true
			return out
		}
	case webhook.KindImage, webhook.KindVideo:
		out.Text = strings.TrimSpace(msg.Caption)
		if out.Text != "" {
			out.MediaRef = strings.TrimSpace(msg.MediaRef)
			out.MediaKind = msg.Kind
		}
	case webhook.KindInteractiveReply:
		out.Text = ReplyTitle(msg)
		out.ReplyID = strings.TrimSpace(msg.ReplyID)
		if out.ReplyID == "" {
			out.ReplyID = strings.TrimSpace(msg.ButtonPayload)
		}
	}
	if strings.TrimSpace(out.Text) == "" {
		out.Text = FirstNonEmpty(msg, Fallbacks...)
	}
	return out
}

// FirstNonEmpty applies fns in order and returns the first non-blank result.
func FirstNonEmpty(msg webhook.InboundMessage, fns ...Func) string {
	for _, fn := range fns {
		if v := strings.TrimSpace(fn(msg)); v != "" {
			return v
		}
	}
	return ""
}

func ButtonText(msg webhook.InboundMessage) string    { return msg.ButtonText }
func ButtonPayload(msg webhook.InboundMessage) string { return msg.ButtonPayload }
func ReplyTitle(msg webhook.InboundMessage) string    { return msg.ReplyTitle }
func Caption(msg webhook.InboundMessage) string       { return msg.Caption }

// AudioPlaceholder is the text stand-in for an audio message awaiting transcription.
func AudioPlaceholder(mediaRef string) string {
	return audioMarkerPrefix + mediaRef + "]"
}

// IsAudioPlaceholder reports whether text is an AudioPlaceholder marker.
func IsAudioPlaceholder(text string) bool {
	return strings.HasPrefix(text, audioMarkerPrefix) && strings.HasSuffix(text, "]")
}
