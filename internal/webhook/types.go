package webhook

import (
	"errors"
	"time"
)

// Kind classifies an inbound message. Provider types outside the known set
// are kept verbatim so downstream extraction can treat them as unknown.
type Kind string

const (
	KindText             Kind = "text"
	KindAudio            Kind = "audio"
	KindImage            Kind = "image"
	KindVideo            Kind = "video"
	KindInteractiveReply Kind = "interactive_reply"
)

func (k Kind) String() string { return string(k) }

// Known reports whether k is one of the supported message kinds.
func (k Kind) Known() bool {
	switch k {
	case KindText, KindAudio, KindImage, KindVideo, KindInteractiveReply:
		return true
	}
	return false
}

// IsMedia reports whether the kind carries a downloadable attachment.
func (k Kind) IsMedia() bool {
	return k == KindAudio || k == KindImage || k == KindVideo
}

// InboundMessage is one user message flattened out of a webhook payload.
type InboundMessage struct {
	ExternalID    string
	SenderAddress string
	SenderName    string
	Kind          Kind
	RawText       string
	MediaRef      string
	MimeType      string
	// ReplyID and ReplyTitle carry the selected button or list row of an
	// interactive reply.
	ReplyID    string
	ReplyTitle string
	// ButtonText and ButtonPayload come from template quick-reply buttons,
	// which the provider reports as type "button".
	ButtonText    string
	ButtonPayload string
	Caption       string
	ReceivedAt    time.Time
}

// Shape identifies which of the known payload layouts a body matched.
type Shape int

const (
	ShapeNone Shape = iota
	// ShapeNested is entry[].changes[].value.messages[].
	ShapeNested
	// ShapeMessages is a top-level messages[] array.
	ShapeMessages
	// ShapeSingle is a single top-level message object.
	ShapeSingle
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeMessages:
		return "messages"
	case ShapeSingle:
		return "single"
	default:
		return "none"
	}
}

// ErrVerificationFailed is returned by Verify when the handshake does not match.
var ErrVerificationFailed = errors.New("webhook verification failed")

// Query parameters of the subscription verification handshake.
const (
	ParamMode        = "hub.mode"
	ParamVerifyToken = "hub.verify_token"
	ParamChallenge   = "hub.challenge"
	ModeSubscribe    = "subscribe"
)
