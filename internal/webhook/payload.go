package webhook

import (
	"strconv"
	"strings"
	"time"
)

// envelope decodes every layout at once; Classify decides which one applies.
type envelope struct {
	Object   string        `json:"object"`
	Entry    []entry       `json:"entry"`
	Messages []wireMessage `json:"messages"`
	Message  *wireMessage  `json:"message"`
	Contacts []wireContact `json:"contacts"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string        `json:"messaging_product"`
	Contacts         []wireContact `json:"contacts"`
	Messages         []wireMessage `json:"messages"`
}

type wireContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type wireMessage struct {
	From        string           `json:"from"`
	ID          string           `json:"id"`
	Timestamp   string           `json:"timestamp"`
	Type        string           `json:"type"`
	Text        *wireText        `json:"text,omitempty"`
	Audio       *wireMedia       `json:"audio,omitempty"`
	Voice       *wireMedia       `json:"voice,omitempty"`
	Image       *wireMedia       `json:"image,omitempty"`
	Video       *wireMedia       `json:"video,omitempty"`
	Interactive *wireInteractive `json:"interactive,omitempty"`
	Button      *wireButton      `json:"button,omitempty"`
	Caption     string           `json:"caption,omitempty"`
}

type wireText struct {
	Body string `json:"body"`
}

type wireMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

type wireInteractive struct {
	Type        string          `json:"type"`
	ButtonReply *wireReplyEntry `json:"button_reply,omitempty"`
	ListReply   *wireReplyEntry `json:"list_reply,omitempty"`
}

type wireReplyEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type wireButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// normalize flattens a wire message. names maps sender address to profile name.
func (m wireMessage) normalize(names map[string]string, now time.Time) InboundMessage {
	msg := InboundMessage{
		ExternalID:    strings.TrimSpace(m.ID),
		SenderAddress: strings.TrimSpace(m.From),
		SenderName:    names[strings.TrimSpace(m.From)],
		Kind:          normalizeKind(m.Type),
		Caption:       m.Caption,
		ReceivedAt:    parseTimestamp(m.Timestamp, now),
	}
	if m.Text != nil {
		msg.RawText = m.Text.Body
	}
	media := m.media(msg.Kind)
	if media != nil {
		msg.MediaRef = strings.TrimSpace(media.ID)
		msg.MimeType = strings.TrimSpace(media.MimeType)
		if media.Caption != "" {
			msg.Caption = media.Caption
		}
	}
	if m.Interactive != nil {
		reply := m.Interactive.ButtonReply
		if reply == nil {
			reply = m.Interactive.ListReply
		}
		if reply != nil {
			msg.ReplyID = strings.TrimSpace(reply.ID)
			msg.ReplyTitle = reply.Title
		}
	}
	if m.Button != nil {
		msg.ButtonText = m.Button.Text
		msg.ButtonPayload = m.Button.Payload
	}
	return msg
}

func (m wireMessage) media(kind Kind) *wireMedia {
	switch kind {
	case KindAudio:
		if m.Audio != nil {
			return m.Audio
		}
		return m.Voice
	case KindImage:
		return m.Image
	case KindVideo:
		return m.Video
	}
	return nil
}

func normalizeKind(raw string) Kind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text":
		return KindText
	case "audio", "voice":
		return KindAudio
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "interactive", "interactive_reply", "button_reply", "list_reply", "button":
		return KindInteractiveReply
	default:
		return Kind(strings.ToLower(strings.TrimSpace(raw)))
	}
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}

func contactNames(contacts []wireContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		id := strings.TrimSpace(c.WaID)
		name := strings.TrimSpace(c.Profile.Name)
		if id != "" && name != "" {
			names[id] = name
		}
	}
	return names
}
