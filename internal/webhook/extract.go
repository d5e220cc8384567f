package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"iter"
	"net/url"
	"strings"
	"time"
)

// Verify checks a subscription handshake and returns the challenge to echo
// back. Any mismatch, including a missing mode or token, is ErrVerificationFailed.
func Verify(query url.Values, secret string) (string, error) {
	mode := strings.TrimSpace(query.Get(ParamMode))
	token := query.Get(ParamVerifyToken)
	if mode != ModeSubscribe || token == "" || secret == "" {
		return "", ErrVerificationFailed
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return "", ErrVerificationFailed
	}
	return query.Get(ParamChallenge), nil
}

// Batch is the classified form of a webhook body: exactly one shape, and the
// wire messages that shape carried.
type Batch struct {
	Shape    Shape
	messages []wireMessage
	names    map[string]string
}

// Len returns the number of messages in the batch.
func (b Batch) Len() int { return len(b.messages) }

// Messages yields the batch's messages in payload order.
func (b Batch) Messages(now time.Time) iter.Seq[InboundMessage] {
	return func(yield func(InboundMessage) bool) {
		for _, m := range b.messages {
			if !yield(m.normalize(b.names, now)) {
				return
			}
		}
	}
}

type shapeParser func(env envelope) (Batch, bool)

// shapeParsers are tried in priority order; the first non-empty match wins.
var shapeParsers = []shapeParser{
	parseNested,
	parseMessages,
	parseSingle,
}

// Classify decodes body and picks the first known shape that yields at least
// one message. Malformed or unrecognised bodies classify as ShapeNone.
func Classify(body []byte) Batch {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Batch{Shape: ShapeNone}
	}
	for _, parse := range shapeParsers {
		if batch, ok := parse(env); ok {
			return batch
		}
	}
	return Batch{Shape: ShapeNone}
}

// ExtractMessages flattens a webhook body into its inbound messages.
func ExtractMessages(body []byte) iter.Seq[InboundMessage] {
	return Classify(body).Messages(time.Now().UTC())
}

func parseNested(env envelope) (Batch, bool) {
	var (
		messages []wireMessage
		names    = map[string]string{}
	)
	for _, e := range env.Entry {
		for _, c := range e.Changes {
			if len(c.Value.Messages) == 0 {
				continue
			}
			for id, name := range contactNames(c.Value.Contacts) {
				names[id] = name
			}
			messages = append(messages, c.Value.Messages...)
		}
	}
	if len(messages) == 0 {
		return Batch{}, false
	}
	return Batch{Shape: ShapeNested, messages: messages, names: names}, true
}

func parseMessages(env envelope) (Batch, bool) {
	if len(env.Messages) == 0 {
		return Batch{}, false
	}
	return Batch{Shape: ShapeMessages, messages: env.Messages, names: contactNames(env.Contacts)}, true
}

func parseSingle(env envelope) (Batch, bool) {
	if env.Message == nil || (env.Message.ID == "" && env.Message.From == "" && env.Message.Type == "") {
		return Batch{}, false
	}
	return Batch{Shape: ShapeSingle, messages: []wireMessage{*env.Message}, names: contactNames(env.Contacts)}, true
}
