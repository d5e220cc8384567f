// Package reply builds the outbound chat messages sent back to senders.
package reply

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	// MaxButtons is the provider limit on quick-reply buttons per message.
	MaxButtons     = 3
	maxLabelRunes  = 20
	maxButtonIDLen = 256
)

// Button is one quick-reply option.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Outbound is a composed reply ready for the transport.
type Outbound struct {
	To      string   `json:"to"`
	Body    string   `json:"body"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Interactive reports whether the reply carries buttons.
func (o Outbound) Interactive() bool { return len(o.Buttons) > 0 }

// Composer builds replies. The zero value is not usable; use New.
type Composer struct {
	logger *slog.Logger
}

func New(log *slog.Logger) *Composer {
	if log == nil {
		log = slog.Default()
	}
	return &Composer{logger: log.With(slog.String("component", "reply"))}
}

// Plain wraps text with no buttons.
func (c *Composer) Plain(to, text string) Outbound {
	return Outbound{To: to, Body: text}
}

// Interactive attaches up to MaxButtons buttons. Extra buttons are dropped
// with a warning so the rest of the reply still goes out.
func (c *Composer) Interactive(to, body string, buttons ...Button) Outbound {
	if len(buttons) > MaxButtons {
		c.logger.Warn("too many reply buttons, truncating",
			slog.Int("given", len(buttons)),
			slog.Int("max", MaxButtons),
		)
		buttons = buttons[:MaxButtons]
	}
	out := Outbound{To: to, Body: body}
	for _, b := range buttons {
		out.Buttons = append(out.Buttons, Button{
			ID:    truncateBytes(b.ID, maxButtonIDLen),
			Label: truncateRunes(b.Label, maxLabelRunes),
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
