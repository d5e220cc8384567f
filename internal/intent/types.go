// Package intent turns free chat text into transaction intents and
// generated reply text through an OpenAI-compatible model.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownTemplate = errors.New("unknown reply template")
	ErrEmptyResponse   = errors.New("model returned an empty response")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// Kinds of ledger entries.
const (
	KindExpense = "expense"
	KindIncome  = "income"
)

// DateLayout is the ISO date layout used on the wire.
const DateLayout = "2006-01-02"

// TransactionIntent is the structured result of parsing a chat message. The
// JSON names match what the model is asked to emit.
type TransactionIntent struct {
	Descricao string `json:"descricao"`
	Valor     string `json:"valor"`
	Categoria string `json:"categoria"`
	Data      string `json:"data,omitempty"`
	Tipo      string `json:"tipo,omitempty"`
}

// UnmarshalJSON accepts valor as either a JSON string or number.
func (t *TransactionIntent) UnmarshalJSON(data []byte) error {
	type alias TransactionIntent
	var raw struct {
		alias
		Valor json.RawMessage `json:"valor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = TransactionIntent(raw.alias)
	t.Valor = ""
	v := bytes.TrimSpace(raw.Valor)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		t.Valor = s
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("valor: %w", err)
		}
		t.Valor = n.String()
	}
	return nil
}

// Kind maps tipo onto KindIncome or KindExpense. Anything unrecognised is an
// expense.
func (t TransactionIntent) Kind() string {
	switch strings.ToLower(strings.TrimSpace(t.Tipo)) {
	case "receita", "entrada", "income", "ganho", "salario", "salário":
		return KindIncome
	default:
		return KindExpense
	}
}

// Amount parses Valor.
func (t TransactionIntent) Amount() (float64, error) {
	return ParseAmount(t.Valor)
}

// OccurredOn parses Data, using today when it is omitted or unparseable.
// "ontem" resolves to the day before today.
func (t TransactionIntent) OccurredOn(today time.Time) time.Time {
	if d, ok := ParseDate(t.Data); ok {
		return d
	}
	y, m, day := today.Date()
	d := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(strings.TrimSpace(t.Data)) {
	case "ontem", "yesterday":
		return d.AddDate(0, 0, -1)
	}
	return d
}

// Valid reports whether the intent carries a description and a positive amount.
func (t TransactionIntent) Valid() bool {
	if strings.TrimSpace(t.Descricao) == "" {
		return false
	}
	v, err := t.Amount()
	return err == nil && v > 0
}

// ParseAmount reads amounts written either as "23.5" or in Brazilian
// notation ("R$ 1.234,50"). The last separator present is the decimal one.
func ParseAmount(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "R$")
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.ReplaceAll(clean, "\u00a0", "")
	if clean == "" {
		return 0, ErrInvalidAmount
	}
	lastComma := strings.LastIndexByte(clean, ',')
	lastDot := strings.LastIndexByte(clean, '.')
	switch {
	case lastComma > lastDot:
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		clean = strings.ReplaceAll(clean, ",", "")
	case lastDot >= 0 && strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return math.Abs(v), nil
}

// ParseDate accepts ISO dates and dd/mm/yyyy.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{DateLayout, "02/01/2006", time.RFC3339} {
		if d, err := time.Parse(layout, s); err == nil {
			y, m, day := d.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Client is the AI collaborator used by the dispatch pipeline.
type Client interface {
	// ParseIntent returns nil, nil when text is not a transaction.
	ParseIntent(ctx context.Context, text string) (*TransactionIntent, error)
	GenerateReplyText(ctx context.Context, templateKey string, vars map[string]string) (string, error)
}

// Transcriber converts a local audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
