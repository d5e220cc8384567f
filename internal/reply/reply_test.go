package reply

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/memohai/ledgerchat/internal/intent"
)

var testToday = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func newTestComposer() *Composer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTransactionConfirmation_Golden(t *testing.T) {
	t.Parallel()
	c := newTestComposer()
	in := intent.TransactionIntent{Descricao: "Almoço", Valor: "23.5", Categoria: "Alimentação", Data: "2024-03-05"}

	out := c.TransactionConfirmation("5511", "tx-1", in, "Ana Souza", testToday)
	for _, want := range []string{"R$ 23,50", "Alimentação", "05/03/2024", "Almoço"} {
		if !strings.Contains(out.Body, want) {
			t.Errorf("body missing %q:\n%s", want, out.Body)
		}
	}
	if len(out.Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(out.Buttons))
	}
	if out.Buttons[0].ID != "edit:tx-1" || !strings.Contains(out.Buttons[0].Label, "Editar") {
		t.Errorf("unexpected edit button %+v", out.Buttons[0])
	}
	if out.Buttons[1].ID != "delete:tx-1" || !strings.Contains(out.Buttons[1].Label, "Excluir") {
		t.Errorf("unexpected delete button %+v", out.Buttons[1])
	}

	again := c.TransactionConfirmation("5511", "tx-1", in, "Ana Souza", testToday)
	if again.Body != out.Body {
		t.Fatal("confirmation must be deterministic")
	}
}

func TestTransactionConfirmation_Variants(t *testing.T) {
	t.Parallel()
	c := newTestComposer()

	income := c.TransactionConfirmation("5511", "tx", intent.TransactionIntent{Descricao: "Salário", Valor: "5000", Tipo: "receita"}, "", testToday)
	if !strings.HasPrefix(income.Body, "💰 Receita registrada!") {
		t.Errorf("income heading:\n%s", income.Body)
	}
	if !strings.Contains(income.Body, "hoje") || !strings.Contains(income.Body, "Outros") {
		t.Errorf("defaults missing:\n%s", income.Body)
	}

	expense := c.TransactionConfirmation("5511", "tx", intent.TransactionIntent{Descricao: "Uber", Valor: "18,9", Categoria: "Transporte"}, "", testToday)
	if !strings.HasPrefix(expense.Body, "💸 Despesa registrada!") || !strings.Contains(expense.Body, "🚗 Categoria: Transporte") {
		t.Errorf("expense decoration:\n%s", expense.Body)
	}
}

func TestTransactionConfirmation_DateMatchesStoredEntry(t *testing.T) {
	t.Parallel()
	c := newTestComposer()

	cases := map[string]string{
		"2024-03-05": "05/03/2024",
		"ontem":      "08/03/2024",
		"amanhã":     "09/03/2024",
		"":           "hoje",
	}
	for data, want := range cases {
		in := intent.TransactionIntent{Descricao: "Almoço", Valor: "10", Data: data}
		out := c.TransactionConfirmation("5511", "tx", in, "", testToday)
		if !strings.Contains(out.Body, "📅 Data: "+want) {
			t.Errorf("data %q: want %q in\n%s", data, want, out.Body)
		}
		if data != "" && in.OccurredOn(testToday).Format("02/01/2006") != want {
			t.Errorf("data %q: stored date differs from confirmation", data)
		}
	}
}

func TestInteractive_TruncatesAndLogs(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	c := New(slog.New(slog.NewTextHandler(&logs, nil)))

	out := c.Interactive("5511", "escolha",
		Button{ID: "a", Label: "A"},
		Button{ID: "b", Label: "B"},
		Button{ID: "c", Label: "C"},
		Button{ID: "d", Label: "D"},
	)
	if len(out.Buttons) != MaxButtons {
		t.Fatalf("expected %d buttons, got %d", MaxButtons, len(out.Buttons))
	}
	if out.Buttons[2].ID != "c" {
		t.Fatalf("kept wrong buttons: %+v", out.Buttons)
	}
	if !strings.Contains(logs.String(), "truncating") {
		t.Fatalf("expected a warning log, got %q", logs.String())
	}
}

func TestInteractive_ClampsButtonFields(t *testing.T) {
	t.Parallel()
	c := newTestComposer()
	out := c.Interactive("5511", "x", Button{ID: strings.Repeat("é", 200), Label: "Confirmar lançamento agora mesmo"})
	b := out.Buttons[0]
	if utf8.RuneCountInString(b.Label) > maxLabelRunes {
		t.Errorf("label too long: %q", b.Label)
	}
	if len(b.ID) > maxButtonIDLen || !utf8.ValidString(b.ID) {
		t.Errorf("id not clamped cleanly: %d bytes", len(b.ID))
	}
}

func TestPlain(t *testing.T) {
	t.Parallel()
	out := newTestComposer().Plain("5511", "oi")
	if out.Interactive() || out.Body != "oi" || out.To != "5511" {
		t.Fatalf("unexpected plain reply %+v", out)
	}
}

func TestFormatBRL(t *testing.T) {
	t.Parallel()
	tests := map[float64]string{
		23.5:       "R$ 23,50",
		0:          "R$ 0,00",
		1234.5:     "R$ 1.234,50",
		1000000:    "R$ 1.000.000,00",
		0.05:       "R$ 0,05",
		-12.3:      "R$ -12,30",
		999.999:    "R$ 1.000,00",
		100:        "R$ 100,00",
		123456.789: "R$ 123.456,79",
	}
	for in, want := range tests {
		if got := FormatBRL(in); got != want {
			t.Errorf("FormatBRL(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"2024-03-05": "05/03/2024",
		"05/03/2024": "05/03/2024",
		"":           "hoje",
		"hoje":       "hoje",
		"ontem":      "08/03/2024",
		"semana":     "semana",
	}
	for in, want := range tests {
		if got := FormatDate(in, testToday); got != want {
			t.Errorf("FormatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseActionID(t *testing.T) {
	t.Parallel()
	if a, id, ok := ParseActionID(ActionID(ActionDelete, "abc")); !ok || a != ActionDelete || id != "abc" {
		t.Fatalf("round trip failed: %q %q %v", a, id, ok)
	}
	for _, bad := range []string{"", "delete:", "archive:abc", "abc"} {
		if _, _, ok := ParseActionID(bad); ok {
			t.Errorf("ParseActionID(%q) should fail", bad)
		}
	}
}

func TestFixedTemplates(t *testing.T) {
	t.Parallel()
	c := newTestComposer()
	if body := c.IdentityPrompt("5511", "Ana Souza").Body; !strings.Contains(body, "Ana") || !strings.Contains(body, "email") {
		t.Errorf("identity prompt: %q", body)
	}
	del := c.DeletionConfirmation("5511", Deleted{Description: "Almoço", Amount: 23.5, OccurredOn: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)})
	if !strings.Contains(del.Body, "R$ 23,50") || !strings.Contains(del.Body, "05/03/2024") {
		t.Errorf("deletion confirmation: %q", del.Body)
	}
	for _, out := range []Outbound{c.IdentityRetry("5511"), c.GenericFallback("5511"), c.EditPrompt("5511"), c.TransactionNotFound("5511"), c.Welcome("5511", "")} {
		if out.Body == "" || out.Interactive() {
			t.Errorf("fixed template should be non-empty plain text: %+v", out)
		}
	}
}
