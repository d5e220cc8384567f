package reply

import (
	"fmt"
	"strings"
	"time"

	"github.com/memohai/ledgerchat/internal/intent"
)

// Button id prefixes for the transaction actions.
const (
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// ActionID builds a button id of the form "<action>:<transaction id>".
func ActionID(action, txID string) string {
	return action + ":" + txID
}

// ParseActionID splits a button id produced by ActionID.
func ParseActionID(id string) (action, txID string, ok bool) {
	action, txID, found := strings.Cut(strings.TrimSpace(id), ":")
	if !found || txID == "" {
		return "", "", false
	}
	switch action {
	case ActionEdit, ActionDelete:
		return action, txID, true
	}
	return "", "", false
}

// Deleted is what DeletionConfirmation needs to know about a removed entry.
type Deleted struct {
	Description string
	Amount      float64
	Category    string
	OccurredOn  time.Time
}

// TransactionConfirmation confirms a recorded transaction with edit and
// delete buttons keyed to txID. Output depends only on the arguments.
func (c *Composer) TransactionConfirmation(to, txID string, in intent.TransactionIntent, displayName string, today time.Time) Outbound {
	heading := "💸 Despesa registrada!"
	if in.Kind() == intent.KindIncome {
		heading = "💰 Receita registrada!"
	}
	amount := strings.TrimSpace(in.Valor)
	if v, err := in.Amount(); err == nil {
		amount = FormatBRL(v)
	}
	category := strings.TrimSpace(in.Categoria)
	if category == "" {
		category = "Outros"
	}

	var b strings.Builder
	if name := firstName(displayName); name != "" {
		heading = strings.TrimSuffix(heading, "!") + ", " + name + "!"
	}
	b.WriteString(heading + "\n\n")
	fmt.Fprintf(&b, "📝 Descrição: %s\n", strings.TrimSpace(in.Descricao))
	fmt.Fprintf(&b, "💵 Valor: %s\n", amount)
	fmt.Fprintf(&b, "%s Categoria: %s\n", CategoryEmoji(category), category)
	fmt.Fprintf(&b, "📅 Data: %s", confirmationDate(in, today))

	return c.Interactive(to, b.String(),
		Button{ID: ActionID(ActionEdit, txID), Label: "✏️ Editar"},
		Button{ID: ActionID(ActionDelete, txID), Label: "🗑️ Excluir"},
	)
}

// confirmationDate renders the date the entry is stored under. An omitted
// date stays "hoje".
func confirmationDate(in intent.TransactionIntent, today time.Time) string {
	switch strings.ToLower(strings.TrimSpace(in.Data)) {
	case "", "hoje", "today":
		return "hoje"
	}
	return in.OccurredOn(today).Format("02/01/2006")
}

// DeletionConfirmation tells the sender an entry was removed.
func (c *Composer) DeletionConfirmation(to string, d Deleted) Outbound {
	body := fmt.Sprintf("🗑️ Transação excluída: %s (%s, %s).",
		strings.TrimSpace(d.Description),
		FormatBRL(d.Amount),
		d.OccurredOn.Format("02/01/2006"),
	)
	return c.Plain(to, body)
}

// EditPrompt tells the sender the entry was withdrawn and asks for the
// corrected version.
func (c *Composer) EditPrompt(to string) Outbound {
	return c.Plain(to, "✏️ Removi o lançamento anterior. Envie a versão corrigida (por exemplo: \"almoço 25,00 ontem\").")
}

// TransactionNotFound is sent when a button refers to an entry that no
// longer exists.
func (c *Composer) TransactionNotFound(to string) Outbound {
	return c.Plain(to, "Não encontrei esse lançamento. Talvez ele já tenha sido excluído.")
}

// IdentityPrompt asks a new sender for their email.
func (c *Composer) IdentityPrompt(to, displayName string) Outbound {
	greeting := "Olá!"
	if name := firstName(displayName); name != "" {
		greeting = "Olá, " + name + "!"
	}
	return c.Plain(to, greeting+" 👋 Para começar a registrar suas finanças, me envie o seu email.")
}

// IdentityRetry is sent when the awaited identity is not email-shaped.
func (c *Composer) IdentityRetry(to string) Outbound {
	return c.Plain(to, "Não reconheci um email válido. 🤔 Por favor, envie apenas o seu email (ex.: nome@exemplo.com).")
}

// IdentityThrottled is sent once identity attempts are exhausted.
func (c *Composer) IdentityThrottled(to string) Outbound {
	return c.Plain(to, "Muitas tentativas. ⏳ Aguarde alguns minutos e envie o seu email novamente.")
}

// Welcome confirms a successful identification.
func (c *Composer) Welcome(to, displayName string) Outbound {
	greeting := "Tudo certo!"
	if name := firstName(displayName); name != "" {
		greeting = "Tudo certo, " + name + "!"
	}
	return c.Plain(to, greeting+" ✅ Agora é só me contar seus gastos e receitas, por exemplo: \"mercado 87,30\".")
}

// GenericFallback is the reply for unrecoverable per-message failures.
func (c *Composer) GenericFallback(to string) Outbound {
	return c.Plain(to, "Desculpe, não consegui processar sua mensagem agora. 😕 Tente novamente em instantes.")
}

func firstName(displayName string) string {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
