package reply

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/ledgerchat/internal/intent"
)

// FormatBRL renders an amount as Brazilian reais: "R$ 1.234,50".
func FormatBRL(amount float64) string {
	cents := int64(math.Round(math.Abs(amount) * 100))
	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	var b strings.Builder
	b.WriteString("R$ ")
	if amount < 0 && cents != 0 {
		b.WriteString("-")
	}
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	b.WriteByte(',')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

// FormatDate renders an ISO or dd/mm/yyyy date as dd/mm/yyyy. A blank date
// renders as "hoje"; "ontem" is resolved against today.
func FormatDate(date string, today time.Time) string {
	if d, ok := intent.ParseDate(date); ok {
		return d.Format("02/01/2006")
	}
	switch strings.ToLower(strings.TrimSpace(date)) {
	case "", "hoje", "today":
		return "hoje"
	case "ontem", "yesterday":
		return today.AddDate(0, 0, -1).Format("02/01/2006")
	}
	return strings.TrimSpace(date)
}

var categoryEmoji = []struct {
	keys  []string
	emoji string
}{
	{[]string{"aliment", "comida", "restaurante", "mercado", "supermercado", "lanche"}, "🍽️"},
	{[]string{"transporte", "uber", "combust", "gasolina", "taxi", "ônibus", "onibus"}, "🚗"},
	{[]string{"moradia", "aluguel", "casa", "condom"}, "🏠"},
	{[]string{"saúde", "saude", "farmácia", "farmacia", "médico", "medico"}, "💊"},
	{[]string{"lazer", "entretenimento", "cinema", "viagem"}, "🎉"},
	{[]string{"educa", "curso", "livro", "escola"}, "📚"},
	{[]string{"salário", "salario", "renda", "freela", "investimento"}, "💼"},
	{[]string{"compras", "roupa", "vestu"}, "🛍️"},
	{[]string{"conta", "luz", "água", "agua", "internet", "telefone"}, "🧾"},
}

// CategoryEmoji picks a decoration for a category name.
func CategoryEmoji(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	for _, entry := range categoryEmoji {
		for _, k := range entry.keys {
			if strings.Contains(c, k) {
				return entry.emoji
			}
		}
	}
	return "🏷️"
}
