package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/synapse"
)

// FormatCurrency renders an amount with exactly two decimal places.
func FormatCurrency(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// FormatTimestamp renders a millisecond epoch timestamp as YYYY-MM-DD.
func FormatTimestamp(ms int64) string {
	return time.Unix(ms/1000, 0).UTC().Format("2006-01-02")
}

func userSummary(user *synapse.User) string {
	var b strings.Builder
	b.WriteString("```")
	fmt.Fprintf(&b, "user id: %s\n", user.ID)
	fmt.Fprintf(&b, "name: %s\n", user.LegalName())
	fmt.Fprintf(&b, "permissions: %s\n", user.Permission)
	b.WriteString("```")
	return b.String()
}

func nodeSummary(node synapse.Node) string {
	var b strings.Builder
	b.WriteString("```")
	fmt.Fprintf(&b, "node id: %s\n", node.ID)
	fmt.Fprintf(&b, "nickname: %s\n", node.Nickname)
	fmt.Fprintf(&b, "type: %s\n", node.AccountClass)
	fmt.Fprintf(&b, "permissions: %s\n", node.Permission)
	b.WriteString("```")
	return b.String()
}

func transactionSummary(trans synapse.Transaction) string {
	var b strings.Builder
	b.WriteString("```")
	fmt.Fprintf(&b, "trans id: %s\n", trans.ID)
	fmt.Fprintf(&b, "amount: %s\n", FormatCurrency(trans.Amount))
	fmt.Fprintf(&b, "from node id: %s\n", trans.FromNodeID)
	fmt.Fprintf(&b, "to node id: %s\n", trans.ToNodeID)
	fmt.Fprintf(&b, "recipient name: %s\n", trans.RecipientName)
	fmt.Fprintf(&b, "status: %s\n", trans.StatusNote)
	fmt.Fprintf(&b, "created on: %s\n", FormatTimestamp(trans.CreatedOn))
	fmt.Fprintf(&b, "process on: %s\n", FormatTimestamp(trans.ProcessOn))
	b.WriteString("```")
	return b.String()
}

func recurringTransactionSummary(recurring domain.RecurringTransaction) string {
	var b strings.Builder
	b.WriteString("```")
	fmt.Fprintf(&b, "amount: %s\n", FormatCurrency(recurring.Amount))
	fmt.Fprintf(&b, "periodicity: every %d days\n", recurring.Periodicity)
	b.WriteString("```")
	return b.String()
}
