package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/synapse"
)

type paymentsProvider interface {
	CreateUser(ctx context.Context, in synapse.CreateUserInput) (*synapse.User, error)
	AddBaseDocument(ctx context.Context, userID string, in synapse.BaseDocumentInput) (*synapse.User, error)
	AddVirtualDocument(ctx context.Context, userID, documentID, ssn string) (*synapse.User, error)
	AddPhysicalDocument(ctx context.Context, userID, documentID, fileURL string) (*synapse.User, error)
	ListNodes(ctx context.Context, userID string) ([]synapse.Node, error)
	CreateACHNode(ctx context.Context, userID string, in synapse.ACHNodeInput) (*synapse.Node, error)
	VerifyMicrodeposits(ctx context.Context, userID, nodeID string, amount1, amount2 decimal.Decimal) (*synapse.Node, error)
	ListTransactions(ctx context.Context, userID, nodeID string) ([]synapse.Transaction, error)
	CreateTransaction(ctx context.Context, userID, nodeID string, in synapse.TransactionInput) (*synapse.Transaction, error)
}

type registeredUserWriter interface {
	Create(ctx context.Context, user domain.RegisteredUser) (domain.RegisteredUser, error)
	AttachNodes(ctx context.Context, chatUserID, debitNodeID, savingsNodeID string) error
}

type recurringTransactionWriter interface {
	Create(ctx context.Context, trans domain.RecurringTransaction) (domain.RecurringTransaction, error)
}

// Handlers implements every command. Handlers validate their own input
// shape and answer warnings for malformed commands; provider errors
// propagate untouched for the dispatcher to translate.
type Handlers struct {
	provider  paymentsProvider
	users     registeredUserWriter
	recurring recurringTransactionWriter
	registry  *Registry
}

func NewHandlers(provider paymentsProvider, users registeredUserWriter, recurring recurringTransactionWriter) *Handlers {
	return &Handlers{provider: provider, users: users, recurring: recurring}
}

func (h *Handlers) WhoAmI(ctx context.Context, inv Invocation) (string, error) {
	return userSummary(inv.Account.Remote), nil
}

func (h *Handlers) ListNodes(ctx context.Context, inv Invocation) (string, error) {
	nodes, err := h.provider.ListNodes(ctx, inv.Account.Remote.ID)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "*No nodes found for user.*", nil
	}
	summaries := make([]string, 0, len(nodes))
	for _, node := range nodes {
		summaries = append(summaries, nodeSummary(node))
	}
	return strings.Join(summaries, "\n"), nil
}

func (h *Handlers) ListTransactions(ctx context.Context, inv Invocation) (string, error) {
	fromID := inv.Params.Lookup("from")
	if fromID == "" {
		return h.registry.invalidParamsWarning("list_transactions"), nil
	}
	transactions, err := h.provider.ListTransactions(ctx, inv.Account.Remote.ID, fromID)
	if err != nil {
		return "", err
	}
	if len(transactions) == 0 {
		return "*No transactions found for node.*", nil
	}
	summaries := make([]string, 0, len(transactions))
	for _, trans := range transactions {
		summaries = append(summaries, transactionSummary(trans))
	}
	return strings.Join(summaries, "\n"), nil
}

// Send moves funds out of one of the user's nodes. Three sub-modes, checked
// in order: "every N" records a recurring instruction locally without any
// remote call, "in N" creates a deferred remote transaction, otherwise the
// transfer is immediate. The destination defaults to the user's stored
// savings node when no "to" is given.
func (h *Handlers) Send(ctx context.Context, inv Invocation) (string, error) {
	amountRaw := inv.Params.Field("amount")
	if amountRaw == "" {
		amountRaw = inv.Params.FirstWord()
	}
	fromID := inv.Params.Lookup("from")
	if amountRaw == "" || fromID == "" {
		return h.registry.invalidParamsWarning("send"), nil
	}
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil || !amount.IsPositive() {
		return h.registry.invalidParamsWarning("send"), nil
	}

	if every := inv.Params.Lookup("every"); every != "" {
		periodicity, err := strconv.Atoi(every)
		if err != nil || periodicity <= 0 {
			return h.registry.invalidParamsWarning("send"), nil
		}
		recurring, err := h.recurring.Create(ctx, domain.RecurringTransaction{
			Amount:      amount,
			Periodicity: periodicity,
			ChatUserID:  inv.ChatUserID,
		})
		if err != nil {
			return "", err
		}
		return "*Recurring transaction created.*\n" + recurringTransactionSummary(recurring), nil
	}

	toID := inv.Params.Lookup("to")
	if toID == "" {
		toID = inv.Account.Row.SavingsNodeID
	}
	if toID == "" {
		return h.registry.invalidParamsWarning("send"), nil
	}

	input := synapse.TransactionInput{Amount: amount, ToNodeID: toID}
	if deferRaw := inv.Params.Lookup("in"); deferRaw != "" {
		days, err := strconv.Atoi(deferRaw)
		if err != nil || days <= 0 {
			return h.registry.invalidParamsWarning("send"), nil
		}
		input.ProcessInDays = days
	}
	trans, err := h.provider.CreateTransaction(ctx, inv.Account.Remote.ID, fromID, input)
	if err != nil {
		return "", err
	}
	return "*Transaction created.*\n" + transactionSummary(*trans), nil
}

// Verify confirms node ownership by microdeposit amounts. Three tokens name
// the node explicitly; two tokens fall back to the stored debit node.
func (h *Handlers) Verify(ctx context.Context, inv Invocation) (string, error) {
	words := strings.Fields(inv.Params.Text())
	var nodeID, raw1, raw2 string
	switch len(words) {
	case 3:
		nodeID, raw1, raw2 = words[0], words[1], words[2]
	case 2:
		nodeID = inv.Account.Row.DebitNodeID
		raw1, raw2 = words[0], words[1]
	}
	if nodeID == "" || raw1 == "" || raw2 == "" {
		return h.registry.invalidParamsWarning("verify"), nil
	}
	amount1, err1 := decimal.NewFromString(raw1)
	amount2, err2 := decimal.NewFromString(raw2)
	if err1 != nil || err2 != nil {
		return h.registry.invalidParamsWarning("verify"), nil
	}
	node, err := h.provider.VerifyMicrodeposits(ctx, inv.Account.Remote.ID, nodeID, amount1, amount2)
	if err != nil {
		return "", err
	}
	return "*Node verified.*\n" + nodeSummary(*node), nil
}

// Register creates the remote user and persists the local identity mapping.
// The dispatcher refuses already-registered users before this runs; the
// unique index backstops races.
func (h *Handlers) Register(ctx context.Context, inv Invocation) (string, error) {
	name := inv.Params.Field("name")
	email := inv.Params.Field("email")
	phone := inv.Params.Field("phone")
	if name == "" || email == "" || phone == "" {
		return h.registry.invalidParamsWarning("register"), nil
	}
	user, err := h.provider.CreateUser(ctx, synapse.CreateUserInput{
		Name:  titleCase(name),
		Email: email,
		Phone: phone,
	})
	if err != nil {
		return "", err
	}
	if _, err := h.users.Create(ctx, domain.RegisteredUser{
		ChatUserID:   inv.ChatUserID,
		RemoteUserID: user.ID,
	}); err != nil {
		return "", err
	}
	return "*Registration successful.*\n" + userSummary(user), nil
}

func (h *Handlers) AddAddress(ctx context.Context, inv Invocation) (string, error) {
	street := inv.Params.Field("street")
	city := inv.Params.Field("city")
	state := inv.Params.Field("state")
	zip := inv.Params.Field("zip")
	dob := inv.Params.Field("dob")
	if street == "" || city == "" || state == "" || zip == "" || dob == "" {
		return h.registry.invalidParamsWarning("add_address"), nil
	}
	month, day, year, ok := splitBirthday(dob)
	if !ok {
		return h.registry.invalidParamsWarning("add_address"), nil
	}

	remote := inv.Account.Remote
	user, err := h.provider.AddBaseDocument(ctx, remote.ID, synapse.BaseDocumentInput{
		Name:       remote.LegalName(),
		Email:      remote.Email,
		Phone:      remote.Phone,
		Street:     titleCase(street),
		City:       titleCase(city),
		State:      strings.ToUpper(state),
		Zip:        zip,
		BirthDay:   day,
		BirthMonth: month,
		BirthYear:  year,
	})
	if err != nil {
		return "", err
	}
	return "*Address added.*\n" + userSummary(user), nil
}

func (h *Handlers) AddSSN(ctx context.Context, inv Invocation) (string, error) {
	remote := inv.Account.Remote
	if !remote.HasBaseDocument() {
		return h.registry.baseDocWarning(), nil
	}
	ssn := inv.Params.FirstWord()
	if ssn == "" {
		return h.registry.invalidParamsWarning("add_ssn"), nil
	}
	user, err := h.provider.AddVirtualDocument(ctx, remote.ID, remote.BaseDocumentIDs[0], ssn)
	if err != nil {
		return "", err
	}
	return "*SSN added.*\n" + userSummary(user), nil
}

// AddPhotoID receives the upload's permanent link as its parameter; the
// provider fetches the file itself.
func (h *Handlers) AddPhotoID(ctx context.Context, inv Invocation) (string, error) {
	remote := inv.Account.Remote
	if !remote.HasBaseDocument() {
		return h.registry.baseDocWarning(), nil
	}
	fileURL := inv.Params.Text()
	if fileURL == "" {
		return h.registry.invalidParamsWarning("add_photo_id"), nil
	}
	user, err := h.provider.AddPhysicalDocument(ctx, remote.ID, remote.BaseDocumentIDs[0], fileURL)
	if err != nil {
		return "", err
	}
	return "*Photo ID added.*\n" + userSummary(user), nil
}

func (h *Handlers) AddNode(ctx context.Context, inv Invocation) (string, error) {
	nickname := inv.Params.Field("nickname")
	account := inv.Params.Field("account")
	routing := inv.Params.Field("routing")
	class := strings.ToUpper(inv.Params.Field("type"))
	if nickname == "" || account == "" || routing == "" {
		return h.registry.invalidParamsWarning("add_node"), nil
	}
	if class != "CHECKING" && class != "SAVINGS" {
		return h.registry.invalidParamsWarning("add_node"), nil
	}
	node, err := h.provider.CreateACHNode(ctx, inv.Account.Remote.ID, synapse.ACHNodeInput{
		Nickname:      nickname,
		AccountNumber: account,
		RoutingNumber: routing,
		Class:         class,
	})
	if err != nil {
		return "", err
	}

	debitID := inv.Account.Row.DebitNodeID
	savingsID := inv.Account.Row.SavingsNodeID
	if class == "CHECKING" {
		debitID = node.ID
	} else {
		savingsID = node.ID
	}
	if err := h.users.AttachNodes(ctx, inv.ChatUserID, debitID, savingsID); err != nil {
		return "", err
	}
	return "*Node created.*\n" + nodeSummary(*node), nil
}

// titleCase upper-cases the first letter of each word; the parser lower-
// cases the whole command before fields are read.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// splitBirthday parses mm/dd/yyyy into its three integer parts.
func splitBirthday(dob string) (month, day, year int, ok bool) {
	parts := strings.Split(dob, "/")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if month, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if day, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	if year, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, false
	}
	return month, day, year, true
}
