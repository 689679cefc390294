package bot

import (
	"context"
	"sort"
	"strings"
)

// FallbackReply answers any keyword the registry does not know.
const FallbackReply = "*Not sure what you mean. Try this:*\n>@synapse help"

// AckReply is posted before a known command's handler runs so the remote
// call latency is not mistaken for silence.
const AckReply = "Processing command..."

// KeywordPhotoID is the only command triggered by a file upload rather than
// message text.
const KeywordPhotoID = "add_photo_id"

// Handler executes one command and returns the reply text.
type Handler func(ctx context.Context, inv Invocation) (string, error)

// Invocation carries everything a handler may need: who asked, their
// resolved account when the command requires registration, and the parsed
// parameters.
type Invocation struct {
	ChatUserID string
	Account    Account
	Params     Params
}

// Command is one registry entry: the handler plus the usage strings rendered
// by help and by invalid-format warnings.
type Command struct {
	Execute           Handler
	Example           string
	Description       string
	NeedsRegistration bool
}

// Registry is the immutable keyword → command table, built once at startup.
// help is reserved and answered from the table's usage strings instead of a
// handler.
type Registry struct {
	commands map[string]Command
}

// NewRegistry builds the table over the given handlers and hands them the
// registry so their warnings can quote usage examples.
func NewRegistry(h *Handlers) *Registry {
	r := &Registry{commands: map[string]Command{
		"add_address": {
			Execute: h.AddAddress,
			Example: "@synapse add_address street `[street address]` | " +
				"city `[city]` | state `[state abbreviation]` | zip " +
				"`[zip]` | dob `[mm/dd/yyyy]`",
			Description:       "Provide the user's address:",
			NeedsRegistration: true,
		},
		"add_node": {
			Execute: h.AddNode,
			Example: "@synapse add_node nickname `[nickname]` | account " +
				"`[account number]` | routing `[routing number]` | " +
				"type `[CHECKING / SAVINGS]`",
			Description:       "Associate a bank account with the user:",
			NeedsRegistration: true,
		},
		"add_photo_id": {
			Execute: h.AddPhotoID,
			Example: "@synapse add_photo_id",
			Description: "Provide the user's photo ID by uploading a file " +
				"with this comment",
			NeedsRegistration: true,
		},
		"add_ssn": {
			Execute:           h.AddSSN,
			Example:           "@synapse add_ssn `[last four digits of ssn]`",
			Description:       "Provide the user's SSN:",
			NeedsRegistration: true,
		},
		"list_nodes": {
			Execute:           h.ListNodes,
			Example:           "@synapse list_nodes",
			Description:       "List the bank accounts associated with the user:",
			NeedsRegistration: true,
		},
		"list_transactions": {
			Execute:           h.ListTransactions,
			Example:           "@synapse list_transactions from `[id of sending node]`",
			Description:       "List the transactions sent from a specific node:",
			NeedsRegistration: true,
		},
		"register": {
			Execute: h.Register,
			Example: "@synapse register name `[first last]` | email " +
				"`[email address]` | phone `[phone number]`",
			Description: "Register a user with Synapse:",
		},
		"send": {
			Execute: h.Send,
			Example: "@synapse send `[amount]` from `[id of sending node]` " +
				"to `[id of receiving node]` *[optional]* in " +
				"`[number]` days",
			Description: "Create a transaction to move funds from one node " +
				"to another:",
			NeedsRegistration: true,
		},
		"verify": {
			Execute: h.Verify,
			Example: "@synapse verify `[node id]` `[microdeposit amount " +
				"1]` `[microdeposit amount 2]`",
			Description: "Enable a node to send funds by verifying correct " +
				"microdeposit amounts:",
			NeedsRegistration: true,
		},
		"whoami": {
			Execute:           h.WhoAmI,
			Example:           "@synapse whoami",
			Description:       "Return basic information about the Synapse user:",
			NeedsRegistration: true,
		},
	}}
	h.registry = r
	return r
}

// Lookup is case-sensitive on the lower-cased keyword the parser produces.
func (r *Registry) Lookup(keyword string) (Command, bool) {
	cmd, ok := r.commands[keyword]
	return cmd, ok
}

// Help renders every entry's description and example, one block per command,
// in keyword order.
func (r *Registry) Help() string {
	keywords := make([]string, 0, len(r.commands))
	for keyword := range r.commands {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	blocks := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		cmd := r.commands[keyword]
		blocks = append(blocks, "*"+cmd.Description+"*\n>"+cmd.Example)
	}
	return strings.Join(blocks, "\n\n")
}

func (r *Registry) example(keyword string) string {
	return r.commands[keyword].Example
}

// RegistrationPrompt tells an unregistered user how to register.
func (r *Registry) RegistrationPrompt() string {
	return "*You need to register first!*\n>" + r.example("register")
}

func (r *Registry) baseDocWarning() string {
	return "*You need to provide your address first!*\n>" + r.example("add_address")
}

func (r *Registry) invalidParamsWarning(keyword string) string {
	return "*Please try again using the correct format:*\n>" + r.example(keyword)
}
