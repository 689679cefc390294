package synapse

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// User is the provider-owned user record projected to the fields the bot
// reads. The provider remains the source of truth; nothing here is cached
// beyond the current request.
type User struct {
	ID         string
	LegalNames []string
	Permission string
	Email      string
	Phone      string
	// BaseDocumentIDs lists the CIP base documents on file; SSN and photo id
	// attachments require at least one.
	BaseDocumentIDs []string
}

// LegalName returns the first legal name or an empty string.
func (u *User) LegalName() string {
	if u == nil || len(u.LegalNames) == 0 {
		return ""
	}
	return u.LegalNames[0]
}

// HasBaseDocument reports whether a CIP base document is on file.
func (u *User) HasBaseDocument() bool {
	return u != nil && len(u.BaseDocumentIDs) > 0
}

// Node is a provider-held bank account record.
type Node struct {
	ID           string
	Nickname     string
	AccountClass string
	Permission   string
}

// Transaction is a provider-held transfer between two nodes. Times are
// millisecond epoch integers as delivered on the wire.
type Transaction struct {
	ID            string
	Amount        decimal.Decimal
	FromNodeID    string
	ToNodeID      string
	RecipientName string
	StatusNote    string
	CreatedOn     int64
	ProcessOn     int64
}

type userWire struct {
	ID         string   `json:"_id"`
	LegalNames []string `json:"legal_names"`
	Permission string   `json:"permission"`
	Logins     []struct {
		Email string `json:"email"`
	} `json:"logins"`
	PhoneNumbers []string `json:"phone_numbers"`
	Documents    []struct {
		ID string `json:"id"`
	} `json:"documents"`
}

func (w userWire) toUser() *User {
	user := &User{
		ID:         w.ID,
		LegalNames: w.LegalNames,
		Permission: w.Permission,
	}
	if len(w.Logins) > 0 {
		user.Email = w.Logins[0].Email
	}
	if len(w.PhoneNumbers) > 0 {
		user.Phone = w.PhoneNumbers[0]
	}
	for _, doc := range w.Documents {
		user.BaseDocumentIDs = append(user.BaseDocumentIDs, doc.ID)
	}
	return user
}

type nodeWire struct {
	ID      string `json:"_id"`
	Allowed string `json:"allowed"`
	Info    struct {
		Nickname string `json:"nickname"`
		Class    string `json:"class"`
	} `json:"info"`
}

func (w nodeWire) toNode() Node {
	return Node{
		ID:           w.ID,
		Nickname:     w.Info.Nickname,
		AccountClass: w.Info.Class,
		Permission:   w.Allowed,
	}
}

type transactionWire struct {
	ID     string `json:"_id"`
	Amount struct {
		Amount   json.Number `json:"amount"`
		Currency string      `json:"currency"`
	} `json:"amount"`
	From struct {
		ID string `json:"id"`
	} `json:"from"`
	To struct {
		ID   string `json:"id"`
		User struct {
			LegalNames []string `json:"legal_names"`
		} `json:"user"`
	} `json:"to"`
	RecentStatus struct {
		Note string `json:"note"`
	} `json:"recent_status"`
	Extra struct {
		CreatedOn int64 `json:"created_on"`
		ProcessOn int64 `json:"process_on"`
	} `json:"extra"`
}

func (w transactionWire) toTransaction() (Transaction, error) {
	amount, err := decimal.NewFromString(w.Amount.Amount.String())
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction amount %q: %w", w.Amount.Amount, err)
	}

	trans := Transaction{
		ID:         w.ID,
		Amount:     amount,
		FromNodeID: w.From.ID,
		ToNodeID:   w.To.ID,
		StatusNote: w.RecentStatus.Note,
		CreatedOn:  w.Extra.CreatedOn,
		ProcessOn:  w.Extra.ProcessOn,
	}
	if len(w.To.User.LegalNames) > 0 {
		trans.RecipientName = w.To.User.LegalNames[0]
	}
	return trans, nil
}
