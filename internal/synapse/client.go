package synapse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 5 * time.Second

// Credentials identify the API keypair and the device fingerprint every
// request is signed with.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Fingerprint  string
	IPAddress    string
}

// Client talks to the Synapse REST API. Every call carries a per-request
// deadline so a stalled provider cannot wedge the command pipeline.
type Client struct {
	http    *http.Client
	baseURL string
	creds   Credentials
	timeout time.Duration
}

// NewClient builds a Client for the given base URL. A nil httpClient falls
// back to a plain client; a non-positive timeout falls back to the default.
func NewClient(httpClient *http.Client, baseURL string, creds Credentials, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{http: httpClient, baseURL: baseURL, creds: creds, timeout: timeout}
}

// CreateUserInput is the minimum profile the provider needs to open a user.
type CreateUserInput struct {
	Name  string
	Email string
	Phone string
}

// BaseDocumentInput is the CIP base document: identity plus a street address
// and date of birth.
type BaseDocumentInput struct {
	Name       string
	Email      string
	Phone      string
	Street     string
	City       string
	State      string
	Zip        string
	BirthDay   int
	BirthMonth int
	BirthYear  int
}

// ACHNodeInput describes a bank account to attach by account and routing
// number. Class is the account class, CHECKING or SAVINGS.
type ACHNodeInput struct {
	Nickname      string
	AccountNumber string
	RoutingNumber string
	Class         string
}

// TransactionInput describes a transfer out of a node. ProcessInDays, when
// positive, asks the provider to hold the transfer that many days.
type TransactionInput struct {
	Amount        decimal.Decimal
	ToNodeID      string
	ProcessInDays int
}

func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var wire userWire
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &wire); err != nil {
		return nil, err
	}
	return wire.toUser(), nil
}

func (c *Client) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	payload := map[string]any{
		"logins":        []map[string]string{{"email": in.Email}},
		"phone_numbers": []string{in.Phone},
		"legal_names":   []string{in.Name},
		"extra": map[string]any{
			"cip_tag":     1,
			"is_business": false,
		},
	}
	var wire userWire
	if err := c.do(ctx, http.MethodPost, "/users", payload, &wire); err != nil {
		return nil, err
	}
	return wire.toUser(), nil
}

func (c *Client) AddBaseDocument(ctx context.Context, userID string, in BaseDocumentInput) (*User, error) {
	payload := map[string]any{
		"documents": []map[string]any{{
			"email":                in.Email,
			"phone_number":         in.Phone,
			"ip":                   c.creds.IPAddress,
			"name":                 in.Name,
			"alias":                in.Name,
			"entity_type":          "NOT_KNOWN",
			"entity_scope":         "Not Known",
			"day":                  in.BirthDay,
			"month":                in.BirthMonth,
			"year":                 in.BirthYear,
			"address_street":       in.Street,
			"address_city":         in.City,
			"address_subdivision":  in.State,
			"address_postal_code":  in.Zip,
			"address_country_code": "US",
		}},
	}
	var wire userWire
	if err := c.do(ctx, http.MethodPatch, "/users/"+userID, payload, &wire); err != nil {
		return nil, err
	}
	return wire.toUser(), nil
}

// AddVirtualDocument attaches an SSN to the user's base document.
func (c *Client) AddVirtualDocument(ctx context.Context, userID, documentID, ssn string) (*User, error) {
	payload := map[string]any{
		"documents": []map[string]any{{
			"id": documentID,
			"virtual_docs": []map[string]string{{
				"document_value": ssn,
				"document_type":  "SSN",
			}},
		}},
	}
	var wire userWire
	if err := c.do(ctx, http.MethodPatch, "/users/"+userID, payload, &wire); err != nil {
		return nil, err
	}
	return wire.toUser(), nil
}

// AddPhysicalDocument attaches a government id image by URL to the user's
// base document.
func (c *Client) AddPhysicalDocument(ctx context.Context, userID, documentID, fileURL string) (*User, error) {
	payload := map[string]any{
		"documents": []map[string]any{{
			"id": documentID,
			"physical_docs": []map[string]string{{
				"document_value": fileURL,
				"document_type":  "GOVT_ID",
			}},
		}},
	}
	var wire userWire
	if err := c.do(ctx, http.MethodPatch, "/users/"+userID, payload, &wire); err != nil {
		return nil, err
	}
	return wire.toUser(), nil
}

func (c *Client) ListNodes(ctx context.Context, userID string) ([]Node, error) {
	var wire struct {
		Nodes []nodeWire `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/nodes", nil, &wire); err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(wire.Nodes))
	for _, n := range wire.Nodes {
		nodes = append(nodes, n.toNode())
	}
	return nodes, nil
}

func (c *Client) GetNode(ctx context.Context, userID, nodeID string) (*Node, error) {
	var wire nodeWire
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/nodes/"+nodeID, nil, &wire); err != nil {
		return nil, err
	}
	node := wire.toNode()
	return &node, nil
}

func (c *Client) CreateACHNode(ctx context.Context, userID string, in ACHNodeInput) (*Node, error) {
	payload := map[string]any{
		"type": "ACH-US",
		"info": map[string]string{
			"nickname":    in.Nickname,
			"account_num": in.AccountNumber,
			"routing_num": in.RoutingNumber,
			"type":        "PERSONAL",
			"class":       in.Class,
		},
	}
	var wire struct {
		Nodes []nodeWire `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/"+userID+"/nodes", payload, &wire); err != nil {
		return nil, err
	}
	if len(wire.Nodes) == 0 {
		return nil, errors.New("provider returned no node")
	}
	node := wire.Nodes[0].toNode()
	return &node, nil
}

// VerifyMicrodeposits confirms node ownership with the two trial amounts the
// provider deposited.
func (c *Client) VerifyMicrodeposits(ctx context.Context, userID, nodeID string, amount1, amount2 decimal.Decimal) (*Node, error) {
	a1, _ := amount1.Float64()
	a2, _ := amount2.Float64()
	payload := map[string]any{"micro": []float64{a1, a2}}
	var wire nodeWire
	if err := c.do(ctx, http.MethodPatch, "/users/"+userID+"/nodes/"+nodeID, payload, &wire); err != nil {
		return nil, err
	}
	node := wire.toNode()
	return &node, nil
}

func (c *Client) ListTransactions(ctx context.Context, userID, nodeID string) ([]Transaction, error) {
	var wire struct {
		Trans []transactionWire `json:"trans"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/"+userID+"/nodes/"+nodeID+"/trans", nil, &wire); err != nil {
		return nil, err
	}
	trans := make([]Transaction, 0, len(wire.Trans))
	for _, w := range wire.Trans {
		t, err := w.toTransaction()
		if err != nil {
			return nil, err
		}
		trans = append(trans, t)
	}
	return trans, nil
}

func (c *Client) CreateTransaction(ctx context.Context, userID, nodeID string, in TransactionInput) (*Transaction, error) {
	amount, _ := in.Amount.Float64()
	payload := map[string]any{
		"to": map[string]string{
			"type": "ACH-US",
			"id":   in.ToNodeID,
		},
		"amount": map[string]any{
			"amount":   amount,
			"currency": "USD",
		},
		"extra": map[string]any{
			"ip":              c.creds.IPAddress,
			"idempotency_key": uuid.NewString(),
		},
	}
	if in.ProcessInDays > 0 {
		payload["extra"].(map[string]any)["process_in"] = in.ProcessInDays
	}
	var wire transactionWire
	if err := c.do(ctx, http.MethodPost, "/users/"+userID+"/nodes/"+nodeID+"/trans", payload, &wire); err != nil {
		return nil, err
	}
	trans, err := wire.toTransaction()
	if err != nil {
		return nil, err
	}
	return &trans, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SP-GATEWAY", c.creds.ClientID+"|"+c.creds.ClientSecret)
	req.Header.Set("X-SP-USER", "|"+c.creds.Fingerprint)
	req.Header.Set("X-SP-USER-IP", c.creds.IPAddress)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &APIError{StatusCode: http.StatusGatewayTimeout, Message: "payments provider unavailable"}
		}
		return fmt.Errorf("synapse request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wire errorWire
		message := ""
		if json.Unmarshal(raw, &wire) == nil {
			message = wire.text()
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
