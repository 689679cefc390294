package synapse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testCreds() Credentials {
	return Credentials{
		ClientID:     "client_id_abc",
		ClientSecret: "client_secret_xyz",
		Fingerprint:  "fp_123",
		IPAddress:    "127.0.0.1",
	}
}

func TestGetUserSendsAuthHeaders(t *testing.T) {
	var gotGateway, gotUser, gotIP string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGateway = r.Header.Get("X-SP-GATEWAY")
		gotUser = r.Header.Get("X-SP-USER")
		gotIP = r.Header.Get("X-SP-USER-IP")
		w.Write([]byte(`{"_id":"u1","legal_names":["Suresh Venkatraman"],"permission":"SEND-AND-RECEIVE"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, testCreds(), time.Second)
	user, err := client.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if gotGateway != "client_id_abc|client_secret_xyz" {
		t.Fatalf("gateway header = %q", gotGateway)
	}
	if gotUser != "|fp_123" {
		t.Fatalf("user header = %q", gotUser)
	}
	if gotIP != "127.0.0.1" {
		t.Fatalf("ip header = %q", gotIP)
	}
	if user.LegalName() != "Suresh Venkatraman" {
		t.Fatalf("legal name = %q", user.LegalName())
	}
	if user.HasBaseDocument() {
		t.Fatal("expected no base document")
	}
}

func TestCreateUserPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/users" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte(`{"_id":"u2","legal_names":["A B"],"permission":"UNVERIFIED"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, testCreds(), time.Second)
	user, err := client.CreateUser(context.Background(), CreateUserInput{
		Name:  "A B",
		Email: "a@example.com",
		Phone: "555.555.5555",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID != "u2" {
		t.Fatalf("user id = %q", user.ID)
	}

	extra, ok := got["extra"].(map[string]any)
	if !ok {
		t.Fatalf("payload extra missing: %v", got)
	}
	if extra["cip_tag"] != float64(1) {
		t.Fatalf("cip_tag = %v", extra["cip_tag"])
	}
	if extra["is_business"] != false {
		t.Fatalf("is_business = %v", extra["is_business"])
	}
}

func TestBaseDocumentIDsParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_id":"u3","legal_names":["A B"],"permission":"UNVERIFIED","documents":[{"id":"doc9"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, testCreds(), time.Second)
	user, err := client.AddBaseDocument(context.Background(), "u3", BaseDocumentInput{Name: "A B"})
	if err != nil {
		t.Fatalf("AddBaseDocument: %v", err)
	}
	if !user.HasBaseDocument() {
		t.Fatal("expected base document on file")
	}
	if user.BaseDocumentIDs[0] != "doc9" {
		t.Fatalf("document id = %q", user.BaseDocumentIDs[0])
	}
}

func TestCreateACHNodeUnwrapsNodesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nodes":[{"_id":"n1","allowed":"CREDIT-AND-DEBIT","info":{"nickname":"debit account","class":"CHECKING"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, testCreds(), time.Second)
	node, err := client.CreateACHNode(context.Background(), "u1", ACHNodeInput{
		Nickname:      "debit account",
		AccountNumber: "12345678",
		RoutingNumber: "021000021",
		Class:         "CHECKING",
	})
	if err != nil {
		t.Fatalf("CreateACHNode: %v", err)
	}
	if node.ID != "n1" || node.Nickname != "debit account" || node.AccountClass != "CHECKING" {
		t.Fatalf("node = %+v", node)
	}
}

func TestListTransactionsKeepsAmountPrecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"trans":[{"_id":"t1","amount":{"amount":5.1,"currency":"USD"},"from":{"id":"n1"},"to":{"id":"n2","user":{"legal_names":["C D"]}},"recent_status":{"note":"Transaction created."},"extra":{"created_on":1498176000000,"process_on":1498780800000}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, testCreds(), time.Second)
	trans, err := client.ListTransactions(context.Background(), "u1", "n1")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(trans) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(trans))
	}
	if !trans[0].Amount.Equal(decimal.RequireFromString("5.1")) {
		t.Fatalf("amount = %s", trans[0].Amount)
	}
	if trans[0].RecipientName != "C D" {
		t.Fatalf("recipient = %q", trans[0].RecipientName)
	}
	if trans[0].CreatedOn != 1498176000000 {
		t.Fatalf("created on = %d", trans[0].CreatedOn)
	}
}

func TestProviderErrorSurfacesDiagnostic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"en":"Invalid field value supplied."}}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, testCreds(), time.Second)
	_, err := client.GetUser(context.Background(), "u1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Invalid field value supplied." {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestSlowProviderReportsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.Client(), server.URL, testCreds(), 20*time.Millisecond)
	_, err := client.GetUser(context.Background(), "u1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "payments provider unavailable" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}
