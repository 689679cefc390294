package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slack_pay_bridge_bot/internal/config"
	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/synapse"
)

type fakeStore struct {
	rows map[string]domain.RegisteredUser
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.RegisteredUser)}
}

func (f *fakeStore) GetByChatUserID(ctx context.Context, chatUserID string) (domain.RegisteredUser, error) {
	row, ok := f.rows[chatUserID]
	if !ok {
		return domain.RegisteredUser{}, domain.ErrNotFound
	}
	return row, nil
}

func (f *fakeStore) Create(ctx context.Context, user domain.RegisteredUser) (domain.RegisteredUser, error) {
	if _, ok := f.rows[user.ChatUserID]; ok {
		return domain.RegisteredUser{}, domain.ErrAlreadyRegistered
	}
	f.rows[user.ChatUserID] = user
	return user, nil
}

type fakeOnboarder struct {
	calls        int
	documents    []string
	createdNodes []synapse.ACHNodeInput
	failAt       string
	failErr      error
}

func (f *fakeOnboarder) fail(step string) error {
	if f.failAt == step {
		if f.failErr != nil {
			return f.failErr
		}
		return &synapse.APIError{StatusCode: http.StatusBadRequest, Message: step + " rejected"}
	}
	return nil
}

func (f *fakeOnboarder) CreateUser(ctx context.Context, in synapse.CreateUserInput) (*synapse.User, error) {
	f.calls++
	if err := f.fail("create_user"); err != nil {
		return nil, err
	}
	return &synapse.User{ID: "remote-new", LegalNames: []string{in.Name}}, nil
}

func (f *fakeOnboarder) AddBaseDocument(ctx context.Context, userID string, in synapse.BaseDocumentInput) (*synapse.User, error) {
	f.calls++
	if err := f.fail("base_document"); err != nil {
		return nil, err
	}
	return &synapse.User{ID: userID, BaseDocumentIDs: []string{"doc1"}}, nil
}

func (f *fakeOnboarder) AddVirtualDocument(ctx context.Context, userID, documentID, ssn string) (*synapse.User, error) {
	f.calls++
	f.documents = append(f.documents, "ssn")
	return &synapse.User{ID: userID, BaseDocumentIDs: []string{documentID}}, nil
}

func (f *fakeOnboarder) AddPhysicalDocument(ctx context.Context, userID, documentID, fileURL string) (*synapse.User, error) {
	f.calls++
	f.documents = append(f.documents, fileURL)
	return &synapse.User{ID: userID, BaseDocumentIDs: []string{documentID}}, nil
}

func (f *fakeOnboarder) CreateACHNode(ctx context.Context, userID string, in synapse.ACHNodeInput) (*synapse.Node, error) {
	f.calls++
	f.createdNodes = append(f.createdNodes, in)
	return &synapse.Node{ID: "node-" + strings.ToLower(in.Class), AccountClass: in.Class}, nil
}

type fakeMongo struct {
	err error
}

func (f *fakeMongo) Ping(ctx context.Context) error { return f.err }

type fakeStats struct {
	users     int64
	recurring int64
}

func (f *fakeStats) CountUsers(ctx context.Context) (int64, error)                 { return f.users, nil }
func (f *fakeStats) CountRecurringTransactions(ctx context.Context) (int64, error) { return f.recurring, nil }

func newTestServer(store *fakeStore, provider *fakeOnboarder) *Server {
	return NewServer(config.Config{HTTPPort: 0, AppEnv: config.EnvProduction}, Deps{
		Users:    store,
		Provider: provider,
		Mongo:    &fakeMongo{},
		Stats:    &fakeStats{users: 2, recurring: 1},
	})
}

func registrationForm(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"name":           "Ada Lovelace",
		"email":          "ada@example.com",
		"phone":          "555.1234",
		"birthday":       "1990-03-15",
		"address_street": "1 Market St",
		"address_city":   "San Francisco",
		"address_state":  "ca",
		"address_zip":    "94105",
		"ssn":            "1234",
		"account_number": "12345678",
		"routing_number": "021000021",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	part, err := writer.CreateFormFile("govt_id", "id.png")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestRegisterFormPage(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeOnboarder{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/register/U42", nil)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `action="/register/U42"`) {
		t.Fatalf("form not keyed by slack id:\n%s", rec.Body.String())
	}
}

func TestRegisterSubmitHappyPath(t *testing.T) {
	store := newFakeStore()
	provider := &fakeOnboarder{}
	server := newTestServer(store, provider)

	body, contentType := registrationForm(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register/U42", body)
	req.Header.Set("Content-Type", contentType)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	row, err := store.GetByChatUserID(context.Background(), "U42")
	if err != nil {
		t.Fatalf("row not persisted: %v", err)
	}
	if row.RemoteUserID != "remote-new" {
		t.Fatalf("remote id = %q", row.RemoteUserID)
	}
	if row.DebitNodeID != "node-checking" || row.SavingsNodeID != "node-savings" {
		t.Fatalf("node ids = %q / %q", row.DebitNodeID, row.SavingsNodeID)
	}

	if len(provider.createdNodes) != 2 {
		t.Fatalf("created nodes = %d", len(provider.createdNodes))
	}
	if provider.createdNodes[0].Class != "CHECKING" || provider.createdNodes[1].Class != "SAVINGS" {
		t.Fatalf("node classes = %+v", provider.createdNodes)
	}
	for _, doc := range provider.documents {
		if doc != "ssn" && !strings.HasPrefix(doc, "data:") {
			t.Fatalf("unexpected document %q", doc)
		}
	}
}

func TestRegisterSubmitConflictBeforeProviderCalls(t *testing.T) {
	store := newFakeStore()
	store.rows["U42"] = domain.RegisteredUser{ChatUserID: "U42", RemoteUserID: "remote-1"}
	provider := &fakeOnboarder{}
	server := newTestServer(store, provider)

	body, contentType := registrationForm(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register/U42", body)
	req.Header.Set("Content-Type", contentType)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if provider.calls != 0 {
		t.Fatalf("provider calls = %d, want 0", provider.calls)
	}
}

func TestRegisterSubmitMissingFields(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeOnboarder{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("name", "Ada Lovelace")
	_ = writer.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register/U42", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing fields") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRegisterSubmitProviderErrorPassthrough(t *testing.T) {
	provider := &fakeOnboarder{failAt: "base_document"}
	server := newTestServer(newFakeStore(), provider)

	body, contentType := registrationForm(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register/U42", body)
	req.Header.Set("Content-Type", contentType)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "base_document rejected") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRegisterSubmitGenericErrorIs500(t *testing.T) {
	provider := &fakeOnboarder{failAt: "create_user", failErr: errors.New("boom")}
	server := newTestServer(newFakeStore(), provider)

	body, contentType := registrationForm(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register/U42", body)
	req.Header.Set("Content-Type", contentType)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeOnboarder{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status = %q", resp["status"])
	}
}

func TestHealthEndpointDegradedWhenMongoDown(t *testing.T) {
	server := NewServer(config.Config{HTTPPort: 0, AppEnv: config.EnvProduction}, Deps{
		Users:    newFakeStore(),
		Provider: &fakeOnboarder{},
		Mongo:    &fakeMongo{err: errors.New("no reachable servers")},
		Stats:    &fakeStats{},
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	server.server.Handler.ServeHTTP(rec, req)

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "degraded" || resp["mongo"] != "error" {
		t.Fatalf("resp = %v", resp)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeOnboarder{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	server.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["users"] != 2 || resp["recurring_transactions"] != 1 {
		t.Fatalf("resp = %v", resp)
	}
}
