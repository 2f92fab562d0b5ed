package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/traP-jp/sisyphus/internal/config"
	"github.com/traP-jp/sisyphus/internal/identity"
	"github.com/traP-jp/sisyphus/internal/ledger"
	"github.com/traP-jp/sisyphus/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testEnv struct {
	api *httptest.Server
}

// newTestEnv wires the full chain (router, middleware, service, ledger
// client) against a fake ledger, mirroring the setup in cmd/api.
func newTestEnv(t *testing.T, ledgerHandler http.Handler, defaultUser string, allowed []string) *testEnv {
	t.Helper()

	fake := httptest.NewServer(ledgerHandler)
	t.Cleanup(fake.Close)

	cfg := &config.Config{ProjectID: "p1"}
	client := ledger.New(fake.URL, "test-token")
	resolver := identity.NewResolver(defaultUser, allowed)
	svc := service.NewPointService(cfg, client, nil)
	handler := NewHandler(svc, resolver, nil, "https://x.test")

	r := mux.NewRouter()
	r.HandleFunc("/health", handler.Health).Methods("GET")
	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(handler.Identity)
	apiV1.HandleFunc("/project", handler.GetProject).Methods("GET")
	apiV1.HandleFunc("/points/pay", handler.PayPoints).Methods("POST")
	apiV1.HandleFunc("/points/request", handler.RequestPoints).Methods("POST")

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testEnv{api: server}
}

func (e *testEnv) do(t *testing.T, method, path, user string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, e.api.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if user != "" {
		req.Header.Set(identity.HeaderUser, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, env
}

func ledgerError(status int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": message})
	})
}

func TestGetProjectEndToEnd(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("ledger got %s, want /me", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ledger.Project{ID: "p1", Name: "Team", Balance: 500})
	}), "", nil)

	code, got := env.do(t, "GET", "/api/v1/project", "alice")
	if code != http.StatusOK || !got.Success {
		t.Fatalf("status %d, envelope %+v", code, got)
	}

	var project ledger.Project
	if err := json.Unmarshal(got.Data, &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if project.Balance != 500 {
		t.Errorf("balance = %d, want 500", project.Balance)
	}
}

func TestPayPointsSuccess(t *testing.T) {
	var gotUser string
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ledger.CreateTransactionRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotUser = req.ToUser
		json.NewEncoder(w).Encode(ledger.Transaction{ID: "t1", Amount: req.Amount, Type: "TRANSFER", UserID: req.ToUser})
	}), "", nil)

	code, got := env.do(t, "POST", "/api/v1/points/pay", "alice")
	if code != http.StatusOK || !got.Success {
		t.Fatalf("status %d, envelope %+v", code, got)
	}
	if gotUser != "alice" {
		t.Errorf("transfer went to %q, want alice", gotUser)
	}
}

func TestPayPointsFallsBackToDefaultIdentity(t *testing.T) {
	var gotUser string
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ledger.CreateTransactionRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotUser = req.ToUser
		json.NewEncoder(w).Encode(ledger.Transaction{ID: "t1"})
	}), "bob", nil)

	if code, got := env.do(t, "POST", "/api/v1/points/pay", ""); code != http.StatusOK || !got.Success {
		t.Fatalf("status %d, envelope %+v", code, got)
	}
	if gotUser != "bob" {
		t.Errorf("transfer went to %q, want the default user bob", gotUser)
	}
}

func TestPayPointsFailureMessages(t *testing.T) {
	tests := []struct {
		name         string
		ledgerStatus int
		wantCode     int
		wantError    string
	}{
		{"insufficient balance", 400, http.StatusBadRequest, "the project balance would go negative"},
		{"duplicate request", 409, http.StatusConflict, "duplicate request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, ledgerError(tt.ledgerStatus, "rejected"), "", nil)
			code, got := env.do(t, "POST", "/api/v1/points/pay", "alice")
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if got.Success || got.Error != tt.wantError {
				t.Errorf("envelope = %+v, want error %q", got, tt.wantError)
			}
		})
	}
}

func TestRequestPointsInvalidUser(t *testing.T) {
	env := newTestEnv(t, ledgerError(400, "no such user"), "", nil)
	code, got := env.do(t, "POST", "/api/v1/points/request", "alice")
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
	if got.Success || got.Error != "user not found or amount invalid" {
		t.Errorf("envelope = %+v", got)
	}
}

func TestRequestPointsReturnsPaymentURL(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ledger.CreateBillRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.SuccessURL != "https://x.test/" || req.CancelURL != "https://x.test/" {
			t.Errorf("redirect URLs = %q / %q", req.SuccessURL, req.CancelURL)
		}
		json.NewEncoder(w).Encode(ledger.CreateBillResponse{BillID: "b1", PaymentURL: "https://pay.example/b1"})
	}), "", nil)

	code, got := env.do(t, "POST", "/api/v1/points/request", "alice")
	if code != http.StatusOK || !got.Success {
		t.Fatalf("status %d, envelope %+v", code, got)
	}

	var bill ledger.CreateBillResponse
	if err := json.Unmarshal(got.Data, &bill); err != nil {
		t.Fatalf("decode bill: %v", err)
	}
	if bill.PaymentURL != "https://pay.example/b1" {
		t.Errorf("paymentUrl = %q", bill.PaymentURL)
	}
}

// newUnreachableEnv wires the chain against a ledger address nothing
// listens on, so every call fails at the transport layer.
func newUnreachableEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{ProjectID: "p1"}
	client := ledger.New("http://127.0.0.1:1", "test-token")
	resolver := identity.NewResolver("", nil)
	svc := service.NewPointService(cfg, client, nil)
	handler := NewHandler(svc, resolver, nil, "https://x.test")

	r := mux.NewRouter()
	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(handler.Identity)
	apiV1.HandleFunc("/project", handler.GetProject).Methods("GET")
	apiV1.HandleFunc("/points/pay", handler.PayPoints).Methods("POST")
	apiV1.HandleFunc("/points/request", handler.RequestPoints).Methods("POST")

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testEnv{api: server}
}

func TestTransportFailuresSurfaceCannedMessages(t *testing.T) {
	env := newUnreachableEnv(t)

	tests := []struct {
		name      string
		method    string
		path      string
		wantError string
	}{
		{"pay", "POST", "/api/v1/points/pay", "failed to send points"},
		{"request", "POST", "/api/v1/points/request", "failed to create the bill"},
		{"project", "GET", "/api/v1/project", "operation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, got := env.do(t, tt.method, tt.path, "alice")
			if code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", code)
			}
			if got.Success || got.Error != tt.wantError {
				t.Errorf("envelope = %+v, want error %q", got, tt.wantError)
			}
			for _, leak := range []string{"127.0.0.1", "dial", "connection refused"} {
				if strings.Contains(got.Error, leak) {
					t.Errorf("envelope error %q leaks transport detail %q", got.Error, leak)
				}
			}
		})
	}
}

func TestNoIdentityIsRejected(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("the ledger must not be called without an identity")
	}), "", nil)

	code, got := env.do(t, "POST", "/api/v1/points/pay", "")
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
	if got.Success || got.Error != "could not determine the current user" {
		t.Errorf("envelope = %+v", got)
	}
}

func TestAllowListForbidsUnknownUsers(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("the ledger must not be called for a forbidden user")
	}), "", []string{"carol"})

	code, got := env.do(t, "POST", "/api/v1/points/pay", "alice")
	if code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}
	if got.Success || got.Error != "forbidden" {
		t.Errorf("envelope = %+v", got)
	}
}
