package obp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

func TestDirectLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/my/logins/direct" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		header := r.Header.Get("directlogin")
		if header != "username=bob,password=pw,consumer_key=ck" {
			t.Errorf("directlogin header = %q", header)
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	}))
	defer srv.Close()

	token, err := NewClient(srv.URL).DirectLogin(context.Background(), "bob", "pw", "ck")
	if err != nil {
		t.Fatalf("DirectLogin() error = %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

func TestDirectLogin_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).DirectLogin(context.Background(), "bob", "bad", "ck")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Type != domain.ErrorTypeAuthentication {
		t.Errorf("Type = %v, want authentication", apiErr.Type)
	}
	if !strings.Contains(apiErr.Message, "invalid credentials") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestCreateUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/obp/v4.0.0/users" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("directlogin"); got != "token=tok-123" {
			t.Errorf("directlogin header = %q", got)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "maxi@example.com" {
			t.Errorf("username = %q, want email mirrored", body["username"])
		}
		json.NewEncoder(w).Encode(map[string]string{"user_id": "user-9"})
	}))
	defer srv.Close()

	userID, err := NewClient(srv.URL).CreateUser(context.Background(), "tok-123", Profile{
		Email:     "maxi@example.com",
		Password:  "pw",
		FirstName: "Maxi",
		LastName:  "Smith",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if userID != "user-9" {
		t.Errorf("userID = %q", userID)
	}
}

func TestCreateAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/obp/v5.1.0/banks/bankC/accounts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["product_code"] != "1234BW" || body["branch_id"] != "DERBY6" {
			t.Errorf("fixed fields wrong: %v", body)
		}
		balance, _ := body["balance"].(map[string]any)
		if balance["currency"] != "SGD" || balance["amount"] != float64(0) {
			t.Errorf("balance = %v, want zero SGD", balance)
		}
		json.NewEncoder(w).Encode(map[string]string{"account_id": "acct-7"})
	}))
	defer srv.Close()

	accountID, err := NewClient(srv.URL).CreateAccount(context.Background(), "tok", "user-9", "bankC")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if accountID != "acct-7" {
		t.Errorf("accountID = %q", accountID)
	}
}

func TestCreateTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/obp/v5.1.0/banks/banka/accounts/src-1/owner/transaction-request-types/SANDBOX_TAN/transaction-requests"
		if r.URL.Path != wantPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		value, _ := body["value"].(map[string]any)
		if value["amount"] != "50" {
			t.Errorf("amount = %v, want the string form", value["amount"])
		}
		to, _ := body["to"].(map[string]any)
		if to["bank_id"] != "bankb" || to["account_id"] != "dst-2" {
			t.Errorf("to = %v", to)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).CreateTransfer(context.Background(), "tok", TransferRequest{
		FromBank:    "banka",
		FromAccount: "src-1",
		ToBank:      "bankb",
		ToAccount:   "dst-2",
		Amount:      50,
	})
	if err != nil {
		t.Fatalf("CreateTransfer() error = %v", err)
	}
	if status != TransferStatusCompleted {
		t.Errorf("status = %q", status)
	}
}

func TestCreateTransfer_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "insufficient balance"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateTransfer(context.Background(), "tok", TransferRequest{
		FromBank: "banka", FromAccount: "src-1", ToBank: "bankb", ToAccount: "dst-2", Amount: 50,
	})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.Type != domain.ErrorTypeValidation {
		t.Errorf("Type = %v, want validation", apiErr.Type)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	// Bind then close immediately so the port refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).DirectLogin(context.Background(), "u", "p", "ck")
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.Type != domain.ErrorTypeTransport {
		t.Errorf("Type = %v, want transport", apiErr.Type)
	}
}
