package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(ClientConfig{
		APIURL:      server.URL,
		AccessToken: "test-token",
	})
	return client, server
}

func TestListTransactionsSinceWatermark(t *testing.T) {
	var gotAuth, gotSince string

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSince = r.URL.Query().Get("last_knowledge_of_server")

		resp := TransactionsResponse{
			Transactions: []Transaction{
				{ID: "tx-1", AccountID: "acc-1", Date: "2026-01-15", Amount: 10000},
				{ID: "tx-2", AccountID: "acc-1", Date: "2026-01-16", Amount: -2500, Deleted: true},
			},
			ServerKnowledge: "1205",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	txns, watermark, err := client.ListTransactions(context.Background(), "budget-1", "1200")
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization header = %q, expected bearer token", gotAuth)
	}
	if gotSince != "1200" {
		t.Errorf("last_knowledge_of_server = %q, expected 1200", gotSince)
	}
	if len(txns) != 2 {
		t.Fatalf("ListTransactions() returned %d transactions, expected 2", len(txns))
	}
	if !txns[1].Deleted {
		t.Errorf("expected second transaction to carry the deleted flag")
	}
	if watermark != "1205" {
		t.Errorf("watermark = %q, expected 1205", watermark)
	}
}

func TestCreateTransactionDuplicateImport(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "conflict", ErrorDescription: "duplicate import_id"})
	}))
	defer server.Close()

	_, err := client.CreateTransaction(context.Background(), "budget-1", NewTransaction{
		AccountID: "acc-1",
		Date:      "2026-01-15",
		Amount:    -10500,
		ImportID:  "p2c:deadbeefdeadbeef",
	})

	if !errors.Is(err, ErrDuplicateImport) {
		t.Errorf("CreateTransaction() error = %v, expected ErrDuplicateImport", err)
	}
}

func TestDeleteTransactionAlreadyAbsent(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if err := client.DeleteTransaction(context.Background(), "budget-1", "gone"); err != nil {
		t.Errorf("DeleteTransaction() on absent transaction = %v, expected success", err)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := client.GetTransaction(context.Background(), "budget-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTransaction() error = %v, expected ErrNotFound", err)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "bad_request", ErrorDescription: "amount is required"})
	}))
	defer server.Close()

	_, _, err := client.ListTransactions(context.Background(), "budget-1", "")
	if err == nil {
		t.Fatal("ListTransactions() expected error, got nil")
	}
	want := "ledger API error: bad_request - amount is required"
	if err.Error() != want {
		t.Errorf("error = %q, expected %q", err.Error(), want)
	}
}
