package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"TxRelay-Chain/internal/tx"
	"TxRelay-Chain/internal/web3"
)

func newTestServer(opts ...ServerOption) (*Server, *tx.MemoryStore) {
	store := tx.NewMemoryStore()
	svc := tx.NewService(store, tx.NewMemoryQueue(64))
	return NewServer(":0", svc, opts...), store
}

func TestHandleCreateTransaction(t *testing.T) {
	server, store := newTestServer()

	body := `{"name":"transfer","to":"0x1111111111111111111111111111111111111111","value":"1000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d want %d, body %s", rec.Code, http.StatusAccepted, rec.Body)
	}

	var got tx.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID == "" || got.Name != "transfer" {
		t.Fatalf("unexpected submission: %+v", got)
	}

	if _, err := store.Get(context.Background(), got.ID); err != nil {
		t.Fatalf("submission not stored: %v", err)
	}
}

func TestHandleCreateTransactionErrors(t *testing.T) {
	server, _ := newTestServer()

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(`{"name":"x"}`))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
		var payload map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		if payload["code"] != string(tx.CodeSubmissionValidation) {
			t.Fatalf("unexpected error code %q", payload["code"])
		}
	})
}

func TestHandleTransactionDetail(t *testing.T) {
	server, store := newTestServer()

	sample := &tx.Submission{
		ID:     "sub-1",
		Name:   "transfer",
		To:     "0x1111111111111111111111111111111111111111",
		Status: tx.StatusConfirmed,
		TxHash: "0xabc",
		Receipt: &tx.ReceiptSummary{
			BlockNumber: 42,
			GasUsed:     21000,
			Status:      1,
		},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample submission: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/sub-1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}

	var got tx.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID || got.Receipt == nil || got.Receipt.BlockNumber != 42 {
		t.Fatalf("unexpected submission: %+v", got)
	}

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/missing", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/transactions/sub-1", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestHandleListAndStats(t *testing.T) {
	server, store := newTestServer()
	ctx := context.Background()

	for _, sub := range []*tx.Submission{
		{ID: "s1", Name: "n1", Status: tx.StatusConfirmed, Chain: "dev"},
		{ID: "s2", Name: "n2", Status: tx.StatusError, Chain: "dev"},
		{ID: "s3", Name: "n3", Chain: "testnet"},
	} {
		if err := store.Create(ctx, sub); err != nil {
			t.Fatalf("create %s: %v", sub.ID, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?status=error&chain=dev", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	var listed []*tx.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "s2" {
		t.Fatalf("unexpected list: %+v", listed)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	var stats tx.SubmissionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 3 || stats.Confirmed != 1 || stats.Failed != 1 || stats.Building != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

type staticChains struct {
	snapshots []web3.ChainSnapshot
}

func (s *staticChains) Snapshots(context.Context) []web3.ChainSnapshot {
	return s.snapshots
}

func TestHandleChains(t *testing.T) {
	lister := &staticChains{snapshots: []web3.ChainSnapshot{
		{Name: "dev", ChainID: "0x539", BlockNumber: "0x10"},
	}}
	server, _ := newTestServer(WithChainLister(lister))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chains", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	var chains []web3.ChainSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &chains); err != nil {
		t.Fatalf("decode chains: %v", err)
	}
	if len(chains) != 1 || chains[0].Name != "dev" {
		t.Fatalf("unexpected chains: %+v", chains)
	}
}

func TestAuthTokenGuardsEndpoints(t *testing.T) {
	server, _ := newTestServer(WithAuthToken("secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d without token, got %d", http.StatusUnauthorized, rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d with wrong token, got %d", http.StatusUnauthorized, rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d with valid token, got %d", http.StatusOK, rec.Code)
	}
}
