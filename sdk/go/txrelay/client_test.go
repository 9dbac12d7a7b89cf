package txrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmitTransactionAttachesToken(t *testing.T) {
	submitted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var payload Submission
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if payload.Name != "transfer" {
			t.Fatalf("unexpected submission name: %q", payload.Name)
		}
		submitted = true
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Transaction{
			Submission: Submission{ID: "sub-1", Name: payload.Name},
			Loading:    true,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	client.SetAuthToken("token")

	result, err := client.SubmitTransaction(context.Background(), Submission{
		Name:  "transfer",
		To:    "0x1111111111111111111111111111111111111111",
		Value: "1000",
	})
	if err != nil {
		t.Fatalf("submit transaction: %v", err)
	}
	if result.ID != "sub-1" || !result.Loading {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !submitted {
		t.Fatal("transaction was not submitted")
	}
}

func TestWaitTransactionBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions/sub-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("wait"); got != "2s" {
			t.Fatalf("unexpected wait parameter: %q", got)
		}
		_ = json.NewEncoder(w).Encode(Transaction{
			Submission: Submission{ID: "sub-1"},
			Status:     "confirmed",
			TxHash:     "0xabc",
			Receipt:    &Receipt{BlockNumber: 7, GasUsed: 21000, Status: 1},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	result, err := client.WaitTransaction(context.Background(), "sub-1", 2*time.Second)
	if err != nil {
		t.Fatalf("wait transaction: %v", err)
	}
	if result.Status != "confirmed" || result.Receipt == nil || result.Receipt.BlockNumber != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestListTransactionsEncodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("status"); got != "confirmed,error" {
			t.Fatalf("unexpected status filter: %q", got)
		}
		if got := query.Get("chain"); got != "dev" {
			t.Fatalf("unexpected chain filter: %q", got)
		}
		if got := query.Get("limit"); got != "10" {
			t.Fatalf("unexpected limit: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]Transaction{
			{Submission: Submission{ID: "sub-1"}, Status: "confirmed"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	results, err := client.ListTransactions(context.Background(), ListQuery{
		Limit:    10,
		Statuses: []string{"confirmed", "error"},
		Chain:    "dev",
	})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(results) != 1 || results[0].ID != "sub-1" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestGetTransactionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/transactions/missing" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "找不到对应的提交记录",
				"code":  "SUBMISSION_NOT_FOUND",
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	_, err := client.GetTransaction(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "SUBMISSION_NOT_FOUND" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestGetStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stats" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Stats{Total: 5, Confirmed: 3, Failed: 1, Building: 1})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	stats, err := client.GetStats(context.Background())
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Total != 5 || stats.Confirmed != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
