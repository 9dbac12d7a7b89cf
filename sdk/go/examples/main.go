package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"TxRelay-Chain/sdk/go/txrelay"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(txrelay.Transaction{
				Submission: txrelay.Submission{
					ID:   "sub-demo",
					Name: "transfer",
					To:   "0x1111111111111111111111111111111111111111",
				},
				Loading: true,
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/transactions/sub-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(txrelay.Transaction{
			Submission: txrelay.Submission{
				ID:   "sub-demo",
				Name: "transfer",
			},
			Status: "confirmed",
			TxHash: "0xabc",
			Receipt: &txrelay.Receipt{
				BlockNumber: 12,
				GasUsed:     21000,
				Status:      1,
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := txrelay.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.SubmitTransaction(ctx, txrelay.Submission{
		Name:  "transfer",
		To:    "0x1111111111111111111111111111111111111111",
		Value: "1000000000000000000",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted %s (loading=%v)\n", created.ID, created.Loading)

	final, err := client.WaitTransaction(ctx, created.ID, 30*time.Second)
	if err != nil {
		panic(err)
	}
	fmt.Printf("final status=%s tx_hash=%s gas_used=%d\n", final.Status, final.TxHash, final.Receipt.GasUsed)
}
