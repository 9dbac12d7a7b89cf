package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

func newSimulatedClient(t *testing.T) (*Client, *simulated.Backend, *coretypes.Transaction) {
	t.Helper()

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	balance, _ := new(big.Int).SetString("10000000000000000000", 10)
	sim := simulated.NewBackend(coretypes.GenesisAlloc{
		from: {Balance: balance},
	})
	t.Cleanup(func() { _ = sim.Close() })

	client := NewBackendClient("simulated", sim.Client(), sim)

	ctx := context.Background()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		t.Fatalf("pending nonce: %v", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		t.Fatalf("suggest gas price: %v", err)
	}
	// 预留余量，避免下一个区块 basefee 波动导致交易被拒。
	gasPrice = gasPrice.Mul(gasPrice, big.NewInt(2))

	to := crypto.PubkeyToAddress(key.PublicKey)
	unsigned := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(1000),
	})
	signed, err := coretypes.SignTx(unsigned, coretypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return client, sim, signed
}

func TestClientSendAndWaitReceipt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, _, signed := newSimulatedClient(t)

	if err := client.SendTransaction(ctx, signed); err != nil {
		t.Fatalf("send transaction: %v", err)
	}

	receipt, err := client.WaitForReceipt(ctx, signed.Hash(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for receipt: %v", err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		t.Fatalf("expected successful receipt, got status %d", receipt.Status)
	}
	if receipt.TxHash != signed.Hash() {
		t.Fatalf("unexpected receipt hash %s", receipt.TxHash.Hex())
	}
}

func TestClientBatchFallsBackWithoutBatchRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, _, signed := newSimulatedClient(t)

	hashes, err := client.SendBatchTransactions(ctx, []*coretypes.Transaction{signed})
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != signed.Hash() {
		t.Fatalf("unexpected hashes %v", hashes)
	}

	receipt, err := client.WaitForReceipt(ctx, hashes[0], 50*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for receipt: %v", err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		t.Fatalf("expected successful receipt, got status %d", receipt.Status)
	}

	if _, err := client.SendBatchTransactions(ctx, nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestClientSnapshotAndChainIDCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, sim, _ := newSimulatedClient(t)

	first, err := client.ChainID(ctx)
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	second, err := client.ChainID(ctx)
	if err != nil {
		t.Fatalf("cached chain id: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("chain id changed between calls: %s vs %s", first, second)
	}

	sim.Commit()

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.Name != "simulated" {
		t.Fatalf("unexpected snapshot name %q", snapshot.Name)
	}
	if snapshot.ChainID != "0x"+first.Text(16) {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}
	if snapshot.BlockNumber == "0x0" {
		t.Fatal("expected block number to advance after commit")
	}
}
