package tx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

func TestUpdateApplyMergesOnlySetFields(t *testing.T) {
	sub := &Submission{
		ID:      "s1",
		Loading: true,
		Status:  StatusSubmitted,
		TxHash:  "0xabc",
		RawTx:   "0xraw",
	}

	Update{
		Loading: boolPtr(false),
		Status:  statusPtr(StatusConfirmed),
		Receipt: &ReceiptSummary{BlockNumber: 5, GasUsed: 21000, Status: 1},
	}.Apply(sub)

	if sub.Loading {
		t.Fatal("loading 应被覆盖为 false")
	}
	if sub.Status != StatusConfirmed {
		t.Fatalf("期望状态 confirmed, 实际 %q", sub.Status)
	}
	if sub.TxHash != "0xabc" || sub.RawTx != "0xraw" {
		t.Fatal("未设置的字段不应被修改")
	}
	if sub.Receipt == nil || sub.Receipt.BlockNumber != 5 {
		t.Fatalf("回执未合并: %+v", sub.Receipt)
	}
}

func TestUpdateApplyEmptyStringOverrides(t *testing.T) {
	sub := &Submission{ID: "s1", LastError: "old", ErrorCode: "OLD"}

	Update{Error: strPtr(""), ErrorCode: strPtr("")}.Apply(sub)

	if sub.LastError != "" || sub.ErrorCode != "" {
		t.Fatalf("显式空串应清空字段: %q/%q", sub.LastError, sub.ErrorCode)
	}
}

func TestSinkEmitNilSafe(t *testing.T) {
	var sink Sink
	sink.emit(Update{Loading: boolPtr(true)})

	var got Update
	sink = func(update Update) { got = update }
	sink.emit(Update{Status: statusPtr(StatusError)})
	if got.Status == nil || *got.Status != StatusError {
		t.Fatal("补丁未传递到 Sink")
	}
}

func TestSummarizeReceipt(t *testing.T) {
	if SummarizeReceipt(nil) != nil {
		t.Fatal("nil 回执应返回 nil")
	}

	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	summary := SummarizeReceipt(&coretypes.Receipt{
		Status:           coretypes.ReceiptStatusSuccessful,
		BlockNumber:      big.NewInt(99),
		TransactionIndex: 3,
		GasUsed:          50000,
		ContractAddress:  contract,
	})
	if summary.BlockNumber != 99 || summary.TxIndex != 3 || summary.GasUsed != 50000 {
		t.Fatalf("摘要字段异常: %+v", summary)
	}
	if summary.ContractAddress != contract.Hex() {
		t.Fatalf("合约地址异常: %q", summary.ContractAddress)
	}

	plain := SummarizeReceipt(&coretypes.Receipt{Status: 1, BlockNumber: big.NewInt(1)})
	if plain.ContractAddress != "" {
		t.Fatal("非部署交易不应携带合约地址")
	}
}
