package tx

import (
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// ReceiptSummary 是交易回执的扁平化摘要，可直接合并进调用方状态。
type ReceiptSummary struct {
	BlockNumber     uint64 `json:"block_number"`
	TxIndex         uint   `json:"tx_index"`
	GasUsed         uint64 `json:"gas_used"`
	Status          uint64 `json:"status"`
	ContractAddress string `json:"contract_address,omitempty"`
}

// SummarizeReceipt 将 go-ethereum 回执压缩成摘要。
func SummarizeReceipt(receipt *coretypes.Receipt) *ReceiptSummary {
	if receipt == nil {
		return nil
	}
	summary := &ReceiptSummary{
		TxIndex: receipt.TransactionIndex,
		GasUsed: receipt.GasUsed,
		Status:  receipt.Status,
	}
	if receipt.BlockNumber != nil {
		summary.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.ContractAddress != (common.Address{}) {
		summary.ContractAddress = receipt.ContractAddress.Hex()
	}
	return summary
}

// Update 是对提交记录的合并补丁：nil 字段保持不变，非 nil 字段覆盖。
type Update struct {
	Loading     *bool           `json:"loading,omitempty"`
	Status      *Status         `json:"status,omitempty"`
	GasEstimate *uint64         `json:"gas_estimate,omitempty"`
	TxHash      *string         `json:"tx_hash,omitempty"`
	TxHashes    []string        `json:"tx_hashes,omitempty"`
	Receipt     *ReceiptSummary `json:"receipt,omitempty"`
	RawTx       *string         `json:"raw_tx,omitempty"`
	Error       *string         `json:"error,omitempty"`
	ErrorCode   *string         `json:"error_code,omitempty"`
}

// Sink 接收生命周期补丁并合并进调用方持有的状态。
type Sink func(Update)

// emit 允许在未配置 Sink 时安静丢弃补丁。
func (s Sink) emit(update Update) {
	if s != nil {
		s(update)
	}
}

// Apply 将补丁合并进提交记录。
func (u Update) Apply(sub *Submission) {
	if sub == nil {
		return
	}
	if u.Loading != nil {
		sub.Loading = *u.Loading
	}
	if u.Status != nil {
		sub.Status = *u.Status
	}
	if u.GasEstimate != nil {
		sub.GasEstimate = *u.GasEstimate
	}
	if u.TxHash != nil {
		sub.TxHash = *u.TxHash
	}
	if u.TxHashes != nil {
		sub.TxHashes = append([]string(nil), u.TxHashes...)
	}
	if u.Receipt != nil {
		receiptCopy := *u.Receipt
		sub.Receipt = &receiptCopy
	}
	if u.RawTx != nil {
		sub.RawTx = *u.RawTx
	}
	if u.Error != nil {
		sub.LastError = *u.Error
	}
	if u.ErrorCode != nil {
		sub.ErrorCode = *u.ErrorCode
	}
}

func boolPtr(v bool) *bool       { return &v }
func strPtr(v string) *string    { return &v }
func statusPtr(v Status) *Status { return &v }
func uint64Ptr(v uint64) *uint64 { return &v }
