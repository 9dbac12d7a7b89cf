package tx

import (
	xerrors "TxRelay-Chain/internal/errors"
)

// Status 表示提交在生命周期中的状态。零值表示仍在构建或排队。
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusError     Status = "error"
)

// IsValidStatus 检查给定的提交状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusSubmitted, StatusConfirmed, StatusError:
		return true
	default:
		return false
	}
}

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusError
}

// Submission 描述一次排队执行的交易提交。
type Submission struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind,omitempty"`
	Chain string `json:"chain,omitempty"`

	// 未签名交易数据。Value 与 GasPrice 使用十进制 wei 字符串，Data 为十六进制。
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
	GasLimit uint64 `json:"gas_limit,omitempty"`
	GasPrice string `json:"gas_price,omitempty"`

	// 生命周期字段，由 Update 合并补丁写入。
	Loading     bool            `json:"loading"`
	Status      Status          `json:"status,omitempty"`
	GasEstimate uint64          `json:"gas_estimate,omitempty"`
	TxHash      string          `json:"tx_hash,omitempty"`
	TxHashes    []string        `json:"tx_hashes,omitempty"`
	Receipt     *ReceiptSummary `json:"receipt,omitempty"`
	RawTx       string          `json:"raw_tx,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

var (
	// ErrSubmissionNotFound 表示指定的提交不存在。
	ErrSubmissionNotFound = xerrors.New(CodeSubmissionNotFound, "submission not found")
	// ErrSubmissionConflict 表示提交在当前状态下无法进行所请求的操作。
	ErrSubmissionConflict = xerrors.New(CodeSubmissionConflict, "submission conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrSubmissionCompleted 表示提交已经走完生命周期。
	ErrSubmissionCompleted = xerrors.New(CodeSubmissionCompleted, "submission already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeSubmissionNotFound   xerrors.Code = "SUBMISSION_NOT_FOUND"
	CodeSubmissionConflict   xerrors.Code = "SUBMISSION_CONFLICT"
	CodeSubmissionCompleted  xerrors.Code = "SUBMISSION_COMPLETED"
	CodeSubmissionValidation xerrors.Code = "SUBMISSION_VALIDATION_FAILED"
	CodeSubmissionPublish    xerrors.Code = "SUBMISSION_PUBLISH_FAILED"
	CodeBuildFailure         xerrors.Code = "TX_BUILD_FAILED"
	CodeBroadcastFailure     xerrors.Code = "TX_BROADCAST_FAILED"
	CodeConfirmFailure       xerrors.Code = "TX_CONFIRM_FAILED"
	CodeReverted             xerrors.Code = "TX_REVERTED"
)

func init() {
	xerrors.Register(CodeSubmissionNotFound, xerrors.Attributes{
		Message:   "submission not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSubmissionConflict, xerrors.Attributes{
		Message:   "submission conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSubmissionCompleted, xerrors.Attributes{
		Message:   "submission already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSubmissionValidation, xerrors.Attributes{
		Message:   "submission validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSubmissionPublish, xerrors.Attributes{
		Message:   "failed to publish submission",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeBuildFailure, xerrors.Attributes{
		Message:   "failed to build transaction",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeBroadcastFailure, xerrors.Attributes{
		Message:   "failed to broadcast transaction",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeConfirmFailure, xerrors.Attributes{
		Message:   "failed while awaiting confirmation",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeReverted, xerrors.Attributes{
		Message:   "transaction reverted on chain",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

func cloneSubmission(sub *Submission) *Submission {
	clone := *sub
	if sub.Receipt != nil {
		receiptCopy := *sub.Receipt
		clone.Receipt = &receiptCopy
	}
	if sub.TxHashes != nil {
		clone.TxHashes = append([]string(nil), sub.TxHashes...)
	}
	return &clone
}
