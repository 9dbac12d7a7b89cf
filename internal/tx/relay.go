package tx

import (
	"context"
	"encoding/hex"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	xerrors "TxRelay-Chain/internal/errors"
	"TxRelay-Chain/internal/wallet"
	"TxRelay-Chain/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Provider 定义生命周期所需的链访问能力，web3.Client 的实现均满足该接口。
type Provider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	SendBatchTransactions(ctx context.Context, txs []*coretypes.Transaction) ([]common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, pollInterval time.Duration) (*coretypes.Receipt, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SubmitRequest 描述一次单笔提交。
type SubmitRequest struct {
	Name string
	Kind string
	// Build 构建未签名交易数据。
	Build Builder
	// GasPrice 是可选的 gas 价格覆盖串，见 ParseGasPrice。
	GasPrice string
	// Sink 接收生命周期补丁。
	Sink Sink
	// OnSubmitted 在交易广播成功后调用。
	OnSubmitted func(hash common.Hash)
	// OnConfirmed 在交易确认后调用。
	OnConfirmed func(receipt *ReceiptSummary)
}

// BatchRequest 描述一次批量提交。
type BatchRequest struct {
	Name        string
	Kind        string
	Build       BatchBuilder
	GasPrice    string
	Sink        Sink
	OnSubmitted func(hashes []common.Hash)
	OnConfirmed func(receipts []*ReceiptSummary)
}

// Outcome 保存单笔提交的结果。
type Outcome struct {
	Hash        common.Hash
	Receipt     *ReceiptSummary
	RawTx       string
	GasEstimate uint64
}

// BatchOutcome 保存批量提交的结果。
type BatchOutcome struct {
	Hashes   []common.Hash
	Receipts []*ReceiptSummary
	RawTxs   []string
}

// Relay 驱动交易提交生命周期：构建、签名、广播、等待确认、解码回滚原因。
type Relay struct {
	provider       Provider
	signer         wallet.Signer
	pollInterval   time.Duration
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// RelayOption 定义可选配置。
type RelayOption func(*Relay)

// WithPollInterval 设置回执轮询间隔。
func WithPollInterval(interval time.Duration) RelayOption {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithConfirmTimeout 设置等待确认的超时时间。
func WithConfirmTimeout(timeout time.Duration) RelayOption {
	return func(r *Relay) {
		if timeout > 0 {
			r.confirmTimeout = timeout
		}
	}
}

// WithRelayLogger 指定日志输出。
func WithRelayLogger(log *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = log
	}
}

// NewRelay 构造 Relay。
func NewRelay(provider Provider, signer wallet.Signer, opts ...RelayOption) *Relay {
	r := &Relay{
		provider:       provider,
		signer:         signer,
		pollInterval:   2 * time.Second,
		confirmTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("relay")
	}
	return r
}

// Submit 执行单笔提交生命周期。生命周期补丁通过 req.Sink 上报；
// 返回的 error 带有阶段错误码，与写入补丁的人类可读信息一致。
func (r *Relay) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if r == nil || r.provider == nil || r.signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交器未初始化")
	}
	if req.Build == nil {
		return nil, xerrors.New(CodeSubmissionValidation, "未提供交易构建函数")
	}

	req.Sink.emit(Update{Loading: boolPtr(true)})

	// 阶段一：构建。
	request, err := req.Build(ctx)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("构建交易失败: %v", err), err)
	}
	if request == nil {
		err := xerrors.New(CodeBuildFailure, "交易构建结果为空")
		return nil, r.fail(req.Sink, CodeBuildFailure, err.Message(), err)
	}

	gasPrice, err := r.resolveGasPrice(ctx, req.GasPrice)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("确定 gas 价格失败: %v", err), err)
	}

	chainID, err := r.provider.ChainID(ctx)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("获取链 ID 失败: %v", err), err)
	}

	nonce, err := r.provider.PendingNonceAt(ctx, r.signer.Address())
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("查询 nonce 失败: %v", err), err)
	}

	unsigned, callMsg, err := r.assemble(ctx, request, nonce, gasPrice)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("组装交易失败: %v", err), err)
	}
	req.Sink.emit(Update{GasEstimate: uint64Ptr(unsigned.Gas())})

	signed, err := r.signer.SignTx(unsigned, chainID)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("签名交易失败: %v", err), err)
	}
	rawTx := encodeRawTx(signed)

	// 阶段二：广播。
	if err := r.provider.SendTransaction(ctx, signed); err != nil {
		return nil, r.fail(req.Sink, CodeBroadcastFailure, fmt.Sprintf("广播交易失败: %v", err), err)
	}
	hash := signed.Hash()
	req.Sink.emit(Update{
		Status: statusPtr(StatusSubmitted),
		TxHash: strPtr(hash.Hex()),
		RawTx:  strPtr(rawTx),
	})
	r.logger.Info("交易已广播",
		slog.String("name", req.Name),
		slog.String("tx_hash", hash.Hex()),
		slog.Uint64("nonce", signed.Nonce()),
	)
	if req.OnSubmitted != nil {
		req.OnSubmitted(hash)
	}

	// 阶段三：等待确认。
	receipt, err := r.awaitReceipt(ctx, hash)
	if err != nil {
		return nil, r.fail(req.Sink, CodeConfirmFailure, fmt.Sprintf("等待交易确认失败: %v", err), err)
	}
	summary := SummarizeReceipt(receipt)

	if receipt.Status == coretypes.ReceiptStatusFailed {
		reason := r.revertReason(ctx, callMsg, receipt.BlockNumber)
		message := "交易在链上执行失败"
		if reason != "" {
			message = fmt.Sprintf("交易在链上执行失败: %s", reason)
		}
		req.Sink.emit(Update{
			Loading:   boolPtr(false),
			Status:    statusPtr(StatusError),
			Receipt:   summary,
			Error:     strPtr(message),
			ErrorCode: strPtr(string(CodeReverted)),
		})
		return nil, xerrors.New(CodeReverted, message, xerrors.WithMetadata("tx_hash", hash.Hex()))
	}

	req.Sink.emit(Update{
		Loading: boolPtr(false),
		Status:  statusPtr(StatusConfirmed),
		Receipt: summary,
	})
	r.logger.Info("交易已确认",
		slog.String("name", req.Name),
		slog.String("tx_hash", hash.Hex()),
		slog.Uint64("block_number", summary.BlockNumber),
		slog.Uint64("gas_used", summary.GasUsed),
	)
	if req.OnConfirmed != nil {
		req.OnConfirmed(summary)
	}

	return &Outcome{
		Hash:        hash,
		Receipt:     summary,
		RawTx:       rawTx,
		GasEstimate: signed.Gas(),
	}, nil
}

// SubmitBatch 执行批量提交生命周期。所有交易以连续 nonce 签名并批量广播，
// 之后按顺序等待每笔确认；首个失败即终止并上报错误。
func (r *Relay) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchOutcome, error) {
	if r == nil || r.provider == nil || r.signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交器未初始化")
	}
	if req.Build == nil {
		return nil, xerrors.New(CodeSubmissionValidation, "未提供交易构建函数")
	}

	req.Sink.emit(Update{Loading: boolPtr(true)})

	requests, err := req.Build(ctx)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("构建批量交易失败: %v", err), err)
	}
	if len(requests) == 0 {
		err := xerrors.New(CodeBuildFailure, "批量交易构建结果为空")
		return nil, r.fail(req.Sink, CodeBuildFailure, err.Message(), err)
	}

	gasPrice, err := r.resolveGasPrice(ctx, req.GasPrice)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("确定 gas 价格失败: %v", err), err)
	}
	chainID, err := r.provider.ChainID(ctx)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("获取链 ID 失败: %v", err), err)
	}
	nonce, err := r.provider.PendingNonceAt(ctx, r.signer.Address())
	if err != nil {
		return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("查询 nonce 失败: %v", err), err)
	}

	signedTxs := make([]*coretypes.Transaction, 0, len(requests))
	callMsgs := make([]gethcore.CallMsg, 0, len(requests))
	rawTxs := make([]string, 0, len(requests))
	for i, request := range requests {
		unsigned, callMsg, err := r.assemble(ctx, request, nonce+uint64(i), gasPrice)
		if err != nil {
			return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("组装第 %d 笔交易失败: %v", i, err), err)
		}
		signed, err := r.signer.SignTx(unsigned, chainID)
		if err != nil {
			return nil, r.fail(req.Sink, CodeBuildFailure, fmt.Sprintf("签名第 %d 笔交易失败: %v", i, err), err)
		}
		signedTxs = append(signedTxs, signed)
		callMsgs = append(callMsgs, callMsg)
		rawTxs = append(rawTxs, encodeRawTx(signed))
	}

	hashes, err := r.provider.SendBatchTransactions(ctx, signedTxs)
	if err != nil {
		return nil, r.fail(req.Sink, CodeBroadcastFailure, fmt.Sprintf("批量广播交易失败: %v", err), err)
	}
	hashStrings := make([]string, len(hashes))
	for i, hash := range hashes {
		hashStrings[i] = hash.Hex()
	}
	req.Sink.emit(Update{
		Status:   statusPtr(StatusSubmitted),
		TxHash:   strPtr(hashStrings[0]),
		TxHashes: hashStrings,
	})
	r.logger.Info("批量交易已广播",
		slog.String("name", req.Name),
		slog.Int("count", len(hashes)),
		slog.String("first_hash", hashStrings[0]),
	)
	if req.OnSubmitted != nil {
		req.OnSubmitted(hashes)
	}

	receipts := make([]*ReceiptSummary, 0, len(hashes))
	for i, hash := range hashes {
		receipt, err := r.awaitReceipt(ctx, hash)
		if err != nil {
			return nil, r.fail(req.Sink, CodeConfirmFailure, fmt.Sprintf("等待第 %d 笔交易确认失败: %v", i, err), err)
		}
		summary := SummarizeReceipt(receipt)
		receipts = append(receipts, summary)

		if receipt.Status == coretypes.ReceiptStatusFailed {
			reason := r.revertReason(ctx, callMsgs[i], receipt.BlockNumber)
			message := fmt.Sprintf("第 %d 笔交易在链上执行失败", i)
			if reason != "" {
				message = fmt.Sprintf("%s: %s", message, reason)
			}
			req.Sink.emit(Update{
				Loading:   boolPtr(false),
				Status:    statusPtr(StatusError),
				Receipt:   summary,
				Error:     strPtr(message),
				ErrorCode: strPtr(string(CodeReverted)),
			})
			return nil, xerrors.New(CodeReverted, message, xerrors.WithMetadata("tx_hash", hash.Hex()))
		}
	}

	req.Sink.emit(Update{
		Loading: boolPtr(false),
		Status:  statusPtr(StatusConfirmed),
		Receipt: receipts[len(receipts)-1],
	})
	if req.OnConfirmed != nil {
		req.OnConfirmed(receipts)
	}

	return &BatchOutcome{Hashes: hashes, Receipts: receipts, RawTxs: rawTxs}, nil
}

// resolveGasPrice 解析覆盖串，未提供时向节点询价。
func (r *Relay) resolveGasPrice(ctx context.Context, override string) (*big.Int, error) {
	price, err := ParseGasPrice(override)
	if err != nil {
		return nil, err
	}
	if price != nil {
		return price, nil
	}
	return r.provider.SuggestGasPrice(ctx)
}

// assemble 构造未签名交易，必要时向节点估算 gas 上限。
func (r *Relay) assemble(ctx context.Context, request *TxRequest, nonce uint64, gasPrice *big.Int) (*coretypes.Transaction, gethcore.CallMsg, error) {
	callMsg := gethcore.CallMsg{
		From:     r.signer.Address(),
		To:       request.To,
		Value:    request.Value,
		Data:     request.Data,
		GasPrice: gasPrice,
	}

	gasLimit := request.GasLimit
	if gasLimit == 0 {
		estimated, err := r.provider.EstimateGas(ctx, callMsg)
		if err != nil {
			return nil, callMsg, err
		}
		gasLimit = estimated
	}
	callMsg.Gas = gasLimit

	unsigned := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       request.To,
		Value:    request.Value,
		Data:     request.Data,
	})
	return unsigned, callMsg, nil
}

func (r *Relay) awaitReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	waitCtx := ctx
	if r.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.confirmTimeout)
		defer cancel()
	}
	return r.provider.WaitForReceipt(waitCtx, hash, r.pollInterval)
}

// revertReason 在回执所在区块重放调用，尽力解码回滚原因。解码失败不视为
// 错误，返回空串即可。
func (r *Relay) revertReason(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) string {
	result, err := r.provider.CallContract(ctx, msg, blockNumber)
	if err != nil {
		if reason, ok := revertReasonFromError(err); ok {
			return reason
		}
		return err.Error()
	}
	if reason, uerr := abi.UnpackRevert(result); uerr == nil {
		return reason
	}
	return ""
}

// revertReasonFromError 从 JSON-RPC 错误携带的 data 字段中提取回滚数据。
func revertReasonFromError(err error) (string, bool) {
	var dataErr gethrpc.DataError
	if !stdErrors.As(err, &dataErr) {
		return "", false
	}
	encoded, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	payload, decodeErr := hexutil.Decode(encoded)
	if decodeErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(payload)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}

// fail 统一三处错误出口：写入人类可读补丁并返回带错误码的 error。
func (r *Relay) fail(sink Sink, code xerrors.Code, message string, cause error) error {
	sink.emit(Update{
		Loading:   boolPtr(false),
		Status:    statusPtr(StatusError),
		Error:     strPtr(message),
		ErrorCode: strPtr(string(code)),
	})
	r.logger.Error("提交生命周期失败",
		slog.String("error_code", string(code)),
		slog.String("error", message),
	)
	if xe, ok := xerrors.From(cause); ok && xe.Code() == code {
		return cause
	}
	return xerrors.Wrap(code, cause, message)
}

func encodeRawTx(tx *coretypes.Transaction) string {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return ""
	}
	return "0x" + hex.EncodeToString(raw)
}
