package tx

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	xerrors "TxRelay-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxRequest 描述一笔待签名的交易数据。
type TxRequest struct {
	To       *common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Builder 由调用方提供，负责构建未签名交易数据。
type Builder func(ctx context.Context) (*TxRequest, error)

// BatchBuilder 构建一组未签名交易，按切片顺序分配连续 nonce。
type BatchBuilder func(ctx context.Context) ([]*TxRequest, error)

// gweiMultiplier 用于 "gwei" 后缀换算。
var gweiMultiplier = big.NewInt(1_000_000_000)

// ParseGasPrice 解析 gas 价格覆盖串。支持十进制 wei（"20000000000"）和
// 整数 gwei 后缀（"20gwei"）。空串表示不覆盖，返回 nil。
func ParseGasPrice(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return nil, nil
	}

	multiplier := big.NewInt(1)
	if value, ok := strings.CutSuffix(raw, "gwei"); ok {
		raw = strings.TrimSpace(value)
		multiplier = gweiMultiplier
	}

	price, ok := new(big.Int).SetString(raw, 10)
	if !ok || price.Sign() < 0 {
		return nil, xerrors.New(CodeSubmissionValidation, fmt.Sprintf("非法的 gas 价格: %q", raw))
	}
	return price.Mul(price, multiplier), nil
}

// PayloadBuilder 将静态的提交字段包装成 Builder。字段校验延迟到构建阶段执行，
// 使校验失败与其它构建错误走同一条上报路径。
func PayloadBuilder(to, value, data string, gasLimit uint64) Builder {
	return func(context.Context) (*TxRequest, error) {
		req := &TxRequest{GasLimit: gasLimit}

		to = strings.TrimSpace(to)
		data = strings.TrimSpace(data)
		if to == "" && data == "" {
			return nil, xerrors.New(CodeSubmissionValidation, "交易缺少目标地址和调用数据")
		}
		if to != "" {
			if !common.IsHexAddress(to) {
				return nil, xerrors.New(CodeSubmissionValidation, fmt.Sprintf("非法的目标地址: %q", to))
			}
			addr := common.HexToAddress(to)
			req.To = &addr
		}

		if value = strings.TrimSpace(value); value != "" {
			amount, ok := new(big.Int).SetString(value, 10)
			if !ok || amount.Sign() < 0 {
				return nil, xerrors.New(CodeSubmissionValidation, fmt.Sprintf("非法的转账金额: %q", value))
			}
			req.Value = amount
		}

		if data != "" {
			payload, err := hexutil.Decode(ensureHexPrefix(data))
			if err != nil {
				return nil, xerrors.Wrap(CodeSubmissionValidation, err, "解析调用数据失败")
			}
			req.Data = payload
		}

		return req, nil
	}
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
