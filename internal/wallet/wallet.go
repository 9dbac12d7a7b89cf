// Package wallet provides the transaction signing abstraction used by the
// relay. Implementations turn unsigned transactions into broadcastable
// payloads; the chain client never sees private key material.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 抽象了签名能力，返回的交易可直接广播。
type Signer interface {
	// Address 返回签名账户地址，作为交易的 from。
	Address() common.Address
	// SignTx 使用目标链 ID 对交易进行签名。
	SignTx(tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error)
}

// KeyedSigner 持有内存中的私钥并使用 EIP-155 签名。
type KeyedSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyedSigner 从十六进制私钥构造签名器。
func NewKeyedSigner(hexKey string) (*KeyedSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("私钥不能为空")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return NewSignerFromKey(key), nil
}

// NewSignerFromKey 包装一个已有的 ECDSA 私钥。
func NewSignerFromKey(key *ecdsa.PrivateKey) *KeyedSigner {
	return &KeyedSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeyedSignerFromEnv 从环境变量读取私钥，避免私钥落盘到配置文件。
func NewKeyedSignerFromEnv(envName string) (*KeyedSigner, error) {
	if strings.TrimSpace(envName) == "" {
		return nil, errors.New("私钥环境变量名不能为空")
	}
	raw := os.Getenv(envName)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("环境变量 %s 未设置私钥", envName)
	}
	return NewKeyedSigner(raw)
}

// Address 实现 Signer 接口。
func (s *KeyedSigner) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// SignTx 实现 Signer 接口。
func (s *KeyedSigner) SignTx(tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("签名器未初始化")
	}
	if tx == nil {
		return nil, errors.New("交易不能为空")
	}
	if chainID == nil {
		return nil, errors.New("链 ID 不能为空")
	}
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	return signed, nil
}

var _ Signer = (*KeyedSigner)(nil)
