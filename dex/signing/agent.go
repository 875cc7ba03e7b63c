package signing

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/swapbot/goswap/internal/domain"
)

// TypedDataSigner 支持结构化数据签名的代理能力（优先路径）。
// 返回十六进制签名 r||s||v；用户取消时返回 domain.ErrSigningRejected。
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error)
}

// MessageSigner 普通消息签名能力（回退路径）。
type MessageSigner interface {
	SignMessage(ctx context.Context, payload []byte) (string, error)
}

// PreferredAlgorithm 根据代理暴露的能力选择签名算法。
func PreferredAlgorithm(agent interface{}) Algorithm {
	if _, ok := agent.(TypedDataSigner); ok {
		return AlgorithmEIP712
	}
	return AlgorithmEthSign
}

// DefaultDerivationPath 本地密钥派生路径。
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// LocalAgent 本地私钥签名代理，两种签名能力都支持。
// 参考实现；生产里通常由外部钱包充当代理。
type LocalAgent struct {
	key *ecdsa.PrivateKey
}

// NewLocalAgent 用已有私钥创建本地签名代理。
func NewLocalAgent(key *ecdsa.PrivateKey) *LocalAgent {
	return &LocalAgent{key: key}
}

// NewLocalAgentFromHex 从十六进制私钥创建。
func NewLocalAgentFromHex(hexKey string) (*LocalAgent, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return &LocalAgent{key: key}, nil
}

// NewLocalAgentFromMnemonic 从助记词派生私钥创建。
// path 为空时使用 DefaultDerivationPath。
func NewLocalAgentFromMnemonic(mnemonic, path string) (*LocalAgent, error) {
	key, err := DeriveKey(mnemonic, path)
	if err != nil {
		return nil, err
	}
	return &LocalAgent{key: key}, nil
}

// DeriveKey 按 BIP44 路径从助记词派生私钥。
func DeriveKey(mnemonic, path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		path = DefaultDerivationPath
	}
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("解析助记词失败: %w", err)
	}
	derivation, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("解析派生路径失败: %w", err)
	}
	account, err := wallet.Derive(derivation, false)
	if err != nil {
		return nil, fmt.Errorf("派生账户失败: %w", err)
	}
	key, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("导出私钥失败: %w", err)
	}
	return key, nil
}

// Address 返回代理持有密钥对应的地址。
func (a *LocalAgent) Address() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

// SignTypedData 对 EIP712 结构化数据签名。
func (a *LocalAgent) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("计算结构化数据哈希失败: %w", err)
	}
	sig, err := crypto.Sign(hash, a.key)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignMessage 对任意负载做以太坊前缀消息签名。
func (a *LocalAgent) SignMessage(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sig, err := crypto.Sign(accounts.TextHash(payload), a.key)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// RejectingAgent 总是拒绝签名的代理（模拟用户取消，测试与演练用）。
type RejectingAgent struct{}

func (RejectingAgent) SignTypedData(ctx context.Context, _ apitypes.TypedData) (string, error) {
	return "", domain.ErrSigningRejected
}

func (RejectingAgent) SignMessage(ctx context.Context, _ []byte) (string, error) {
	return "", domain.ErrSigningRejected
}
