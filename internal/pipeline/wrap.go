package pipeline

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/logger"
)

// depositSelector 包装合约 deposit() 的函数选择器。
var depositSelector = crypto.Keccak256([]byte("deposit()"))[:4]

// EthWrapper 通过以太坊节点把原生资产包装成对应的 ERC20。
// 估算 gas、发交易、等回执；回执失败视为包装失败。
type EthWrapper struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	wrapped common.Address
	chainID *big.Int
}

// NewEthWrapper 连接节点并创建包装器。
func NewEthWrapper(rawURL string, key *ecdsa.PrivateKey, wrappedAsset string, chainID int64) (*EthWrapper, error) {
	eth, err := ethclient.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	return &EthWrapper{
		eth:     eth,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		wrapped: common.HexToAddress(wrappedAsset),
		chainID: big.NewInt(chainID),
	}, nil
}

// Close 断开节点连接。
func (w *EthWrapper) Close() {
	w.eth.Close()
}

// Wrap 把 amount（最小单位）存入包装合约并等待确认。
func (w *EthWrapper) Wrap(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: 包装数量必须为正", domain.ErrWrapFailed)
	}

	nonce, err := w.eth.PendingNonceAt(ctx, w.from)
	if err != nil {
		return fmt.Errorf("%w: 获取 nonce 失败: %v", domain.ErrWrapFailed, err)
	}
	gasPrice, err := w.eth.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: 获取 gas 价格失败: %v", domain.ErrWrapFailed, err)
	}
	gasLimit, err := w.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.from,
		To:    &w.wrapped,
		Value: amount,
		Data:  depositSelector,
	})
	if err != nil {
		return fmt.Errorf("%w: 估算 gas 失败: %v", domain.ErrWrapFailed, err)
	}

	tx := ethtypes.NewTransaction(nonce, w.wrapped, amount, gasLimit, gasPrice, depositSelector)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return fmt.Errorf("%w: 签名包装交易失败: %v", domain.ErrWrapFailed, err)
	}

	if err := w.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("%w: 发送包装交易失败: %v", domain.ErrWrapFailed, err)
	}

	logger.WithField("tx", signed.Hash().Hex()).Info("包装交易已发送，等待确认")

	receipt, err := bind.WaitMined(ctx, w.eth, signed)
	if err != nil {
		return fmt.Errorf("%w: 等待包装交易确认失败: %v", domain.ErrWrapFailed, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: 包装交易回执失败 tx=%s", domain.ErrWrapFailed, signed.Hash().Hex())
	}
	return nil
}
