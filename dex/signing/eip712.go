package signing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/swapbot/goswap/dex/types"
)

// DomainConfig EIP712 域参数。
// 不同部署/链可以注入不同的域，不需要改代码。
type DomainConfig struct {
	Name    string
	Version string
	ChainID int64
}

// orderTypes 订单的 EIP712 字段 schema（固定）。
var orderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Order": {
		{Name: "amountS", Type: "uint256"},
		{Name: "amountB", Type: "uint256"},
		{Name: "feeAmount", Type: "uint256"},
		{Name: "validSince", Type: "uint256"},
		{Name: "validUntil", Type: "uint256"},
		{Name: "owner", Type: "address"},
		{Name: "tokenS", Type: "address"},
		{Name: "tokenB", Type: "address"},
		{Name: "dualAuthAddr", Type: "address"},
		{Name: "broker", Type: "address"},
		{Name: "wallet", Type: "address"},
		{Name: "tokenRecipient", Type: "address"},
		{Name: "feeToken", Type: "address"},
		{Name: "walletSplitPercentage", Type: "uint16"},
		{Name: "allOrNone", Type: "bool"},
		{Name: "tokenTypeS", Type: "uint8"},
		{Name: "tokenTypeB", Type: "uint8"},
		{Name: "tokenTypeFee", Type: "uint8"},
		{Name: "trancheS", Type: "bytes32"},
		{Name: "trancheB", Type: "bytes32"},
		{Name: "transferDataS", Type: "bytes"},
	},
}

// OrderTypedData 把订单转换成可签名的 EIP712 结构化数据。
func OrderTypedData(order *types.UnsignedOrder, domain DomainConfig) apitypes.TypedData {
	transferData := order.TransferDataS
	if transferData == "" {
		transferData = "0x"
	}

	message := map[string]interface{}{
		"amountS":               order.AmountS,
		"amountB":               order.AmountB,
		"feeAmount":             order.FeeAmount,
		"validSince":            big.NewInt(order.ValidSince),
		"validUntil":            big.NewInt(order.ValidUntil),
		"owner":                 order.Owner,
		"tokenS":                order.TokenS,
		"tokenB":                order.TokenB,
		"dualAuthAddr":          order.DualAuthAddr,
		"broker":                order.Broker,
		"wallet":                order.Wallet,
		"tokenRecipient":        order.TokenRecipient,
		"feeToken":              order.FeeToken,
		"walletSplitPercentage": big.NewInt(int64(order.WalletSplitPercentage)),
		"allOrNone":             order.AllOrNone,
		"tokenTypeS":            big.NewInt(int64(order.TokenTypeS)),
		"tokenTypeB":            big.NewInt(int64(order.TokenTypeB)),
		"tokenTypeFee":          big.NewInt(int64(order.TokenTypeFee)),
		"trancheS":              order.TrancheS,
		"trancheB":              order.TrancheB,
		"transferDataS":         transferData,
	}

	return apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:    domain.Name,
			Version: domain.Version,
			ChainId: math.NewHexOrDecimal256(domain.ChainID),
		},
		Message: message,
	}
}

// OrderHash 计算订单的类型化结构哈希（订单身份）。
// 每次调用重新计算，从不跨修改缓存；仅用于关联与查询。
func OrderHash(order *types.UnsignedOrder, domain DomainConfig) (string, error) {
	if order.AmountS == nil || order.AmountB == nil || order.FeeAmount == nil {
		return "", fmt.Errorf("order amounts must be populated before hashing")
	}
	typedData := OrderTypedData(order, domain)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("计算订单 EIP712 哈希失败: %w", err)
	}
	return "0x" + fmt.Sprintf("%x", hash), nil
}
