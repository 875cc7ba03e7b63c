package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config goswap 顶层配置。
type Config struct {
	ChainID int64 `yaml:"chain_id"`

	Log       LogConfig       `yaml:"log"`
	Signer    SignerConfig    `yaml:"signer"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Slippage  SlippageConfig  `yaml:"slippage"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Book      BookConfig      `yaml:"book"`
	Journal   JournalConfig   `yaml:"journal"`
	Markets   []MarketConfig  `yaml:"markets"`

	// ReferralCode 推荐码（可选；存在时提交成功后额外上报推荐事件）
	ReferralCode string `yaml:"referral_code"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SignerConfig 本地签名代理配置。
// PrivateKey 为空时尝试从 Mnemonic 派生；两者都空则从环境变量读取。
type SignerConfig struct {
	PrivateKey     string `yaml:"private_key"`
	Mnemonic       string `yaml:"mnemonic"`
	DerivationPath string `yaml:"derivation_path"`
	// KeystorePath 加密私钥库路径（badger），配置后优先于内联密钥
	KeystorePath string `yaml:"keystore_path"`
	KeystoreName string `yaml:"keystore_name"`
}

// EndpointsConfig 外部协作方地址。
type EndpointsConfig struct {
	MatchingBaseURL string `yaml:"matching_base_url"` // 远端撮合服务
	DepthWSURL      string `yaml:"depth_ws_url"`      // 深度推送（可选，websocket）
	AnalyticsURL    string `yaml:"analytics_url"`     // 分析/推荐事件接收端
	EthNodeURL      string `yaml:"eth_node_url"`      // 以太坊节点（包装步骤用）
}

// ProtocolConfig 订单构建所需的静态协议常量。
// 显式注入而不是模块级常量，换部署/换链只改配置。
type ProtocolConfig struct {
	DomainName    string `yaml:"domain_name"`
	DomainVersion string `yaml:"domain_version"`

	FeeWallet    string `yaml:"fee_wallet"`     // 手续费归集钱包
	DualAuthAddr string `yaml:"dual_auth_addr"` // 双重授权地址
	Broker       string `yaml:"broker"`         // 经纪人地址
	FeeToken     string `yaml:"fee_token"`      // 手续费代币

	NativeAsset  string `yaml:"native_asset"`  // 原生资产占位地址
	WrappedAsset string `yaml:"wrapped_asset"` // 原生资产的包装代币地址

	// ValidSinceSlack 订单生效时间相对当前时间的回退秒数
	ValidSinceSlack int64 `yaml:"valid_since_slack"`
	// ValidityWindow 订单有效期秒数，0 表示不设上限
	ValidityWindow int64 `yaml:"validity_window"`
}

// SlippageConfig 滑点默认值（基点）。
type SlippageConfig struct {
	DefaultBps int64 `yaml:"default_bps"`
	TokenBps   int64 `yaml:"token_bps"`
	// OverrideBps 用户自定义值，0 表示使用默认
	OverrideBps int64 `yaml:"override_bps"`
}

// PipelineConfig 提交流水线的固定延时与轮询间隔。
type PipelineConfig struct {
	FillPollInterval time.Duration `yaml:"fill_poll_interval"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	WrapSettleDelay  time.Duration `yaml:"wrap_settle_delay"`
}

// BookConfig 订单簿轮询配置。
type BookConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// JournalConfig 本地提交流水账配置。
type JournalConfig struct {
	Path string `yaml:"path"`
}

// MarketConfig 市场注册表条目。
type MarketConfig struct {
	PrimaryAsset      string `yaml:"primary_asset"`
	SecondaryAsset    string `yaml:"secondary_asset"`
	PrimarySymbol     string `yaml:"primary_symbol"`
	SecondarySymbol   string `yaml:"secondary_symbol"`
	PrimaryDecimals   int    `yaml:"primary_decimals"`
	SecondaryDecimals int    `yaml:"secondary_decimals"`
	PriceDecimals     int    `yaml:"price_decimals"`
}

// Load 读取 yaml 配置。先尝试加载 .env（best-effort），
// 然后应用 GOSWAP_* 环境变量覆盖，最后校验。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ChainID: 1,
		Log:     LogConfig{Level: "info", MaxSize: 50, MaxBackups: 3, MaxAge: 14},
		Slippage: SlippageConfig{
			DefaultBps: 50,
			TokenBps:   50,
		},
		Pipeline: PipelineConfig{
			FillPollInterval: 3 * time.Second,
			SettleDelay:      2 * time.Second,
			WrapSettleDelay:  5 * time.Second,
		},
		Book: BookConfig{PollInterval: 5 * time.Second},
		Protocol: ProtocolConfig{
			DomainName:      "Loopring Protocol",
			DomainVersion:   "2.0",
			ValidSinceSlack: 300,
		},
		Signer: SignerConfig{KeystoreName: "default"},
	}
}

// applyEnvOverrides 环境变量优先于文件内容（密钥类字段尤其如此）。
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GOSWAP_PRIVATE_KEY"); v != "" {
		c.Signer.PrivateKey = v
	}
	if v := os.Getenv("GOSWAP_MNEMONIC"); v != "" {
		c.Signer.Mnemonic = v
	}
	if v := os.Getenv("GOSWAP_MATCHING_URL"); v != "" {
		c.Endpoints.MatchingBaseURL = v
	}
	if v := os.Getenv("GOSWAP_ETH_NODE_URL"); v != "" {
		c.Endpoints.EthNodeURL = v
	}
	if v := os.Getenv("GOSWAP_REFERRAL_CODE"); v != "" {
		c.ReferralCode = v
	}
	if v := os.Getenv("GOSWAP_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChainID = id
		}
	}
}

// Validate 基本合法性检查。
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id 必须为正")
	}
	if c.Endpoints.MatchingBaseURL == "" {
		return fmt.Errorf("endpoints.matching_base_url 不能为空")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("至少需要配置一个市场")
	}
	for i, m := range c.Markets {
		if m.PrimaryAsset == "" || m.SecondaryAsset == "" {
			return fmt.Errorf("markets[%d]: 资产地址不能为空", i)
		}
	}
	if c.Slippage.OverrideBps < 0 || c.Slippage.OverrideBps > 5000 {
		return fmt.Errorf("slippage.override_bps 超出 [0, 5000]")
	}
	return nil
}
