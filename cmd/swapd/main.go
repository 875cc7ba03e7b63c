package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/swapbot/goswap/dex/client"
	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/internal/bookfeed"
	"github.com/swapbot/goswap/internal/builder"
	"github.com/swapbot/goswap/internal/controlplane/server"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/journal"
	"github.com/swapbot/goswap/internal/pipeline"
	"github.com/swapbot/goswap/internal/telemetry"
	"github.com/swapbot/goswap/pkg/config"
	"github.com/swapbot/goswap/pkg/logger"
	"github.com/swapbot/goswap/pkg/secretstore"
)

func main() {
	// 加载 .env（best-effort），缺失时用真实环境变量
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", getenv("GOSWAP_CONFIG", "config.yaml"), "配置文件路径")
		listenAddr = flag.String("listen", getenv("GOSWAP_LISTEN", ":8090"), "控制面监听地址")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fatal(err)
	}

	key, err := resolveSignerKey(cfg)
	if err != nil {
		fatal(err)
	}
	agent := signing.NewLocalAgent(key)
	owner := agent.Address().Hex()

	registry := domain.NewRegistry()
	for _, m := range cfg.Markets {
		err := registry.Register(cfg.ChainID, domain.Market{
			PrimaryAsset:      m.PrimaryAsset,
			SecondaryAsset:    m.SecondaryAsset,
			PrimarySymbol:     m.PrimarySymbol,
			SecondarySymbol:   m.SecondarySymbol,
			PrimaryDecimals:   m.PrimaryDecimals,
			SecondaryDecimals: m.SecondaryDecimals,
			PriceDecimals:     m.PriceDecimals,
		})
		if err != nil {
			fatal(err)
		}
	}

	matching := client.New(cfg.Endpoints.MatchingBaseURL)
	var reports pipeline.ReportSink
	if rc := client.NewReportClient(cfg.Endpoints.AnalyticsURL); rc != nil {
		reports = rc
	}

	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			fatal(err)
		}
		defer jnl.Close()
	}

	var wrapper pipeline.Wrapper
	if cfg.Endpoints.EthNodeURL != "" && cfg.Protocol.WrappedAsset != "" {
		w, err := pipeline.NewEthWrapper(cfg.Endpoints.EthNodeURL, key, cfg.Protocol.WrappedAsset, cfg.ChainID)
		if err != nil {
			fatal(err)
		}
		defer w.Close()
		wrapper = w
	}

	signDomain := signing.DomainConfig{
		Name:    cfg.Protocol.DomainName,
		Version: cfg.Protocol.DomainVersion,
		ChainID: cfg.ChainID,
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Agent:            agent,
		Domain:           signDomain,
		Matching:         matching,
		Reports:          reports,
		Reporter:         telemetry.LogReporter{},
		Journal:          jnl,
		Wrapper:          wrapper,
		ReferralCode:     cfg.ReferralCode,
		FillPollInterval: cfg.Pipeline.FillPollInterval,
		SettleDelay:      cfg.Pipeline.SettleDelay,
		WrapSettleDelay:  cfg.Pipeline.WrapSettleDelay,
	})

	slippageBps := cfg.Slippage.DefaultBps
	if cfg.Slippage.OverrideBps > 0 {
		slippageBps = cfg.Slippage.OverrideBps
	}

	srv, err := server.New(server.Config{
		ChainID:  cfg.ChainID,
		Owner:    owner,
		Registry: registry,
		Builder: builder.New(builder.Config{
			FeeWallet:       cfg.Protocol.FeeWallet,
			DualAuthAddr:    cfg.Protocol.DualAuthAddr,
			Broker:          cfg.Protocol.Broker,
			FeeToken:        cfg.Protocol.FeeToken,
			ValidSinceSlack: cfg.Protocol.ValidSinceSlack,
			ValidityWindow:  cfg.Protocol.ValidityWindow,
		}),
		Runner:             runner,
		Journal:            jnl,
		Domain:             signDomain,
		NativeAsset:        cfg.Protocol.NativeAsset,
		WrappedAsset:       cfg.Protocol.WrappedAsset,
		DefaultSlippageBps: slippageBps,
	})
	if err != nil {
		fatal(err)
	}

	// 每个市场起一路订单簿来源：配置了推送地址用推送，否则轮询
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, m := range cfg.Markets {
		market, err := registry.Resolve(cfg.ChainID, m.PrimaryAsset, m.SecondaryAsset)
		if err != nil {
			fatal(err)
		}
		if cfg.Endpoints.DepthWSURL != "" {
			feed := bookfeed.NewStreamFeed(cfg.Endpoints.DepthWSURL, market, nil)
			feed.Start(ctx)
			defer feed.Stop()
			srv.AttachBook(market, feed)
		} else {
			poller := bookfeed.NewPoller(matching, market, cfg.Book.PollInterval, nil)
			poller.Start(ctx)
			defer poller.Stop()
			srv.AttachBook(market, poller)
		}
	}

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("控制面监听 %s（账户 %s）", *listenAddr, owner)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	fmt.Println("swapd stopped")
}

// resolveSignerKey 解析签名私钥：密钥库优先，其次内联私钥，再次助记词。
func resolveSignerKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.Signer.KeystorePath != "" {
		masterKey, err := secretstore.ParseKey(os.Getenv("GOSWAP_MASTER_KEY"))
		if err != nil {
			return nil, err
		}
		store, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.Signer.KeystorePath,
			EncryptionKey: masterKey,
			ReadOnly:      true,
		})
		if err != nil {
			return nil, err
		}
		defer store.Close()

		cred, ok, err := store.GetCredential(cfg.Signer.KeystoreName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("密钥库中没有凭据 %q", cfg.Signer.KeystoreName)
		}
		if cred.Mnemonic != "" {
			return signing.DeriveKey(cred.Mnemonic, cred.DerivationPath)
		}
		return keyFromHex(cred.PrivateKeyHex)
	}
	if cfg.Signer.PrivateKey != "" {
		return keyFromHex(cfg.Signer.PrivateKey)
	}
	if cfg.Signer.Mnemonic != "" {
		return signing.DeriveKey(cfg.Signer.Mnemonic, cfg.Signer.DerivationPath)
	}
	return nil, errors.New("未配置签名私钥（keystore_path / private_key / mnemonic 三选一）")
}

func keyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return key, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
