package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/pkg/secretstore"
)

func main() {
	var (
		storePath = flag.String("store", getenv("GOSWAP_KEYSTORE", "data/keystore"), "密钥库路径（badger 目录）")
		name      = flag.String("name", getenv("GOSWAP_KEYSTORE_NAME", "default"), "凭据名称")
		path      = flag.String("path", "", "BIP44 派生路径（默认 m/44'/60'/0'/0/0）")
		force     = flag.Bool("force", false, "覆盖已存在的同名凭据")
	)
	flag.Parse()

	masterKey, err := secretstore.ParseKey(os.Getenv("GOSWAP_MASTER_KEY"))
	if err != nil {
		fatal(err)
	}
	if masterKey == nil {
		fatal(errors.New("GOSWAP_MASTER_KEY is required (32 bytes, hex or base64)"))
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *storePath,
		EncryptionKey: masterKey,
	})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	if _, exists, err := store.GetCredential(*name); err != nil {
		fatal(err)
	} else if exists && !*force {
		fatal(fmt.Errorf("凭据 %q 已存在（用 -force 覆盖）", *name))
	}

	fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
	mnemonic := strings.TrimSpace(readLine())
	if mnemonic == "" {
		fatal(errors.New("mnemonic is empty"))
	}

	// 入库前先派生一次，既校验助记词也把地址回显给用户
	key, err := signing.DeriveKey(mnemonic, *path)
	if err != nil {
		fatal(err)
	}
	agent := signing.NewLocalAgent(key)

	err = store.PutCredential(*name, secretstore.Credential{
		Mnemonic:       mnemonic,
		DerivationPath: *path,
	})
	if err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stderr, "已写入凭据 %q，签名地址：%s\n", *name, agent.Address().Hex())
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
