package config

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/webclinic017/GDA-v2/pkg/crypto"
)

func TestUnseal(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv(crypto.KeyEnv, base64.StdEncoding.EncodeToString(key))
	ring, err := crypto.LoadKeyring()
	if err != nil {
		t.Fatalf("LoadKeyring failed: %v", err)
	}
	sealed, err := ring.Seal("api-secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	cfg := &Config{BinanceUSDTKey: "plain-key", BinanceUSDTSecret: sealed}
	if err := cfg.Unseal(); err != nil {
		t.Fatalf("Unseal failed: %v", err)
	}
	if cfg.BinanceUSDTKey != "plain-key" || cfg.BinanceUSDTSecret != "api-secret" {
		t.Fatalf("config=%+v, expected opened secret", cfg)
	}
}

func TestUnsealWithoutKey(t *testing.T) {
	t.Setenv(crypto.KeyEnv, "")
	cfg := &Config{TelegramToken: "SEALED[v1]:AAAA"}
	if err := cfg.Unseal(); !errors.Is(err, crypto.ErrNoKey) {
		t.Fatalf("err=%v, expected ErrNoKey", err)
	}

	plain := &Config{TelegramToken: "token"}
	if err := plain.Unseal(); err != nil {
		t.Fatalf("Unseal on plain config failed: %v", err)
	}
}

func TestOperatorChats(t *testing.T) {
	cfg := &Config{TelegramChatIDs: []string{"1", "2"}}
	if got := cfg.OperatorChats(); len(got) != 2 {
		t.Fatalf("OperatorChats=%v, expected fallback to all chats", got)
	}
	cfg.TelegramOperatorIDs = []string{"9"}
	if got := cfg.OperatorChats(); len(got) != 1 || got[0] != "9" {
		t.Fatalf("OperatorChats=%v, expected [9]", got)
	}
}
