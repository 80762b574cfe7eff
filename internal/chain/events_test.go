package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dextrustee/dexbridge/internal/domain"
)

func TestDecodeOrderPlacedLog(t *testing.T) {
	data, err := handlerABI.Events["OrderPlaced"].Inputs.NonIndexed().Pack(
		big.NewInt(1_000_000),
		uint8(domain.OrderKindLimit),
		big.NewInt(500),
		"BUY",
		"ETH-TST",
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")

	vLog := types.Log{
		TxHash:      common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		BlockNumber: 123,
		Index:       7,
		Topics: []common.Hash{
			OrderPlacedTopic,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(token.Bytes()),
		},
		Data: data,
	}

	ev, err := DecodeOrderPlacedLog(vLog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Sender != sender.Hex() || ev.Token != token.Hex() {
		t.Fatalf("address decode mismatch: sender=%s token=%s", ev.Sender, ev.Token)
	}
	if ev.Amount != "1000000" || ev.Size != "500" {
		t.Fatalf("uint decode mismatch: amount=%s size=%s", ev.Amount, ev.Size)
	}
	if ev.OrderType != domain.OrderKindLimit {
		t.Fatalf("order type mismatch: %d", ev.OrderType)
	}
	if ev.Side != "BUY" || ev.MarketCode != "ETH-TST" {
		t.Fatalf("string decode mismatch: side=%q market=%q", ev.Side, ev.MarketCode)
	}
	if ev.BlockNumber != 123 || ev.LogIndex != 7 {
		t.Fatalf("cursor mismatch: block=%d idx=%d", ev.BlockNumber, ev.LogIndex)
	}

	if err := ev.Validate(); err != nil {
		t.Fatalf("decoded event should validate: %v", err)
	}
}

func TestDecodeOrderPlacedLogTooFewTopics(t *testing.T) {
	_, err := DecodeOrderPlacedLog(types.Log{Topics: []common.Hash{OrderPlacedTopic}})
	if err == nil {
		t.Fatal("expected error for missing indexed topics")
	}
}

func TestDecodeAssetWithdrawnLog(t *testing.T) {
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")

	var data [32]byte
	big.NewInt(42).FillBytes(data[:])

	vLog := types.Log{
		TxHash:      common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		BlockNumber: 456,
		Index:       2,
		Topics: []common.Hash{
			AssetWithdrawnTopic,
			common.BytesToHash(token.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data: data[:],
	}

	ev, err := DecodeAssetWithdrawnLog(vLog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Token != token.Hex() || ev.Recipient != recipient.Hex() {
		t.Fatalf("address decode mismatch: token=%s recipient=%s", ev.Token, ev.Recipient)
	}
	if ev.Amount != "42" {
		t.Fatalf("amount mismatch: %s", ev.Amount)
	}
	if ev.BlockNumber != 456 || ev.LogIndex != 2 {
		t.Fatalf("cursor mismatch: block=%d idx=%d", ev.BlockNumber, ev.LogIndex)
	}
}

func TestNormalizeToken(t *testing.T) {
	zero := common.Address{}
	for _, alias := range []string{"", "eth", "ETH", "0x0", "0x0000000000000000000000000000000000000000"} {
		if got := normalizeToken(alias); got != zero {
			t.Errorf("alias %q should map to zero address, got %s", alias, got.Hex())
		}
	}
	tst := "0x77f369477a0140b30d359741f8720ee23f03ebd7"
	if got := normalizeToken(tst); got != common.HexToAddress(tst) {
		t.Errorf("token address mangled: %s", got.Hex())
	}
}
