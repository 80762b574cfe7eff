// Package chain talks to the EVM chain: it decodes OrderHandler contract
// logs into domain events and submits settlement withdrawals.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// orderHandlerABI is the OrderHandler contract interface as deployed. Only
// the pieces the bridge touches are listed: the two events plus owner() and
// withdraw() for the settlement path.
const orderHandlerABI = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"sender","type":"address"},
    {"indexed":true,"internalType":"address","name":"token","type":"address"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},
    {"indexed":false,"internalType":"uint8","name":"orderType","type":"uint8"},
    {"indexed":false,"internalType":"uint256","name":"size","type":"uint256"},
    {"indexed":false,"internalType":"string","name":"side","type":"string"},
    {"indexed":false,"internalType":"string","name":"marketCode","type":"string"}],
   "name":"OrderPlaced","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"token","type":"address"},
    {"indexed":true,"internalType":"address","name":"recipient","type":"address"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"AssetWithdrawn","type":"event"},
  {"inputs":[],"name":"owner",
   "outputs":[{"internalType":"address","name":"","type":"address"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"address","name":"recipient","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	handlerABI          abi.ABI
	OrderPlacedTopic    common.Hash
	AssetWithdrawnTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(orderHandlerABI))
	if err != nil {
		panic(fmt.Sprintf("chain: bad OrderHandler ABI: %v", err))
	}
	handlerABI = parsed
	OrderPlacedTopic = handlerABI.Events["OrderPlaced"].ID
	AssetWithdrawnTopic = handlerABI.Events["AssetWithdrawn"].ID
}

// DecodeOrderPlacedLog decodes one OrderPlaced log.
//
// topics:
//	0: event sig
//	1: sender (address indexed)
//	2: token (address indexed)
// data: amount (uint256), orderType (uint8), size (uint256), side (string),
// marketCode (string).
func DecodeOrderPlacedLog(vLog types.Log) (domain.OrderEvent, error) {
	if len(vLog.Topics) < 3 {
		return domain.OrderEvent{}, fmt.Errorf("chain: OrderPlaced: unexpected topics len=%d", len(vLog.Topics))
	}

	var fields struct {
		Amount     *big.Int
		OrderType  uint8
		Size       *big.Int
		Side       string
		MarketCode string
	}
	if err := handlerABI.UnpackIntoInterface(&fields, "OrderPlaced", vLog.Data); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("chain: OrderPlaced: unpack data: %w", err)
	}

	return domain.OrderEvent{
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
		Sender:      common.BytesToAddress(vLog.Topics[1].Bytes()).Hex(),
		Token:       common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		Amount:      fields.Amount.String(),
		OrderType:   domain.OrderKind(fields.OrderType),
		Size:        fields.Size.String(),
		Side:        fields.Side,
		MarketCode:  fields.MarketCode,
	}, nil
}

// DecodeAssetWithdrawnLog decodes one AssetWithdrawn log.
//
// topics:
//	0: event sig
//	1: token (address indexed)
//	2: recipient (address indexed)
// data: amount (uint256).
func DecodeAssetWithdrawnLog(vLog types.Log) (domain.WithdrawalEvent, error) {
	if len(vLog.Topics) < 3 {
		return domain.WithdrawalEvent{}, fmt.Errorf("chain: AssetWithdrawn: unexpected topics len=%d", len(vLog.Topics))
	}
	if len(vLog.Data) < 32 {
		return domain.WithdrawalEvent{}, fmt.Errorf("chain: AssetWithdrawn: unexpected data len=%d", len(vLog.Data))
	}

	amount := new(big.Int).SetBytes(vLog.Data[:32])

	return domain.WithdrawalEvent{
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
		Token:       common.BytesToAddress(vLog.Topics[1].Bytes()).Hex(),
		Recipient:   common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
		Amount:      amount.String(),
	}, nil
}
