// Package domain defines the core types shared across the bridge: on-chain
// events, matcher trades, settlement records, and the store interfaces that
// persist them.
package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// OrderSide indicates whether an order buys or sells the base asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderKind is the contract-level order type. The OrderHandler contract
// encodes it as a uint8: 0 = limit, 1 = market. This mapping is pinned to the
// deployed contract enum; do not swap it without redeploying.
type OrderKind uint8

const (
	OrderKindLimit  OrderKind = 0
	OrderKindMarket OrderKind = 1
)

// String returns the matcher-vocabulary name for the order kind.
func (k OrderKind) String() string {
	switch k {
	case OrderKindLimit:
		return "limit"
	case OrderKindMarket:
		return "market"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether the kind is one of the contract's enum values.
func (k OrderKind) Valid() bool {
	return k == OrderKindLimit || k == OrderKindMarket
}

// OrderEvent is one decoded OrderPlaced log. Created once per on-chain log,
// never updated, never deleted. Amount and Size are uint256 values carried as
// decimal strings to preserve precision across store and JSON boundaries.
type OrderEvent struct {
	BlockNumber    uint64
	TxHash         string
	LogIndex       uint
	Sender         string
	Token          string
	Amount         string
	OrderType      OrderKind
	Size           string
	Side           string // raw string as emitted by the contract, any case
	MarketCode     string
	BlockTimestamp time.Time
}

// WithdrawalEvent is one decoded AssetWithdrawn log. Same immutability rules
// as OrderEvent.
type WithdrawalEvent struct {
	BlockNumber    uint64
	TxHash         string
	LogIndex       uint
	Token          string
	Recipient      string
	Amount         string
	BlockTimestamp time.Time
}

// NormalizedSide lowercases the raw side string and returns the matching
// OrderSide, or false when the side is outside the enumeration.
func (e OrderEvent) NormalizedSide() (OrderSide, bool) {
	switch strings.ToLower(strings.TrimSpace(e.Side)) {
	case "buy":
		return OrderSideBuy, true
	case "sell":
		return OrderSideSell, true
	default:
		return "", false
	}
}

// Validate checks the invariants an OrderEvent must satisfy before it may be
// relayed to the matcher: well-formed addresses, size > 0, amount >= 0, side
// and order type within their enumerations, and a non-empty market code.
// A failing event is still recorded in the event ledger; it is only excluded
// from relay.
func (e OrderEvent) Validate() error {
	if e.TxHash == "" {
		return fmt.Errorf("%w: empty tx hash", ErrValidation)
	}
	if !IsHexAddress(e.Sender) {
		return fmt.Errorf("%w: malformed sender address %q", ErrValidation, e.Sender)
	}
	if !IsHexAddress(e.Token) {
		return fmt.Errorf("%w: malformed token address %q", ErrValidation, e.Token)
	}
	size, ok := new(big.Int).SetString(e.Size, 10)
	if !ok {
		return fmt.Errorf("%w: size %q is not a decimal integer", ErrValidation, e.Size)
	}
	if size.Sign() <= 0 {
		return fmt.Errorf("%w: size must be > 0, got %s", ErrValidation, e.Size)
	}
	amount, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok {
		return fmt.Errorf("%w: amount %q is not a decimal integer", ErrValidation, e.Amount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be >= 0, got %s", ErrValidation, e.Amount)
	}
	if !e.OrderType.Valid() {
		return fmt.Errorf("%w: order type %d outside enum", ErrValidation, uint8(e.OrderType))
	}
	if _, ok := e.NormalizedSide(); !ok {
		return fmt.Errorf("%w: side %q not in {buy, sell}", ErrValidation, e.Side)
	}
	if strings.TrimSpace(e.MarketCode) == "" {
		return fmt.Errorf("%w: empty market code", ErrValidation)
	}
	return nil
}

// IsHexAddress reports whether s looks like a 20-byte 0x-prefixed hex address.
// Kept here (rather than importing go-ethereum) so validation stays usable
// from packages that never touch the chain.
func IsHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	s = s[2:]
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
