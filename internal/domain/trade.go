package domain

import "time"

// Trade is one executed trade as reported by the matcher's /trades feed. It
// is owned by the matcher; each poll sees a read-only snapshot. The ID is an
// opaque, globally unique string.
type Trade struct {
	ID        string    `json:"id"`
	Maker     string    `json:"maker"`
	Taker     string    `json:"taker"`
	TakerSide OrderSide `json:"taker_side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp int64     `json:"timestamp"`
}

// SettlementRecord is the permanent audit row for one settlement attempt.
// Exactly one record per trade id ever exists; its presence alone marks the
// trade as handled, whether or not the attempt produced a transaction
// (at-most-one-attempt semantics, not at-most-one-success).
type SettlementRecord struct {
	TradeID          string
	Maker            string
	Taker            string
	TakerSide        OrderSide
	Price            float64
	Quantity         float64
	TradeTimestamp   int64
	SettlementTxHash *string // nil when the attempt failed
	ProcessedAt      time.Time
}

// Succeeded reports whether the attempt produced a confirmed transaction.
func (r SettlementRecord) Succeeded() bool {
	return r.SettlementTxHash != nil && *r.SettlementTxHash != ""
}
