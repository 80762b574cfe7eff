package domain

import (
	"errors"
	"testing"
)

func validOrderEvent() OrderEvent {
	return OrderEvent{
		BlockNumber: 100,
		TxHash:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		LogIndex:    0,
		Sender:      "0x1111111111111111111111111111111111111111",
		Token:       "0x2222222222222222222222222222222222222222",
		Amount:      "1000000000000000000",
		OrderType:   OrderKindLimit,
		Size:        "500",
		Side:        "buy",
		MarketCode:  "ETH-TST",
	}
}

func TestValidateAcceptsWellFormedEvent(t *testing.T) {
	if err := validOrderEvent().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*OrderEvent)
	}{
		{"empty tx hash", func(e *OrderEvent) { e.TxHash = "" }},
		{"bad sender", func(e *OrderEvent) { e.Sender = "not-an-address" }},
		{"short sender", func(e *OrderEvent) { e.Sender = "0x1234" }},
		{"bad token", func(e *OrderEvent) { e.Token = "0xZZ11111111111111111111111111111111111111" }},
		{"zero size", func(e *OrderEvent) { e.Size = "0" }},
		{"negative size", func(e *OrderEvent) { e.Size = "-5" }},
		{"non-numeric size", func(e *OrderEvent) { e.Size = "half" }},
		{"negative amount", func(e *OrderEvent) { e.Amount = "-1" }},
		{"non-numeric amount", func(e *OrderEvent) { e.Amount = "1.5" }},
		{"order type outside enum", func(e *OrderEvent) { e.OrderType = 2 }},
		{"unknown side", func(e *OrderEvent) { e.Side = "hold" }},
		{"empty market code", func(e *OrderEvent) { e.MarketCode = "  " }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := validOrderEvent()
			tc.mutate(&ev)
			err := ev.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error should wrap ErrValidation: %v", err)
			}
		})
	}
}

func TestValidateAcceptsZeroAmount(t *testing.T) {
	ev := validOrderEvent()
	ev.Amount = "0"
	if err := ev.Validate(); err != nil {
		t.Fatalf("zero amount is legal for market orders: %v", err)
	}
}

func TestNormalizedSide(t *testing.T) {
	cases := map[string]struct {
		side OrderSide
		ok   bool
	}{
		"buy":   {OrderSideBuy, true},
		"BUY":   {OrderSideBuy, true},
		" Sell": {OrderSideSell, true},
		"hold":  {"", false},
		"":      {"", false},
	}
	for raw, want := range cases {
		ev := OrderEvent{Side: raw}
		got, ok := ev.NormalizedSide()
		if ok != want.ok || got != want.side {
			t.Errorf("side %q: got (%q,%v), want (%q,%v)", raw, got, ok, want.side, want.ok)
		}
	}
}

func TestOrderKindString(t *testing.T) {
	if OrderKindLimit.String() != "limit" || OrderKindMarket.String() != "market" {
		t.Fatalf("kind names wrong: %s/%s", OrderKindLimit, OrderKindMarket)
	}
	if OrderKind(9).Valid() {
		t.Fatal("9 should be outside the enum")
	}
}
