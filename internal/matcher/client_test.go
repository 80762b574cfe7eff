package matcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

func TestSubmitOrderLimit(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"order_id":"ord-123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	id, err := c.SubmitOrder(context.Background(), OrderRequest{
		User:     "0x1111111111111111111111111111111111111111",
		Type:     domain.OrderKindLimit,
		Side:     domain.OrderSideBuy,
		Quantity: 500,
		Price:    2.5,
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if id != "ord-123" {
		t.Fatalf("order id mismatch: %s", id)
	}
	want := map[string]string{
		"user":     "0x1111111111111111111111111111111111111111",
		"type":     "limit",
		"side":     "buy",
		"quantity": "500",
		"price":    "2.5",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s: got %q want %q", k, gotQuery[k], v)
		}
	}
}

func TestSubmitOrderMarketOmitsPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("price") {
			t.Error("market order must not carry a price parameter")
		}
		if got := r.URL.Query().Get("type"); got != "market" {
			t.Errorf("type: got %q", got)
		}
		w.Write([]byte(`{"order_id":"ord-456"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.SubmitOrder(context.Background(), OrderRequest{
		User:     "0x2222222222222222222222222222222222222222",
		Type:     domain.OrderKindMarket,
		Side:     domain.OrderSideSell,
		Quantity: 3,
	}); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
}

func TestSubmitOrderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.SubmitOrder(context.Background(), OrderRequest{
		User: "0x1111111111111111111111111111111111111111",
		Type: domain.OrderKindLimit, Side: domain.OrderSideBuy, Quantity: 1, Price: 1,
	}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestListTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/trades" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`[
			{"id":"t1","maker":"0xaaa","taker":"0xbbb","taker_side":"buy","price":2.5,"quantity":10,"timestamp":1700000000},
			{"id":"t2","maker":"0xccc","taker":"0xddd","taker_side":"sell","price":0,"quantity":3,"timestamp":1700000100}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	trades, err := c.ListTrades(context.Background())
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("want 2 trades, got %d", len(trades))
	}
	if trades[0].ID != "t1" || trades[0].TakerSide != domain.OrderSideBuy || trades[0].Price != 2.5 {
		t.Fatalf("trade decode mismatch: %+v", trades[0])
	}
	if trades[1].TakerSide != domain.OrderSideSell || trades[1].Quantity != 3 {
		t.Fatalf("trade decode mismatch: %+v", trades[1])
	}
}
