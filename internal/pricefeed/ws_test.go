package pricefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsTestConfig(endpoint string) WSSourceConfig {
	cfg := DefaultWSConfig()
	cfg.Endpoint = endpoint
	cfg.Assets = map[common.Address]string{
		common.HexToAddress("0x0a"): "weth",
		common.HexToAddress("0x0b"): "usdc",
	}
	return cfg
}

func TestWSSourceReceivesTicks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub wsSubscribe
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		if sub.Op != "subscribe" || len(sub.Assets) != 2 {
			t.Errorf("unexpected subscribe payload: %+v", sub)
			return
		}

		tick := wsTick{
			At:     1700000000000,
			Prices: map[string]float64{"weth": 2000.5, "usdc": 1.0, "unknown": 9},
		}
		if err := conn.WriteJSON(tick); err != nil {
			t.Errorf("write tick: %v", err)
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	src, err := NewWSSource(context.Background(), wsTestConfig(wsURL), nil)
	if err != nil {
		t.Fatalf("NewWSSource: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if snap.At != time.UnixMilli(1700000000000).UTC() {
		t.Fatalf("snapshot at %v, want tick timestamp", snap.At)
	}
	if price, _ := snap.Price(common.HexToAddress("0x0a")); price != 2000.5 {
		t.Fatalf("weth price = %v, want 2000.5", price)
	}
	if len(snap.Prices) != 2 {
		t.Fatalf("snapshot carries %d quotes, want 2 (unknown symbol dropped)", len(snap.Prices))
	}
}

func TestWSSourceCloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	src, err := NewWSSource(context.Background(), wsTestConfig(wsURL), nil)
	if err != nil {
		t.Fatalf("NewWSSource: %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("double Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := src.Next(ctx); err == nil {
		t.Fatal("expected error from Next after Close")
	}
}

func TestWSSourceIgnoresMalformedTicks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"prices":{"weth":1}}`))
		conn.WriteJSON(wsTick{At: 1700000001000, Prices: map[string]float64{"weth": -5}})
		conn.WriteJSON(wsTick{At: 1700000002000, Prices: map[string]float64{"weth": 42}})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	src, err := NewWSSource(context.Background(), wsTestConfig(wsURL), nil)
	if err != nil {
		t.Fatalf("NewWSSource: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if price, _ := snap.Price(common.HexToAddress("0x0a")); price != 42 {
		t.Fatalf("price = %v, want 42 (only the valid tick survives)", price)
	}
}
