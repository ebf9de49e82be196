package evm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestWSClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		// Keep connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer c.Close()

		// Read subscribe request
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}

		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}
		if len(req.Params) < 1 || req.Params[0] != "logs" {
			t.Errorf("expected logs subscription, got %v", req.Params)
		}

		// Send subscription confirmation
		resp := wsSubscribeResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  "0x9ce59a13059e417087c02d3236a0b1cc",
		}
		if err := c.WriteJSON(resp); err != nil {
			t.Errorf("write response: %v", err)
			return
		}

		// Send a log notification
		time.Sleep(50 * time.Millisecond)
		notif := wsNotification{
			JSONRPC: "2.0",
			Method:  "eth_subscription",
			Params: &wsNotificationParams{
				Subscription: "0x9ce59a13059e417087c02d3236a0b1cc",
				Result: logResult{
					Address:         "0x00000000000000000000000000000000000000CC",
					Topics:          []string{"0xaaaa"},
					Data:            "0x",
					BlockNumber:     "0x64",
					TransactionHash: "0xbeef",
					LogIndex:        "0x1",
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}

		// Keep connection open
		for {
			_, _, err := c.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	subID, ch, err := client.SubscribeLogs(ctx, FilterQuery{
		Address: Address("0x00000000000000000000000000000000000000cc"),
	})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	if subID != SubscriptionID("0x9ce59a13059e417087c02d3236a0b1cc") {
		t.Errorf("unexpected subscription id: %s", subID)
	}

	select {
	case log := <-ch:
		if log.TxHash != Hash("0xbeef") {
			t.Errorf("expected 0xbeef, got %s", log.TxHash)
		}
		if log.Address != Address("0x00000000000000000000000000000000000000cc") {
			t.Errorf("address should be normalized: %s", log.Address)
		}
		if log.BlockNumber != 100 || log.LogIndex != 1 {
			t.Errorf("bad log coords: %+v", log)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestWSClient_Unsubscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			switch req.Method {
			case "eth_subscribe":
				c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: "0xsub1"})
			case "eth_unsubscribe":
				// eth_unsubscribe answers with a boolean
				c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	subID, ch, err := client.SubscribeLogs(ctx, FilterQuery{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	if err := client.Unsubscribe(ctx, subID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	// Channel must be closed after unsubscribe
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Unsubscribing twice is a no-op
	if err := client.Unsubscribe(ctx, subID); err != nil {
		t.Errorf("second Unsubscribe should be nil, got %v", err)
	}
}

func TestWSClient_CloseIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client, err := NewWSClient(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
