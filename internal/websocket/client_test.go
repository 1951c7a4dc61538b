package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/monitor"
)

var upgrader = websocket.Upgrader{}

type capturingHandler struct {
	got chan []monitor.Snapshot
}

func (h *capturingHandler) HandleSnapshot(s []monitor.Snapshot) {
	h.got <- s
}

func TestClientReceivesSnapshots(t *testing.T) {
	want := []monitor.Snapshot{{Queue: "avllq", Size: 2, Capacity: 4, Consumers: 1}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		payload, _ := json.Marshal(want)
		conn.WriteMessage(websocket.TextMessage, payload)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	cfg := &config.WatchConfig{URL: url, ReconnectDelay: 10 * time.Millisecond, ReadTimeout: time.Second}
	handler := &capturingHandler{got: make(chan []monitor.Snapshot, 1)}
	client := NewClient(context.Background(), cfg, handler)
	if err := client.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer client.Stop()

	select {
	case got := <-handler.got:
		if len(got) != 1 || got[0].Queue != "avllq" || got[0].Size != 2 {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}
