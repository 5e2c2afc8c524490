package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewConsumerInvalidConfig(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{URL: ""}, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
}

// echoServer accepts one WebSocket connection and immediately sends n
// messages, mirroring the shape of the mock server this test is grounded
// on for the original Jetstream client.
func echoServer(t *testing.T, messages [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	var mu sync.Mutex
	served := false

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if served {
			mu.Unlock()
			http.Error(w, "already served", http.StatusServiceUnavailable)
			return
		}
		served = true
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.BinaryMessage, m); err != nil {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}))
}

func TestConsumerDeliversMessagesToHandler(t *testing.T) {
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	server := echoServer(t, want)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]

	var mu sync.Mutex
	var got [][]byte
	handler := func(_ int, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload)
		return nil
	}

	consumer, err := NewConsumer(ConsumerConfig{
		URL:              wsURL,
		Partition:        0,
		BaseDelay:        10 * time.Millisecond,
		MaxDelay:         100 * time.Millisecond,
		JitterFactor:     0,
		MaxRetryAttempts: 3,
	}, handler, newTestLogger(), nil)
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = consumer.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("received %d messages, want %d", len(got), len(want))
	}
}
