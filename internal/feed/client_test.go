package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server. The request that upgraded
// is passed along so tests can inspect the query.
func mockWSServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(server.Close)

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// readUntilClosed keeps a server-side connection open until the peer leaves.
func readUntilClosed(conn *websocket.Conn, _ *http.Request) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testClientConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.BufferSize = 100
	return cfg
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, readUntilClosed)

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_TokenQueryParam(t *testing.T) {
	got := make(chan string, 1)
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		got <- r.URL.Query().Get("token")
		readUntilClosed(conn, r)
	})

	cfg := testClientConfig(wsURL(server) + "/ws")
	cfg.Token = "abc 123"

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case token := <-got:
		if token != "abc 123" {
			t.Errorf("token = %q, want %q", token, "abc 123")
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw the request")
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		want    string
		wantErr error
	}{
		{
			name:    "empty url",
			cfg:     ClientConfig{},
			wantErr: ErrNoEndpoint,
		},
		{
			name: "no token",
			cfg:  ClientConfig{URL: "ws://localhost:8080/ws"},
			want: "ws://localhost:8080/ws",
		},
		{
			name: "default param",
			cfg:  ClientConfig{URL: "ws://localhost:8080/ws", Token: "t1"},
			want: "ws://localhost:8080/ws?token=t1",
		},
		{
			name: "custom param keeps existing query",
			cfg:  ClientConfig{URL: "wss://csms.example.com/live?v=2", Token: "t1", TokenParam: "auth"},
			want: "wss://csms.example.com/live?auth=t1&v=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := endpointURL(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"type":"heartbeat_ack"}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(received) == string(testMsg)
	})
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"type":"alert","data":1}`,
		`{"type":"alert","data":2}`,
		`{"type":"alert","data":3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		readUntilClosed(conn, r)
	})

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var received []string
	timeout := time.After(time.Second)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testClientConfig("ws://localhost:12345"), nil)

	if err := client.Send([]byte("test")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(testClientConfig("ws://localhost:12345"), nil)
	client.Close()

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, readUntilClosed)

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_ServerCloseCode(t *testing.T) {
	tests := []struct {
		name  string
		close func(*websocket.Conn)
		want  int
	}{
		{
			name: "normal",
			close: func(conn *websocket.Conn) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
					time.Now().Add(time.Second))
			},
			want: CloseNormal,
		},
		{
			name: "internal error",
			close: func(conn *websocket.Conn) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"),
					time.Now().Add(time.Second))
			},
			want: websocket.CloseInternalServerErr,
		},
		{
			name:  "dropped",
			close: func(conn *websocket.Conn) { conn.UnderlyingConn().Close() },
			want:  websocket.CloseAbnormalClosure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
				tt.close(conn)
				time.Sleep(100 * time.Millisecond)
			})

			client := NewClient(testClientConfig(wsURL(server)), nil)
			if err := client.Connect(context.Background()); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			defer client.Close()

			select {
			case err := <-client.Errors():
				if got := CloseCode(err); got != tt.want {
					t.Errorf("CloseCode = %d, want %d (err: %v)", got, tt.want, err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for read error")
			}
		})
	}
}

func TestCloseCode_NonCloseError(t *testing.T) {
	if got := CloseCode(io.ErrUnexpectedEOF); got != websocket.CloseAbnormalClosure {
		t.Errorf("CloseCode = %d, want %d", got, websocket.CloseAbnormalClosure)
	}
	if got := CloseCode(ErrStaleConnection); got != websocket.CloseAbnormalClosure {
		t.Errorf("CloseCode = %d, want %d", got, websocket.CloseAbnormalClosure)
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		readUntilClosed(conn, r)
	})

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	time.Sleep(100 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}

func TestClient_StaleConnection(t *testing.T) {
	// Server never pings and never answers ours.
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		time.Sleep(time.Second)
	})

	cfg := testClientConfig(wsURL(server))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 50 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !errors.Is(err, ErrStaleConnection) {
			t.Errorf("err = %v, want ErrStaleConnection", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stale connection error")
	}
}
