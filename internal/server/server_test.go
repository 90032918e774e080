package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"monkeypress/internal/backend"
	"monkeypress/internal/backend/memory"
	"monkeypress/internal/chunkstore"
	"monkeypress/internal/engine"
	"monkeypress/internal/words"
)

func newTestServer(t *testing.T, testMode bool) (*Server, *engine.Engine) {
	t.Helper()
	ctx := context.Background()

	b := memory.NewStore(nil)
	chunks, err := chunkstore.Open(ctx, chunkstore.Config{
		Backend:       b,
		FlushInterval: -1,
	})
	if err != nil {
		t.Fatalf("open chunk store: %v", err)
	}
	t.Cleanup(func() { chunks.Close(context.Background()) })

	wordStore, err := words.NewStore(words.StoreConfig{Backend: b, FlushInterval: -1})
	if err != nil {
		t.Fatalf("new word store: %v", err)
	}
	dict, err := words.LoadDictionary(strings.NewReader("cat\ndog\nthe"))
	if err != nil {
		t.Fatalf("load dictionary: %v", err)
	}

	e, err := engine.New(engine.Config{
		Chunks:     chunks,
		Words:      wordStore,
		Dictionary: dict,
		TestMode:   testMode,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	return New(Config{Engine: e, Chunks: chunks, Dictionary: dict}), e
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Cursor != 0 {
		t.Fatalf("fresh stream should report cursor 0, got %d", status.Cursor)
	}
	if status.DictionarySize != 3 {
		t.Fatalf("expected dictionary size 3, got %d", status.DictionarySize)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, e := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	sub := e.Subscribe()
	defer e.Unsubscribe(sub)

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Users != 1 {
		t.Fatalf("expected 1 user, got %d", stats.Users)
	}
	if stats.CharsPerMinute != engine.CharsPerUserPerMinute {
		t.Fatalf("expected %d cpm, got %d", engine.CharsPerUserPerMinute, stats.CharsPerMinute)
	}
}

func TestCharsValidation(t *testing.T) {
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing params", "", http.StatusBadRequest},
		{"missing len", "?start=0", http.StatusBadRequest},
		{"negative start", "?start=-1&len=10", http.StatusBadRequest},
		{"non-numeric start", "?start=abc&len=10", http.StatusBadRequest},
		{"zero len", "?start=0&len=0", http.StatusBadRequest},
		{"negative len", "?start=0&len=-5", http.StatusBadRequest},
		{"len at limit", "?start=0&len=131072", http.StatusOK},
		{"len over limit", "?start=0&len=131073", http.StatusBadRequest},
		{"valid empty read", "?start=0&len=10", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/chars" + tt.query)
			if err != nil {
				t.Fatalf("get chars: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestCharsBadRequestIsJSON(t *testing.T) {
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/chars?start=0&len=0")
	if err != nil {
		t.Fatalf("get chars: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected JSON error body, got content type %q", ct)
	}
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Error == "" {
		t.Fatal("error message is empty")
	}
}

func TestProbes(t *testing.T) {
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}

	text := string(raw)
	for _, metric := range []string{"monkeypress_up 1", "monkeypress_cursor_position 0", "monkeypress_dictionary_size 3"} {
		if !strings.Contains(text, metric) {
			t.Fatalf("metrics output missing %q:\n%s", metric, text)
		}
	}
}

func TestWebSocketHandshakeAndLiveEvents(t *testing.T) {
	s, e := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first cursorMsg
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first message: %v", err)
	}
	if first.Type != "cursor" {
		t.Fatalf("expected cursor message first, got %q", first.Type)
	}

	var second initWordsMsg
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second message: %v", err)
	}
	if second.Type != "init-words" {
		t.Fatalf("expected init-words message second, got %q", second.Type)
	}
	if second.Words == nil {
		t.Fatal("init-words must carry an array, not null")
	}

	// Test mode keeps the stream moving; a live char should arrive shortly.
	var third charMsg
	if err := conn.ReadJSON(&third); err != nil {
		t.Fatalf("read live message: %v", err)
	}
	if third.Type != "char" {
		t.Fatalf("expected char message, got %q", third.Type)
	}
	if third.Index < first.Cursor {
		t.Fatalf("live char %d precedes snapshot cursor %d", third.Index, first.Cursor)
	}
	if len(third.Ch) != 1 || third.Ch[0] < 'a' || third.Ch[0] > 'z' {
		t.Fatalf("expected a lowercase letter, got %q", third.Ch)
	}
}

// batchFailingStore rejects atomic batches, which makes the first chunk
// rollover fatal.
type batchFailingStore struct {
	backend.Store
}

func (f *batchFailingStore) Batch(ctx context.Context, writes []backend.Write) error {
	return errors.New("disk on fire")
}

func TestReadyzReportsHaltedEngine(t *testing.T) {
	ctx := context.Background()

	b := &batchFailingStore{Store: memory.NewStore(nil)}
	chunks, err := chunkstore.Open(ctx, chunkstore.Config{
		Backend:       b,
		ChunkSize:     4,
		FlushInterval: -1,
	})
	if err != nil {
		t.Fatalf("open chunk store: %v", err)
	}
	wordStore, err := words.NewStore(words.StoreConfig{Backend: b, FlushInterval: -1})
	if err != nil {
		t.Fatalf("new word store: %v", err)
	}
	dict, err := words.LoadDictionary(strings.NewReader("cat"))
	if err != nil {
		t.Fatalf("load dictionary: %v", err)
	}
	e, err := engine.New(engine.Config{
		Chunks: chunks, Words: wordStore, Dictionary: dict, TestMode: true,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	s := New(Config{Engine: e, Chunks: chunks, Dictionary: dict})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("get readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthy engine: expected 200, got %d", resp.StatusCode)
	}

	// Test mode drives generation; the fourth character forces a rollover
	// whose batch write fails, halting the engine.
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Run(runCtx); err == nil {
		t.Fatal("expected Run to halt on batch failure")
	}
	if e.Healthy() {
		t.Fatal("engine should report unhealthy after halt")
	}

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("get readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("halted engine: expected 503, got %d", resp.StatusCode)
	}
}
