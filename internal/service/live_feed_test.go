package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/medforum_server/internal/model/dto"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/pkg/ws"
)

type fakeSubscription struct {
	once sync.Once
	done chan struct{}
}

func (s *fakeSubscription) Unsubscribe() { s.once.Do(func() { close(s.done) }) }

func (s *fakeSubscription) Done() <-chan struct{} { return s.done }

type fakeWatcher struct {
	mu    sync.Mutex
	calls int
	fns   map[string]func(*dto.ThreadView, error)
	subs  map[string]*fakeSubscription
	err   error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		fns:  make(map[string]func(*dto.ThreadView, error)),
		subs: make(map[string]*fakeSubscription),
	}
}

func (w *fakeWatcher) WatchThread(_ context.Context, postID string, fn func(*dto.ThreadView, error)) (docstore.Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.calls++
	sub := &fakeSubscription{done: make(chan struct{})}
	w.fns[postID] = fn
	w.subs[postID] = sub
	return sub, nil
}

func (w *fakeWatcher) emit(postID string, view *dto.ThreadView, err error) {
	w.mu.Lock()
	fn := w.fns[postID]
	w.mu.Unlock()
	fn(view, err)
}

// wsPair 返回服务端连接（交给 Hub）和客户端连接（测试读取）
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConns:
		t.Cleanup(func() { conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("websocket upgrade timed out")
		return nil, nil
	}
}

type feedFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) feedFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f feedFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestLiveFeed_SharedSubscription(t *testing.T) {
	watcher := newFakeWatcher()
	hub := ws.NewHub(nil)
	feed := NewLiveFeed(hub, watcher, nil)

	s1, c1 := wsPair(t)
	s2, c2 := wsPair(t)
	client1 := &ws.Client{UserID: "u1", Conn: s1}
	client2 := &ws.Client{Conn: s2}

	require.NoError(t, feed.Join("p1", client1))
	require.NoError(t, feed.Join("p1", client2))
	assert.Equal(t, 1, watcher.calls)
	assert.Equal(t, 1, feed.ActiveFeeds())
	assert.Equal(t, 2, hub.TopicCount(Topic("p1")))

	watcher.emit("p1", &dto.ThreadView{PostID: "p1", Total: 3}, nil)

	for _, c := range []*websocket.Conn{c1, c2} {
		f := readFrame(t, c)
		assert.Equal(t, FeedMessageThread, f.Type)
		var view dto.ThreadView
		require.NoError(t, json.Unmarshal(f.Data, &view))
		assert.Equal(t, 3, view.Total)
	}

	feed.Leave("p1", client1)
	assert.Equal(t, 1, feed.ActiveFeeds())
	feed.Leave("p1", client2)
	assert.Equal(t, 0, feed.ActiveFeeds())

	select {
	case <-watcher.subs["p1"].Done():
	default:
		t.Fatal("subscription should be cancelled after the last client leaves")
	}
}

func TestLiveFeed_LateJoinerGetsCachedSnapshot(t *testing.T) {
	watcher := newFakeWatcher()
	feed := NewLiveFeed(ws.NewHub(nil), watcher, nil)

	s1, _ := wsPair(t)
	require.NoError(t, feed.Join("p1", &ws.Client{Conn: s1}))
	watcher.emit("p1", &dto.ThreadView{PostID: "p1", Total: 7}, nil)

	s2, c2 := wsPair(t)
	require.NoError(t, feed.Join("p1", &ws.Client{Conn: s2}))

	f := readFrame(t, c2)
	assert.Equal(t, FeedMessageThread, f.Type)
	assert.Contains(t, string(f.Data), `"total":7`)
}

func TestLiveFeed_ErrorSnapshot(t *testing.T) {
	watcher := newFakeWatcher()
	feed := NewLiveFeed(ws.NewHub(nil), watcher, nil)

	s1, c1 := wsPair(t)
	require.NoError(t, feed.Join("p1", &ws.Client{Conn: s1}))
	watcher.emit("p1", nil, fmt.Errorf("live comments: %w", ErrStoreUnavailable))

	f := readFrame(t, c1)
	assert.Equal(t, FeedMessageError, f.Type)
	assert.JSONEq(t, `{"code":"store_unavailable"}`, string(f.Data))
}

func TestLiveFeed_WatchFailure(t *testing.T) {
	watcher := newFakeWatcher()
	watcher.err = ErrNotFound
	hub := ws.NewHub(nil)
	feed := NewLiveFeed(hub, watcher, nil)

	s1, _ := wsPair(t)
	err := feed.Join("missing", &ws.Client{Conn: s1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, feed.ActiveFeeds())
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestLiveFeed_Close(t *testing.T) {
	watcher := newFakeWatcher()
	feed := NewLiveFeed(ws.NewHub(nil), watcher, nil)

	s1, _ := wsPair(t)
	s2, _ := wsPair(t)
	require.NoError(t, feed.Join("p1", &ws.Client{Conn: s1}))
	require.NoError(t, feed.Join("p2", &ws.Client{Conn: s2}))

	feed.Close()
	assert.Equal(t, 0, feed.ActiveFeeds())
	for _, id := range []string{"p1", "p2"} {
		select {
		case <-watcher.subs[id].Done():
		default:
			t.Fatalf("subscription %s not cancelled", id)
		}
	}
}
