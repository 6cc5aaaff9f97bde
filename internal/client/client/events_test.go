package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_Listen(t *testing.T) {
	var connects atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != eventsPath || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		n := connects.Add(1)
		ev := Event{Type: "file.updated", DeviceID: "phone", Filename: "a.txt", Version: int64(n), At: time.Now().UTC()}
		_ = wsjson.Write(r.Context(), conn, ev)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := NewFeed("ws"+srv.URL[len("http"):], "tok", 10*time.Millisecond, logging.Nop())

	assert.NotContains(t, feed.url, "tok")

	var got []Event
	err := feed.Listen(ctx, func(_ context.Context, ev Event) {
		got = append(got, ev)
		if len(got) == 2 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)
	assert.Equal(t, "a.txt", got[0].Filename)
	assert.Equal(t, int64(1), got[0].Version)
	assert.Equal(t, int64(2), got[1].Version)
}

func TestFeed_ListenStopsWhileRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	feed := NewFeed(srv.URL, "bad", 20*time.Millisecond, logging.Nop())
	err := feed.Listen(ctx, func(context.Context, Event) { t.Fatal("unexpected event") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
