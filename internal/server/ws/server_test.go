package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/auth"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("ws-secret")

func token(t *testing.T, user, device string) string {
	t.Helper()
	tok, err := auth.GenerateToken(user, device, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func newTestServer(t *testing.T) (*notify.Hub, *httptest.Server) {
	t.Helper()
	hub := notify.NewHub(8, logging.Nop())
	s := NewServer("127.0.0.1:0", auth.NewVerifier(secret), hub, logging.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return hub, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + EventsPath
}

func bearer(tok string) *websocket.DialOptions {
	return &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": {"Bearer " + tok}}}
}

func TestEvents_StreamsOtherDeviceChanges(t *testing.T) {
	hub, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), bearer(token(t, "u1", "phone")))
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(models.ChangeEvent{Type: models.ChangeUpdated, UserID: "u1", DeviceID: "phone", Filename: "own.txt"})
	hub.Publish(models.ChangeEvent{Type: models.ChangeUpdated, UserID: "u1", DeviceID: "laptop", Filename: "notes.txt", Version: 2})

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "file.updated", got["type"])
	assert.Equal(t, "notes.txt", got["filename"])
	assert.Equal(t, "laptop", got["device_id"])
	assert.EqualValues(t, 2, got["version"])
	assert.NotContains(t, got, "UserID")
}

func TestEvents_RejectsBadToken(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(ts), bearer("garbage"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvents_QueryTokenFallback(t *testing.T) {
	hub, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts)+"?access_token="+token(t, "u1", "phone"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_HeaderTakesPrecedenceOverQuery(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(ts)+"?access_token="+token(t, "u1", "phone"), bearer("garbage"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccessToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "query fallback", query: "?access_token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?access_token=xyz", want: "abc"},
		{name: "non-bearer scheme", header: "Basic dXNlcg==", query: "?access_token=xyz", want: ""},
		{name: "none", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, EventsPath+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, accessToken(r))
		})
	}
}

func TestEvents_UnsubscribesOnClose(t *testing.T) {
	hub, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), bearer(token(t, "u1", "phone")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return hub.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_StartStop(t *testing.T) {
	hub := notify.NewHub(8, logging.Nop())
	s := NewServer("127.0.0.1:0", auth.NewVerifier(secret), hub, logging.Nop())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+EventsPath, bearer(token(t, "u1", "phone")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	readErr := make(chan error, 1)
	go func() {
		_, _, err := conn.Read(ctx)
		readErr <- err
	}()

	require.NoError(t, s.Stop())

	err = <-readErr
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
