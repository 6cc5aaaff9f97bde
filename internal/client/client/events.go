package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/gophsync/internal/logging"
)

const eventsPath = "/v1/events"

// Event is a change made by another device of the same user.
type Event struct {
	Type     string    `json:"type"`
	DeviceID string    `json:"device_id"`
	Filename string    `json:"filename"`
	Version  int64     `json:"version,omitempty"`
	At       time.Time `json:"at"`
}

// Feed follows the server's change feed.
type Feed struct {
	url       string
	header    http.Header
	reconnect time.Duration
	logger    logging.Logger
}

func NewFeed(baseURL, accessToken string, reconnect time.Duration, logger logging.Logger) *Feed {
	return &Feed{
		url:       strings.TrimRight(baseURL, "/") + eventsPath,
		header:    http.Header{"Authorization": {"Bearer " + accessToken}},
		reconnect: reconnect,
		logger:    logger.With("module", "feed"),
	}
}

// Listen calls fn for every event until ctx is done, reconnecting after
// connection errors. It returns ctx.Err().
func (f *Feed) Listen(ctx context.Context, fn func(context.Context, Event)) error {
	for {
		err := f.listenOnce(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn(ctx, "change feed disconnected", "error", err, "retry_in", f.reconnect)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnect):
		}
	}
}

func (f *Feed) listenOnce(ctx context.Context, fn func(context.Context, Event)) error {
	conn, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{HTTPHeader: f.header})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	f.logger.Info(ctx, "change feed connected")

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("closed by server")
			}
			return err
		}
		fn(ctx, ev)
	}
}
