package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
)

const (
	pongWait     = 60 * time.Second
	eventsBuffer = 16
)

// Subscribe opens the session's event feed. The channel closes when ctx ends or the
// connection drops.
func (c *Client) Subscribe(ctx context.Context, sessionID int64) (<-chan chat.Event, error) {
	wsURL := c.BaseURL + "/api/sessions/" + itoa(sessionID) + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	events := make(chan chat.Event, eventsBuffer)
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	go func() {
		defer close(events)
		defer stop()
		defer conn.Close()

		for {
			var evt chat.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))
			if evt.Type == "connected" {
				continue
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
