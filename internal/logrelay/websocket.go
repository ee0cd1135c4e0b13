package logrelay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loopfactory/fleetdash/internal/errors"
)

// closeGrace bounds the close handshake.
const closeGrace = time.Second

// WebSocketDialer opens {base}/api/agents/{id}/logs/stream. Each text
// message is one log line.
type WebSocketDialer struct {
	BaseURL string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// StreamURL returns the stream endpoint for an agent, mapping http(s)
// base URLs to ws(s).
func (d WebSocketDialer) StreamURL(agentID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(d.BaseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/agents/" + agentID + "/logs/stream"
	return u.String(), nil
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, agentID string) (Stream, error) {
	target, err := d.StreamURL(agentID)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid log stream URL", "Check logs.url")
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", target, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// Next reads the next text message. ctx is honored through Close, which
// the relay calls on cancellation.
func (s *wsStream) Next(ctx context.Context) (string, error) {
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(msg), "\r\n"), nil
	}
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
