package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsFrame is the gateway's JSON wire format, one frame per message.
type wsFrame struct {
	Kind    string          `json:"kind"` // "presence", "turn", "result"
	Speaker string          `json:"speaker,omitempty"`
	Text    string          `json:"text,omitempty"`
	At      time.Time       `json:"at,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type wsDialer struct{}

// NewWebsocketDialer returns the production Dialer speaking the gateway's
// JSON-over-websocket protocol.
func NewWebsocketDialer() Dialer {
	return &wsDialer{}
}

func (d *wsDialer) Dial(ctx context.Context, endpoint, credential string) (Conn, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("media endpoint is not configured")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial media gateway (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial media gateway: %w", err)
	}

	conn := &wsConn{ws: ws, events: make(chan Event, 16)}
	go conn.readLoop()
	return conn, nil
}

type wsConn struct {
	ws     *websocket.Conn
	events chan Event
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

func (c *wsConn) Send(ctx context.Context, speaker, text string) error {
	frame := wsFrame{Kind: "turn", Speaker: speaker, Text: text, At: time.Now()}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := c.ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send turn: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

// readLoop turns gateway frames into Events in receipt order. It exits on the
// first read error, delivering EventClosed last and closing the channel.
func (c *wsConn) readLoop() {
	defer close(c.events)
	for {
		var frame wsFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			closeErr := err
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				closeErr = nil
			}
			c.events <- Event{Type: EventClosed, Err: closeErr}
			return
		}

		switch frame.Kind {
		case "presence":
			c.events <- Event{Type: EventPresenceJoined, At: frame.At}
		case "turn":
			at := frame.At
			if at.IsZero() {
				at = time.Now()
			}
			c.events <- Event{Type: EventTurn, Speaker: frame.Speaker, Text: frame.Text, At: at}
		case "result":
			c.events <- Event{Type: EventResult, Result: frame.Result, At: frame.At}
		default:
			log.Warn().Str("kind", frame.Kind).Msg("Ignoring unknown media gateway frame kind")
		}
	}
}
