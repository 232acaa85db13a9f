package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/radarcore/internal/message"
)

// Client is the peer side of a control session.
type Client struct {
	conn *websocket.Conn
}

// Dial opens a control session to addr (host:port).
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: ControlPath}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.String(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one message frame.
func (c *Client) Send(m message.Message) error {
	frame, err := message.Encode(m)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Receive reads the next ack or debug frame, waiting at most timeout.
func (c *Client) Receive(timeout time.Duration) (message.Reply, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return message.Reply{}, err
	}
	return message.DecodeReply(data)
}

// Close ends the session with a normal closure.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
