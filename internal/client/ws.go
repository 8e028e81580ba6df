package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// WSDialer opens the /ws/logs notification channel.
type WSDialer struct {
	url   string
	creds Credentials

	// ReadTimeout closes the connection when nothing (not even a pong
	// reply) arrives for this long. Zero disables the deadline.
	ReadTimeout time.Duration
}

// NewWSDialer creates a dialer for the given ws:// or wss:// URL.
func NewWSDialer(url string, creds Credentials) *WSDialer {
	return &WSDialer{url: url, creds: creds}
}

// Dial connects and starts the read pump. Every text frame is passed to
// onMessage; onClose is called exactly once with the error that ended the
// connection, including after Close.
func (d *WSDialer) Dial(ctx context.Context, onMessage func([]byte), onClose func(error)) (*WSConn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{}
	d.creds.apply(header)

	conn, _, err := dialer.DialContext(ctx, d.url, header)
	if err != nil {
		return nil, err
	}

	c := &WSConn{conn: conn, readTimeout: d.ReadTimeout}
	go c.readLoop(onMessage, onClose)
	return c, nil
}

// WSConn is an open notification channel.
type WSConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	writeMu   sync.Mutex // serialises all conn writes
	closeOnce sync.Once
	closed    bool
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("channel closed")

// Send writes one text frame.
func (c *WSConn) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame and tears down the connection. The read pump
// then reports the closure through onClose.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *WSConn) readLoop(onMessage func([]byte), onClose func(error)) {
	for {
		if c.readTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			c.conn.Close()
			onClose(err)
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		onMessage(data)
	}
}
