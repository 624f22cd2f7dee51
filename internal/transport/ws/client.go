package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"arenaview.ai/internal/connmgr"
)

// Dialer opens viewer connections to an arena WebSocket endpoint.
type Dialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout > 0 treats a silent server as lost. Zero waits forever.
	ReadTimeout time.Duration
	Header      http.Header
}

func (d Dialer) Dial(ctx context.Context, url string) (connmgr.Conn, error) {
	hs := d.HandshakeTimeout
	if hs <= 0 {
		hs = 5 * time.Second
	}
	wd := websocket.Dialer{
		HandshakeTimeout: hs,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  16 * 1024,
	}
	c, resp, err := wd.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}
	return &clientConn{c: c, writeTimeout: wt, readTimeout: d.ReadTimeout}, nil
}

type clientConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration
}

func (cc *clientConn) ReadMessage() ([]byte, error) {
	for {
		if cc.readTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.readTimeout))
		}
		mt, msg, err := cc.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (cc *clientConn) WriteMessage(b []byte) error {
	_ = cc.c.SetWriteDeadline(time.Now().Add(cc.writeTimeout))
	return cc.c.WriteMessage(websocket.TextMessage, b)
}

func (cc *clientConn) Close() error {
	_ = cc.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	return cc.c.Close()
}
