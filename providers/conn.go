package providers

import (
	"time"

	"github.com/fasthttp/websocket"
)

// socketConn wraps fasthttp/websocket.Conn to satisfy types.Conn. Every
// write carries a deadline, and the read deadline is pushed forward by
// each pong or data frame.
type socketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration
}

func newSocketConn(conn *websocket.Conn, writeTimeout, pongWait time.Duration, readLimit int64) *socketConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	s := &socketConn{conn: conn, writeTimeout: writeTimeout, pongWait: pongWait}
	s.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})
	return s
}

func (s *socketConn) extendReadDeadline() {
	if s.pongWait > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	}
}

func (s *socketConn) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		s.extendReadDeadline()
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *socketConn) WriteFrame(data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *socketConn) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

func (s *socketConn) Close() error { return s.conn.Close() }
