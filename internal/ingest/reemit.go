package ingest

import (
	"time"

	"github.com/gorilla/websocket"
)

// wsWriter adapts a *websocket.Conn to io.Writer so WriterReemitter can
// frame structured events as binary WebSocket messages on the output bus.
type wsWriter struct {
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// DialWebSocketReemitter connects to an output bus URL and returns a
// Reemitter that frames each structured event as one binary WebSocket
// message, plus the underlying connection for the caller to close on
// shutdown.
func DialWebSocketReemitter(url string) (*WriterReemitter, *websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, nil, err
	}
	return NewWriterReemitter(&wsWriter{conn: conn}), conn, nil
}
