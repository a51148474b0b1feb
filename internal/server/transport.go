package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
)

const (
	maxLineBytes = 4096
	// maxMessageBytes is the hard WebSocket frame limit; gorilla closes the
	// connection past it, so it sits well above maxLineBytes.
	maxMessageBytes = 64 << 10
)

// errLineTooLong is returned by ReadLine for an oversize request. The line has
// been discarded and the stream is still usable.
var errLineTooLong = fmt.Errorf("%w: line longer than %d bytes", domain.ErrInvalidRequest, maxLineBytes)

// Transport is a duplex stream of text lines to one buyer.
// WriteLine may be called concurrently with ReadLine and with itself.
type Transport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// tcpTransport frames lines with '\n' over a stream connection.
type tcpTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	idleTimeout  time.Duration
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func newTCPTransport(conn net.Conn, idleTimeout, writeTimeout time.Duration) *tcpTransport {
	return &tcpTransport{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, maxLineBytes),
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the next line without its terminator, or io.EOF at end of
// stream. A line longer than maxLineBytes is skipped up to its '\n' and
// reported as errLineTooLong.
func (t *tcpTransport) ReadLine() (string, error) {
	if t.idleTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}

	line, err := t.reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = t.reader.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", errLineTooLong
	}
	if err != nil {
		// A final line without terminator still counts; EOF comes on the next call.
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func (t *tcpTransport) WriteLine(line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	_, err := io.WriteString(t.conn, line+"\n")
	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// wsTransport carries one line per WebSocket text message.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	conn.SetReadLimit(maxMessageBytes)
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadLine() (string, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return "", io.EOF
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if len(data) > maxLineBytes {
			return "", errLineTooLong
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (t *wsTransport) WriteLine(line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
