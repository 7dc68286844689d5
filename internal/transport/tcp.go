package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
)

// tcpReadBufSize is the chunk size delivered to Handler.OnMessage. It is
// deliberately unrelated to any RFB record boundary — real WebSocket
// frames won't align with RFB records either, and the protocol state
// machine's byte accumulator is what makes that safe.
const tcpReadBufSize = 32 * 1024

// TCPDialer implements Dialer over a raw TCP socket. RFB is byte-stream
// compatible whether or not a WebSocket sits in front of it, so this is a
// legitimate second transport backend for standalone testing against a
// real VNC server — the same role the teacher's tcpDialer plays alongside
// its QUIC dialer.
type TCPDialer struct{}

// Dial connects to a "tcp://host:port" (or bare "host:port") address.
func (TCPDialer) Dial(ctx context.Context, addr string, h Handler) (Conn, error) {
	hostport, err := tcpHostPort(addr)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp dial %s: %w", hostport, err)
	}

	c := &tcpConn{conn: nc, handler: h}
	go c.readLoop()
	return c, nil
}

func tcpHostPort(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return addr, nil // treat as bare host:port
	}
	return u.Host, nil
}

type tcpConn struct {
	conn      net.Conn
	handler   Handler
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *tcpConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(data)
	return err
}

func (c *tcpConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// readLoop delivers whatever bytes the kernel hands back as one OnMessage
// call each — an arbitrary chunking, exactly like a WebSocket frame
// boundary would be.
func (c *tcpConn) readLoop() {
	buf := make([]byte, tcpReadBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.handler.OnMessage(chunk)
		}
		if err != nil {
			c.handler.OnClose(CloseAbnormal, err.Error())
			return
		}
	}
}
