package sync

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"

	"github.com/localfirst/ldb/pkg/errors"
)

// TCPTransport carries Frames over a single net.Conn, framed as a 4-byte
// big-endian length prefix followed by Doc(32) + From(32) + Body. It is the
// production counterpart to InProcTransport, grounded on plugins/rest's
// request/response client in spirit (one long-lived connection per remote
// peer) but framed for push-style gossip instead of request/response HTTP.
type TCPTransport struct {
	conn net.Conn
}

// NewTCPTransport wraps an already-established connection.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

// DialTCP connects to a remote peer's sync listener.
func DialTCP(ctx context.Context, addr string) (*TCPTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.NetworkDropped, err, "dialing sync peer at %s", addr)
	}
	return NewTCPTransport(conn), nil
}

// ListenTCP accepts connections on addr, handing each one to accept as a
// Transport. accept is expected to loop on Recv/Send (typically by driving a
// Session) until the connection closes; ListenTCP returns only if Accept
// itself fails.
func ListenTCP(ctx context.Context, addr string, accept func(net.Conn, *TCPTransport)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.NetworkDropped, err, "listening for sync peers on %s", addr)
	}
	return serveListener(ctx, ln, accept)
}

// DialTLS connects to a remote peer's gossip listener over TLS.
func DialTLS(ctx context.Context, addr string, conf *tls.Config) (*TCPTransport, error) {
	var d tls.Dialer
	d.Config = conf
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.NetworkDropped, err, "dialing sync peer at %s over tls", addr)
	}
	return NewTCPTransport(conn), nil
}

// ListenTLS accepts TLS connections on addr, terminating TLS with cert
// before handing the plaintext stream to accept the same way ListenTCP
// does.
func ListenTLS(ctx context.Context, addr string, cert interface {
	Config() *tls.Config
}, accept func(net.Conn, *TCPTransport)) error {
	ln, err := tls.Listen("tcp", addr, cert.Config())
	if err != nil {
		return errors.Wrap(errors.NetworkDropped, err, "listening for sync peers on %s over tls", addr)
	}
	return serveListener(ctx, ln, accept)
}

func serveListener(ctx context.Context, ln net.Listener, accept func(net.Conn, *TCPTransport)) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		go accept(conn, NewTCPTransport(conn))
	}
}

func (t *TCPTransport) Send(ctx context.Context, f Frame) error {
	body := make([]byte, 0, 4+32+32+len(f.Body))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(64+len(f.Body)))
	body = append(body, lenBuf[:]...)
	body = append(body, f.Doc[:]...)
	body = append(body, f.From[:]...)
	body = append(body, f.Body...)
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	}
	_, err := t.conn.Write(body)
	if err != nil {
		return errors.Wrap(errors.NetworkDropped, err, "writing sync frame")
	}
	return nil
}

func (t *TCPTransport) Recv(ctx context.Context) (Frame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(deadline)
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		return Frame{}, errors.Wrap(errors.NetworkDropped, err, "reading sync frame length")
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n < 64 {
		return Frame{}, errors.New(errors.NetworkDropped, "sync frame shorter than header")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return Frame{}, errors.Wrap(errors.NetworkDropped, err, "reading sync frame body")
	}
	var f Frame
	copy(f.Doc[:], buf[:32])
	copy(f.From[:], buf[32:64])
	f.Body = buf[64:]
	return f, nil
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error { return t.conn.Close() }
