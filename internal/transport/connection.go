// Package transport is the Connection: one live transport (plain or TLS),
// its bound lifetime, and its reuse metadata.
//
// It sits on stdlib net/crypto-tls directly, the layer below
// net/http.Transport, because each worker must hold one exclusive,
// inspectable connection and drive a proxy CONNECT tunnel by hand.
package transport

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/onslaught-http/onslaught/pkg/models"
)

// Connection is one worker's exclusively-owned transport. It may be torn
// down and recreated but is never handed to another worker.
type Connection struct {
	conn    net.Conn
	reader  *bufio.Reader
	Encrypt bool
	Reuse   bool
	Status  models.ConnStatus

	RequestsServed int
	ConnMax        int

	Timeout time.Duration

	host       string
	port       int
	serverName string
}

// New constructs a Connection with its construction-time reuse policy:
// zero requests served, reuse only when keepalive is on and connMax != 1.
func New(connMax int, keepalive bool, timeout time.Duration) *Connection {
	return &Connection{
		ConnMax: connMax,
		Reuse:   keepalive && connMax != 1,
		Status:  models.ConnFresh,
		Timeout: timeout,
	}
}

// Open dials a new plain TCP socket to host:port. Any prior socket is
// closed first.
func (c *Connection) Open(host string, port int) error {
	c.closeSocket()
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.Encrypt = false
	c.host, c.port = host, port
	return nil
}

// HandshakeTLS upgrades the current plain socket to TLS. Encrypt is only
// true once the handshake has actually completed.
func (c *Connection) HandshakeTLS(serverName string, insecureSkipVerify bool) error {
	if c.conn == nil {
		return fmt.Errorf("handshake attempted with no open socket")
	}
	tlsConn := tls.Client(c.conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
	})
	if c.Timeout > 0 {
		_ = tlsConn.SetDeadline(time.Now().Add(c.Timeout))
	}
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	if c.Timeout > 0 {
		_ = tlsConn.SetDeadline(time.Time{})
	}
	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.Encrypt = true
	c.serverName = serverName
	return nil
}

// Write writes to the socket. Any I/O error forces reuse off and closes the
// socket before surfacing the error.
func (c *Connection) Write(b []byte) (int, error) {
	if c.Timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.Timeout))
	}
	n, err := c.conn.Write(b)
	if err != nil {
		c.failAndClose()
	}
	return n, err
}

// Reader exposes the buffered reader for the header codec to parse from.
// Any caller that hits an I/O error reading from it must call FailAndClose.
func (c *Connection) Reader() *bufio.Reader {
	if c.Timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
	return c.reader
}

// FailAndClose marks the connection not-reusable and closes the socket. An
// interrupted or errored connection must never be left in a reusable
// state.
func (c *Connection) FailAndClose() { c.failAndClose() }

func (c *Connection) failAndClose() {
	c.Reuse = false
	c.closeSocket()
}

func (c *Connection) closeSocket() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Close tears down the socket unconditionally (worker exit).
func (c *Connection) Close() {
	c.closeSocket()
}

// EndReuse closes the socket because this transaction's reuse decision
// came out negative (either side declined keep-alive). Unlike FailAndClose
// this isn't an error path, but the effect on Reuse/Status is identical.
func (c *Connection) EndReuse() {
	c.Reuse = false
	c.closeSocket()
}

// MarkServed records that one transaction completed successfully on this
// connection and applies the reuse cap: once RequestsServed reaches
// ConnMax, reuse is forced off before the next transaction begins.
func (c *Connection) MarkServed() {
	c.RequestsServed++
	c.Status = models.ConnUsed
	if c.ConnMax > 0 && c.RequestsServed >= c.ConnMax {
		c.Reuse = false
	}
}

// NeedsOpen reports whether the engine must dial a new socket for the next
// transaction.
func (c *Connection) NeedsOpen() bool {
	return !c.Reuse || c.Status == models.ConnFresh || c.conn == nil
}

// Serves reports whether the live socket already points at host:port and,
// for TLS, was handshaken for serverName ("" means a plain connection).
// A redirect hop to another host cannot ride the previous host's socket.
func (c *Connection) Serves(host string, port int, serverName string) bool {
	if c.conn == nil {
		return false
	}
	if c.host != host || c.port != port {
		return false
	}
	if (serverName != "") != c.Encrypt {
		return false
	}
	return serverName == "" || c.serverName == serverName
}
