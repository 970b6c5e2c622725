package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/onslaught-http/onslaught/pkg/models"
)

func TestNewReusePolicy(t *testing.T) {
	tests := []struct {
		name      string
		connMax   int
		keepalive bool
		wantReuse bool
	}{
		{"keepalive off", 0, false, false},
		{"keepalive on, no cap", 5, true, true},
		{"keepalive on, cap=1 disables reuse", 1, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.connMax, tt.keepalive, 0)
			if c.Reuse != tt.wantReuse {
				t.Fatalf("Reuse = %v, want %v", c.Reuse, tt.wantReuse)
			}
			if c.RequestsServed != 0 {
				t.Fatalf("RequestsServed = %d, want 0", c.RequestsServed)
			}
			if c.Status != models.ConnFresh {
				t.Fatalf("Status = %v, want ConnFresh", c.Status)
			}
		})
	}
}

// A connection never serves more than connection_max transactions before
// reuse is forced off.
func TestMarkServedForcesReuseOffAtCap(t *testing.T) {
	c := New(2, true, 0)
	c.MarkServed()
	if !c.Reuse {
		t.Fatalf("Reuse should still be true after 1/2 served")
	}
	c.MarkServed()
	if c.Reuse {
		t.Fatalf("Reuse must be false once RequestsServed (%d) reaches ConnMax (%d)", c.RequestsServed, c.ConnMax)
	}
}

func TestNeedsOpenWhenFreshOrNotReusable(t *testing.T) {
	c := New(5, true, 0)
	if !c.NeedsOpen() {
		t.Fatalf("a fresh connection with no socket must need opening")
	}
}

func TestWriteErrorForcesReuseOffAndCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := New(5, true, 2*time.Second)
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	if err := c.Open(host, port); err != nil {
		t.Fatalf("Open: %v", err)
	}

	serverSide := <-accepted
	serverSide.Close() // force the client write to fail

	// Give the kernel a moment to notice the peer closed.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 20; i++ {
		if _, err := c.Write([]byte("x")); err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if c.Reuse {
		t.Fatalf("a write error must force Reuse off")
	}
	if c.conn != nil {
		t.Fatalf("a write error must close the socket")
	}
}
