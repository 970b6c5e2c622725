package worker

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/onslaught-http/onslaught/pkg/models"
)

// selfSignedCert builds an in-memory certificate for a TLS test origin; no
// file ever touches disk.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("building tls.Certificate: %v", err)
	}
	return cert
}

// newTLSOriginServer starts a bare TLS listener that serves a fixed 200
// response on every request it reads.
func newTLSOriginServer(t *testing.T, cert tls.Certificate) (string, int) {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				br := bufio.NewReader(conn)
				for {
					req, err := http.ReadRequest(br)
					if err != nil {
						return
					}
					io.Copy(io.Discard, req.Body)
					req.Body.Close()
					body := "secure"
					fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
				}
			}()
		}
	}()

	ta := ln.Addr().(*net.TCPAddr)
	return ta.IP.String(), ta.Port
}

// newConnectProxy starts a plain TCP proxy that honors a CONNECT request by
// dialing the exact host:port the client asked for and splicing bytes in
// both directions.
func newConnectProxy(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			client, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				br := bufio.NewReader(client)
				req, err := http.ReadRequest(br)
				if err != nil || req.Method != http.MethodConnect {
					client.Close()
					return
				}
				target, err := net.Dial("tcp", req.Host)
				if err != nil {
					fmt.Fprintf(client, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
					client.Close()
					return
				}
				fmt.Fprintf(client, "HTTP/1.1 200 Connection Established\r\n\r\n")

				done := make(chan struct{}, 2)
				go func() { io.Copy(target, br); done <- struct{}{} }()
				go func() { io.Copy(client, target); done <- struct{}{} }()
				<-done
				client.Close()
				target.Close()
			}()
		}
	}()

	ta := ln.Addr().(*net.TCPAddr)
	return ta.IP.String(), ta.Port
}

// An HTTPS request routed through a forward proxy's CONNECT tunnel reaches
// the origin and completes the TLS handshake, end to end through the
// Worker, not just the transport package in isolation.
func TestHTTPSViaProxyConnectTunnel(t *testing.T) {
	cert := selfSignedCert(t)
	originHost, originPort := newTLSOriginServer(t, cert)
	proxyHost, proxyPort := newConnectProxy(t)

	plan := &models.UrlPlan{Templates: []models.UrlTemplate{
		{Protocol: models.ProtocolHTTPS, Host: originHost, Port: originPort, Path: "/s", Method: models.MethodGET},
	}}
	cfg := &models.RunConfig{
		Concurrency: 1, Reps: 1, ConnMax: 1, AuthBids: 1, SocketTimeout: 2 * time.Second,
		InsecureSkipVerify: true,
		Proxy:              models.ProxyConfig{Required: true, Host: proxyHost, Port: proxyPort},
	}
	w, clock := newHarness(t, cfg, plan)
	clock.Start()
	w.Run(context.Background())

	st := w.Stats()
	if st.Hits != 1 {
		t.Fatalf("hits = %d, want 1", st.Hits)
	}
	if st.Bytes != int64(len("secure")) {
		t.Fatalf("bytes = %d, want %d", st.Bytes, len("secure"))
	}
}
