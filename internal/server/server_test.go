package server_test

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/mumbleproto"
	"github.com/murmelhq/murmel/internal/router"
	"github.com/murmelhq/murmel/internal/server"
	"github.com/murmelhq/murmel/internal/session"
	"github.com/murmelhq/murmel/internal/store"
	"github.com/murmelhq/murmel/internal/wire"
)

func newServer(t *testing.T) *server.Server {
	t.Helper()
	reg := session.NewRegistry(store.NewMemory(), 1)
	if err := reg.SetChannels(nil); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	cfg := &config.Config{MaxUsers: 10, MaxBandwidth: 72000, MaxTextLength: 1000}
	return server.New(reg, router.New(reg), nil, cfg)
}

func readVersionFrame(t *testing.T, c net.Conn) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))

	header := make([]byte, wire.HeaderSize)
	if _, err := readFull(c, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if typ := binary.BigEndian.Uint16(header[0:2]); mumbleproto.Type(typ) != mumbleproto.TypeVersion {
		t.Fatalf("first frame type = %d, want Version", typ)
	}
	payload := make([]byte, binary.BigEndian.Uint32(header[2:6]))
	if _, err := readFull(c, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := c.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

func TestServeSendsVersionFirst(t *testing.T) {
	srv := newServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	readVersionFrame(t, c)
}

func TestServeOverTLS(t *testing.T) {
	srv := newServer(t)

	tlsCfg, err := server.LoadOrGenerateCert("", "")
	if err != nil {
		t.Fatalf("LoadOrGenerateCert: %v", err)
	}

	inner, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln := tls.NewListener(inner, tlsCfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer c.Close()

	readVersionFrame(t, c)
}

func TestLoadOrGenerateCertPersists(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	first, err := server.LoadOrGenerateCert(certFile, keyFile)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	second, err := server.LoadOrGenerateCert(certFile, keyFile)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	a := first.Certificates[0].Certificate[0]
	b := second.Certificates[0].Certificate[0]
	if string(a) != string(b) {
		t.Fatalf("certificate changed across restart")
	}
}
