// Package server accepts client transports and hands each one to a
// connection engine. TLS termination and certificate fingerprinting happen
// here, before the protocol state machine sees any bytes.
package server

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/conn"
	"github.com/murmelhq/murmel/internal/router"
	"github.com/murmelhq/murmel/internal/session"
	"github.com/murmelhq/murmel/internal/voice"
)

// Server owns the shared state every connection engine plugs into.
type Server struct {
	reg   *session.Registry
	rt    *router.Router
	voice *voice.Engine
	cfg   *config.Config
}

// New builds a server. voice may be nil when no mixing engine runs.
func New(reg *session.Registry, rt *router.Router, v *voice.Engine, cfg *config.Config) *Server {
	return &Server{reg: reg, rt: rt, voice: v, cfg: cfg}
}

// Serve accepts connections from ln until the context is cancelled. Each
// connection runs on its own goroutine; one client cannot stall the accept
// loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info().Str("module", "server").Stringer("addr", ln.Addr()).Msg("accepting connections")

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.handle(ctx, c)
	}
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	fingerprint := ""

	if tc, ok := c.(*tls.Conn); ok {
		if err := tc.HandshakeContext(ctx); err != nil {
			log.Debug().Err(err).Str("module", "server").
				Stringer("remote", c.RemoteAddr()).Msg("tls handshake failed")
			c.Close()
			return
		}
		fingerprint = peerFingerprint(tc.ConnectionState())
	}

	e := conn.New(c, conn.Options{
		Registry:    s.reg,
		Router:      s.rt,
		Voice:       s.voice,
		Config:      s.cfg,
		Fingerprint: fingerprint,
		Remote:      c.RemoteAddr().String(),
	})
	e.Run(ctx)
}

// peerFingerprint is the lowercase SHA-1 hex digest of the peer's leaf
// certificate, the key the registered-user store is indexed by. Empty when
// the peer presented no certificate.
func peerFingerprint(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	sum := sha1.Sum(state.PeerCertificates[0].Raw)
	return hex.EncodeToString(sum[:])
}
